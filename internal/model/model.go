// Package model contains the data types shared across the submission workflow.
package model

import "time"

// VerificationStatus describes the review lifecycle of a submitted record.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusApproved VerificationStatus = "approved"
	StatusRejected VerificationStatus = "rejected"
)

// DocumentSlot names the two document attachments a submission requires.
type DocumentSlot string

const (
	SlotAadhaar DocumentSlot = "aadhaar"
	SlotPAN     DocumentSlot = "pan"
)

// FileBlob is a raw document image as selected by the user. Bytes stay
// authoritative for upload; previews are derived separately.
type FileBlob struct {
	Bytes        []byte
	MimeType     string
	SizeBytes    int64
	OriginalName string
}

// SubmissionDraft is the mutable in-progress submission. Each draft is owned
// exclusively by its workflow instance; validity is never cached on the draft
// itself but computed on demand by the validate package.
type SubmissionDraft struct {
	AadhaarNumber string
	PANNumber     string
	FullName      string
	DateOfBirth   string
	Address       string

	AadhaarImage *FileBlob
	PANImage     *FileBlob

	// Previews are data URIs regenerated whenever the matching image changes.
	// They exist for UI feedback only and are never sent to storage.
	AadhaarPreview string
	PANPreview     string
}

// SetImage replaces the blob and preview for a slot together. Callers must
// hold whatever lock guards the draft so readers never observe a mismatched
// file/preview pair.
func (d *SubmissionDraft) SetImage(slot DocumentSlot, blob *FileBlob, preview string) {
	if slot == SlotPAN {
		d.PANImage = blob
		d.PANPreview = preview
		return
	}
	d.AadhaarImage = blob
	d.AadhaarPreview = preview
}

// VerificationRecord is the persisted outcome of a successful submission.
// It is created once by the submission coordinator; status transitions are
// owned by the external review process and never applied here.
type VerificationRecord struct {
	OwnerID         string             `json:"ownerId" bson:"ownerId"`
	AadhaarNumber   string             `json:"aadhaarNumber" bson:"aadhaarNumber"`
	PANNumber       string             `json:"panNumber" bson:"panNumber"`
	FullName        string             `json:"fullName" bson:"fullName"`
	DateOfBirth     string             `json:"dateOfBirth" bson:"dateOfBirth"`
	Address         string             `json:"address" bson:"address"`
	AadhaarDocURL   string             `json:"aadhaarDocUrl" bson:"aadhaarDocUrl"`
	PANDocURL       string             `json:"panDocUrl" bson:"panDocUrl"`
	Status          VerificationStatus `json:"status" bson:"status"`
	SubmittedAt     time.Time          `json:"submittedAt" bson:"submittedAt"`
	ApprovedAt      *time.Time         `json:"approvedAt" bson:"approvedAt"`
	RejectedAt      *time.Time         `json:"rejectedAt" bson:"rejectedAt"`
	RejectionReason *string            `json:"rejectionReason" bson:"rejectionReason"`
}
