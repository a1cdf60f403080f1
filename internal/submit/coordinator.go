// Package submit orchestrates the two-phase persistence of a finished
// submission draft: upload both document images, then write the verification
// record. The two stores share no transaction, so ordering and a single
// compensation rule hold the protocol together: the record is never written
// unless both uploads succeeded, and a written record is the commit point.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kycgate/internal/blobstore"
	"kycgate/internal/model"
	"kycgate/internal/queue"
	"kycgate/internal/recordstore"
)

const (
	verificationsCollection = "verifications"
	usersCollection         = "users"
)

// Notifier publishes the post-commit submission event. Failures are logged,
// never surfaced.
type Notifier interface {
	SubmissionAccepted(ctx context.Context, payload queue.SubmittedPayload) error
}

// Coordinator runs the submission protocol against the configured stores.
type Coordinator struct {
	blobs    blobstore.Store
	records  recordstore.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewCoordinator constructs a coordinator. notifier may be nil when no task
// queue is configured.
func NewCoordinator(blobs blobstore.Store, records recordstore.Store, notifier Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		blobs:    blobs,
		records:  records,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit persists the draft for ownerID and returns the created record.
// The draft itself is never mutated, so the caller can retry a failed
// submission as-is; every attempt uploads to freshly minted paths.
func (c *Coordinator) Submit(ctx context.Context, draft *model.SubmissionDraft, ownerID string) (*model.VerificationRecord, error) {
	if draft.AadhaarImage == nil || draft.PANImage == nil {
		return nil, newError(KindInternal, errors.New("draft is missing staged documents"))
	}

	// Phase 1: both uploads must complete before anything is recorded.
	var aadhaarURL, panURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := c.upload(gctx, ownerID, model.SlotAadhaar, draft.AadhaarImage)
		if err != nil {
			return err
		}
		aadhaarURL = url
		return nil
	})
	g.Go(func() error {
		url, err := c.upload(gctx, ownerID, model.SlotPAN, draft.PANImage)
		if err != nil {
			return err
		}
		panURL = url
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, newError(KindUploadFailed, err)
	}

	// Phase 2: write the record. Identifiers are normalized here, once.
	submittedAt := c.now().UTC()
	record := &model.VerificationRecord{
		OwnerID:       ownerID,
		AadhaarNumber: stripWhitespace(draft.AadhaarNumber),
		PANNumber:     strings.ToUpper(strings.TrimSpace(draft.PANNumber)),
		FullName:      draft.FullName,
		DateOfBirth:   draft.DateOfBirth,
		Address:       draft.Address,
		AadhaarDocURL: aadhaarURL,
		PANDocURL:     panURL,
		Status:        model.StatusPending,
		SubmittedAt:   submittedAt,
	}
	if err := c.records.Write(ctx, verificationsCollection, ownerID, record); err != nil {
		return nil, newError(KindRecordWriteFailed, err)
	}

	// The owner's own status field is a best-effort secondary write; the
	// verification record above is the source of truth either way.
	err := c.records.Update(ctx, usersCollection, ownerID, map[string]any{
		"verificationStatus":      string(model.StatusPending),
		"verificationSubmittedAt": submittedAt,
	})
	if err != nil {
		c.logger.Warn("owner status update failed after record write",
			"owner_id", ownerID, "error", err)
	}

	if c.notifier != nil {
		payload := queue.SubmittedPayload{OwnerID: ownerID, SubmittedAt: submittedAt}
		if err := c.notifier.SubmissionAccepted(ctx, payload); err != nil {
			c.logger.Warn("submitted notification not enqueued",
				"owner_id", ownerID, "error", err)
		}
	}

	return record, nil
}

func (c *Coordinator) upload(ctx context.Context, ownerID string, slot model.DocumentSlot, blob *model.FileBlob) (string, error) {
	path := documentPath(ownerID, slot, blob.OriginalName, c.now())
	location, err := c.blobs.Put(ctx, path, blob.Bytes, blob.MimeType)
	if err != nil {
		return "", fmt.Errorf("upload %s document: %w", slot, err)
	}
	url, err := c.blobs.Resolve(ctx, location)
	if err != nil {
		return "", fmt.Errorf("resolve %s document: %w", slot, err)
	}
	return url, nil
}

// documentPath scopes the object by owner and keeps it collision-resistant
// by embedding the upload timestamp, preserving the original extension.
func documentPath(ownerID string, slot model.DocumentSlot, originalName string, ts time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("verifications/%s/%s-%d%s", ownerID, slot, ts.UnixNano(), ext)
}

func stripWhitespace(value string) string {
	return strings.Join(strings.Fields(value), "")
}
