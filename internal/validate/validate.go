// Package validate holds the pure validation rules for submission drafts.
// Nothing here touches storage or mutates the draft; callers decide when to
// run a check and what to do with the result.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"kycgate/internal/model"
)

// MaxDocumentBytes caps each uploaded document image.
const MaxDocumentBytes = 5 << 20 // 5 MiB

var (
	aadhaarPattern = regexp.MustCompile(`^[0-9]{12}$`)
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

	allowedImageTypes = map[string]struct{}{
		"image/jpeg": {},
		"image/png":  {},
		"image/webp": {},
	}
)

// FieldErrors maps a field key to a human-readable message. A key that is
// absent means the field is currently valid.
type FieldErrors map[string]string

// AadhaarNumber reports whether the value is a valid Aadhaar number: exactly
// 12 decimal digits once whitespace (cards print groups of 4) is stripped.
func AadhaarNumber(value string) bool {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)
	return aadhaarPattern.MatchString(stripped)
}

// PANNumber reports whether the value is a valid PAN: five letters, four
// digits, one letter. Case is folded before matching.
func PANNumber(value string) bool {
	return panPattern.MatchString(strings.ToUpper(value))
}

// Document checks a staged file against the upload constraints and returns
// an empty string when it passes. Violations are reported in priority order:
// missing, then unsupported type, then size.
func Document(blob *model.FileBlob, label string) string {
	if blob == nil {
		return fmt.Sprintf("%s image is required", label)
	}
	if _, ok := allowedImageTypes[blob.MimeType]; !ok {
		return fmt.Sprintf("%s must be a JPEG, PNG or WEBP image", label)
	}
	if blob.SizeBytes > MaxDocumentBytes {
		return fmt.Sprintf("%s image must be 5 MB or smaller", label)
	}
	return ""
}

// InfoStep validates the five Information-step fields. An empty field yields
// its required message; the id fields are format-checked only when non-empty
// so a field never carries both messages at once.
func InfoStep(draft *model.SubmissionDraft) FieldErrors {
	errs := FieldErrors{}
	switch {
	case strings.TrimSpace(draft.AadhaarNumber) == "":
		errs["aadhaarNumber"] = "Aadhaar number is required"
	case !AadhaarNumber(draft.AadhaarNumber):
		errs["aadhaarNumber"] = "Aadhaar number must be 12 digits"
	}
	switch {
	case strings.TrimSpace(draft.PANNumber) == "":
		errs["panNumber"] = "PAN number is required"
	case !PANNumber(draft.PANNumber):
		errs["panNumber"] = "PAN number must match the format ABCDE1234F"
	}
	if strings.TrimSpace(draft.FullName) == "" {
		errs["fullName"] = "Full name is required"
	}
	if strings.TrimSpace(draft.DateOfBirth) == "" {
		errs["dateOfBirth"] = "Date of birth is required"
	}
	if strings.TrimSpace(draft.Address) == "" {
		errs["address"] = "Address is required"
	}
	return errs
}

// DocumentsStep validates both required document images.
func DocumentsStep(draft *model.SubmissionDraft) FieldErrors {
	errs := FieldErrors{}
	if msg := Document(draft.AadhaarImage, "Aadhaar card"); msg != "" {
		errs["aadhaarImage"] = msg
	}
	if msg := Document(draft.PANImage, "PAN card"); msg != "" {
		errs["panImage"] = msg
	}
	return errs
}
