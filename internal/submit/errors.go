package submit

import "fmt"

// Kind classifies a submission failure for user-facing reporting. Every kind
// is fully retryable by re-invoking Submit; nothing is retried internally.
type Kind int

const (
	// KindUploadFailed means one of the document uploads failed and no
	// record was written.
	KindUploadFailed Kind = iota + 1
	// KindRecordWriteFailed means both uploads succeeded but the record
	// write did not; resubmission uploads to fresh paths and tries again.
	KindRecordWriteFailed
	// KindInternal covers unclassified failures caught at the coordinator
	// boundary.
	KindInternal
)

// Error is the single error type Submit returns. It wraps the storage-layer
// cause and maps each kind to one banner-style message.
type Error struct {
	kind  Kind
	cause error
}

func newError(kind Kind, cause error) *Error {
	return &Error{kind: kind, cause: cause}
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Error() string {
	switch e.kind {
	case KindUploadFailed:
		return fmt.Sprintf("document upload failed: %v", e.cause)
	case KindRecordWriteFailed:
		return fmt.Sprintf("record write failed: %v", e.cause)
	default:
		return fmt.Sprintf("submission failed: %v", e.cause)
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// UserMessage is the message surfaced to the submitting user.
func (e *Error) UserMessage() string {
	switch e.kind {
	case KindUploadFailed:
		return "Uploading your documents failed. Please try again."
	case KindRecordWriteFailed:
		return "Saving your verification failed. Please try again."
	default:
		return "Something went wrong while submitting. Please try again."
	}
}
