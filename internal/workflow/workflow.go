// Package workflow hosts the guided submission flow: a three-step state
// machine over a draft owned exclusively by one workflow instance. Transitions
// are gated on validation, and a busy guard rejects every mutation while a
// submission is in flight so a draft can never be double-submitted.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kycgate/internal/model"
	"kycgate/internal/submit"
	"kycgate/internal/validate"
)

// Step identifies a position in the submission flow.
type Step int

const (
	StepInformation Step = iota + 1
	StepDocuments
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepInformation:
		return "information"
	case StepDocuments:
		return "documents"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned by every mutating call while a submission is in
	// flight. The step never changes under it.
	ErrBusy = errors.New("submission in progress")
	// ErrUnknownField is returned by SetField for a field the draft lacks.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidTransition is returned for moves the step machine forbids.
	ErrInvalidTransition = errors.New("invalid step transition")
)

// DocumentError carries the human-readable message for a rejected file.
type DocumentError struct {
	Message string
}

func (e *DocumentError) Error() string {
	return e.Message
}

// Submitter runs the two-phase persistence protocol for a finished draft.
type Submitter interface {
	Submit(ctx context.Context, draft *model.SubmissionDraft, ownerID string) (*model.VerificationRecord, error)
}

// Completion is passed to the caller's callback when the flow finishes.
type Completion struct {
	Status      model.VerificationStatus
	SubmittedAt time.Time
}

// Workflow is a single in-progress submission. All exported methods are safe
// for concurrent use; the draft never escapes the instance.
type Workflow struct {
	mu          sync.Mutex
	ownerID     string
	draft       model.SubmissionDraft
	step        Step
	fieldErrors validate.FieldErrors
	submitError string
	inFlight    bool

	submitter  Submitter
	previews   PreviewEncoder
	logger     *slog.Logger
	onComplete func(Completion)
}

// New creates a workflow for ownerID starting at the Information step.
// onComplete may be nil.
func New(ownerID string, submitter Submitter, previews PreviewEncoder, logger *slog.Logger, onComplete func(Completion)) *Workflow {
	return &Workflow{
		ownerID:     ownerID,
		step:        StepInformation,
		fieldErrors: validate.FieldErrors{},
		submitter:   submitter,
		previews:    previews,
		logger:      logger,
		onComplete:  onComplete,
	}
}

// SetField updates one Information-step field and optimistically clears any
// error recorded for it. Validation is not rerun here; that happens on the
// next Advance.
func (w *Workflow) SetField(name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight {
		return ErrBusy
	}
	switch name {
	case "aadhaarNumber":
		w.draft.AadhaarNumber = value
	case "panNumber":
		w.draft.PANNumber = value
	case "fullName":
		w.draft.FullName = value
	case "dateOfBirth":
		w.draft.DateOfBirth = value
	case "address":
		w.draft.Address = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	delete(w.fieldErrors, name)
	return nil
}

// StageDocument validates and attaches a document image to the draft. A
// rejected file leaves any previously staged file for the slot untouched.
// The file and its preview are replaced together; readers never observe a
// mismatched pair.
func (w *Workflow) StageDocument(ctx context.Context, slot model.DocumentSlot, blob *model.FileBlob) error {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		return ErrBusy
	}
	w.mu.Unlock()

	if msg := validate.Document(blob, slotLabel(slot)); msg != "" {
		return &DocumentError{Message: msg}
	}

	// Preview encoding runs outside the lock so a slow encode never blocks
	// the other slot. Its failure is explicitly non-fatal.
	preview, err := w.previews.Encode(ctx, blob)
	if err != nil {
		w.logger.Warn("preview generation failed",
			"owner_id", w.ownerID, "slot", string(slot), "error", err)
		preview = ""
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight {
		return ErrBusy
	}
	w.draft.SetImage(slot, blob, preview)
	delete(w.fieldErrors, slotErrorKey(slot))
	return nil
}

// Advance moves the flow forward. From Information it is gated on the info
// fields; from Documents it is gated on both files and, when they pass, runs
// the submission protocol: success lands on Confirmation, failure stays on
// Documents with a submission error surfaced in the snapshot. Validation
// failures are not Go errors; they are recorded on the snapshot and the step
// simply does not change.
func (w *Workflow) Advance(ctx context.Context) (Step, error) {
	w.mu.Lock()
	if w.inFlight {
		step := w.step
		w.mu.Unlock()
		return step, ErrBusy
	}

	switch w.step {
	case StepInformation:
		errs := validate.InfoStep(&w.draft)
		if len(errs) > 0 {
			w.fieldErrors = errs
			step := w.step
			w.mu.Unlock()
			return step, nil
		}
		w.fieldErrors = validate.FieldErrors{}
		w.step = StepDocuments
		w.mu.Unlock()
		return StepDocuments, nil

	case StepDocuments:
		errs := validate.DocumentsStep(&w.draft)
		if len(errs) > 0 {
			w.fieldErrors = errs
			step := w.step
			w.mu.Unlock()
			return step, nil
		}
		w.fieldErrors = validate.FieldErrors{}
		w.submitError = ""
		w.inFlight = true
		// Snapshot the draft so the submitter reads stable state. The busy
		// guard blocks all mutation until the attempt resolves.
		draft := w.draft
		owner := w.ownerID
		w.mu.Unlock()

		record, err := w.submitter.Submit(ctx, &draft, owner)

		w.mu.Lock()
		w.inFlight = false
		if err != nil {
			w.submitError = userMessage(err)
			step := w.step
			w.mu.Unlock()
			w.logger.Error("submission failed", "owner_id", owner, "error", err)
			return step, err
		}
		w.step = StepConfirmation
		cb := w.onComplete
		w.mu.Unlock()
		if cb != nil {
			cb(Completion{Status: record.Status, SubmittedAt: record.SubmittedAt})
		}
		return StepConfirmation, nil

	default:
		step := w.step
		w.mu.Unlock()
		return step, ErrInvalidTransition
	}
}

// Retreat moves from Documents back to Information. Step-scoped validation
// errors do not survive the step boundary.
func (w *Workflow) Retreat() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight {
		return w.step, ErrBusy
	}
	if w.step != StepDocuments {
		return w.step, ErrInvalidTransition
	}
	w.step = StepInformation
	w.fieldErrors = validate.FieldErrors{}
	return w.step, nil
}

// Snapshot is a read-only view of the workflow for the presentation layer.
type Snapshot struct {
	OwnerID        string                `json:"ownerId"`
	Step           Step                  `json:"-"`
	StepName       string                `json:"step"`
	Busy           bool                  `json:"busy"`
	FieldErrors    validate.FieldErrors  `json:"fieldErrors,omitempty"`
	SubmitError    string                `json:"submitError,omitempty"`
	AadhaarStaged  bool                  `json:"aadhaarStaged"`
	PANStaged      bool                  `json:"panStaged"`
	AadhaarPreview string                `json:"aadhaarPreview,omitempty"`
	PANPreview     string                `json:"panPreview,omitempty"`
}

// State returns a consistent snapshot of the workflow.
func (w *Workflow) State() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := make(validate.FieldErrors, len(w.fieldErrors))
	for k, v := range w.fieldErrors {
		errs[k] = v
	}
	return Snapshot{
		OwnerID:        w.ownerID,
		Step:           w.step,
		StepName:       w.step.String(),
		Busy:           w.inFlight,
		FieldErrors:    errs,
		SubmitError:    w.submitError,
		AadhaarStaged:  w.draft.AadhaarImage != nil,
		PANStaged:      w.draft.PANImage != nil,
		AadhaarPreview: w.draft.AadhaarPreview,
		PANPreview:     w.draft.PANPreview,
	}
}

func slotLabel(slot model.DocumentSlot) string {
	if slot == model.SlotPAN {
		return "PAN card"
	}
	return "Aadhaar card"
}

func slotErrorKey(slot model.DocumentSlot) string {
	if slot == model.SlotPAN {
		return "panImage"
	}
	return "aadhaarImage"
}

func userMessage(err error) string {
	var submitErr *submit.Error
	if errors.As(err, &submitErr) {
		return submitErr.UserMessage()
	}
	return "Something went wrong while submitting. Please try again."
}
