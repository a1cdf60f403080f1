package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/model"
)

type fakeSubmitter struct {
	err   error
	calls int
}

func (f *fakeSubmitter) Submit(ctx context.Context, draft *model.SubmissionDraft, ownerID string) (*model.VerificationRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.VerificationRecord{
		OwnerID:     ownerID,
		Status:      model.StatusPending,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// blockingSubmitter parks Submit until released so tests can observe the
// in-flight window deterministically.
type blockingSubmitter struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingSubmitter() *blockingSubmitter {
	return &blockingSubmitter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingSubmitter) Submit(ctx context.Context, draft *model.SubmissionDraft, ownerID string) (*model.VerificationRecord, error) {
	close(b.started)
	<-b.release
	return &model.VerificationRecord{OwnerID: ownerID, Status: model.StatusPending, SubmittedAt: time.Now().UTC()}, nil
}

type namePreview struct{}

func (namePreview) Encode(ctx context.Context, blob *model.FileBlob) (string, error) {
	return "preview:" + blob.OriginalName, nil
}

type brokenPreview struct{}

func (brokenPreview) Encode(ctx context.Context, blob *model.FileBlob) (string, error) {
	return "", errors.New("decoder crashed")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkflow(sub Submitter) *Workflow {
	return New("owner-1", sub, namePreview{}, testLogger(), nil)
}

func fillInfo(t *testing.T, w *Workflow) {
	t.Helper()
	require.NoError(t, w.SetField("aadhaarNumber", "1234 5678 9012"))
	require.NoError(t, w.SetField("panNumber", "ABCDE1234F"))
	require.NoError(t, w.SetField("fullName", "Asha Rao"))
	require.NoError(t, w.SetField("dateOfBirth", "1992-04-01"))
	require.NoError(t, w.SetField("address", "12 MG Road, Bengaluru"))
}

func imageBlob(name string) *model.FileBlob {
	return &model.FileBlob{Bytes: []byte("img"), MimeType: "image/jpeg", SizeBytes: 3, OriginalName: name}
}

func stageBoth(t *testing.T, w *Workflow) {
	t.Helper()
	require.NoError(t, w.StageDocument(context.Background(), model.SlotAadhaar, imageBlob("aadhaar.jpg")))
	require.NoError(t, w.StageDocument(context.Background(), model.SlotPAN, imageBlob("pan.jpg")))
}

func TestAdvanceBlockedByEmptyInfoFields(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})

	step, err := w.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepInformation, step)

	state := w.State()
	assert.Len(t, state.FieldErrors, 5)
	for _, key := range []string{"aadhaarNumber", "panNumber", "fullName", "dateOfBirth", "address"} {
		assert.Contains(t, state.FieldErrors, key)
	}
}

func TestAdvancePopulatesOnlyInvalidKeys(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})
	require.NoError(t, w.SetField("fullName", "Asha Rao"))
	require.NoError(t, w.SetField("panNumber", "bogus"))

	step, err := w.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepInformation, step)

	state := w.State()
	assert.Len(t, state.FieldErrors, 4)
	assert.NotContains(t, state.FieldErrors, "fullName")
	assert.Contains(t, state.FieldErrors, "panNumber")
}

func TestSetFieldClearsErrorOptimistically(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})
	_, err := w.Advance(context.Background())
	require.NoError(t, err)
	require.Len(t, w.State().FieldErrors, 5)

	require.NoError(t, w.SetField("fullName", "A"))

	state := w.State()
	assert.Len(t, state.FieldErrors, 4)
	assert.NotContains(t, state.FieldErrors, "fullName")
}

func TestSetFieldUnknown(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})
	err := w.SetField("favouriteColour", "blue")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestAdvanceToDocuments(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})
	fillInfo(t, w)

	step, err := w.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepDocuments, step)
	assert.Empty(t, w.State().FieldErrors)
}

func TestStageDocumentRejectionKeepsPreviousFile(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})
	require.NoError(t, w.StageDocument(context.Background(), model.SlotAadhaar, imageBlob("first.jpg")))
	require.Equal(t, "preview:first.jpg", w.State().AadhaarPreview)

	bad := &model.FileBlob{Bytes: []byte("x"), MimeType: "application/pdf", SizeBytes: 1, OriginalName: "bad.pdf"}
	err := w.StageDocument(context.Background(), model.SlotAadhaar, bad)

	var docErr *DocumentError
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, "Aadhaar card must be a JPEG, PNG or WEBP image", docErr.Message)

	state := w.State()
	assert.True(t, state.AadhaarStaged)
	assert.Equal(t, "preview:first.jpg", state.AadhaarPreview, "rejected file must not disturb the staged pair")
}

func TestRestagingReplacesFileAndPreviewTogether(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})
	require.NoError(t, w.StageDocument(context.Background(), model.SlotAadhaar, imageBlob("first.jpg")))
	require.NoError(t, w.StageDocument(context.Background(), model.SlotAadhaar, imageBlob("second.jpg")))

	state := w.State()
	assert.True(t, state.AadhaarStaged)
	assert.Equal(t, "preview:second.jpg", state.AadhaarPreview)
}

func TestPreviewFailureIsNonFatal(t *testing.T) {
	w := New("owner-1", &fakeSubmitter{}, brokenPreview{}, testLogger(), nil)

	require.NoError(t, w.StageDocument(context.Background(), model.SlotPAN, imageBlob("pan.jpg")))

	state := w.State()
	assert.True(t, state.PANStaged)
	assert.Empty(t, state.PANPreview)
}

func TestAdvanceBlockedByMissingDocuments(t *testing.T) {
	sub := &fakeSubmitter{}
	w := newTestWorkflow(sub)
	fillInfo(t, w)
	_, err := w.Advance(context.Background())
	require.NoError(t, err)

	step, err := w.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepDocuments, step)
	assert.Zero(t, sub.calls)

	state := w.State()
	assert.Contains(t, state.FieldErrors, "aadhaarImage")
	assert.Contains(t, state.FieldErrors, "panImage")
}

func TestSubmitFailureStaysOnDocumentsAndRetries(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("storage exploded")}
	w := newTestWorkflow(sub)
	fillInfo(t, w)
	_, err := w.Advance(context.Background())
	require.NoError(t, err)
	stageBoth(t, w)

	step, err := w.Advance(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepDocuments, step)

	state := w.State()
	assert.Equal(t, StepDocuments, state.Step)
	assert.NotEmpty(t, state.SubmitError)
	assert.True(t, state.AadhaarStaged, "staged files survive a failed submission")

	// user-initiated retry succeeds without restaging anything
	sub.err = nil
	step, err = w.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, step)
	assert.Empty(t, w.State().SubmitError)
	assert.Equal(t, 2, sub.calls)
}

func TestSuccessfulSubmissionReachesConfirmation(t *testing.T) {
	var done []Completion
	w := New("owner-1", &fakeSubmitter{}, namePreview{}, testLogger(), func(c Completion) {
		done = append(done, c)
	})
	fillInfo(t, w)
	_, err := w.Advance(context.Background())
	require.NoError(t, err)
	stageBoth(t, w)

	step, err := w.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, step)

	require.Len(t, done, 1)
	assert.Equal(t, model.StatusPending, done[0].Status)
	assert.False(t, done[0].SubmittedAt.IsZero())

	_, err = w.Advance(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRetreat(t *testing.T) {
	w := newTestWorkflow(&fakeSubmitter{})

	_, err := w.Retreat()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	fillInfo(t, w)
	_, err = w.Advance(context.Background())
	require.NoError(t, err)

	step, err := w.Retreat()
	require.NoError(t, err)
	assert.Equal(t, StepInformation, step)
}

func TestBusyGuardRejectsAllMutation(t *testing.T) {
	sub := newBlockingSubmitter()
	w := newTestWorkflow(sub)
	fillInfo(t, w)
	_, err := w.Advance(context.Background())
	require.NoError(t, err)
	stageBoth(t, w)

	result := make(chan error, 1)
	go func() {
		_, err := w.Advance(context.Background())
		result <- err
	}()
	<-sub.started

	assert.True(t, w.State().Busy)

	step, err := w.Advance(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StepDocuments, step)

	step, err = w.Retreat()
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StepDocuments, step)

	assert.ErrorIs(t, w.SetField("fullName", "Other Name"), ErrBusy)
	assert.ErrorIs(t, w.StageDocument(context.Background(), model.SlotAadhaar, imageBlob("new.jpg")), ErrBusy)

	close(sub.release)
	require.NoError(t, <-result)
	assert.Equal(t, StepConfirmation, w.State().Step)
	assert.False(t, w.State().Busy)
}

func TestDataURIEncoder(t *testing.T) {
	uri, err := DataURIEncoder{}.Encode(context.Background(), &model.FileBlob{
		Bytes:    []byte{0x89, 0x50, 0x4E, 0x47},
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw==", uri)

	_, err = DataURIEncoder{}.Encode(context.Background(), &model.FileBlob{MimeType: "image/png"})
	assert.Error(t, err)
}
