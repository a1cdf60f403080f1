package submit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/model"
	"kycgate/internal/queue"
	"kycgate/internal/recordstore"
)

type fakeBlobStore struct {
	mu       sync.Mutex
	puts     []string
	failSlot string // fail any Put whose path contains this marker
}

func (f *fakeBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSlot != "" && strings.Contains(path, f.failSlot) {
		return "", errors.New("storage unavailable")
	}
	f.puts = append(f.puts, path)
	return path, nil
}

func (f *fakeBlobStore) Resolve(ctx context.Context, location string) (string, error) {
	return "https://blobs.test/" + location, nil
}

func (f *fakeBlobStore) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

type recordingStore struct {
	inner      *recordstore.Memory
	writes     int
	failWrites bool
}

func (r *recordingStore) Write(ctx context.Context, collection, key string, doc any) error {
	r.writes++
	if r.failWrites {
		return errors.New("record store down")
	}
	return r.inner.Write(ctx, collection, key, doc)
}

func (r *recordingStore) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	return r.inner.Update(ctx, collection, key, fields)
}

type fakeNotifier struct {
	calls []queue.SubmittedPayload
	fail  bool
}

func (f *fakeNotifier) SubmissionAccepted(ctx context.Context, payload queue.SubmittedPayload) error {
	if f.fail {
		return errors.New("queue unreachable")
	}
	f.calls = append(f.calls, payload)
	return nil
}

func testDraft() *model.SubmissionDraft {
	return &model.SubmissionDraft{
		AadhaarNumber: "1234 5678 9012",
		PANNumber:     "abcde1234f",
		FullName:      "Asha Rao",
		DateOfBirth:   "1992-04-01",
		Address:       "12 MG Road, Bengaluru",
		AadhaarImage:  &model.FileBlob{Bytes: []byte("jpegdata"), MimeType: "image/jpeg", SizeBytes: 8, OriginalName: "aadhaar.JPG"},
		PANImage:      &model.FileBlob{Bytes: []byte("pngdata"), MimeType: "image/png", SizeBytes: 7, OriginalName: "pan.png"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitSuccess(t *testing.T) {
	blobs := &fakeBlobStore{}
	records := &recordingStore{inner: recordstore.NewMemory()}
	notifier := &fakeNotifier{}
	require.NoError(t, records.inner.Write(context.Background(), "users", "owner-1", map[string]any{"name": "Asha Rao"}))

	c := NewCoordinator(blobs, records, notifier, discardLogger())
	rec, err := c.Submit(context.Background(), testDraft(), "owner-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, "123456789012", rec.AadhaarNumber)
	assert.Equal(t, "ABCDE1234F", rec.PANNumber)
	assert.True(t, strings.HasPrefix(rec.AadhaarDocURL, "https://blobs.test/verifications/owner-1/aadhaar-"))
	assert.True(t, strings.HasSuffix(rec.AadhaarDocURL, ".jpg"))
	assert.True(t, strings.HasPrefix(rec.PANDocURL, "https://blobs.test/verifications/owner-1/pan-"))
	assert.Nil(t, rec.ApprovedAt)
	assert.Nil(t, rec.RejectedAt)
	assert.Nil(t, rec.RejectionReason)
	assert.False(t, rec.SubmittedAt.IsZero())

	stored, err := records.inner.Get("verifications", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", stored["status"])

	user, err := records.inner.Get("users", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", user["verificationStatus"])

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "owner-1", notifier.calls[0].OwnerID)
}

func TestSubmitUploadFailureWritesNoRecord(t *testing.T) {
	blobs := &fakeBlobStore{failSlot: "/pan-"}
	records := &recordingStore{inner: recordstore.NewMemory()}

	c := NewCoordinator(blobs, records, nil, discardLogger())
	_, err := c.Submit(context.Background(), testDraft(), "owner-1")

	var submitErr *Error
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, KindUploadFailed, submitErr.Kind())
	assert.Zero(t, records.writes, "record store must not be touched when an upload fails")
}

func TestSubmitRecordWriteFailure(t *testing.T) {
	blobs := &fakeBlobStore{}
	records := &recordingStore{inner: recordstore.NewMemory(), failWrites: true}

	c := NewCoordinator(blobs, records, nil, discardLogger())
	_, err := c.Submit(context.Background(), testDraft(), "owner-1")

	var submitErr *Error
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, KindRecordWriteFailed, submitErr.Kind())
}

func TestSubmitSucceedsWhenOwnerStatusUpdateFails(t *testing.T) {
	// No users document seeded, so the merge update fails with ErrNotFound.
	blobs := &fakeBlobStore{}
	records := &recordingStore{inner: recordstore.NewMemory()}

	c := NewCoordinator(blobs, records, nil, discardLogger())
	rec, err := c.Submit(context.Background(), testDraft(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)

	_, err = records.inner.Get("verifications", "owner-1")
	assert.NoError(t, err)
}

func TestSubmitSucceedsWhenNotifierFails(t *testing.T) {
	blobs := &fakeBlobStore{}
	records := &recordingStore{inner: recordstore.NewMemory()}
	notifier := &fakeNotifier{fail: true}

	c := NewCoordinator(blobs, records, notifier, discardLogger())
	_, err := c.Submit(context.Background(), testDraft(), "owner-1")
	assert.NoError(t, err)
}

func TestSubmitMintsFreshPathsPerAttempt(t *testing.T) {
	blobs := &fakeBlobStore{}
	records := &recordingStore{inner: recordstore.NewMemory()}

	c := NewCoordinator(blobs, records, nil, discardLogger())
	var tick atomic.Int64
	c.now = func() time.Time {
		return time.Unix(0, tick.Add(1))
	}

	_, err := c.Submit(context.Background(), testDraft(), "owner-1")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), testDraft(), "owner-1")
	require.NoError(t, err)

	paths := blobs.paths()
	require.Len(t, paths, 4)
	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p], "path %s reused across attempts", p)
		seen[p] = true
	}
}

func TestSubmitRejectsDraftWithoutStagedDocuments(t *testing.T) {
	c := NewCoordinator(&fakeBlobStore{}, &recordingStore{inner: recordstore.NewMemory()}, nil, discardLogger())
	draft := testDraft()
	draft.PANImage = nil

	_, err := c.Submit(context.Background(), draft, "owner-1")
	var submitErr *Error
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, KindInternal, submitErr.Kind())
}
