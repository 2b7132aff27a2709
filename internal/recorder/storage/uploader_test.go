package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func asStorageError(err error, target **StorageError) bool {
	return errors.As(err, target)
}

// fakeStore fails the first failures calls of PutFile.
type fakeStore struct {
	mu        sync.Mutex
	failures  int
	permanent bool
	calls     int
	keys      []string
	metadata  map[string]string
}

func (f *fakeStore) PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return &StorageError{Op: "put", Key: key, Err: errors.New("unavailable"), Retryable: !f.permanent}
	}
	f.keys = append(f.keys, key)
	f.metadata = resolvePutOptions(filePath, opts).Metadata
	return nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }

// markCounter counts status updates on top of a real store.
type markCounter struct {
	MetadataStore
	mu    sync.Mutex
	marks int
}

func (m *markCounter) MarkUploaded(ctx context.Context, id, objectKey string) error {
	m.mu.Lock()
	m.marks++
	m.mu.Unlock()
	return m.MetadataStore.MarkUploaded(ctx, id, objectKey)
}

func (m *markCounter) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	m.marks++
	m.mu.Unlock()
	return m.MetadataStore.MarkFailed(ctx, id, reason)
}

func writeSegment(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	return p
}

func newRecord(t *testing.T, number int) *SegmentRecord {
	return &SegmentRecord{
		ID:        uuid.NewString(),
		SessionID: "session-a",
		Number:    number,
		Camera:    "porch",
		LocalPath: writeSegment(t, "event001.mkv"),
		Frames:    52,
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2024, 5, 1, 12, 0, 4, 0, time.UTC),
	}
}

func TestUploaderUploadsAndRecords(t *testing.T) {
	meta := newTestSQLStore(t)
	store := &fakeStore{failures: 2}
	u := NewUploader(store, meta, UploaderConfig{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond, DateKeys: true, DeleteAfterUpload: true}, nil)

	rec := newRecord(t, 1)
	if !u.Enqueue(rec) {
		t.Fatal("Enqueue should accept the segment")
	}
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
	wantKey := "porch/2024/05/01/session-a/event001.mkv"
	if len(store.keys) != 1 || store.keys[0] != wantKey {
		t.Fatalf("expected key %q, got %v", wantKey, store.keys)
	}
	if store.metadata["segment"] != "1" || store.metadata["frames"] != "52" {
		t.Fatalf("unexpected object metadata %v", store.metadata)
	}

	got, err := meta.GetSegment(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if got.Status != StatusUploaded || got.ObjectKey.String != wantKey || got.SizeBytes != 10 {
		t.Fatalf("unexpected metadata row: %+v", got)
	}
	if _, err := os.Stat(rec.LocalPath); !os.IsNotExist(err) {
		t.Fatalf("local file should be removed after upload, stat err %v", err)
	}
	if s := u.Stats(); s.Uploaded != 1 || s.Failed != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestUploaderMarksFailed(t *testing.T) {
	meta := newTestSQLStore(t)
	store := &fakeStore{failures: 100, permanent: true}
	u := NewUploader(store, meta, UploaderConfig{Workers: 1, MaxRetries: 5, RetryBackoff: time.Millisecond}, nil)

	rec := newRecord(t, 2)
	u.Enqueue(rec)
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if store.calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", store.calls)
	}
	got, err := meta.GetSegment(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if got.Status != StatusFailed || !got.Error.Valid {
		t.Fatalf("expected failed row with reason, got %+v", got)
	}
	if _, err := os.Stat(rec.LocalPath); err != nil {
		t.Fatalf("local file must be kept after a failed upload: %v", err)
	}
	if s := u.Stats(); s.Failed != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestUploaderZeroRetriesUploadsOnce(t *testing.T) {
	store := &fakeStore{failures: 100}
	u := NewUploader(store, nil, UploaderConfig{Workers: 1, MaxRetries: 0, RetryBackoff: time.Millisecond}, nil)

	u.Enqueue(newRecord(t, 1))
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", store.calls)
	}
}

func TestUploaderAccessDeniedIsFinal(t *testing.T) {
	store := &statusStore{code: 403}
	u := NewUploader(store, nil, UploaderConfig{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond}, nil)

	u.Enqueue(newRecord(t, 1))
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("access denied must not be retried, got %d calls", store.calls)
	}
}

// statusStore fails every PutFile with a fixed status and Retryable set,
// like a store that does not classify its own errors.
type statusStore struct {
	fakeStore
	code int
}

func (s *statusStore) PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &StorageError{Op: "put", Key: key, Err: errors.New("denied"), StatusCode: s.code, Retryable: true}
}

func TestUploaderSkipsStatusAfterFailedSave(t *testing.T) {
	rows := newTestSQLStore(t)
	meta := &markCounter{MetadataStore: rows}
	ctx := context.Background()

	// another row already owns (session, number)
	first := newRecord(t, 4)
	if err := rows.SaveSegment(ctx, first); err != nil {
		t.Fatalf("SaveSegment failed: %v", err)
	}

	store := &fakeStore{}
	u := NewUploader(store, meta, UploaderConfig{Workers: 1}, nil)
	dup := newRecord(t, 4)
	u.Enqueue(dup)
	if err := u.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if store.calls != 1 || u.Stats().Uploaded != 1 {
		t.Fatalf("segment should still be uploaded, calls %d stats %+v", store.calls, u.Stats())
	}
	if meta.marks != 0 {
		t.Fatalf("expected no status updates for an unsaved row, got %d", meta.marks)
	}
	got, err := rows.GetSegment(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if got.Status != StatusRecorded {
		t.Fatalf("existing row must be untouched, got %q", got.Status)
	}
}

func TestUploaderMetadataOnly(t *testing.T) {
	meta := newTestSQLStore(t)
	u := NewUploader(nil, meta, UploaderConfig{}, nil)

	rec := newRecord(t, 3)
	u.Enqueue(rec)
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := meta.GetSegment(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if got.Status != StatusRecorded {
		t.Fatalf("expected recorded status, got %q", got.Status)
	}
}

func TestUploaderEnqueueAfterClose(t *testing.T) {
	u := NewUploader(&fakeStore{}, nil, UploaderConfig{}, nil)
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if u.Enqueue(newRecord(t, 1)) {
		t.Fatal("Enqueue after Close must be rejected")
	}
	// second Close is a no-op
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

// blockingStore holds every upload until release is closed.
type blockingStore struct {
	fakeStore
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error {
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.fakeStore.PutFile(ctx, key, filePath, opts...)
}

func TestUploaderEnqueueNeverBlocks(t *testing.T) {
	store := &blockingStore{started: make(chan struct{}, 1), release: make(chan struct{})}
	u := NewUploader(store, nil, UploaderConfig{Workers: 1, QueueSize: 1}, nil)

	if !u.Enqueue(newRecord(t, 1)) {
		t.Fatal("first segment should be accepted")
	}
	<-store.started // worker busy with segment 1

	if !u.Enqueue(newRecord(t, 2)) {
		t.Fatal("second segment should fit in the queue")
	}
	if u.Enqueue(newRecord(t, 3)) {
		t.Fatal("third segment should be dropped when the queue is full")
	}
	if s := u.Stats(); s.Dropped != 1 {
		t.Fatalf("expected 1 dropped, got %+v", s)
	}

	close(store.release)
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s := u.Stats(); s.Uploaded != 2 {
		t.Fatalf("expected 2 uploads, got %+v", s)
	}
}

func TestObjectKey(t *testing.T) {
	rec := &SegmentRecord{
		SessionID: "s1",
		LocalPath: "/var/spool/event007.mkv",
		StartedAt: time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC),
	}
	if got := ObjectKey(rec, true); got != "default/2024/12/31/s1/event007.mkv" {
		t.Fatalf("unexpected key %q", got)
	}
	rec.Camera = "porch"
	if got := ObjectKey(rec, false); got != "porch/s1/event007.mkv" {
		t.Fatalf("unexpected undated key %q", got)
	}
}
