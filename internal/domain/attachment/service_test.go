package attachment

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/infrastructure/storage"
	"chat-relay/internal/utils/platformerrors"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type memoryRepo struct {
	mu    sync.Mutex
	files map[string]FileReference
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{files: map[string]FileReference{}}
}

func (r *memoryRepo) Create(_ context.Context, file *FileReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[file.ID] = *file
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (*FileReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "file not found", nil, "")
	}
	return &file, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id string, status Status, size int64, mimeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file := r.files[id]
	file.Status, file.SizeBytes, file.MimeType = status, size, mimeType
	r.files[id] = file
	return nil
}

func (r *memoryRepo) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]FileReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FileReference
	for _, f := range r.files {
		if f.Status == StatusPending && f.CreatedAt.Before(cutoff) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStorage) Upload(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memoryStorage) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Size: int64(len(data)), ContentType: s.types[key]}, nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key + "?sig=get", nil
}

func (s *memoryStorage) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://files.test/" + key + "?sig=put", nil
}

func (s *memoryStorage) Health(context.Context) error { return nil }
func (s *memoryStorage) Bucket() string               { return "attachments" }

func newTestService(t *testing.T) (*Service, *memoryRepo, *memoryStorage) {
	t.Helper()
	repo := newMemoryRepo()
	store := newMemoryStorage()
	svc := NewService(repo, store, Config{MaxUploadBytes: 1024, PresignTTL: 5 * time.Minute, PendingTTL: time.Hour}, zerolog.Nop())
	return svc, repo, store
}

func TestUpload_StoresSniffedFile(t *testing.T) {
	svc, repo, store := newTestService(t)

	file, err := svc.Upload(context.Background(), UploadInput{UserID: "u1", Filename: "../../photo.jpg", Size: -1}, bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.Equal(t, "image/png", file.MimeType, "the sniffed type wins over the filename")
	assert.Equal(t, StatusUploaded, file.Status)
	assert.Equal(t, "photo.jpg", file.Filename)
	assert.Equal(t, "attachments", file.Bucket)
	assert.Equal(t, "uploads/u1/"+file.ID+".png", file.ObjectKey)
	assert.True(t, strings.HasPrefix(file.ID, "file_"))

	assert.Equal(t, pngHeader, store.objects[file.ObjectKey])
	stored, err := repo.Get(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngHeader)), stored.SizeBytes)
}

func TestUpload_PlainText(t *testing.T) {
	svc, _, _ := newTestService(t)
	file, err := svc.Upload(context.Background(), UploadInput{UserID: "u1", Filename: "notes.txt", Size: 11}, strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", file.MimeType)
	assert.True(t, strings.HasSuffix(file.ObjectKey, ".txt"))
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		body     []byte
		wantType platformerrors.ErrorType
	}{
		{"declared too large", 4096, pngHeader, platformerrors.ErrorTypeTooLarge},
		{"actual too large", -1, bytes.Repeat([]byte("a"), 1025), platformerrors.ErrorTypeTooLarge},
		{"empty", -1, nil, platformerrors.ErrorTypeValidation},
		{"executable", -1, []byte("\x7fELF\x02\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00\x02\x00\x3e\x00"), platformerrors.ErrorTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, store := newTestService(t)
			_, err := svc.Upload(context.Background(), UploadInput{UserID: "u1", Size: tt.size}, bytes.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, tt.wantType), "got %v", err)
			assert.Empty(t, store.objects)
		})
	}
}

func TestUpload_StorageDisabled(t *testing.T) {
	svc := NewService(newMemoryRepo(), storage.Disabled{}, Config{MaxUploadBytes: 1024}, zerolog.Nop())
	_, err := svc.Upload(context.Background(), UploadInput{UserID: "u1", Size: -1}, bytes.NewReader(pngHeader))
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnavailable))
}

func TestPrepareAndComplete(t *testing.T) {
	svc, repo, store := newTestService(t)
	ctx := context.Background()

	prepared, err := svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", Filename: "report.pdf", MimeType: "application/pdf", SizeBytes: 512})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, prepared.File.Status)
	assert.Equal(t, "uploads/u1/"+prepared.File.ID+".pdf", prepared.File.ObjectKey)
	assert.Contains(t, prepared.UploadURL, "sig=put")
	assert.Equal(t, prepared.File.CreatedAt.Add(5*time.Minute), prepared.ExpiresAt)

	_, err = svc.Complete(ctx, "u1", prepared.File.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	failed, _ := repo.Get(ctx, prepared.File.ID)
	assert.Equal(t, StatusFailed, failed.Status)

	store.objects[prepared.File.ObjectKey] = bytes.Repeat([]byte("x"), 300)
	store.types[prepared.File.ObjectKey] = "application/pdf"
	done, err := svc.Complete(ctx, "u1", prepared.File.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, done.Status)
	assert.Equal(t, int64(300), done.SizeBytes)

	download, err := svc.Get(ctx, "u1", prepared.File.ID)
	require.NoError(t, err)
	assert.Contains(t, download.URL, "sig=get")
	require.NotNil(t, download.ExpiresAt)
}

func TestPrepareUpload_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", MimeType: "application/pdf", SizeBytes: 0})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	_, err = svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", MimeType: "application/pdf", SizeBytes: 2048})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTooLarge))

	_, err = svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", MimeType: "application/x-msdownload", SizeBytes: 10})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	prepared, err := svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", MimeType: "text/plain; charset=utf-8", SizeBytes: 10})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", prepared.File.MimeType)
}

func TestComplete_OversizedObjectIsRemoved(t *testing.T) {
	svc, repo, store := newTestService(t)
	ctx := context.Background()

	prepared, err := svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", MimeType: "image/png", SizeBytes: 100})
	require.NoError(t, err)
	store.objects[prepared.File.ObjectKey] = bytes.Repeat([]byte("x"), 2048)

	_, err = svc.Complete(ctx, "u1", prepared.File.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTooLarge))
	assert.NotContains(t, store.objects, prepared.File.ObjectKey)
	stored, _ := repo.Get(ctx, prepared.File.ID)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestGet_OtherUserIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	file, err := svc.Upload(context.Background(), UploadInput{UserID: "u1", Size: -1}, bytes.NewReader(pngHeader))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "u2", file.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	_, err = svc.Complete(context.Background(), "u2", file.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestGet_PendingHasNoURL(t *testing.T) {
	svc, _, _ := newTestService(t)
	prepared, err := svc.PrepareUpload(context.Background(), PrepareUploadInput{UserID: "u1", MimeType: "image/png", SizeBytes: 10})
	require.NoError(t, err)

	download, err := svc.Get(context.Background(), "u1", prepared.File.ID)
	require.NoError(t, err)
	assert.Empty(t, download.URL)
	assert.Nil(t, download.ExpiresAt)
}

func TestPurgeStale(t *testing.T) {
	svc, repo, store := newTestService(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	old, err := svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", MimeType: "image/png", SizeBytes: 10})
	require.NoError(t, err)
	store.objects[old.File.ObjectKey] = []byte("partial")
	kept, err := svc.Upload(ctx, UploadInput{UserID: "u1", Size: -1}, bytes.NewReader(pngHeader))
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(30 * time.Minute) }
	fresh, err := svc.PrepareUpload(ctx, PrepareUploadInput{UserID: "u1", MimeType: "image/png", SizeBytes: 10})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(61 * time.Minute) }
	removed, err := svc.PurgeStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, old.File.ID)
	assert.Error(t, err)
	assert.NotContains(t, store.objects, old.File.ObjectKey)
	_, err = repo.Get(ctx, fresh.File.ID)
	assert.NoError(t, err)
	_, err = repo.Get(ctx, kept.ID)
	assert.NoError(t, err)
}
