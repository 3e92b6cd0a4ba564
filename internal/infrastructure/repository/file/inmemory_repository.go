package file

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "chat-relay/internal/domain/attachment"
)

// InMemoryRepository keeps file references in process memory for STORE_BACKEND=memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	files map[string]domain.FileReference
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{files: make(map[string]domain.FileReference)}
}

func (r *InMemoryRepository) Create(_ context.Context, file *domain.FileReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[file.ID] = *file
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*domain.FileReference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.files[id]
	if !ok {
		return nil, notFound(ctx, id)
	}
	return &file, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, sizeBytes int64, mimeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return notFound(ctx, id)
	}
	file.Status = status
	file.SizeBytes = sizeBytes
	file.MimeType = mimeType
	file.UpdatedAt = time.Now().UTC()
	r.files[id] = file
	return nil
}

func (r *InMemoryRepository) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.FileReference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.FileReference, 0)
	for _, file := range r.files {
		if file.Status == domain.StatusPending && file.CreatedAt.Before(cutoff) {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}
