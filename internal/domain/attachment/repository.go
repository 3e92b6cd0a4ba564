package attachment

import (
	"context"
	"time"
)

// Repository persists file references. A missing row is a platformerrors NOT_FOUND.
type Repository interface {
	Create(ctx context.Context, file *FileReference) error
	Get(ctx context.Context, id string) (*FileReference, error)
	UpdateStatus(ctx context.Context, id string, status Status, sizeBytes int64, mimeType string) error
	// ListPendingBefore returns up to limit pending references created before cutoff, oldest first.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]FileReference, error)
	Delete(ctx context.Context, id string) error
}
