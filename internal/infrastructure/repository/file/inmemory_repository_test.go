package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "chat-relay/internal/domain/attachment"
	"chat-relay/internal/utils/platformerrors"
)

func TestInMemoryRepository_Lifecycle(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"file_b", "file_a", "file_c"} {
		require.NoError(t, repo.Create(ctx, &domain.FileReference{
			ID:        id,
			UserID:    "u1",
			Status:    domain.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.UpdateStatus(ctx, "file_a", domain.StatusUploaded, 42, "image/png"))

	pending, err := repo.ListPendingBefore(ctx, base.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "file_b", pending[0].ID)
	assert.Equal(t, "file_c", pending[1].ID)

	limited, err := repo.ListPendingBefore(ctx, base.Add(10*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	got, err := repo.Get(ctx, "file_a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.SizeBytes)
	assert.Equal(t, domain.StatusUploaded, got.Status)

	require.NoError(t, repo.Delete(ctx, "file_a"))
	_, err = repo.Get(ctx, "file_a")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	err = repo.UpdateStatus(ctx, "file_a", domain.StatusFailed, 0, "")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}
