package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "chat-relay/internal/domain/conversation"
	"chat-relay/internal/utils/platformerrors"
)

// InMemoryRepository is a thread-safe repository for STORE_BACKEND=memory and tests.
type InMemoryRepository struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message
}

// NewInMemoryRepository returns an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.Message),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conversations[conv.ID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"conversation already exists", nil, "8d0e7a55-3f9b-4c8e-a1d4-2b6f9c0e7d31")
	}
	r.conversations[conv.ID] = *conv
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, notFound(ctx, id)
	}
	return &conv, nil
}

func (r *InMemoryRepository) List(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Conversation
	for _, conv := range r.conversations {
		if conv.UserID == userID && conv.Archived == filter.Archived {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter.Offset >= len(out) {
		return []domain.Conversation{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryRepository) SetTitleIfDefault(ctx context.Context, id, title string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return false, notFound(ctx, id)
	}
	if !conv.HasDefaultTitle() {
		return false, nil
	}
	conv.Title = title
	r.conversations[id] = conv
	return true, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, title *string, archived *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return notFound(ctx, id)
	}
	if title != nil {
		conv.Title = *title
	}
	if archived != nil {
		conv.Archived = *archived
	}
	conv.UpdatedAt = time.Now().UTC()
	r.conversations[id] = conv
	return nil
}

func (r *InMemoryRepository) Touch(ctx context.Context, id, threadID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return notFound(ctx, id)
	}
	conv.UpdatedAt = at
	if threadID != "" {
		conv.ThreadID = threadID
	}
	r.conversations[id] = conv
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[id]; !ok {
		return notFound(ctx, id)
	}
	delete(r.conversations, id)
	delete(r.messages, id)
	return nil
}

func (r *InMemoryRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], *msg)
	return nil
}

func (r *InMemoryRepository) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]domain.Message(nil), r.messages[conversationID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) FirstUserMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	msgs, _ := r.ListMessages(ctx, conversationID)
	for _, msg := range msgs {
		if msg.Role == domain.RoleUser {
			return &msg, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"no user message", nil, "4b8d2f6e-1a3c-4e5f-9b7d-0c2e4a6f8b1d")
}
