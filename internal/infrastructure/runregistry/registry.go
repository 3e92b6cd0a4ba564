package runregistry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chat-relay/internal/domain/relay"
)

const (
	keyPrefix     = "chat:run:"
	cancelChannel = "chat:run:cancel"
)

// ErrRunNotFound is returned when a run is unknown, finished, or owned by someone else.
var ErrRunNotFound = errors.New("run not found")

type entry struct {
	userID string
	cancel context.CancelCauseFunc
}

// Registry tracks in-flight runs so they can be cancelled by id. Runs live in process
// memory; with Redis configured they are also announced so that a cancel request
// landing on another replica reaches the one holding the stream.
type Registry struct {
	mu     sync.Mutex
	local  map[string]entry
	client redis.UniversalClient
	ttl    time.Duration
	log    zerolog.Logger
}

// New creates a registry. client may be nil for a single-instance deployment.
func New(client redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		local:  make(map[string]entry),
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "run-registry").Logger(),
	}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (redis.UniversalClient, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Register records a running turn. The returned func removes it.
func (r *Registry) Register(ctx context.Context, runID, userID string, cancel context.CancelCauseFunc) (func(), error) {
	r.mu.Lock()
	if _, exists := r.local[runID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %s already registered", runID)
	}
	r.local[runID] = entry{userID: userID, cancel: cancel}
	r.mu.Unlock()

	unregister := func() {
		r.mu.Lock()
		delete(r.local, runID)
		r.mu.Unlock()
		if r.client != nil {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := r.client.Del(ctx, keyPrefix+runID).Err(); err != nil {
				r.log.Warn().Err(err).Str("run_id", runID).Msg("failed to remove run key")
			}
		}
	}

	if r.client != nil {
		if err := r.client.Set(ctx, keyPrefix+runID, userID, r.ttl).Err(); err != nil {
			// The run is still cancellable on this instance.
			r.log.Warn().Err(err).Str("run_id", runID).Msg("failed to announce run")
		}
	}
	return unregister, nil
}

// Cancel stops runID on behalf of userID.
func (r *Registry) Cancel(ctx context.Context, runID, userID string) error {
	r.mu.Lock()
	e, ok := r.local[runID]
	r.mu.Unlock()
	if ok {
		if e.userID != userID {
			return ErrRunNotFound
		}
		e.cancel(relay.ErrRunCancelled)
		return nil
	}

	if r.client == nil {
		return ErrRunNotFound
	}
	owner, err := r.client.Get(ctx, keyPrefix+runID).Result()
	if errors.Is(err, redis.Nil) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup run: %w", err)
	}
	if owner != userID {
		return ErrRunNotFound
	}
	if err := r.client.Publish(ctx, cancelChannel, runID).Err(); err != nil {
		return fmt.Errorf("publish cancel: %w", err)
	}
	return nil
}

// Active reports how many runs this instance is streaming.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.local)
}

// Listen applies cancel requests published by other instances until ctx ends.
// Without Redis it just waits for ctx.
func (r *Registry) Listen(ctx context.Context) error {
	if r.client == nil {
		<-ctx.Done()
		return nil
	}
	sub := r.client.Subscribe(ctx, cancelChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", cancelChannel, err)
	}
	r.log.Info().Str("channel", cancelChannel).Msg("listening for run cancellations")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.cancelLocal(msg.Payload)
		}
	}
}

func (r *Registry) cancelLocal(runID string) {
	r.mu.Lock()
	e, ok := r.local[runID]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.log.Info().Str("run_id", runID).Msg("run cancelled by remote request")
	e.cancel(relay.ErrRunCancelled)
}
