package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-relay/internal/domain/conversation"
	"chat-relay/internal/infrastructure/metrics"
	"chat-relay/internal/utils/platformerrors"
)

const defaultPersistTimeout = 15 * time.Second

var (
	// ErrClientGone cancels a run whose client stopped reading.
	ErrClientGone = errors.New("client disconnected")
	// ErrRunCancelled cancels a run stopped through the cancel endpoint.
	ErrRunCancelled = errors.New("run cancelled by user")
)

// Upstream opens runs on the orchestration service.
type Upstream interface {
	CreateThread(ctx context.Context) (string, error)
	// StreamRun returns the raw SSE body. Closing it releases the connection.
	StreamRun(ctx context.Context, threadID string, input json.RawMessage) (io.ReadCloser, error)
}

// Sink is the persistence side of a turn.
type Sink interface {
	BeginTurn(ctx context.Context, in conversation.BeginTurnInput) error
	FinishTurn(ctx context.Context, in conversation.FinishTurnInput) error
}

// BackgroundRunner runs detached work. The returned channel closes when fn returns.
type BackgroundRunner interface {
	Run(name string, fn func(ctx context.Context) error) <-chan struct{}
}

// RunRegistry makes in-flight runs cancellable by id.
type RunRegistry interface {
	Register(ctx context.Context, runID, userID string, cancel context.CancelCauseFunc) (unregister func(), err error)
}

// EventWriter delivers client frames. An error means the client is gone.
type EventWriter interface {
	WriteEvent(event string, data []byte) error
}

// Turn is one user message to relay.
type Turn struct {
	RunID          string
	ConversationID string
	UserID         string
	// ThreadID is optional; a thread is created upstream when empty.
	ThreadID string
	// UserMessageID and MessageID identify the stored user and assistant messages.
	UserMessageID string
	MessageID     string
	Input         json.RawMessage
	UserContent   conversation.Content
}

// Result summarises a finished turn.
type Result struct {
	Outcome   TurnState
	Text      string
	ThreadID  string
	Frames    int
	Dropped   int
	Persisted bool
}

// Options tunes a Relay.
type Options struct {
	PersistTimeout time.Duration
	Vocabulary     *Vocabulary
}

// Relay streams a run from the upstream to one client and records the turn.
type Relay struct {
	upstream       Upstream
	sink           Sink
	runner         BackgroundRunner
	runs           RunRegistry
	vocab          *Vocabulary
	persistTimeout time.Duration
	tracer         trace.Tracer
	log            zerolog.Logger
}

// New wires a relay. runs may be nil, which disables explicit cancellation.
func New(upstream Upstream, sink Sink, runner BackgroundRunner, runs RunRegistry, opts Options, log zerolog.Logger) *Relay {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if opts.Vocabulary == nil {
		opts.Vocabulary = DefaultVocabulary()
	}
	return &Relay{
		upstream:       upstream,
		sink:           sink,
		runner:         runner,
		runs:           runs,
		vocab:          opts.Vocabulary,
		persistTimeout: opts.PersistTimeout,
		tracer:         otel.Tracer("chat-relay/relay"),
		log:            log.With().Str("component", "relay").Logger(),
	}
}

// Stream relays one turn. It always returns after the end-of-turn write has been
// attempted; client-visible failures are expressed as events, never as an error.
func (r *Relay) Stream(ctx context.Context, turn Turn, out EventWriter) Result {
	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "relay.stream", trace.WithAttributes(
		attribute.String("relay.run_id", turn.RunID),
		attribute.String("relay.conversation_id", turn.ConversationID),
	))
	defer span.End()

	log := r.log.With().
		Str("run_id", turn.RunID).
		Str("conversation_id", turn.ConversationID).
		Logger()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if r.runs != nil {
		unregister, err := r.runs.Register(runCtx, turn.RunID, turn.UserID, cancel)
		if err != nil {
			log.Warn().Err(err).Msg("run not registered, cancel endpoint will not reach it")
		} else {
			defer unregister()
		}
	}

	state, _ := StateIdle.TransitionTo(StateStreaming)

	begun := r.runner.Run("begin-turn", func(bg context.Context) error {
		err := r.sink.BeginTurn(bg, conversation.BeginTurnInput{
			ConversationID: turn.ConversationID,
			UserID:         turn.UserID,
			ThreadID:       turn.ThreadID,
			MessageID:      turn.UserMessageID,
			Content:        turn.UserContent,
			At:             started.UTC(),
		})
		if err != nil {
			metrics.RecordPersistenceFailure("begin")
			log.Error().Err(err).Msg("start-of-turn persistence failed")
		}
		return err
	})

	s := &session{
		relay:      r,
		turn:       turn,
		out:        out,
		cancel:     cancel,
		translator: NewTranslator(turn.MessageID, log),
		threadID:   turn.ThreadID,
		log:        log,
	}
	outcome := s.pump(runCtx)
	state, _ = state.TransitionTo(outcome)

	if outcome != StateAborted {
		if err := s.write(s.translator.Finish()); err != nil {
			log.Debug().Err(err).Msg("client gone before complete")
		}
	}
	if outcome == StateAborted {
		log.Info().Str("cause", fmt.Sprint(context.Cause(runCtx))).Int("text_len", len(s.acc.Text())).Msg("run aborted")
	}

	result := Result{
		Outcome:  outcome,
		Text:     s.acc.Text(),
		ThreadID: s.threadID,
		Frames:   s.frames,
		Dropped:  s.dropped,
	}

	// Persistence is cleanup and must outlive the cancelled run.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancelPersist()
	select {
	case <-begun:
	case <-persistCtx.Done():
		log.Warn().Msg("start-of-turn write still pending at end of turn")
	}
	err := r.sink.FinishTurn(persistCtx, conversation.FinishTurnInput{
		ConversationID: turn.ConversationID,
		UserID:         turn.UserID,
		ThreadID:       s.threadID,
		MessageID:      turn.MessageID,
		Text:           result.Text,
		Status:         outcome.TurnStatus(),
	})
	if err != nil {
		metrics.RecordPersistenceFailure("finish")
		log.Error().Err(err).Msg("end-of-turn persistence failed")
	} else {
		state, _ = state.TransitionTo(StatePersisted)
		result.Persisted = true
	}

	elapsed := time.Since(started)
	metrics.RecordStream(string(outcome), elapsed.Seconds())
	span.SetAttributes(
		attribute.String("relay.outcome", string(outcome)),
		attribute.String("relay.thread_id", s.threadID),
		attribute.Int("relay.frames", s.frames),
		attribute.Int("relay.dropped", s.dropped),
		attribute.Bool("relay.persisted", result.Persisted),
	)
	if outcome == StateErrored {
		span.SetStatus(codes.Error, "upstream error")
	}

	log.Info().
		Str("outcome", string(outcome)).
		Str("state", string(state)).
		Str("thread_id", s.threadID).
		Int("frames", s.frames).
		Int("dropped", s.dropped).
		Dur("duration", elapsed).
		Msg("turn finished")
	return result
}

// session is the per-request state of one Stream call.
type session struct {
	relay      *Relay
	turn       Turn
	out        EventWriter
	cancel     context.CancelCauseFunc
	translator *Translator
	acc        Accumulator
	threadID   string
	frames     int
	dropped    int
	log        zerolog.Logger
}

func (s *session) pump(ctx context.Context) (outcome TurnState) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("frame processing panicked")
			outcome = s.fail(ctx, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if s.threadID == "" {
		threadID, err := s.relay.upstream.CreateThread(ctx)
		if err != nil {
			return s.fail(ctx, err)
		}
		s.threadID = threadID
	}

	body, err := s.relay.upstream.StreamRun(ctx, s.threadID, s.turn.Input)
	if err != nil {
		return s.fail(ctx, err)
	}
	defer body.Close()

	parser := NewFrameParser(body, s.log)
	defer func() { s.dropped += parser.Dropped() }()

	for frame, err := range parser.Frames() {
		if err != nil {
			return s.fail(ctx, err)
		}
		if ctx.Err() != nil {
			return StateAborted
		}

		ev, err := Decode(frame, s.relay.vocab)
		if err != nil {
			s.dropped++
			metrics.RecordDroppedFrame("decode_error")
			s.log.Warn().Err(err).Str("event", frame.Event).Msg("upstream frame dropped")
			continue
		}
		metrics.RecordFrame(string(ev.Kind()))
		if chunk, ok := ev.(ChunkEvent); ok && chunk.FinishReason() != "" {
			s.log.Debug().Str("finish_reason", chunk.FinishReason()).Msg("upstream finished generating")
		}

		tr := s.translator.Translate(ev)
		if tr.HasText {
			s.acc.Replace(tr.Text)
		}
		if err := s.write(tr.Events); err != nil {
			s.cancel(ErrClientGone)
			return StateAborted
		}
		if tr.Terminal {
			if tr.Errored {
				return StateErrored
			}
			return StateCompleted
		}
	}
	return StateCompleted
}

// fail turns err into the inline error, unless the run was cancelled, in which case
// the failure is just the cancellation surfacing.
func (s *session) fail(ctx context.Context, err error) TurnState {
	if ctx.Err() != nil {
		return StateAborted
	}
	s.log.Warn().Err(err).Msg("upstream stream failed")
	tr := s.translator.Failure(err, platformerrors.PublicMessage(err))
	if tr.HasText {
		s.acc.Replace(tr.Text)
	}
	if werr := s.write(tr.Events); werr != nil {
		s.cancel(ErrClientGone)
		return StateAborted
	}
	return StateErrored
}

func (s *session) write(events []ClientEvent) error {
	for _, ev := range events {
		if err := s.out.WriteEvent(ev.Event, ev.Data); err != nil {
			return err
		}
		s.frames++
	}
	return nil
}
