package relay

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Client-facing event tags.
const (
	EventPartial  = "partial"
	EventComplete = "complete"
)

// ErrorTextPrefix precedes every error shown inline in the assistant bubble.
const ErrorTextPrefix = "处理请求时出错："

var emptyPayload = json.RawMessage("[]")

// ClientEvent is one frame written to the browser.
type ClientEvent struct {
	Event string
	Data  json.RawMessage
}

// partialMessage is the element type of a client `partial` payload.
type partialMessage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Translation is the output of one upstream event.
type Translation struct {
	Events []ClientEvent
	// Text is the new accumulated text when HasText is set.
	Text    string
	HasText bool
	// Terminal marks the end of the turn, Errored whether it ended in failure.
	Terminal bool
	Errored  bool
}

// Translator rewrites upstream events into the client vocabulary for a single stream.
// Every partial it emits carries the same message id so the client grows one bubble.
type Translator struct {
	messageID string
	completed bool
	log       zerolog.Logger
}

// NewTranslator creates a translator for one turn.
func NewTranslator(messageID string, log zerolog.Logger) *Translator {
	return &Translator{messageID: messageID, log: log}
}

// Completed reports whether a complete event has already been produced.
func (t *Translator) Completed() bool {
	return t.completed
}

// Translate maps one upstream event. Nothing is produced once complete was emitted.
func (t *Translator) Translate(ev UpstreamEvent) Translation {
	if t.completed {
		return Translation{Terminal: true}
	}

	switch e := ev.(type) {
	case PartialEvent:
		text, ok := e.Text()
		if !ok {
			return Translation{}
		}
		return t.partial(text)
	case ToolResultEvent:
		text, ok := e.Text()
		if !ok {
			return Translation{}
		}
		return t.partial(text)
	case CompleteEvent:
		return Translation{Events: t.Finish(), Terminal: true}
	case ErrorEvent:
		return t.failure(e.Message)
	case ChunkEvent, ToolEndEvent:
		return t.passthrough(ev)
	default:
		if len(ev.Raw()) == 0 {
			t.log.Warn().Str("event", ev.Tag()).Msg("unrecognised upstream event without payload dropped")
			return Translation{}
		}
		return t.passthrough(ev)
	}
}

// Failure builds the inline error for a transport failure.
func (t *Translator) Failure(err error, message string) Translation {
	if t.completed {
		return Translation{Terminal: true, Errored: true}
	}
	if message == "" && err != nil {
		message = err.Error()
	}
	return t.failure(message)
}

// Finish returns the closing complete event unless one was already produced.
func (t *Translator) Finish() []ClientEvent {
	if t.completed {
		return nil
	}
	t.completed = true
	return []ClientEvent{{Event: EventComplete, Data: emptyPayload}}
}

func (t *Translator) failure(message string) Translation {
	text := ErrorTextPrefix + message
	tr := t.partial(text)
	tr.Events = append(tr.Events, t.Finish()...)
	tr.Terminal = true
	tr.Errored = true
	return tr
}

func (t *Translator) partial(text string) Translation {
	payload, err := json.Marshal([]partialMessage{{ID: t.messageID, Type: "ai", Content: text}})
	if err != nil {
		t.log.Error().Err(err).Msg("encode partial payload")
		return Translation{}
	}
	return Translation{
		Events:  []ClientEvent{{Event: EventPartial, Data: payload}},
		Text:    text,
		HasText: true,
	}
}

func (t *Translator) passthrough(ev UpstreamEvent) Translation {
	return Translation{Events: []ClientEvent{{Event: ev.Tag(), Data: ev.Raw()}}}
}
