package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// Kind is the relay's classification of an upstream event tag.
type Kind string

const (
	KindPartial    Kind = "partial"
	KindToolResult Kind = "tool_result"
	KindToolEnd    Kind = "tool_end"
	KindChunk      Kind = "chunk"
	KindComplete   Kind = "complete"
	KindError      Kind = "error"
	KindUnknown    Kind = "unknown"
)

var defaultTags = map[string]Kind{
	"partial_ai":       KindPartial,
	"partial":          KindPartial,
	"messages/partial": KindPartial,
	"tool_result":      KindToolResult,
	"on_tool_end":      KindToolEnd,
	"message":          KindChunk,
	"complete":         KindComplete,
	"done":             KindComplete,
	"end":              KindComplete,
	"on_chain_end":     KindComplete,
	"error":            KindError,
}

// Vocabulary maps upstream event tags onto kinds. The upstream owns its tag names, so the
// table can be extended from a YAML file without a release.
type Vocabulary struct {
	tags map[string]Kind
}

// DefaultVocabulary returns the built-in tag table.
func DefaultVocabulary() *Vocabulary {
	tags := make(map[string]Kind, len(defaultTags))
	for tag, kind := range defaultTags {
		tags[tag] = kind
	}
	return &Vocabulary{tags: tags}
}

// LoadVocabulary merges the YAML file at path over the defaults. An empty path
// returns the defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event map: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary merges a YAML document of the form `kind: [tag, ...]` over the defaults.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var doc map[Kind][]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse event map: %w", err)
	}
	v := DefaultVocabulary()
	for kind, tags := range doc {
		switch kind {
		case KindPartial, KindToolResult, KindToolEnd, KindChunk, KindComplete, KindError:
		default:
			return nil, fmt.Errorf("parse event map: unknown kind %q", kind)
		}
		for _, tag := range tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				v.tags[tag] = kind
			}
		}
	}
	return v, nil
}

// KindOf classifies a tag. Unmapped tags are KindUnknown.
func (v *Vocabulary) KindOf(tag string) Kind {
	if kind, ok := v.tags[tag]; ok {
		return kind
	}
	return KindUnknown
}

// UpstreamEvent is a decoded upstream frame.
type UpstreamEvent interface {
	Kind() Kind
	// Tag is the upstream event name as received.
	Tag() string
	// Raw is the undecoded payload, nil when the frame had none.
	Raw() json.RawMessage
}

type frameRef struct {
	tag string
	raw json.RawMessage
}

func (f frameRef) Tag() string          { return f.tag }
func (f frameRef) Raw() json.RawMessage { return f.raw }

// MessageContent accepts either a plain string or a list of typed content parts.
type MessageContent string

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = MessageContent(s)
		return nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor part list: %w", err)
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	*c = MessageContent(b.String())
	return nil
}

// AIMessage is one entry of a partial-assistant-text payload. Content is cumulative.
type AIMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Content   MessageContent  `json:"content"`
	Delta     string          `json:"delta,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// PartialEvent carries the full assistant text so far.
type PartialEvent struct {
	frameRef
	Messages []AIMessage
}

func (PartialEvent) Kind() Kind { return KindPartial }

// Text returns the content of the last assistant entry, or of the last entry when none
// is typed as assistant output.
func (e PartialEvent) Text() (string, bool) {
	for i := len(e.Messages) - 1; i >= 0; i-- {
		switch strings.ToLower(e.Messages[i].Type) {
		case "ai", "assistant", "aimessagechunk":
			return string(e.Messages[i].Content), true
		}
	}
	if n := len(e.Messages); n > 0 {
		return string(e.Messages[n-1].Content), true
	}
	return "", false
}

// ToolOutput is one tool result entry.
type ToolOutput struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Name    string         `json:"name,omitempty"`
	Content MessageContent `json:"content"`
}

// ToolResultEvent carries tool output that is shown to the user as assistant text.
type ToolResultEvent struct {
	frameRef
	Results []ToolOutput
}

func (ToolResultEvent) Kind() Kind { return KindToolResult }

// Text joins the non-empty tool outputs.
func (e ToolResultEvent) Text() (string, bool) {
	texts := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		if r.Content != "" {
			texts = append(texts, string(r.Content))
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, "\n"), true
}

// ToolEndEvent signals a tool finished.
type ToolEndEvent struct {
	frameRef
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

func (ToolEndEvent) Kind() Kind { return KindToolEnd }

// ChunkEvent is an OpenAI-style chat.completion.chunk.
type ChunkEvent struct {
	frameRef
	Chunk openai.ChatCompletionStreamResponse
}

func (ChunkEvent) Kind() Kind { return KindChunk }

// FinishReason returns the first choice's finish reason, if any.
func (e ChunkEvent) FinishReason() string {
	if len(e.Chunk.Choices) == 0 {
		return ""
	}
	return string(e.Chunk.Choices[0].FinishReason)
}

// CompleteEvent ends the run.
type CompleteEvent struct {
	frameRef
}

func (CompleteEvent) Kind() Kind { return KindComplete }

// ErrorEvent reports an upstream failure.
type ErrorEvent struct {
	frameRef
	Message string
}

func (ErrorEvent) Kind() Kind { return KindError }

// UnknownEvent keeps an unmapped frame for passthrough.
type UnknownEvent struct {
	frameRef
}

func (UnknownEvent) Kind() Kind { return KindUnknown }

// Decode converts a frame into its typed event.
func Decode(frame Frame, vocab *Vocabulary) (UpstreamEvent, error) {
	ref := frameRef{tag: frame.Event, raw: frame.Data}
	switch vocab.KindOf(frame.Event) {
	case KindPartial:
		var msgs []AIMessage
		if err := decodeList(frame.Data, &msgs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		return PartialEvent{frameRef: ref, Messages: msgs}, nil
	case KindToolResult:
		var results []ToolOutput
		if err := decodeList(frame.Data, &results); err != nil {
			return nil, fmt.Errorf("decode %s: %w", frame.Event, err)
		}
		return ToolResultEvent{frameRef: ref, Results: results}, nil
	case KindToolEnd:
		ev := ToolEndEvent{frameRef: ref}
		if frame.HasData() {
			if err := json.Unmarshal(frame.Data, &ev); err != nil {
				return nil, fmt.Errorf("decode %s: %w", frame.Event, err)
			}
		}
		return ev, nil
	case KindChunk:
		ev := ChunkEvent{frameRef: ref}
		if frame.HasData() {
			if err := json.Unmarshal(frame.Data, &ev.Chunk); err != nil {
				return nil, fmt.Errorf("decode %s: %w", frame.Event, err)
			}
		}
		return ev, nil
	case KindComplete:
		return CompleteEvent{frameRef: ref}, nil
	case KindError:
		return ErrorEvent{frameRef: ref, Message: errorMessage(frame.Data)}, nil
	default:
		return UnknownEvent{frameRef: ref}, nil
	}
}

// decodeList accepts a JSON array or a single object.
func decodeList[T any](data json.RawMessage, out *[]T) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*out = nil
		return nil
	}
	if data[0] == '[' {
		return json.Unmarshal(data, out)
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*out = []T{one}
	return nil
}

const unknownErrorMessage = "未知错误"

func errorMessage(data json.RawMessage) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return unknownErrorMessage
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return nonEmpty(s)
	}
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return unknownErrorMessage
	}
	if len(body.Error) > 0 {
		if err := json.Unmarshal(body.Error, &s); err == nil {
			return nonEmpty(s)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if body.Message != "" {
		return body.Message
	}
	return nonEmpty(body.Detail)
}

func nonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownErrorMessage
	}
	return s
}
