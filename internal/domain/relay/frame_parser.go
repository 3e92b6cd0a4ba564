package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/rs/zerolog"

	"chat-relay/internal/infrastructure/metrics"
)

const readChunkSize = 4 * 1024

var (
	delimLF   = []byte("\n\n")
	delimCRLF = []byte("\r\n\r\n")
)

// Frame is one SSE event. Data is nil when the frame carried no data lines.
type Frame struct {
	Event string
	Data  json.RawMessage
}

// HasData reports whether the frame carried a payload.
func (f Frame) HasData() bool {
	return len(f.Data) > 0
}

// FrameParser pulls SSE frames off a byte stream.
type FrameParser struct {
	r       io.Reader
	buf     []byte
	scanned int
	chunk   []byte
	readErr error
	log     zerolog.Logger
	dropped int
}

// NewFrameParser reads frames from r. Malformed frames are logged and skipped.
func NewFrameParser(r io.Reader, log zerolog.Logger) *FrameParser {
	return &FrameParser{
		r:     r,
		chunk: make([]byte, readChunkSize),
		log:   log,
	}
}

// Dropped returns how many frames were discarded so far.
func (p *FrameParser) Dropped() int {
	return p.dropped
}

// Next returns the next well-formed frame. It returns io.EOF once the stream is
// exhausted, or the underlying read error.
func (p *FrameParser) Next() (Frame, error) {
	for {
		if raw, ok := p.cut(); ok {
			if frame, ok := p.parse(raw); ok {
				return frame, nil
			}
			continue
		}

		if p.readErr != nil {
			if errors.Is(p.readErr, io.EOF) && len(bytes.TrimSpace(p.buf)) > 0 {
				// Flush a final frame that was not followed by a blank line.
				raw := p.buf
				p.buf = nil
				p.scanned = 0
				if frame, ok := p.parse(raw); ok {
					return frame, nil
				}
			}
			p.buf = nil
			p.scanned = 0
			return Frame{}, p.readErr
		}

		n, err := p.r.Read(p.chunk)
		if n > 0 {
			p.buf = append(p.buf, p.chunk[:n]...)
		}
		if err != nil {
			p.readErr = err
		}
	}
}

// Frames exposes the parser as a range-over-func sequence. Iteration stops after the
// first error, which is yielded unless it is io.EOF.
func (p *FrameParser) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			frame, err := p.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(Frame{}, err)
				}
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// cut removes the earliest complete frame from the buffer. Bytes already searched
// are skipped, except for a tail that may hold the start of a split delimiter.
func (p *FrameParser) cut() ([]byte, bool) {
	from := max(p.scanned-(len(delimCRLF)-1), 0)
	window := p.buf[from:]
	lf := bytes.Index(window, delimLF)
	crlf := bytes.Index(window, delimCRLF)

	idx, size := lf, len(delimLF)
	if crlf >= 0 && (lf < 0 || crlf < lf) {
		idx, size = crlf, len(delimCRLF)
	}
	if idx < 0 {
		p.scanned = len(p.buf)
		return nil, false
	}
	idx += from
	raw := p.buf[:idx]
	p.buf = p.buf[idx+size:]
	p.scanned = 0
	return raw, true
}

func (p *FrameParser) parse(raw []byte) (Frame, bool) {
	var (
		event   string
		data    []string
		hasData bool
	)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(fieldValue(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, fieldValue(line, "data:"))
			hasData = true
		}
	}

	if event == "" {
		if len(bytes.TrimSpace(raw)) > 0 {
			p.drop("no_event")
			p.log.Debug().Int("bytes", len(raw)).Msg("sse frame without event discarded")
		}
		return Frame{}, false
	}

	frame := Frame{Event: event}
	if hasData {
		payload := strings.TrimSpace(strings.Join(data, "\n"))
		if payload != "" {
			if !json.Valid([]byte(payload)) {
				p.drop("parse_error")
				p.log.Warn().Str("event", event).Int("bytes", len(payload)).Msg("sse frame payload is not valid json, dropped")
				return Frame{}, false
			}
			frame.Data = json.RawMessage(payload)
		}
	}
	return frame, true
}

func (p *FrameParser) drop(reason string) {
	p.dropped++
	metrics.RecordDroppedFrame(reason)
}

func fieldValue(line, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(line, prefix), " ")
}
