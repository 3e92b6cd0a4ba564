package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/infrastructure/httpclients"
	"chat-relay/internal/utils/platformerrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(httpclients.NewClient("upstream-test", 5*time.Second, zerolog.Nop()), server.URL+"/", "secret")
}

func TestCreateThread(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/threads", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"thread_id":"thread_1234"}`))
	})

	id, err := client.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread_1234", id)
}

func TestCreateThread_MissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.CreateThread(context.Background())
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
}

func TestStreamRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/threads/thread_1/runs/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var body struct {
			Input json.RawMessage `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{"messages":[{"type":"human","content":"hi"}]}`, string(body.Input))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: complete\ndata: []\n\n")
	})

	stream, err := client.StreamRun(context.Background(), "thread_1", json.RawMessage(`{"messages":[{"type":"human","content":"hi"}]}`))
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "event: complete\ndata: []\n\n", string(data))
}

func TestStreamRun_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail", http.StatusNotFound, `{"detail":"Thread not found"}`, "Thread not found"},
		{"error string", http.StatusTooManyRequests, `{"error":"rate limited"}`, "rate limited"},
		{"nested error", http.StatusBadGateway, `{"error":{"message":"model overloaded"}}`, "model overloaded"},
		{"no body", http.StatusServiceUnavailable, ``, "503 Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.StreamRun(context.Background(), "thread_1", nil)
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
			assert.Equal(t, tt.message, platformerrors.PublicMessage(err))
		})
	}
}

func TestStreamRun_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(httpclients.NewClient("upstream-test", time.Second, zerolog.Nop()), url, "")
	_, err := client.StreamRun(context.Background(), "thread_1", nil)
	require.Error(t, err)
	assert.Equal(t, unreachableMessage, platformerrors.PublicMessage(err))
}

func TestStreamRun_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.StreamRun(ctx, "thread_1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
