package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
	"chat-relay/internal/domain/attachment"
	"chat-relay/internal/domain/conversation"
	"chat-relay/internal/domain/relay"
	"chat-relay/internal/infrastructure/auth"
	"chat-relay/internal/infrastructure/httpclients"
	convrepo "chat-relay/internal/infrastructure/repository/conversation"
	filerepo "chat-relay/internal/infrastructure/repository/file"
	"chat-relay/internal/infrastructure/runregistry"
	"chat-relay/internal/infrastructure/storage"
	"chat-relay/internal/infrastructure/telemetry"
	"chat-relay/internal/infrastructure/upstream"
	"chat-relay/internal/interfaces/httpserver/handlers"
	"chat-relay/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const upstreamRun = "event: metadata\n" +
	"data: {\"run_id\":\"r1\"}\n\n" +
	"event: partial_ai\n" +
	"data: [{\"type\":\"ai\",\"content\":\"Hel\"}]\n\n" +
	"event: partial_ai\n" +
	"data: [{\"type\":\"ai\",\"content\":\"Hello\"}]\n\n" +
	"event: end\n" +
	"data: null\n\n"

func newUpstream(t *testing.T, run string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/threads", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"thread_id":"thread_e2e"}`))
	})
	mux.HandleFunc("POST /api/threads/{id}/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "thread_e2e" {
			http.Error(w, `{"detail":"Thread not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(run))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, upstreamURL string, checks ReadinessChecks) *HttpServer {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.Config{
		ServiceName:     "chat-relay",
		Environment:     "test",
		MaxUploadBytes:  1 << 20,
		ShutdownTimeout: time.Second,
	}

	conversations := conversation.NewService(convrepo.NewInMemoryRepository(), telemetry.NewSanitizer("hashed", "test"), log)
	pool := worker.NewPool(worker.Config{WorkerCount: 2, QueueSize: 8, TaskTimeout: 5 * time.Second}, log)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)

	registry := runregistry.New(nil, time.Minute, log)
	client := upstream.NewClient(httpclients.NewClient("upstream", 5*time.Second, log), upstreamURL, "")
	streamer := relay.New(client, conversations, pool, registry, relay.Options{PersistTimeout: 5 * time.Second}, log)
	files := attachment.NewService(filerepo.NewInMemoryRepository(), storage.Disabled{}, attachment.Config{MaxUploadBytes: cfg.MaxUploadBytes}, log)

	validator, err := auth.NewValidator(context.Background(), cfg, log)
	require.NoError(t, err)
	provider := handlers.NewProvider(cfg, streamer, registry, conversations, files, log)
	return New(cfg, log, provider, validator, checks)
}

func request(t *testing.T, h http.Handler, method, target, body, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(auth.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type sseEvent struct {
	Event string
	Data  string
}

func parseEvents(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}

func TestChatStream_EndToEnd(t *testing.T) {
	up := newUpstream(t, upstreamRun)
	srv := newTestServer(t, up.URL, nil)

	w := request(t, srv.Handler(), http.MethodPost, "/v1/chat/stream",
		`{"input":{"messages":[{"type":"human","content":"hi there"}]}}`, "alice")
	require.Equal(t, http.StatusOK, w.Code)

	convID := w.Header().Get(handlers.HeaderConversationID)
	msgID := w.Header().Get(handlers.HeaderMessageID)
	require.NotEmpty(t, convID)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	events := parseEvents(w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, sseEvent{"metadata", `{"run_id":"r1"}`}, events[0])
	assert.Equal(t, sseEvent{"partial", fmt.Sprintf(`[{"id":%q,"type":"ai","content":"Hel"}]`, msgID)}, events[1])
	assert.Equal(t, sseEvent{"partial", fmt.Sprintf(`[{"id":%q,"type":"ai","content":"Hello"}]`, msgID)}, events[2])
	assert.Equal(t, sseEvent{"complete", `[]`}, events[3])

	w = request(t, srv.Handler(), http.MethodGet, "/v1/conversations/"+convID, "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	var conv struct {
		Title    string `json:"title"`
		ThreadID string `json:"thread_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, "hi there", conv.Title)
	assert.Equal(t, "thread_e2e", conv.ThreadID)

	w = request(t, srv.Handler(), http.MethodGet, "/v1/conversations/"+convID+"/messages", "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Data []struct {
			ID      string               `json:"id"`
			Role    string               `json:"role"`
			Content conversation.Content `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs.Data, 2)
	assert.Equal(t, "USER", msgs.Data[0].Role)
	assert.Equal(t, "hi there", msgs.Data[0].Content.Text())
	assert.Equal(t, "ASSISTANT", msgs.Data[1].Role)
	assert.Equal(t, msgID, msgs.Data[1].ID)
	assert.Equal(t, "Hello", msgs.Data[1].Content.Text())
	assert.Equal(t, conversation.TurnCompleted, msgs.Data[1].Content.Status)

	// Another user cannot see or continue the conversation.
	w = request(t, srv.Handler(), http.MethodGet, "/v1/conversations/"+convID, "", "mallory")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = request(t, srv.Handler(), http.MethodPost, "/v1/chat/stream",
		fmt.Sprintf(`{"conversation_id":%q,"input":{"messages":[{"type":"human","content":"hi"}]}}`, convID), "mallory")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatStream_UpstreamErrorIsInline(t *testing.T) {
	up := newUpstream(t, upstreamRun)
	srv := newTestServer(t, up.URL, nil)

	w := request(t, srv.Handler(), http.MethodPost, "/v1/chat/stream",
		`{"thread_id":"thread_gone","input":{"messages":[{"type":"human","content":"hello?"}]}}`, "alice")
	require.Equal(t, http.StatusOK, w.Code)

	events := parseEvents(w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "partial", events[0].Event)
	assert.Contains(t, events[0].Data, relay.ErrorTextPrefix+"Thread not found")
	assert.Equal(t, sseEvent{"complete", `[]`}, events[1])
}

func TestCancelUnknownRun(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:1", nil)

	w := request(t, srv.Handler(), http.MethodPost, "/v1/chat/runs/run_missing/cancel", "", "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCoreRoutes(t *testing.T) {
	healthy := ReadinessChecks{"database": func(context.Context) error { return nil }}
	srv := newTestServer(t, "http://127.0.0.1:1", healthy)

	w := request(t, srv.Handler(), http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"chat-relay"`)

	w = request(t, srv.Handler(), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, srv.Handler(), http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, srv.Handler(), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat_relay_http_requests_total")

	failing := ReadinessChecks{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	}
	srv = newTestServer(t, "http://127.0.0.1:1", failing)
	w = request(t, srv.Handler(), http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.NotContains(t, w.Body.String(), `"database"`)
}

func TestFilesUnavailableWithoutStorage(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:1", nil)

	w := request(t, srv.Handler(), http.MethodPost, "/v1/files/prepare-upload",
		`{"filename":"a.png","mime":"image/png","size_bytes":10}`, "alice")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
