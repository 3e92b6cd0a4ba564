package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"resty.dev/v3"

	"chat-relay/internal/utils/platformerrors"
)

const (
	threadsPath   = "/api/threads"
	runStreamPath = "/api/threads/%s/runs/stream"

	unreachableMessage = "无法连接到对话服务"
)

// Client talks to the agent backend that owns threads and runs.
type Client struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

type threadResponse struct {
	ThreadID string `json:"thread_id"`
}

type runRequest struct {
	Input json.RawMessage `json:"input"`
}

// NewClient wraps a resty client for the upstream at baseURL.
func NewClient(client *resty.Client, baseURL, apiKey string) *Client {
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
	}
}

// CreateThread opens a new upstream thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var body threadResponse
	resp, err := c.prepareRequest(ctx).
		SetBody(map[string]any{}).
		SetResult(&body).
		Post(c.baseURL + threadsPath)
	if err != nil {
		return "", c.transportError(ctx, err)
	}
	if resp.IsError() {
		return "", errorFromResponse(ctx, resp.StatusCode(), []byte(resp.String()))
	}
	if strings.TrimSpace(body.ThreadID) == "" {
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "对话服务未返回线程", nil, "f3b4a0c1-5d2e-4c87-9a61-0e2b7d4c9f10")
	}
	return body.ThreadID, nil
}

// StreamRun starts a run on threadID and returns the raw event stream. The caller
// closes it; cancelling ctx also ends it.
func (c *Client) StreamRun(ctx context.Context, threadID string, input json.RawMessage) (io.ReadCloser, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	resp, err := c.prepareRequest(ctx).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetBody(runRequest{Input: input}).
		SetDoNotParseResponse(true).
		Post(c.baseURL + fmt.Sprintf(runStreamPath, url.PathEscape(threadID)))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "对话服务返回了空响应", nil, "8b0e6d52-31c4-4f0f-a6f2-2c93e7d1b5a4")
	}
	if resp.IsError() {
		defer resp.RawResponse.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 64<<10))
		return nil, errorFromResponse(ctx, resp.StatusCode(), body)
	}
	return resp.RawResponse.Body, nil
}

func (c *Client) prepareRequest(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}
	return req
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, unreachableMessage, err, "0c7e2f9d-6a3b-4e15-8d40-b1f5a2c6e873")
}

// errorFromResponse turns an error status into a message a user can read: the body's
// detail, error or message field when present, otherwise the status text.
func errorFromResponse(ctx context.Context, status int, body []byte) error {
	message := readableMessage(body)
	if message == "" {
		message = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "5e91c3a7-2b8d-4f64-a0e9-7d3c6b1f4a25", map[string]any{
		"upstream_status": status,
	})
}

func readableMessage(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{payload.Detail, payload.Error} {
		if text := textOf(raw); text != "" {
			return text
		}
	}
	return strings.TrimSpace(payload.Message)
}

func textOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
