package httpclients

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"chat-relay/internal/utils/platformerrors"
)

type HTTPClientStartsAt struct{}

// NewClient returns a resty client that logs every exchange at debug level.
// headerTimeout bounds the wait for response headers only, so long streams are not cut.
func NewClient(clientName string, headerTimeout time.Duration, log zerolog.Logger) *resty.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	client := resty.NewWithClient(&http.Client{Transport: transport})
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		ctx := context.WithValue(r.Context(), HTTPClientStartsAt{}, time.Now())
		r.SetContext(ctx)
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		startTime, _ := r.Request.Context().Value(HTTPClientStartsAt{}).(time.Time)
		event := log.Debug().
			Str("request_id", platformerrors.RequestIDFromContext(r.Request.Context())).
			Str("client", clientName).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startTime)).
			Bool("stream", r.Request.DoNotParseResponse)
		if raw := r.Request.RawRequest; raw != nil {
			event = event.Str("method", raw.Method).Str("path", raw.URL.Path)
		}
		event.Msg("HTTP client request")
		return nil
	})
	return client
}
