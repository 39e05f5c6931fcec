package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/perimetra/fenceline/model"
)

// DefaultSendTimeout bounds one delivery attempt end to end.
const DefaultSendTimeout = 10 * time.Second

// maxErrorBodyBytes caps how much of an error response body is folded into
// the failure message.
const maxErrorBodyBytes = 512

// Sender delivers a fence payload to the remote endpoint.
type Sender interface {
	Send(ctx context.Context, payload model.FencePayload) error
}

// HTTPSenderOption customises HTTPSender construction.
type HTTPSenderOption func(*HTTPSender)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSendTimeout overrides the per-attempt timeout.
func WithSendTimeout(d time.Duration) HTTPSenderOption {
	return func(s *HTTPSender) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// HTTPSender POSTs JSON-encoded payloads to a fixed endpoint. Any non-2xx
// status or transport failure is a delivery failure whose error text is the
// human-readable reason shown to the operator and recorded on queue items.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender constructs a sender for the given endpoint URL. Outbound
// requests carry OpenTelemetry client spans.
func NewHTTPSender(endpoint string, opts ...HTTPSenderOption) *HTTPSender {
	s := &HTTPSender{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   DefaultSendTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, payload model.FencePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Transport-level failure: the error text is the reason.
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail := readErrorDetail(resp)
	return fmt.Errorf("Server %d: %s", resp.StatusCode, detail)
}

func readErrorDetail(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if detail := strings.TrimSpace(string(raw)); detail != "" {
		return detail
	}
	return http.StatusText(resp.StatusCode)
}
