package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"mailbridge/internal/tracing"
)

// Error types for the transport.
var (
	ErrTransport    = errors.New("jmap transport failure")
	ErrUnauthorized = errors.New("jmap unauthorized")
)

// HTTPDoer abstracts HTTP client operations for dependency inversion.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends batched method calls to one JMAP API endpoint. It holds
// no per-account state; retries and backoff are the caller's concern.
type Client struct {
	apiURL     string
	token      string
	httpClient HTTPDoer
}

// NewClient creates a client for the given API URL and bearer token.
// The default HTTP transport is instrumented with otelhttp.
func NewClient(apiURL, token string) *Client {
	return &Client{
		apiURL: apiURL,
		token:  token,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// NewClientWithHTTP creates a client using the supplied HTTP doer.
func NewClientWithHTTP(apiURL, token string, httpClient HTTPDoer) *Client {
	return &Client{apiURL: apiURL, token: token, httpClient: httpClient}
}

// Do executes the batch as a single HTTP POST. A non-2xx status or a
// network error is a hard failure for every call in the batch; a
// method-level error inside a 2xx response is not, and surfaces from
// Response.Get instead.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	tracer := tracing.Tracer("mailbridge-jmap")
	ctx, span := tracer.Start(ctx, "jmap.Do",
		trace.WithAttributes(tracing.Count(r.Len())))
	defer span.End()

	body, err := json.Marshal(r)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: encoding request: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		err := fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		tracing.RecordError(span, err)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
		tracing.RecordError(span, err)
		return nil, err
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: decoding response: %v", ErrInvalidResponse, err)
	}
	return &out, nil
}
