// Package transport posts JSON payloads to the collection endpoint.
//
// A Transport makes one logical request per Send. Connection-level
// failures are retried with exponential backoff; any HTTP response,
// including 5xx, ends the attempt chain.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	operrors "github.com/openpanel-dev/openpanel-go/pkg/openpanel/errors"
)

// Header names sent with every request.
const (
	HeaderClientID     = "openpanel-client-id"
	HeaderClientSecret = "openpanel-client-secret"
	HeaderSDKName      = "openpanel-sdk-name"
	HeaderSDKVersion   = "openpanel-sdk-version"
	HeaderUserAgent    = "user-agent"
	HeaderContentType  = "Content-Type"
)

// Config configures a Transport.
type Config struct {
	// BaseURL is prefixed to every request path, e.g. "https://api.openpanel.dev".
	BaseURL string

	// Headers are sent with every request. Content-Type is always
	// application/json and cannot be overridden here.
	Headers map[string]string

	// Retry controls retries of transport-level failures.
	// Default: errors.DefaultRetry (3 retries, 0.5s initial, doubling).
	Retry *operrors.RetryConfig

	// HTTPClient performs requests. Default: http.DefaultClient.
	HTTPClient *http.Client
}

// Transport sends payloads over HTTP. It is safe for concurrent use.
type Transport struct {
	baseURL string
	retry   operrors.RetryConfig
	client  *http.Client

	mu      sync.RWMutex
	headers map[string]string
}

// New creates a Transport.
func New(cfg Config) *Transport {
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	headers[HeaderContentType] = "application/json"

	retry := operrors.DefaultRetry
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Transport{
		baseURL: cfg.BaseURL,
		retry:   retry,
		client:  client,
		headers: headers,
	}
}

// AddHeader sets a default header for subsequent requests.
func (t *Transport) AddHeader(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headers[key] = value
}

// Headers returns a copy of the default headers.
func (t *Transport) Headers() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.headers))
	for k, v := range t.headers {
		out[k] = v
	}
	return out
}

// Send encodes body as JSON and POSTs it to BaseURL+path with the default
// headers plus overrides. It returns the raw response body on a 2xx.
//
// Errors are typed. A bad URL is *errors.ConfigurationError and an
// unencodable body is *errors.EncodingError; no request is made for either.
// Failures from the attempt chain are wrapped in *errors.CategorizedError
// carrying the attempt count, with *errors.HTTPStatusError or
// *errors.TransportError reachable through errors.As.
func (t *Transport) Send(ctx context.Context, path string, body any, overrides map[string]string) ([]byte, error) {
	endpoint, err := t.resolve(path)
	if err != nil {
		return nil, err
	}

	payload, err := encode(body)
	if err != nil {
		return nil, err
	}

	headers := t.Headers()
	for k, v := range overrides {
		headers[k] = v
	}

	result := operrors.WithRetryContext(ctx, t.retry, func(ctx context.Context) ([]byte, error) {
		return t.post(ctx, endpoint, payload, headers)
	})
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Value, nil
}

// resolve joins the base URL and path and requires an absolute http(s) URL.
func (t *Transport) resolve(path string) (string, error) {
	raw := t.baseURL + path
	u, err := url.Parse(raw)
	if err != nil {
		return "", &operrors.ConfigurationError{URL: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &operrors.ConfigurationError{URL: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &operrors.ConfigurationError{URL: raw, Err: errors.New("missing host")}
	}
	return u.String(), nil
}

// encode serializes body unless it is already raw JSON.
func encode(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		var encErr *operrors.EncodingError
		if errors.As(err, &encErr) {
			return nil, encErr
		}
		return nil, &operrors.EncodingError{Err: err}
	}
	return payload, nil
}

// post performs a single attempt.
func (t *Transport) post(ctx context.Context, endpoint string, payload []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &operrors.ConfigurationError{URL: endpoint, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &operrors.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &operrors.TransportError{Op: "read response", URL: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &operrors.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}
