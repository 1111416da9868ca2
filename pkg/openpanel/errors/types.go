package errors

import "fmt"

// ConfigurationError indicates the request URL could not be built.
// It is fatal to the send attempt and never retried.
type ConfigurationError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid URL %q: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// EncodingError indicates a payload could not be serialized or decoded.
type EncodingError struct {
	// Kind is the event type being encoded, if known.
	Kind string
	Err  error
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("encode %s payload: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("encode payload: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *EncodingError) Unwrap() error {
	return e.Err
}

// TransportError indicates the request never produced an HTTP response.
type TransportError struct {
	Op  string
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError represents a response outside the 2xx range.
type HTTPStatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
