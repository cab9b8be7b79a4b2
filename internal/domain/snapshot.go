package domain

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestSnapshot is the outbound request as it was sent
type RequestSnapshot struct {
	URL     string            `json:"url"`     // Absolute URL
	Method  string            `json:"method"`  // HTTP method
	Headers map[string]string `json:"headers"` // Header names as sent
	Body    []byte            `json:"body"`    // Materialized request body
	Timeout time.Duration     `json:"timeout"` // Remaining deadline at capture, 0 if none
}

// ResponseSnapshot is the status line and headers of a response
type ResponseSnapshot struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
}

// TransportError describes a transport failure that replaced a response
type TransportError struct {
	Domain      string `json:"domain"`
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (e TransportError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Domain, e.Code, e.Description)
}

// ParsedURL parses the request URL. It returns nil when the URL is malformed.
func (r RequestSnapshot) ParsedURL() *url.URL {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil
	}
	return u
}

// Host returns the request host without port.
func (r RequestSnapshot) Host() string {
	if u := r.ParsedURL(); u != nil {
		return u.Hostname()
	}
	return ""
}

// Path returns the request-target path without query or fragment.
func (r RequestSnapshot) Path() string {
	if u := r.ParsedURL(); u != nil {
		return u.Path
	}
	return ""
}

// Query returns the decoded query items of the request URL.
func (r RequestSnapshot) Query() url.Values {
	if u := r.ParsedURL(); u != nil {
		return u.Query()
	}
	return url.Values{}
}

// HeaderMap flattens an http.Header into a name→value map. Multiple values
// for a name are joined with ", ".
func HeaderMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}
