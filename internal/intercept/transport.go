package intercept

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
	"github.com/shhac/httpspy/internal/storage"
)

// Transport is an http.RoundTripper that records every accepted request and
// its outcome, then hands the request unchanged to an unobserved round
// tripper. The caller sees the same status, headers and body bytes it would
// see without interception.
//
// Requests it does not record go through passthrough, which keeps the
// default TLS settings. Only re-issued requests use next, which may skip
// certificate verification.
type Transport struct {
	next        http.RoundTripper
	passthrough http.RoundTripper
	filter  *HostFilter
	rec     *recorder
	logger  *slog.Logger
	trust   bool
	now     func() time.Time
	newID   func() string
	metrics *Metrics
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithNext sets the round tripper requests are re-issued through, and that
// unrecorded requests pass through. Without it two sessions are cloned from
// the default transport, and only the re-issuing one may trust certificates.
func WithNext(rt http.RoundTripper) TransportOption {
	return func(t *Transport) { t.next = rt }
}

// WithHostFilter restricts recording to hosts the filter allows.
func WithHostFilter(f *HostFilter) TransportOption {
	return func(t *Transport) { t.filter = f }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) TransportOption {
	return func(t *Transport) { t.metrics = m }
}

// WithTrustServerCertificates controls certificate verification of the
// fresh session. It has no effect together with WithNext.
func WithTrustServerCertificates(trust bool) TransportOption {
	return func(t *Transport) { t.trust = trust }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) TransportOption {
	return func(t *Transport) { t.now = now }
}

// NewTransport creates a recording transport writing to store.
func NewTransport(store storage.Repository[domain.Exchange], logger *slog.Logger, opts ...TransportOption) *Transport {
	t := &Transport{
		logger: logger,
		trust:  true,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(nil)
	}
	if t.next == nil {
		t.next = newSession(t.trust)
		t.passthrough = newSession(false)
	} else {
		t.passthrough = t.next
	}
	t.rec = newRecorder(store, t.metrics, logger)
	return t
}

// newSession builds an unobserved transport from the current default one.
// Only trust changes its TLS settings.
func newSession(trust bool) *http.Transport {
	var tr *http.Transport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		tr = base.Clone()
	} else {
		tr = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}
	if trust {
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = &tls.Config{}
		}
		tr.TLSClientConfig.InsecureSkipVerify = true
	}
	return tr
}

// Metrics returns the transport's metrics.
func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

// CloseIdleConnections closes idle connections of the underlying sessions.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.next.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
	if ci, ok := t.passthrough.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

// accepts applies the acceptance rule: an HTTP scheme and a host the filter
// allows. Marked requests are handled before it.
func (t *Transport) accepts(req *http.Request) bool {
	if req.URL == nil || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return false
	}
	return t.filter.Allows(req.URL.Hostname())
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A marked request is a re-issue this process already owns.
	if _, marked := ExchangeID(req.Context()); marked {
		return t.next.RoundTrip(req)
	}
	if !t.accepts(req) {
		return t.passthrough.RoundTrip(req)
	}

	started := t.now()
	body, bodyErr := materializeBody(req)

	ex := domain.NewExchange(t.newID(), snapshotRequest(req, body, started), started)
	w := newExchangeWriter(t.rec, ex)
	w.begin()

	if bodyErr != nil {
		err := fmt.Errorf("read request body: %w", bodyErr)
		w.complete(nil, nil, apperrors.ClassifyTransport(err), t.now())
		return nil, err
	}

	out := req.Clone(withMarker(req.Context(), ex.ID))
	if req.Body != nil && req.Body != http.NoBody {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	resp, err := t.next.RoundTrip(out)
	if err != nil {
		w.complete(nil, nil, apperrors.ClassifyTransport(err), t.now())
		return nil, err
	}

	// The caller must see its own request, not the tagged clone.
	resp.Request = req

	w.headers(domain.ResponseSnapshot{
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    domain.HeaderMap(resp.Header),
	})

	if resp.Body == nil || resp.Body == http.NoBody {
		w.complete(nil, []byte{}, nil, t.now())
		return resp, nil
	}

	resp.Body = &captureBody{
		rc: resp.Body,
		commit: func(data []byte, readErr error) {
			var terr *domain.TransportError
			if readErr != nil {
				terr = apperrors.ClassifyTransport(readErr)
			}
			w.complete(nil, data, terr, t.now())
		},
	}
	return resp, nil
}

// materializeBody reads the request body so it can be both recorded and
// sent. The original body is consumed and closed.
func materializeBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return []byte{}, nil
	}
	defer req.Body.Close()

	data, err := io.ReadAll(req.Body)
	if data == nil {
		data = []byte{}
	}
	return data, err
}

func snapshotRequest(req *http.Request, body []byte, started time.Time) domain.RequestSnapshot {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var timeout time.Duration
	if deadline, ok := req.Context().Deadline(); ok {
		timeout = max(deadline.Sub(started), 0)
	}

	return domain.RequestSnapshot{
		URL:     req.URL.String(),
		Method:  method,
		Headers: domain.HeaderMap(req.Header),
		Body:    body,
		Timeout: timeout,
	}
}

// captureBody forwards reads unchanged while keeping a copy. The copy is
// committed once, at EOF, on a read error, or on Close, whichever is first.
type captureBody struct {
	rc     io.ReadCloser
	commit func(data []byte, err error)

	mu   sync.Mutex
	buf  bytes.Buffer
	once sync.Once
}

func (b *captureBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.mu.Lock()
		b.buf.Write(p[:n])
		b.mu.Unlock()
	}
	switch {
	case err == io.EOF:
		b.finish(nil)
	case err != nil:
		b.finish(err)
	}
	return n, err
}

func (b *captureBody) Close() error {
	err := b.rc.Close()
	b.finish(nil)
	return err
}

func (b *captureBody) finish(err error) {
	b.once.Do(func() {
		b.mu.Lock()
		data := bytes.Clone(b.buf.Bytes())
		b.mu.Unlock()
		if data == nil {
			data = []byte{}
		}
		b.commit(data, err)
	})
}
