package domain

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() RequestSnapshot {
	return RequestSnapshot{
		URL:    "https://httpbin.org/get?a=1&name=J%C3%BCrgen",
		Method: http.MethodGet,
		Headers: map[string]string{
			"X-Trace Id":   "with space",
			"X-Ünïcode":    "日本語",
			"Content-Type": "application/json",
		},
		Body:    []byte{},
		Timeout: 30 * time.Second,
	}
}

func roundTrip(t *testing.T, ex Exchange) Exchange {
	t.Helper()
	data, err := json.Marshal(ex)
	require.NoError(t, err)

	var got Exchange
	require.NoError(t, json.Unmarshal(data, &got))
	return got
}

func TestExchange_RoundTripPending(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	ex := NewExchange("abc", sampleRequest(), started)

	got := roundTrip(t, ex)
	assert.Equal(t, ex, got)
	assert.True(t, got.IsPending())
	assert.False(t, got.IsFinal())
	assert.NotNil(t, got.Request.Body, "empty body must stay empty, not become nil")
}

func TestExchange_RoundTripCompleted(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ex := NewExchange("abc", sampleRequest(), started)

	resp := ResponseSnapshot{
		URL:        ex.Request.URL,
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json", "X-Émoji": "🙂"},
	}
	require.NoError(t, ex.RecordHeaders(resp))
	require.NoError(t, ex.Complete(nil, []byte(`{"ok":true}`), nil, started.Add(250*time.Millisecond)))

	got := roundTrip(t, ex)
	assert.Equal(t, ex, got)
	assert.False(t, got.IsPending())
	assert.Equal(t, 250*time.Millisecond, got.Duration())
}

func TestExchange_RoundTripTransportError(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ex := NewExchange("err", sampleRequest(), started)
	terr := &TransportError{Domain: "net", Code: 3, Description: "connection refused"}
	require.NoError(t, ex.Complete(nil, nil, terr, started.Add(time.Second)))

	got := roundTrip(t, ex)
	assert.Equal(t, ex, got)
	assert.Nil(t, got.Response)
	assert.Nil(t, got.ResponseBody)
	require.NotNil(t, got.Error)
	assert.Equal(t, "connection refused", got.Error.Description)
}

func TestExchange_CompleteOnce(t *testing.T) {
	ex := NewExchange("once", sampleRequest(), time.Now())
	require.NoError(t, ex.Complete(&ResponseSnapshot{StatusCode: 204}, nil, nil, time.Now()))

	err := ex.Complete(&ResponseSnapshot{StatusCode: 500}, nil, nil, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.ErrorIs(t, ex.RecordHeaders(ResponseSnapshot{StatusCode: 500}), ErrAlreadyCompleted)
	assert.Equal(t, 204, ex.Response.StatusCode)
}

func TestExchange_OrderingTimestamps(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ex := NewExchange("ts", sampleRequest(), started)
	assert.Equal(t, started, ex.CreatedAt())
	assert.Equal(t, started, ex.ModifiedAt())

	done := started.Add(2 * time.Second)
	require.NoError(t, ex.Complete(nil, nil, nil, done))
	assert.Equal(t, started, ex.CreatedAt())
	assert.Equal(t, done, ex.ModifiedAt())
}

func TestRequestSnapshot_URLParts(t *testing.T) {
	req := RequestSnapshot{URL: "https://api.example.com:8443/v1/items?a=1&a=2&b=x%20y#frag"}
	assert.Equal(t, "api.example.com", req.Host())
	assert.Equal(t, "/v1/items", req.Path())
	assert.Equal(t, []string{"1", "2"}, req.Query()["a"])
	assert.Equal(t, "x y", req.Query().Get("b"))

	bad := RequestSnapshot{URL: "://nope"}
	assert.Empty(t, bad.Host())
	assert.Empty(t, bad.Query())
}

func TestHeaderMap(t *testing.T) {
	h := http.Header{}
	h.Add("Accept", "text/html")
	h.Add("Accept", "application/json")
	h.Set("X-Single", "one")

	got := HeaderMap(h)
	assert.Equal(t, "text/html, application/json", got["Accept"])
	assert.Equal(t, "one", got["X-Single"])
}
