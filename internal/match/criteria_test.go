package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
)

func sample() domain.Exchange {
	return domain.NewExchange("1", domain.RequestSnapshot{
		URL:    "https://httpbin.org/get?a=1&a=2&name=J%C3%BCrgen",
		Method: "GET",
		Headers: map[string]string{
			"Authorization": "Bearer token",
			"X-Request-Id":  "r-1",
		},
		Body: []byte(`{"user":{"id":42,"name":"ada"},"tags":["x"]}`),
	}, time.Now())
}

// Each criterion alone, satisfied and violated.
func TestMatcher_SingleCriterion(t *testing.T) {
	tests := []struct {
		name string
		c    Criteria
		want bool
	}{
		{"empty matches anything", Criteria{}, true},

		{"url exact", Criteria{URL: "https://httpbin.org/get?a=1&a=2&name=J%C3%BCrgen"}, true},
		{"url differs", Criteria{URL: "https://httpbin.org/get"}, false},

		{"pattern", Criteria{URLPattern: `.*httpbin\.org/get.*`}, true},
		{"pattern unanchored", Criteria{URLPattern: `/get\?`}, true},
		{"pattern miss", Criteria{URLPattern: `/post`}, false},

		{"host", Criteria{Host: "httpbin.org"}, true},
		{"host miss", Criteria{Host: "example.com"}, false},

		{"path", Criteria{Path: "/get"}, true},
		{"path excludes query", Criteria{Path: "/get?a=1"}, false},

		{"method", Criteria{Method: "GET"}, true},
		{"method case-insensitive", Criteria{Method: "get"}, true},
		{"method miss", Criteria{Method: "DELETE"}, false},

		{"header", Criteria{Headers: map[string]string{"Authorization": "Bearer token"}}, true},
		{"header name case-insensitive", Criteria{Headers: map[string]string{"x-request-id": "r-1"}}, true},
		{"header value exact", Criteria{Headers: map[string]string{"X-Request-Id": "R-1"}}, false},
		{"header absent", Criteria{Headers: map[string]string{"X-Missing": "v"}}, false},

		{"query", Criteria{QueryParameters: map[string]string{"a": "1"}}, true},
		{"query any value", Criteria{QueryParameters: map[string]string{"a": "2"}}, true},
		{"query decoded", Criteria{QueryParameters: map[string]string{"name": "Jürgen"}}, true},
		{"query miss", Criteria{QueryParameters: map[string]string{"a": "3"}}, false},

		{"body json", Criteria{BodyJSON: map[string]string{"user.id": "42"}}, true},
		{"body json string", Criteria{BodyJSON: map[string]string{"user.name": "ada", "tags.0": "x"}}, true},
		{"body json miss", Criteria{BodyJSON: map[string]string{"user.id": "7"}}, false},
		{"body json absent path", Criteria{BodyJSON: map[string]string{"user.email": ""}}, false},
	}

	ex := sample()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.c.Compile()
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Matches(ex))
		})
	}
}

// Pairwise combinations follow AND semantics.
func TestMatcher_PairwiseAND(t *testing.T) {
	pass := []Criteria{
		{URL: "https://httpbin.org/get?a=1&a=2&name=J%C3%BCrgen"},
		{URLPattern: "httpbin"},
		{Host: "httpbin.org"},
		{Path: "/get"},
		{Method: "get"},
		{Headers: map[string]string{"authorization": "Bearer token"}},
		{QueryParameters: map[string]string{"a": "1"}},
		{BodyJSON: map[string]string{"user.id": "42"}},
	}
	fail := []Criteria{
		{URL: "https://other"},
		{URLPattern: "other"},
		{Host: "other"},
		{Path: "/other"},
		{Method: "PUT"},
		{Headers: map[string]string{"X-Other": "1"}},
		{QueryParameters: map[string]string{"other": "1"}},
		{BodyJSON: map[string]string{"other": "1"}},
	}

	ex := sample()
	merge := func(a, b Criteria) Criteria {
		out := a
		if b.URL != "" {
			out.URL = b.URL
		}
		if b.URLPattern != "" {
			out.URLPattern = b.URLPattern
		}
		if b.Host != "" {
			out.Host = b.Host
		}
		if b.Path != "" {
			out.Path = b.Path
		}
		if b.Method != "" {
			out.Method = b.Method
		}
		if b.Headers != nil {
			out.Headers = b.Headers
		}
		if b.QueryParameters != nil {
			out.QueryParameters = b.QueryParameters
		}
		if b.BodyJSON != nil {
			out.BodyJSON = b.BodyJSON
		}
		return out
	}

	for i := range pass {
		for j := range pass {
			if i == j {
				continue
			}
			assert.True(t, merge(pass[i], pass[j]).MustCompile().Matches(ex), "pass %d + pass %d", i, j)
			assert.False(t, merge(pass[i], fail[j]).MustCompile().Matches(ex), "pass %d + fail %d", i, j)
			assert.False(t, merge(fail[i], fail[j]).MustCompile().Matches(ex), "fail %d + fail %d", i, j)
		}
	}
}

func TestMatcher_BodyNotJSON(t *testing.T) {
	ex := sample()
	ex.Request.Body = []byte("a=1&b=2")
	m := Criteria{BodyJSON: map[string]string{"a": "1"}}.MustCompile()
	assert.False(t, m.Matches(ex))
}

func TestMatcher_MalformedURL(t *testing.T) {
	ex := sample()
	ex.Request.URL = "://broken"
	assert.False(t, Criteria{Host: "httpbin.org"}.MustCompile().Matches(ex))
	assert.True(t, Criteria{Method: "GET"}.MustCompile().Matches(ex))
}

func TestMatcher_FilterPreservesOrder(t *testing.T) {
	mk := func(id, method string) domain.Exchange {
		ex := sample()
		ex.ID = id
		ex.Request.Method = method
		return ex
	}
	list := []domain.Exchange{mk("1", "GET"), mk("2", "POST"), mk("3", "GET"), mk("4", "GET")}

	m := Criteria{Method: "GET"}.MustCompile()
	got := m.Filter(list)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Equal(t, "4", got[2].ID)
	assert.Equal(t, 3, m.Count(list))

	assert.Empty(t, m.Filter(nil))
}

func TestCompile_InvalidPattern(t *testing.T) {
	_, err := Criteria{URLPattern: "("}.Compile()
	assert.ErrorIs(t, err, apperrors.ErrInvalidCriteria)

	_, err = Criteria{BodyJSON: map[string]string{"": "x"}}.Compile()
	assert.ErrorIs(t, err, apperrors.ErrInvalidCriteria)

	assert.Panics(t, func() { Criteria{URLPattern: "["}.MustCompile() })
}

func TestCriteria_String(t *testing.T) {
	assert.Equal(t, "{any request}", Criteria{}.String())

	c := Criteria{
		Method:          "GET",
		URLPattern:      ".*httpbin.org/get.*",
		Headers:         map[string]string{"B": "2", "A": "1"},
		QueryParameters: map[string]string{"a": "1"},
	}
	assert.Equal(t,
		`{method: "GET", urlPattern: ".*httpbin.org/get.*", header[A]: "1", header[B]: "2", query[a]: "1"}`,
		c.String())
}
