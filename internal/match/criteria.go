// Package match evaluates declarative criteria against captured exchanges.
package match

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
)

// Criteria describes the exchanges a caller is looking for. Every field is
// optional; an exchange matches when every supplied field holds.
type Criteria struct {
	URL             string            // exact absolute URL
	URLPattern      string            // regular expression searched in the absolute URL
	Host            string            // exact hostname, no port
	Path            string            // exact path, no query or fragment
	Method          string            // case-insensitive
	Headers         map[string]string // name case-insensitive, value exact
	QueryParameters map[string]string // any decoded value for the name equals the expected value
	BodyJSON        map[string]string // gjson path in the request body → expected string form
}

// IsEmpty reports whether no criterion is set.
func (c Criteria) IsEmpty() bool {
	return c.URL == "" && c.URLPattern == "" && c.Host == "" && c.Path == "" && c.Method == "" &&
		len(c.Headers) == 0 && len(c.QueryParameters) == 0 && len(c.BodyJSON) == 0
}

// String renders every supplied criterion in a stable order, for diagnostics.
func (c Criteria) String() string {
	if c.IsEmpty() {
		return "{any request}"
	}

	var parts []string
	add := func(k, v string) {
		parts = append(parts, fmt.Sprintf("%s: %q", k, v))
	}
	if c.Method != "" {
		add("method", c.Method)
	}
	if c.URL != "" {
		add("url", c.URL)
	}
	if c.URLPattern != "" {
		add("urlPattern", c.URLPattern)
	}
	if c.Host != "" {
		add("host", c.Host)
	}
	if c.Path != "" {
		add("path", c.Path)
	}
	addMap := func(label string, m map[string]string) {
		for _, k := range sortedKeys(m) {
			add(label+"["+k+"]", m[k])
		}
	}
	addMap("header", c.Headers)
	addMap("query", c.QueryParameters)
	addMap("body", c.BodyJSON)

	return "{" + strings.Join(parts, ", ") + "}"
}

// Compile validates the criteria and prepares them for repeated evaluation.
func (c Criteria) Compile() (*Matcher, error) {
	m := &Matcher{criteria: c}
	if c.URLPattern != "" {
		re, err := regexp.Compile(c.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: url pattern %q: %v", apperrors.ErrInvalidCriteria, c.URLPattern, err)
		}
		m.pattern = re
	}
	for path := range c.BodyJSON {
		if path == "" {
			return nil, fmt.Errorf("%w: empty body path", apperrors.ErrInvalidCriteria)
		}
	}
	return m, nil
}

// MustCompile is like Compile but panics on invalid criteria.
func (c Criteria) MustCompile() *Matcher {
	m, err := c.Compile()
	if err != nil {
		panic(err)
	}
	return m
}

// Matcher is a compiled, immutable criteria set. Safe for concurrent use.
type Matcher struct {
	criteria Criteria
	pattern  *regexp.Regexp
}

// Criteria returns the criteria the matcher was compiled from.
func (m *Matcher) Criteria() Criteria {
	return m.criteria
}

// String renders the criteria.
func (m *Matcher) String() string {
	return m.criteria.String()
}

// Matches reports whether ex satisfies every criterion.
func (m *Matcher) Matches(ex domain.Exchange) bool {
	c := m.criteria
	req := ex.Request

	if c.URL != "" && req.URL != c.URL {
		return false
	}
	if m.pattern != nil && !m.pattern.MatchString(req.URL) {
		return false
	}
	if c.Method != "" && !strings.EqualFold(req.Method, c.Method) {
		return false
	}
	if c.Host != "" || c.Path != "" || len(c.QueryParameters) > 0 {
		u := req.ParsedURL()
		if u == nil {
			return false
		}
		if c.Host != "" && u.Hostname() != c.Host {
			return false
		}
		if c.Path != "" && u.Path != c.Path {
			return false
		}
		if len(c.QueryParameters) > 0 {
			q := u.Query()
			for name, want := range c.QueryParameters {
				if !slices.Contains(q[name], want) {
					return false
				}
			}
		}
	}
	for name, want := range c.Headers {
		if !hasHeader(req.Headers, name, want) {
			return false
		}
	}
	if len(c.BodyJSON) > 0 {
		if !gjson.ValidBytes(req.Body) {
			return false
		}
		for path, want := range c.BodyJSON {
			res := gjson.GetBytes(req.Body, path)
			if !res.Exists() || res.String() != want {
				return false
			}
		}
	}
	return true
}

// Filter returns the matching exchanges, preserving input order.
func (m *Matcher) Filter(list []domain.Exchange) []domain.Exchange {
	out := make([]domain.Exchange, 0, len(list))
	for _, ex := range list {
		if m.Matches(ex) {
			out = append(out, ex)
		}
	}
	return out
}

// Count returns the number of matching exchanges.
func (m *Matcher) Count(list []domain.Exchange) int {
	n := 0
	for _, ex := range list {
		if m.Matches(ex) {
			n++
		}
	}
	return n
}

func hasHeader(headers map[string]string, name, want string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, name) && v == want {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
