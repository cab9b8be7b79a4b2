package intercept

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shhac/httpspy/internal/logging"
)

func TestHostFilter(t *testing.T) {
	tests := []struct {
		name  string
		specs []string
		host  string
		want  bool
	}{
		{"no filter records everything", nil, "api.example.com", true},
		{"empty host never recorded", nil, "", false},
		{"exact match", []string{"api.example.com"}, "api.example.com", true},
		{"exact is not suffix", []string{"example.com"}, "api.example.com", false},
		{"exact case-insensitive", []string{"API.example.com"}, "api.EXAMPLE.com", true},
		{"wildcard matches domain itself", []string{"*.example.com"}, "example.com", true},
		{"wildcard matches subdomain", []string{"*.example.com"}, "api.example.com", true},
		{"wildcard matches nested subdomain", []string{"*.example.com"}, "a.b.example.com", true},
		{"wildcard rejects lookalike", []string{"*.example.com"}, "badexample.com", false},
		{"wildcard rejects other", []string{"*.example.com"}, "example.org", false},
		{"dots are literal", []string{"api.example.com"}, "apixexample.com", false},
		{"alternation", []string{"one.test", "*.two.test"}, "x.two.test", true},
		{"malformed dropped, valid kept", []string{"*bad", "good.test"}, "bad", false},
		{"malformed dropped, valid matches", []string{"*bad", "good.test"}, "good.test", true},
		{"all malformed allows everything", []string{"*bad", "*.", "  "}, "anything.test", true},
		{"inner wildcard malformed", []string{"api.*.test"}, "api.x.test", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewHostFilter(tt.specs, logging.NewNopLogger())
			assert.Equal(t, tt.want, f.Allows(tt.host))
		})
	}
}

func TestHostFilter_Specs(t *testing.T) {
	f := NewHostFilter([]string{" API.test ", "*.", "*.ok.test"}, logging.NewNopLogger())
	assert.Equal(t, []string{"api.test", "*.ok.test"}, f.Specs())

	var nilFilter *HostFilter
	assert.True(t, nilFilter.Allows("x.test"))
	assert.Nil(t, nilFilter.Specs())
}
