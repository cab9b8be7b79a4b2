package intercept

import (
	"log/slog"
	"regexp"
	"strings"
)

// HostFilter decides which hosts are recorded. A nil filter, or one built
// from no valid specs, records every host.
type HostFilter struct {
	pattern *regexp.Regexp
	specs   []string
}

// NewHostFilter compiles host specs into one alternation pattern. A spec is
// either an exact hostname or "*.domain", meaning domain itself or any of its
// subdomains. Malformed specs are dropped with a warning.
func NewHostFilter(specs []string, logger *slog.Logger) *HostFilter {
	var (
		alts  []string
		valid []string
	)
	for _, raw := range specs {
		spec := strings.ToLower(strings.TrimSpace(raw))
		alt, ok := compileHostSpec(spec)
		if !ok {
			logger.Warn("ignoring malformed host filter entry", slog.String("entry", raw))
			continue
		}
		alts = append(alts, alt)
		valid = append(valid, spec)
	}

	f := &HostFilter{specs: valid}
	if len(alts) == 0 {
		if len(specs) > 0 {
			logger.Warn("no valid host filter entries, recording all hosts", slog.Int("entries", len(specs)))
		}
		return f
	}
	f.pattern = regexp.MustCompile("^(?:" + strings.Join(alts, "|") + ")$")
	return f
}

func compileHostSpec(spec string) (string, bool) {
	if spec == "" {
		return "", false
	}
	if domain, ok := strings.CutPrefix(spec, "*."); ok {
		if domain == "" || strings.Contains(domain, "*") {
			return "", false
		}
		return `(?:[^.]+\.)*` + regexp.QuoteMeta(domain), true
	}
	if strings.Contains(spec, "*") {
		return "", false
	}
	return regexp.QuoteMeta(spec), true
}

// Allows reports whether host should be recorded. Empty hosts never are.
func (f *HostFilter) Allows(host string) bool {
	if host == "" {
		return false
	}
	if f == nil || f.pattern == nil {
		return true
	}
	return f.pattern.MatchString(strings.ToLower(host))
}

// Specs returns the valid entries the filter was built from.
func (f *HostFilter) Specs() []string {
	if f == nil {
		return nil
	}
	return f.specs
}
