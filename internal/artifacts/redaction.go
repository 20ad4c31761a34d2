package artifacts

import (
	"fmt"
	"regexp"
	"strings"
)

// RedactionConfig defines rules for refusing to store sensitive
// artifacts (e.g. tool results carrying a credentials dump) before they
// ever reach a Store backend.
type RedactionConfig struct {
	Enabled          bool
	Kinds            []string
	MimeTypes        []string
	FilenamePatterns []string
}

// RedactionPolicy evaluates artifacts against redaction rules.
type RedactionPolicy struct {
	enabled          bool
	kindSet          map[string]struct{}
	mimeExact        map[string]struct{}
	mimePrefixes     []string
	filenamePatterns []*regexp.Regexp
}

// NewRedactionPolicy compiles a policy from config. Returns (nil, nil)
// when disabled, matching the zero-cost-when-off idiom used elsewhere in
// this codebase (e.g. the telemetry emitter).
func NewRedactionPolicy(cfg RedactionConfig) (*RedactionPolicy, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	policy := &RedactionPolicy{
		enabled:   true,
		kindSet:   make(map[string]struct{}),
		mimeExact: make(map[string]struct{}),
	}

	for _, k := range cfg.Kinds {
		k = strings.TrimSpace(strings.ToLower(k))
		if k == "" {
			continue
		}
		policy.kindSet[k] = struct{}{}
	}

	for _, m := range cfg.MimeTypes {
		m = strings.TrimSpace(strings.ToLower(m))
		if m == "" {
			continue
		}
		if strings.HasSuffix(m, "/*") {
			prefix := strings.TrimSuffix(m, "/*")
			if prefix != "" {
				policy.mimePrefixes = append(policy.mimePrefixes, prefix+"/")
			}
			continue
		}
		policy.mimeExact[m] = struct{}{}
	}

	for _, pattern := range cfg.FilenamePatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction filename pattern %q: %w", pattern, err)
		}
		policy.filenamePatterns = append(policy.filenamePatterns, re)
	}

	return policy, nil
}

// ShouldRedact reports whether an artifact about to be Put matches a
// redaction rule and must be refused rather than stored.
func (p *RedactionPolicy) ShouldRedact(kind, mimeType, filename string) bool {
	if p == nil || !p.enabled {
		return false
	}

	if kind != "" {
		if _, ok := p.kindSet[strings.ToLower(kind)]; ok {
			return true
		}
	}

	if mimeType != "" {
		mime := strings.ToLower(mimeType)
		if _, ok := p.mimeExact[mime]; ok {
			return true
		}
		for _, prefix := range p.mimePrefixes {
			if strings.HasPrefix(mime, prefix) {
				return true
			}
		}
	}

	if filename != "" {
		for _, re := range p.filenamePatterns {
			if re.MatchString(filename) {
				return true
			}
		}
	}

	return false
}
