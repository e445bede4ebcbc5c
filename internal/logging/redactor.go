// Package logging builds the slog loggers used by nodetalk. Every logger
// masks gateway tokens and bearer credentials before output.
package logging

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted value.
const RedactPlaceholder = "***REDACTED***"

// Redactor masks known secrets in strings. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor with DefaultPatterns and the given
// literal secrets. Empty literals are ignored.
func NewRedactor(literals ...string) *Redactor {
	r := &Redactor{patterns: DefaultPatterns()}
	for _, l := range literals {
		r.AddLiteral(l)
	}
	return r
}

// AddLiteral registers a secret value that must never be logged.
func (r *Redactor) AddLiteral(secret string) {
	if strings.TrimSpace(secret) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllStringFunc(s, func(m string) string {
			if i := strings.IndexAny(m, " ="); i >= 0 {
				return m[:i+1] + RedactPlaceholder
			}
			return RedactPlaceholder
		})
	}
	return s
}

// DefaultPatterns matches bearer credentials and token query parameters.
// The key part of a match (up to the first space or '=') is kept.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)bearer [A-Za-z0-9._~+/\-]{8,}=*`),
		regexp.MustCompile(`(?i)token=[^&\s"']+`),
	}
}
