package logging

import "regexp"

// Redactor scrubs credential material from strings headed for the
// logs: upstream API keys, bearer tokens and account emails.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []redactPattern{
			// Upstream API keys.
			{
				regex:       regexp.MustCompile(`sk-[a-zA-Z0-9_-]{4,}`),
				replacement: "sk-***",
			},
			// Bearer tokens in forwarded headers.
			{
				regex:       regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/-]+=*`),
				replacement: "Bearer ***",
			},
			// Account emails on token credentials.
			{
				regex:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
				replacement: "***@***",
			},
		},
	}
}

// Redact returns s with all recognized secrets replaced.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
