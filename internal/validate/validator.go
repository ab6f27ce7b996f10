// Package validate sanitizes and bounds-checks incoming query text before it
// reaches the routing workflow. Detection is substring/regex matching, a
// heuristic defense, not a sandbox.
package validate

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Result is the outcome of validating one raw query.
type Result struct {
	IsValid   bool
	Sanitized string
	Err       string
}

// suspiciousPatterns flags input that looks like injection or traversal
// attempts. Matched case-insensitively against the sanitized query.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)onload\s*=`),
	regexp.MustCompile(`(?i)onerror\s*=`),
	regexp.MustCompile(`(?i)onclick\s*=`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)system\s*\(`),
	regexp.MustCompile(`(?i)import\s+os`),
	regexp.MustCompile(`(?i)import\s+subprocess`),
	regexp.MustCompile(`(?i)__import__`),
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`\.\.\\`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Validator checks and sanitizes user queries. Stateless between calls.
type Validator struct {
	minLength int
	maxLength int
	allowed   map[rune]bool
	logger    *slog.Logger
}

// New creates a Validator with the given length bounds and character
// allow-list.
func New(minLength, maxLength int, allowedChars string) *Validator {
	allowed := make(map[rune]bool, len(allowedChars))
	for _, r := range allowedChars {
		allowed[r] = true
	}
	return &Validator{
		minLength: minLength,
		maxLength: maxLength,
		allowed:   allowed,
		logger:    slog.Default(),
	}
}

// ValidateQuery validates and sanitizes a raw query. Length bounds are
// checked on the raw input; pattern checks run on the sanitized text.
func (v *Validator) ValidateQuery(raw string) Result {
	if raw == "" {
		return Result{Err: "Query cannot be empty"}
	}

	// Length bounds count characters, not bytes; multi-byte runes must not
	// inflate a short query past the minimum.
	length := utf8.RuneCountInString(raw)
	if length < v.minLength {
		return Result{Err: fmt.Sprintf("Query must be at least %d characters long", v.minLength)}
	}
	if length > v.maxLength {
		return Result{Err: fmt.Sprintf("Query cannot exceed %d characters", v.maxLength)}
	}

	sanitized := v.sanitize(raw)
	if sanitized == "" {
		return Result{Err: "Query contains only invalid characters"}
	}

	if pattern := firstSuspiciousMatch(sanitized); pattern != "" {
		v.logger.Warn("suspicious pattern detected in query", "pattern", pattern)
		return Result{Err: "Query contains potentially harmful content"}
	}

	v.logger.Debug("query validated", "length", len(sanitized))
	return Result{IsValid: true, Sanitized: sanitized}
}

// sanitize strips control characters, drops anything outside the allow-list,
// collapses whitespace runs to single spaces, and trims. Idempotent: running
// it on already-sanitized text returns the same text.
func (v *Validator) sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		if v.allowed[r] {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

func firstSuspiciousMatch(s string) string {
	for _, p := range suspiciousPatterns {
		if p.MatchString(s) {
			return p.String()
		}
	}
	return ""
}
