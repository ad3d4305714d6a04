// Package gate validates and sanitizes raw user text before it is allowed
// into a conversation. It is a heuristic filter over untrusted input, not a
// security boundary: the formatter and renderer never interpret message text
// as markup, so the gate only has to stop the obvious junk early.
package gate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	app_errors "aura-assist/engine/internal/errors"
)

// dangerous matches scheme prefixes, inline event-handler fragments, a
// script tag opener and call-like fragments. Substring matching on purpose:
// full HTML/JS parsing is out of scope here.
var dangerous = []*regexp.Regexp{
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)onload=`),
	regexp.MustCompile(`(?i)onerror=`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)execute\(`),
}

var (
	tagSpans   = regexp.MustCompile(`<[^>]*>`)
	disallowed = regexp.MustCompile(`[^\w\s.,!?-]`)
)

// Gate applies a configured length limit and the fixed denylist.
type Gate struct {
	maxLen int
}

// New returns a gate enforcing maxLen as the maximum accepted rune count.
// The limit is a deployment setting (500 and 800 are both in use), so it is
// injected rather than hard-coded.
func New(maxLen int) *Gate {
	return &Gate{maxLen: maxLen}
}

// Validate checks raw user text and, on acceptance, returns the sanitized
// candidate message. Rejections wrap app_errors.ErrValidation with a reason
// suitable for inline display.
func (g *Gate) Validate(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: message is empty", app_errors.ErrValidation)
	}
	if utf8.RuneCountInString(raw) > g.maxLen {
		return "", fmt.Errorf("%w: message exceeds %d characters", app_errors.ErrValidation, g.maxLen)
	}
	for _, re := range dangerous {
		if re.MatchString(raw) {
			return "", fmt.Errorf("%w: message contains disallowed content", app_errors.ErrValidation)
		}
	}
	clean := Sanitize(raw)
	if strings.TrimSpace(clean) == "" {
		return "", fmt.Errorf("%w: message is empty", app_errors.ErrValidation)
	}
	return clean, nil
}

// Sanitize strips tag-like spans first, then every character outside the
// allowed set (word characters, whitespace and basic punctuation). It is
// applied on acceptance and again defensively right before send.
func Sanitize(raw string) string {
	s := tagSpans.ReplaceAllString(raw, "")
	return disallowed.ReplaceAllString(s, "")
}
