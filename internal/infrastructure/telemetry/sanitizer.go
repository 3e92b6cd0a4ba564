package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// PIILevel controls how much user-authored text may reach the logs.
type PIILevel string

const (
	// PIILevelNone redacts all user content
	PIILevelNone PIILevel = "none"
	// PIILevelHashed replaces detected PII with salted hashes
	PIILevelHashed PIILevel = "hashed"
	// PIILevelFull logs text as-is
	PIILevelFull PIILevel = "full"
)

const previewRunes = 80

type piiRule struct {
	label   string
	pattern *regexp.Regexp
	hashed  bool
}

// Sanitizer scrubs chat text and user ids before they are logged.
type Sanitizer struct {
	level PIILevel
	salt  string
	rules []piiRule
}

// NewSanitizer builds a sanitizer. Unknown levels behave like PIILevelHashed.
func NewSanitizer(level string, salt string) *Sanitizer {
	return &Sanitizer{
		level: PIILevel(strings.ToLower(strings.TrimSpace(level))),
		salt:  salt,
		rules: []piiRule{
			{label: "EMAIL", pattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), hashed: true},
			{label: "ID", pattern: regexp.MustCompile(`\b\d{17}[\dXx]\b`)},
			{label: "CC", pattern: regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
			{label: "PHONE", pattern: regexp.MustCompile(`\b1[3-9]\d{9}\b|\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`), hashed: true},
			{label: "IP", pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), hashed: true},
		},
	}
}

// Text sanitizes a message body according to the configured level.
func (s *Sanitizer) Text(input string) string {
	switch s.level {
	case PIILevelNone:
		return "[REDACTED]"
	case PIILevelFull:
		return input
	default:
		return s.hashPII(input)
	}
}

// Preview sanitizes input and shortens it for a single log field.
func (s *Sanitizer) Preview(input string) string {
	out := s.Text(input)
	if utf8.RuneCountInString(out) <= previewRunes {
		return out
	}
	runes := []rune(out)
	return string(runes[:previewRunes]) + "…"
}

// UserID hashes or redacts a user id, or returns it unchanged at PIILevelFull.
func (s *Sanitizer) UserID(userID string) string {
	if userID == "" {
		return ""
	}
	switch s.level {
	case PIILevelNone:
		return "[REDACTED]"
	case PIILevelFull:
		return userID
	default:
		return s.hash(userID)
	}
}

func (s *Sanitizer) hashPII(input string) string {
	result := input
	for _, rule := range s.rules {
		rule := rule
		result = rule.pattern.ReplaceAllStringFunc(result, func(match string) string {
			if !rule.hashed {
				return fmt.Sprintf("[%s:REDACTED]", rule.label)
			}
			return fmt.Sprintf("[%s:%s]", rule.label, s.hash(match))
		})
	}
	return result
}

func (s *Sanitizer) hash(data string) string {
	sum := sha256.Sum256([]byte(data + s.salt))
	return hex.EncodeToString(sum[:])[:8]
}
