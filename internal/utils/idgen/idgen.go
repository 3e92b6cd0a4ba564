// Package idgen produces the public identifiers used for conversations, messages, runs and files.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	charset       = "0123456789abcdefghijklmnopqrstuvwxyz"
	defaultLength = 16

	PrefixConversation = "conv"
	PrefixMessage      = "msg"
	PrefixRun          = "run"
	PrefixFile         = "file"
)

// GenerateSecureID returns prefix + "_" + length random base36 characters.
func GenerateSecureID(prefix string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("id length must be positive, got %d", length)
	}
	max := big.NewInt(int64(len(charset)))
	var b strings.Builder
	b.Grow(len(prefix) + 1 + length)
	b.WriteString(prefix)
	b.WriteByte('_')
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		b.WriteByte(charset[n.Int64()])
	}
	return b.String(), nil
}

// New is GenerateSecureID with the default length. It panics only if the system
// random source fails.
func New(prefix string) string {
	id, err := GenerateSecureID(prefix, defaultLength)
	if err != nil {
		panic(err)
	}
	return id
}

// ValidateIDFormat reports whether id looks like prefix_<base36>.
func ValidateIDFormat(id, expectedPrefix string) bool {
	suffix, ok := strings.CutPrefix(id, expectedPrefix+"_")
	if !ok || suffix == "" {
		return false
	}
	for _, c := range suffix {
		if !strings.ContainsRune(charset, c) {
			return false
		}
	}
	return true
}
