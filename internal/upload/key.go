package upload

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	randomSuffixLen = 8
	suffixAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// KeyGenerator builds object keys of the form
// {folder}/{principal}/{unixMillis}_{random}.{ext}. The zero value uses the
// wall clock and crypto/rand.
type KeyGenerator struct {
	Now  func() time.Time
	Rand io.Reader
}

func (g KeyGenerator) ObjectKey(folder string, principalID string, filename string) (string, error) {
	if !validPrincipal(principalID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrincipal, principalID)
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	random := g.Rand
	if random == nil {
		random = rand.Reader
	}

	suffix, err := randomSuffix(random, randomSuffixLen)
	if err != nil {
		return "", fmt.Errorf("generate object key: %w", err)
	}

	var b strings.Builder
	b.WriteString(folder)
	b.WriteByte('/')
	b.WriteString(principalID)
	b.WriteByte('/')
	b.WriteString(strconv.FormatInt(now().UnixMilli(), 10))
	b.WriteByte('_')
	b.WriteString(suffix)
	if ext := Extension(filename); ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String(), nil
}

// randomSuffix draws n characters uniformly from suffixAlphabet.
func randomSuffix(r io.Reader, n int) (string, error) {
	// Largest multiple of the alphabet size that fits in a byte.
	const limit = 256 - 256%len(suffixAlphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			out = append(out, suffixAlphabet[int(c)%len(suffixAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func validPrincipal(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == '@':
		default:
			return false
		}
	}
	return true
}
