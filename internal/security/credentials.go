package security

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

const (
	passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789@#$%"
	suffixAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"

	passwordLength = 12
	suffixLength   = 4
	slugMaxLength  = 20
)

// SlugifyName reduces a display name to an email local-part base:
// lowercase, non-alphanumeric stripped, spaces collapsed to
// underscores, truncated. A name with nothing usable in it falls back
// to "admin" so the candidate stays a valid address.
func SlugifyName(name string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	slug := strings.Join(strings.Fields(b.String()), "_")

	if len(slug) > slugMaxLength {
		slug = slug[:slugMaxLength]
	}

	if slug == "" {
		slug = "admin"
	}

	return slug
}

// EmailCandidate builds one admin email candidate:
// <slug>_<4 random chars>@<domain>. Collisions are the caller's
// problem (retry with a fresh suffix).
func EmailCandidate(name, domain string) (string, error) {
	suffix, err := randomString(suffixAlphabet, suffixLength)
	if err != nil {
		return "", err
	}

	return SlugifyName(name) + "_" + suffix + "@" + domain, nil
}

// GeneratePassword returns a 12-character password drawn uniformly
// from an alphanumeric-plus-symbol alphabet. Returned to the owner
// exactly once; only the bcrypt hash is persisted.
func GeneratePassword() (string, error) {
	return randomString(passwordAlphabet, passwordLength)
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)

	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}

	return string(out), nil
}
