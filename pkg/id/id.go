// Package id generates identifiers for farm data records and opaque tokens.
package id

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// Crockford's Base32 alphabet (excludes I, L, O, U to avoid confusion).
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the size of identifiers returned by New.
const Length = 16

// New returns a random 16-character lowercase base32 identifier.
// It is used for b_id, b_id_farm and the other record keys.
func New() string {
	var buf [Length]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("id: crypto/rand unavailable: " + err.Error())
	}
	for i := range buf {
		buf[i] = alphabet[buf[i]&0x1F]
	}
	return string(buf[:])
}

// NewUUID returns a time-ordered UUIDv7 string.
func NewUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewToken returns 32 random bytes encoded as unpadded base64url.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("id: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Valid reports whether s looks like an identifier produced by New.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlphabet(s[i]) {
			return false
		}
	}
	return true
}

func isAlphabet(c byte) bool {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == c {
			return true
		}
	}
	return false
}
