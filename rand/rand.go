// Package rand generates random key material.
package rand

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeySize is the length in bytes of a flash key.
const KeySize = 32

// Bytes returns n random bytes.
func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// String returns nBytes random bytes encoded with standard base64.
func String(nBytes int) (string, error) {
	b, err := Bytes(nBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Key returns a new random flash key.
func Key() ([KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("read random key: %w", err)
	}
	return key, nil
}

// KeyString returns a new random flash key encoded with standard base64.
func KeyString() (string, error) {
	return String(KeySize)
}

// ParseKey decodes a base64 flash key.
func ParseKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("decode key: %w", err)
	}
	if len(b) != KeySize {
		return key, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}
