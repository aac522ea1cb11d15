package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity strings (emails) may contain characters that are illegal in a
// storage key. EncodeIdentity maps an identity to a key-safe form and
// DecodeIdentity is its exact inverse; the pair is bijective over all
// Unicode strings.
//
// Safe characters pass through unchanged: ASCII letters, digits, '_',
// '-', and '@'. Every other byte of the UTF-8 encoding, including '%'
// itself, becomes "%XX" with uppercase hex.

func isKeySafe(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-' || b == '@':
		return true
	}
	return false
}

// EncodeIdentity converts a natural identity string into a storage key.
func EncodeIdentity(identity string) string {
	var sb strings.Builder
	sb.Grow(len(identity))
	for i := 0; i < len(identity); i++ {
		b := identity[i]
		if isKeySafe(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteString(fmt.Sprintf("%%%02X", b))
	}
	return sb.String()
}

// DecodeIdentity restores the natural identity string from a storage key.
func DecodeIdentity(key string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(key))
	for i := 0; i < len(key); i++ {
		b := key[i]
		if b != '%' {
			sb.WriteByte(b)
			continue
		}
		if i+2 >= len(key) {
			return "", fmt.Errorf("truncated escape at offset %d in %q", i, key)
		}
		decoded, err := strconv.ParseUint(key[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("invalid escape %q at offset %d: %w", key[i:i+3], i, err)
		}
		sb.WriteByte(byte(decoded))
		i += 2
	}
	return sb.String(), nil
}
