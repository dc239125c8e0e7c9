// Package principal encodes and decodes the textual form of participant
// account identifiers used by the remote contract service.
//
// The text form is the lowercase, unpadded base32 encoding of a big-endian
// CRC32 checksum followed by the raw identifier bytes, split into groups of
// five characters separated by dashes, e.g. "bkyz2-fmaaa-aaaaa-qaaaq-cai".
package principal

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxLength is the maximum length in bytes of a raw principal.
const MaxLength = 29

const groupSize = 5

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var (
	ErrEmpty        = errors.New("principal is empty")
	ErrTooLong      = errors.New("principal is too long")
	ErrChecksum     = errors.New("principal checksum mismatch")
	ErrNotCanonical = errors.New("principal is not in canonical form")
)

// Principal is a raw account identifier.
type Principal []byte

// Anonymous is the identifier used by unauthenticated callers.
var Anonymous = Principal{0x04}

// String returns the canonical text form.
func (p Principal) String() string {
	return Encode(p)
}

// Encode renders raw identifier bytes in the canonical text form.
func Encode(raw []byte) string {
	buf := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(raw))
	copy(buf[4:], raw)

	s := strings.ToLower(encoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(s); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + groupSize
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

// Decode parses a text principal and verifies its checksum. Decoding is
// case-insensitive; use Canonical to also require the exact text form.
func Decode(text string) (Principal, error) {
	if text == "" {
		return nil, ErrEmpty
	}

	compact := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	buf, err := encoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("invalid principal encoding: %w", err)
	}
	if len(buf) < 4 {
		return nil, fmt.Errorf("invalid principal encoding: %d bytes", len(buf))
	}
	raw := buf[4:]
	if len(raw) > MaxLength {
		return nil, ErrTooLong
	}
	if binary.BigEndian.Uint32(buf[:4]) != crc32.ChecksumIEEE(raw) {
		return nil, ErrChecksum
	}
	return Principal(raw), nil
}

// Canonical trims surrounding whitespace, decodes the text and checks that it
// re-encodes to exactly the same string. It returns the normalized text.
func Canonical(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	p, err := Decode(trimmed)
	if err != nil {
		return "", err
	}
	if p.String() != trimmed {
		return "", ErrNotCanonical
	}
	return trimmed, nil
}

// Valid reports whether text is a canonical principal.
func Valid(text string) bool {
	_, err := Canonical(text)
	return err == nil
}
