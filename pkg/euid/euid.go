// Package euid implements the checksummed human-readable identifier scheme:
// PREFIX-BODYCHECK, where BODY is a Crockford base32 encoding of a per-prefix
// counter and CHECK is a Luhn mod-32 check character over PREFIX+BODY.
// Sandbox identifiers are wrapped as <S>:PREFIX-BODYCHECK.
// See docs/ARCHITECTURE.md § Identifier Scheme.
package euid

import (
	"fmt"
	"strings"

	"github.com/loomworks/tapestry/pkg/types"
)

// Alphabet is the 32-symbol Crockford base32 alphabet: digits 0-9 plus the
// 22 unambiguous uppercase letters (I, L, O, U excluded).
const Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Delimiter separates the prefix from the body+check payload.
const Delimiter = "-"

// charValue maps an alphabet character to its value, or -1.
var charValue [128]int8

func init() {
	for i := range charValue {
		charValue[i] = -1
	}
	for i, c := range Alphabet {
		charValue[c] = int8(i)
	}
}

// Encode returns the Crockford base32 positional encoding of a counter
// value. The value must be positive; the result never has a leading zero.
func Encode(n int64) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%w: %d", types.ErrInvalidIdentifierInput, n)
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%32]
		n /= 32
	}
	return string(buf[i:]), nil
}

// Decode returns the counter value encoded by a base32 body.
func Decode(body string) (int64, error) {
	if body == "" || strings.HasPrefix(body, "0") {
		return 0, fmt.Errorf("%w: body %q", types.ErrMalformedIdentifier, body)
	}
	var n int64
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 128 || charValue[c] < 0 {
			return 0, fmt.Errorf("%w: invalid character %q in body", types.ErrMalformedIdentifier, c)
		}
		n = n*32 + int64(charValue[c])
	}
	return n, nil
}

// Checksum computes the Luhn mod-32 check character over a payload
// (prefix + body). Characters are scanned right to left with alternating
// multipliers 2 and 1; each product is reduced by summing its base-32
// quotient and remainder.
func Checksum(payload string) (byte, error) {
	if payload == "" {
		return 0, fmt.Errorf("%w: empty checksum payload", types.ErrMalformedIdentifier)
	}
	total := 0
	mult := 2
	for i := len(payload) - 1; i >= 0; i-- {
		c := payload[i]
		if c >= 128 || charValue[c] < 0 {
			return 0, fmt.Errorf("%w: invalid character %q in payload", types.ErrMalformedIdentifier, c)
		}
		product := int(charValue[c]) * mult
		total += product/32 + product%32
		if mult == 2 {
			mult = 1
		} else {
			mult = 2
		}
	}
	check := (32 - total%32) % 32
	return Alphabet[check], nil
}

// Format builds PREFIX-BODYCHECK for a prefix and counter value.
func Format(prefix string, n int64) (string, error) {
	p, err := NormalizePrefix(prefix)
	if err != nil {
		return "", err
	}
	body, err := Encode(n)
	if err != nil {
		return "", err
	}
	check, err := Checksum(p + body)
	if err != nil {
		return "", err
	}
	return p + Delimiter + body + string(check), nil
}

// FormatSandbox builds a sandbox-wrapped identifier: <S>:PREFIX-BODYCHECK.
// The sandbox prefix is a single uppercase letter.
func FormatSandbox(sandbox, prefix string, n int64) (string, error) {
	if len(sandbox) != 1 || sandbox[0] < 'A' || sandbox[0] > 'Z' {
		return "", fmt.Errorf("%w: sandbox prefix %q", types.ErrMalformedIdentifier, sandbox)
	}
	base, err := Format(prefix, n)
	if err != nil {
		return "", err
	}
	return sandbox + ":" + base, nil
}

// NormalizePrefix trims, uppercases, and validates an identifier prefix:
// non-empty, alphabet letters only (no digits, no I/L/O/U).
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if p == "" {
		return "", fmt.Errorf("%w: empty prefix", types.ErrMalformedIdentifier)
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c < 'A' || c > 'Z' || charValue[c] < 0 {
			return "", fmt.Errorf("%w: prefix %q must use uppercase letters excluding I, L, O, U", types.ErrMalformedIdentifier, prefix)
		}
	}
	return p, nil
}

// Parse decodes a production identifier into its prefix and counter value.
// Sandbox-wrapped identifiers are rejected; strip them with SplitSandbox
// first.
func Parse(s string) (prefix string, counter int64, err error) {
	if !Validate(s) {
		return "", 0, fmt.Errorf("%w: %q", types.ErrMalformedIdentifier, s)
	}
	i := strings.Index(s, Delimiter)
	prefix = s[:i]
	body := s[i+1 : len(s)-1]
	counter, err = Decode(body)
	return prefix, counter, err
}

// Validate reports whether s is a well-formed production identifier with a
// correct check character. Lowercase, whitespace, forbidden characters,
// sandbox wrapping, and malformed segment counts are all rejected.
func Validate(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n:") {
		return false
	}
	parts := strings.Split(s, Delimiter)
	if len(parts) != 2 {
		return false
	}
	prefix, payload := parts[0], parts[1]
	if p, err := NormalizePrefix(prefix); err != nil || p != prefix {
		return false
	}
	// payload = body + check; body must be non-empty.
	if len(payload) < 2 {
		return false
	}
	body, check := payload[:len(payload)-1], payload[len(payload)-1]
	if _, err := Decode(body); err != nil {
		return false
	}
	want, err := Checksum(prefix + body)
	if err != nil {
		return false
	}
	return check == want
}

// ValidateSandbox reports whether s is a well-formed sandbox identifier
// whose sandbox prefix is in allowed.
func ValidateSandbox(s string, allowed []string) bool {
	sandbox, rest, ok := SplitSandbox(s)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if sandbox == a {
			return Validate(rest)
		}
	}
	return false
}

// SplitSandbox splits a sandbox-wrapped identifier into its sandbox prefix
// and underlying identifier. ok is false when s carries no sandbox wrapper.
func SplitSandbox(s string) (sandbox, rest string, ok bool) {
	if len(s) < 3 || s[1] != ':' {
		return "", "", false
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return "", "", false
	}
	return s[:1], s[2:], true
}
