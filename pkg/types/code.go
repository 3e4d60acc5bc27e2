package types

import (
	"fmt"
	"strings"
)

// TemplateCode is the composite key of a template in string form:
// category/type/subtype/version, with an optional trailing slash.
// Example: container/plate/fixed-plate-96/1.0/
type TemplateCode struct {
	Category string
	Type     string
	Subtype  string
	Version  string
}

// NormalizeCode returns the canonical no-trailing-slash form of a
// template code string.
func NormalizeCode(code string) string {
	return strings.TrimSuffix(strings.TrimSpace(code), "/")
}

// ParseCode parses a template code string into its four segments.
// Returns ErrInvalidCode if the string does not have exactly four
// non-empty segments.
func ParseCode(code string) (TemplateCode, error) {
	s := NormalizeCode(code)
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return TemplateCode{}, fmt.Errorf("%w: %q (expected category/type/subtype/version)", ErrInvalidCode, code)
	}
	for _, p := range parts {
		if p == "" {
			return TemplateCode{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidCode, code)
		}
	}
	return TemplateCode{
		Category: parts[0],
		Type:     parts[1],
		Subtype:  parts[2],
		Version:  parts[3],
	}, nil
}

// String returns the canonical code form without a trailing slash.
func (c TemplateCode) String() string {
	return c.Category + "/" + c.Type + "/" + c.Subtype + "/" + c.Version
}
