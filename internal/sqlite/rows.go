package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Column values are serialized to text both for storage of JSON payloads and
// for audit diffing, so one serialization governs both.

// jsonColumn marshals v for a nullable JSON text column. Nil maps/slices
// become NULL.
func jsonColumn(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializing column: %w", err)
	}
	return string(raw), nil
}

// jsonString marshals v to its column text form for audit diffing. Empty
// values serialize to "".
func jsonString(v any) string {
	col, err := jsonColumn(v)
	if err != nil || col == nil {
		return ""
	}
	return col.(string)
}

// boolColumn stores booleans as 0/1.
func boolColumn(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// timeColumn stores timestamps as RFC 3339 UTC text.
func timeColumn(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeColumn(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias, for JOIN queries.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// unmarshalColumn decodes a nullable JSON text column into target.
func unmarshalColumn(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("parsing column: %w", err)
	}
	return nil
}
