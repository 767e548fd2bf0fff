package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// marshalAttributes converts an attribute map to JSON text for storage.
func marshalAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	b, _ := json.Marshal(attrs)
	return string(b)
}

// unmarshalAttributes converts JSON text back to a map.
func unmarshalAttributes(s string) map[string]string {
	if s == "" || s == "null" {
		return nil
	}
	var attrs map[string]string
	_ = json.Unmarshal([]byte(s), &attrs)
	return attrs
}
