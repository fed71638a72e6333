package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Item is one decoded JSONL record. Source items and result records share
// this shape so the pipeline can stay agnostic of stage-specific fields.
type Item map[string]any

// ID returns the canonical string form of the identifier stored under key.
// Numbers and strings compare equal when they render the same ("1" == 1).
// ok is false when the field is missing, null or empty.
func (it Item) ID(key string) (string, bool) {
	v, present := it[key]
	if !present {
		return "", false
	}
	s := FieldString(v)
	if s == "" {
		return "", false
	}
	return s, true
}

// String returns the string form of the field stored under key, or "".
func (it Item) String(key string) string {
	v, ok := it[key]
	if !ok {
		return ""
	}
	return FieldString(v)
}

// FieldString renders a decoded JSON scalar the way it would be compared
// against a run configuration value.
func FieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
