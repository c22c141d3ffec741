package conditions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// looseEquals compares across the scalar types a JSON payload can carry:
// numbers and numeric strings compare by value, booleans compare with their
// usual string and numeric spellings. A missing value only equals nil.
func looseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if x, ok := a.(bool); ok {
		y, ok := toBool(b)

		return ok && x == y
	}

	if y, ok := b.(bool); ok {
		x, ok := toBool(a)

		return ok && x == y
	}

	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return x == y
		}
	}

	sa, aIsString := a.(string)
	sb, bIsString := b.(string)

	if aIsString && bIsString {
		return sa == sb
	}

	return reflect.DeepEqual(a, b)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, true
		case "false", "0", "":
			return false, true
		}

		return false, false
	default:
		if n, ok := toNumber(v); ok {
			return n != 0, true
		}

		return false, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
