package conditions

import (
	"strconv"
	"strings"
)

// Lookup resolves a dotted path such as "order.items.0.sku" in a decoded JSON
// value. Numeric segments index into arrays. The second result is false when
// any segment is missing; the value is then nil.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return root, root != nil
	}

	current := root

	for segment := range strings.SplitSeq(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, current != nil
}
