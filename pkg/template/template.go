// Package template resolves {{ ... }} placeholders in action configuration.
//
// Placeholders name a dotted path under one of the scope roots:
//
//	{{ trigger.<field> }}        the run's trigger envelope, falling back to its payload
//	{{ steps.<name>.<field> }}   the processed output of an earlier step
//	{{ run.<field> }}            run identifiers (id, sequence_id, trigger_event_id)
//
// A string that is exactly one placeholder renders to the referenced value with
// its type preserved. Placeholders embedded in longer strings are interpolated
// as text. Missing values render as nil, or as an empty string when embedded.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/sequences/pkg/conditions"
)

var (
	ErrUnterminated = errors.New("unterminated placeholder")
	ErrUnknownRoot  = errors.New("unknown placeholder root")
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Scope is the data placeholders resolve against.
type Scope struct {
	Trigger map[string]any
	Steps   map[string]any
	Run     map[string]any
}

// Render resolves placeholders in every string inside value, descending into
// maps and slices. The input is not modified.
func Render(value any, scope Scope) (any, error) {
	switch v := value.(type) {
	case string:
		return renderString(v, scope)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := Render(item, scope)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := Render(item, scope)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

// RenderMap renders a configuration map.
func RenderMap(config map[string]any, scope Scope) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}

	rendered, err := Render(config, scope)
	if err != nil {
		return nil, err
	}

	return rendered.(map[string]any), nil
}

// NeedsTemplating reports whether s contains a placeholder opening.
func NeedsTemplating(s string) bool {
	return strings.Contains(s, "{{")
}

func renderString(s string, scope Scope) (any, error) {
	if !NeedsTemplating(s) {
		return s, nil
	}

	matches := placeholder.FindAllStringSubmatchIndex(s, -1)

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return scope.resolve(s[matches[0][2]:matches[0][3]])
	}

	var (
		out  strings.Builder
		last int
	)

	for _, m := range matches {
		if strings.Contains(s[last:m[0]], "{{") {
			return nil, fmt.Errorf("%w in %q", ErrUnterminated, s)
		}

		out.WriteString(s[last:m[0]])

		value, err := scope.resolve(s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}

		out.WriteString(stringify(value))

		last = m[1]
	}

	if strings.Contains(s[last:], "{{") {
		return nil, fmt.Errorf("%w in %q", ErrUnterminated, s)
	}

	out.WriteString(s[last:])

	return out.String(), nil
}

func (s Scope) resolve(path string) (any, error) {
	root, rest, _ := strings.Cut(path, ".")

	switch root {
	case "trigger":
		if rest == "" {
			return s.Trigger, nil
		}

		if value, ok := conditions.Lookup(s.Trigger, rest); ok {
			return value, nil
		}

		value, _ := conditions.Lookup(s.Trigger["payload"], rest)

		return value, nil
	case "steps":
		value, _ := conditions.Lookup(s.Steps, rest)

		return value, nil
	case "run":
		value, _ := conditions.Lookup(s.Run, rest)

		return value, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownRoot, root)
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(b)
	default:
		return fmt.Sprint(v)
	}
}
