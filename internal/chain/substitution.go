// Package chain implements the C6 interpreter: variable substitution,
// JSONPath extraction, condition evaluation, and the step loop with
// stop/continue policy. Every behavior here is grounded verbatim on
// original_source/backend/tests/unit/test_chain_executor.py, which is the
// only place the source's substitution/condition semantics are pinned down
// precisely enough to port.
package chain

import (
	"fmt"
	"regexp"
	"strconv"
)

// VariableSubstitutionError is returned when a template references a variable
// that isn't in the context — the one substitution failure that is fatal
// (JSONPath extraction failures are never fatal; see ExtractVariables).
type VariableSubstitutionError struct {
	Name string
}

func (e *VariableSubstitutionError) Error() string {
	return fmt.Sprintf("variable '%s' not found", e.Name)
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Substitute replaces every {{var}} placeholder in template with its value
// from vars, stringified. A nil value becomes "". A missing key returns
// VariableSubstitutionError. An empty template returns "" unchanged.
func Substitute(template string, vars map[string]any) (string, error) {
	if template == "" {
		return "", nil
	}

	var firstErr error
	result := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := placeholderRe.FindStringSubmatch(match)[1]
		val, ok := vars[name]
		if !ok {
			firstErr = &VariableSubstitutionError{Name: name}
			return match
		}
		return stringify(val)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// SubstituteMap applies Substitute to every value in a string map (used for
// request headers).
func SubstituteMap(data map[string]string, vars map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(data))
	for k, v := range data {
		sv, err := Substitute(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = sv
	}
	return out, nil
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
