package chain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// EvaluateCondition implements the §4.6 condition grammar against the
// previous step's HTTP status and raw response body. Returns the verdict
// plus a human-readable explanation for StepExecution.ConditionDetails.
// Every branch here is grounded on
// original_source/.../test_chain_executor.py::TestEvaluateCondition.
func EvaluateCondition(cond *domain.Condition, statusCode int, body []byte) (bool, string) {
	if cond == nil || cond.Operator == "" {
		return true, "No condition specified; defaulting to true"
	}

	switch cond.Operator {
	case domain.CondStatusCodeEquals:
		want, ok := toInt(cond.Value)
		if !ok {
			return false, "status_code_equals requires a numeric value"
		}
		return statusCode == want, fmt.Sprintf("status_code %d == %d: %v", statusCode, want, statusCode == want)

	case domain.CondStatusCodeIn:
		set := toIntSet(cond.Value)
		_, in := set[statusCode]
		return in, fmt.Sprintf("status_code %d in %v: %v", statusCode, cond.Value, in)

	case domain.CondStatusCodeNotIn:
		set := toIntSet(cond.Value)
		_, in := set[statusCode]
		return !in, fmt.Sprintf("status_code %d not in %v: %v", statusCode, cond.Value, !in)

	case domain.CondExists, domain.CondNotExists:
		return evaluateExistence(cond, body)

	case domain.CondEquals, domain.CondNotEquals, domain.CondContains, domain.CondNotContains, domain.CondRegex:
		return evaluateValueOperator(cond, body)

	default:
		return false, fmt.Sprintf("Unknown condition operator: %s", cond.Operator)
	}
}

func evaluateExistence(cond *domain.Condition, body []byte) (bool, string) {
	if cond.Field == "" {
		return false, "operator requires 'field'"
	}
	wantExists := cond.Operator == domain.CondExists

	if len(body) == 0 {
		// No response body: treat the field as absent.
		if wantExists {
			return false, "No response body"
		}
		return true, "No response body"
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		// Invalid JSON: field is unreachable, so "exists" fails and
		// "not_exists" succeeds.
		if wantExists {
			return false, "Response body is not valid JSON"
		}
		return true, "Response body is not valid JSON"
	}

	_, found := ExtractJSONPath(data, cond.Field)
	if wantExists {
		if found {
			return true, fmt.Sprintf("field %s exists", cond.Field)
		}
		return false, fmt.Sprintf("field %s does not exist", cond.Field)
	}
	if found {
		return false, fmt.Sprintf("field %s exists", cond.Field)
	}
	return true, fmt.Sprintf("field %s does not exist", cond.Field)
}

func evaluateValueOperator(cond *domain.Condition, body []byte) (bool, string) {
	if cond.Field == "" {
		return false, fmt.Sprintf("operator %s requires 'field'", cond.Operator)
	}
	if len(body) == 0 {
		return false, "No response body"
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return false, "Response body is not valid JSON"
	}

	actual, found := ExtractJSONPath(data, cond.Field)

	switch cond.Operator {
	case domain.CondEquals:
		if !found {
			return false, fmt.Sprintf("field %s not found", cond.Field)
		}
		eq := fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", cond.Value)
		return eq, fmt.Sprintf("%v == %v: %v", actual, cond.Value, eq)

	case domain.CondNotEquals:
		if !found {
			return true, fmt.Sprintf("field %s not found", cond.Field)
		}
		eq := fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", cond.Value)
		return !eq, fmt.Sprintf("%v != %v: %v", actual, cond.Value, !eq)

	case domain.CondContains:
		if !found {
			return false, fmt.Sprintf("field %s not found", cond.Field)
		}
		want := stringify(cond.Value)
		ok := strings.Contains(stringify(actual), want)
		return ok, fmt.Sprintf("%v contains %q: %v", actual, want, ok)

	case domain.CondNotContains:
		if !found {
			return true, fmt.Sprintf("field %s not found", cond.Field)
		}
		want := stringify(cond.Value)
		ok := strings.Contains(stringify(actual), want)
		return !ok, fmt.Sprintf("%v not contains %q: %v", actual, want, !ok)

	case domain.CondRegex:
		if !found {
			return false, fmt.Sprintf("field %s not found", cond.Field)
		}
		pattern := stringify(cond.Value)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Sprintf("Invalid regex pattern %q: %v", pattern, err)
		}
		ok := re.MatchString(stringify(actual))
		return ok, fmt.Sprintf("%v matches /%s/: %v", actual, pattern, ok)

	default:
		return false, fmt.Sprintf("Unknown condition operator: %s", cond.Operator)
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func toIntSet(v any) map[int]struct{} {
	set := make(map[int]struct{})
	switch t := v.(type) {
	case []int:
		for _, n := range t {
			set[n] = struct{}{}
		}
	case []any:
		for _, item := range t {
			if n, ok := toInt(item); ok {
				set[n] = struct{}{}
			}
		}
	default:
		if n, ok := toInt(v); ok {
			set[n] = struct{}{}
		}
	}
	return set
}
