package chain

import (
	"encoding/json"

	"github.com/itchyny/gojq"
)

// ExtractJSONPath evaluates a spec-subset JSONPath expression ("$.a.b[0]")
// against decoded JSON data. Never returns an error to the caller — an
// invalid path or a path that resolves to nothing both yield (nil, false),
// matching extract_variable_from_jsonpath's "not found / invalid -> None"
// behavior. JSONPath's dot/bracket-index subset is a strict subset of jq
// filter syntax, so the only transform needed is dropping the leading "$"
// (roelfdiedericks-goclaw/internal/tools/jq.go's gojq.Parse/.Run pattern).
func ExtractJSONPath(data any, path string) (any, bool) {
	filter := toJQFilter(path)
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, false
	}

	iter := query.Run(data)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if err, isErr := v.(error); isErr {
		_ = err
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

func toJQFilter(path string) string {
	if len(path) > 0 && path[0] == '$' {
		return "." + path[1:]
	}
	return path
}

// ExtractVariables evaluates every JSONPath in extractConfig against a raw
// response body, merging each that resolves into the returned map. An empty
// body, a nil body, invalid JSON, or an empty config all yield an empty map
// rather than an error — extraction failures are never fatal.
func ExtractVariables(body []byte, extractConfig map[string]string) map[string]any {
	result := make(map[string]any, len(extractConfig))
	if len(body) == 0 || len(extractConfig) == 0 {
		return result
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return result
	}

	for name, path := range extractConfig {
		if v, ok := ExtractJSONPath(data, path); ok {
			result[name] = v
		}
	}
	return result
}
