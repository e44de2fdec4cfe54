package chain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSubstitute_Simple(t *testing.T) {
	got, err := Substitute("Hello, {{name}}!", map[string]any{"name": "World"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello, World!" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstitute_MissingVariableFails(t *testing.T) {
	_, err := Substitute("Hello, {{name}}!", map[string]any{})
	var subErr *VariableSubstitutionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected VariableSubstitutionError, got %v", err)
	}
}

func TestSubstitute_NilValueBecomesEmptyString(t *testing.T) {
	got, err := Substitute("Value: {{value}}", map[string]any{"value": nil})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Value: " {
		t.Fatalf("got %q", got)
	}
}

func TestSubstitute_NumericValue(t *testing.T) {
	got, err := Substitute("Count: {{count}}", map[string]any{"count": 42})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Count: 42" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstitute_EmptyTemplate(t *testing.T) {
	got, err := Substitute("", map[string]any{"name": "test"})
	if err != nil || got != "" {
		t.Fatalf("got %q, err %v", got, err)
	}
}

func TestExtractVariables_PartialExtraction(t *testing.T) {
	body := []byte(`{"data": {"id": 123}}`)
	vars := ExtractVariables(body, map[string]string{
		"found":     "$.data.id",
		"not_found": "$.data.email",
	})
	if len(vars) != 1 {
		t.Fatalf("expected 1 var, got %v", vars)
	}
	if fmt.Sprintf("%v", vars["found"]) != "123" {
		t.Fatalf("unexpected found value: %v", vars["found"])
	}
}

func TestExtractVariables_InvalidJSONReturnsEmpty(t *testing.T) {
	vars := ExtractVariables([]byte("not json"), map[string]string{"var": "$.value"})
	if len(vars) != 0 {
		t.Fatalf("expected empty map, got %v", vars)
	}
}
