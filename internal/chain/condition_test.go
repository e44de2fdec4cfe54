package chain

import (
	"strings"
	"testing"

	"github.com/cronbox/cronbox-core/internal/domain"
)

func TestEvaluateCondition_NilConditionIsTrue(t *testing.T) {
	ok, details := EvaluateCondition(nil, 200, nil)
	if !ok {
		t.Fatal("expected true")
	}
	if !strings.Contains(details, "No condition") {
		t.Fatalf("unexpected details: %s", details)
	}
}

func TestEvaluateCondition_StatusCodeEquals(t *testing.T) {
	cond := &domain.Condition{Operator: domain.CondStatusCodeEquals, Value: 200}
	ok, _ := EvaluateCondition(cond, 200, nil)
	if !ok {
		t.Fatal("expected true")
	}
	ok, _ = EvaluateCondition(cond, 404, nil)
	if ok {
		t.Fatal("expected false")
	}
}

func TestEvaluateCondition_StatusCodeIn(t *testing.T) {
	cond := &domain.Condition{Operator: domain.CondStatusCodeIn, Value: []any{200, 201, 204}}
	ok, _ := EvaluateCondition(cond, 201, nil)
	if !ok {
		t.Fatal("expected true")
	}
}

func TestEvaluateCondition_EqualsAgainstBody(t *testing.T) {
	cond := &domain.Condition{Operator: domain.CondEquals, Field: "$.status", Value: "success"}
	ok, _ := EvaluateCondition(cond, 200, []byte(`{"status":"success"}`))
	if !ok {
		t.Fatal("expected true")
	}
	ok, _ = EvaluateCondition(cond, 200, []byte(`{"status":"error"}`))
	if ok {
		t.Fatal("expected false")
	}
}

func TestEvaluateCondition_RegexInvalidPattern(t *testing.T) {
	cond := &domain.Condition{Operator: domain.CondRegex, Field: "$.code", Value: "[[["}
	ok, details := EvaluateCondition(cond, 200, []byte(`{"code":"test"}`))
	if ok {
		t.Fatal("expected false")
	}
	if !strings.Contains(details, "Invalid regex") {
		t.Fatalf("unexpected details: %s", details)
	}
}

func TestEvaluateCondition_ExistsNoResponseBody(t *testing.T) {
	cond := &domain.Condition{Operator: domain.CondExists, Field: "$.data.id"}
	ok, _ := EvaluateCondition(cond, 200, nil)
	if ok {
		t.Fatal("expected false")
	}
}

func TestEvaluateCondition_NotExistsNoResponseBody(t *testing.T) {
	cond := &domain.Condition{Operator: domain.CondNotExists, Field: "$.data.id"}
	ok, details := EvaluateCondition(cond, 200, nil)
	if !ok {
		t.Fatal("expected true")
	}
	if !strings.Contains(details, "No response body") {
		t.Fatalf("unexpected details: %s", details)
	}
}

func TestEvaluateCondition_NotExistsInvalidJSON(t *testing.T) {
	cond := &domain.Condition{Operator: domain.CondNotExists, Field: "$.data"}
	ok, _ := EvaluateCondition(cond, 200, []byte("not json"))
	if !ok {
		t.Fatal("expected true when body is not valid JSON")
	}
}

func TestEvaluateCondition_UnknownOperator(t *testing.T) {
	cond := &domain.Condition{Operator: "bogus"}
	ok, details := EvaluateCondition(cond, 200, nil)
	if ok {
		t.Fatal("expected false")
	}
	if !strings.Contains(details, "Unknown condition operator") {
		t.Fatalf("unexpected details: %s", details)
	}
}

func TestDetermineChainStatus(t *testing.T) {
	cases := []struct {
		completed, failed, skipped, total int
		want                              domain.ChainStatus
	}{
		{5, 0, 0, 5, domain.ChainStatusSuccess},
		{0, 5, 0, 5, domain.ChainStatusFailed},
		{3, 2, 0, 5, domain.ChainStatusPartial},
		{0, 0, 5, 5, domain.ChainStatusFailed},
		{2, 0, 3, 5, domain.ChainStatusPartial},
	}
	for _, c := range cases {
		got := DetermineChainStatus(c.completed, c.failed, c.skipped, c.total, true)
		if got != c.want {
			t.Errorf("completed=%d failed=%d skipped=%d total=%d: got %s want %s", c.completed, c.failed, c.skipped, c.total, got, c.want)
		}
	}
}
