package assertions

import (
	"testing"

	"github.com/griffin-monitoring/griffin/internal/models"
)

func TestExtract_Status(t *testing.T) {
	v, err := Extract(models.Assertion{Subject: models.SubjectStatus}, &NodeResponse{Status: 200})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if v != 200 {
		t.Errorf("Extract() = %v, want 200", v)
	}
}

func TestExtract_Latency(t *testing.T) {
	v, err := Extract(models.Assertion{Subject: models.SubjectLatency}, &NodeResponse{DurationMs: 42})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if v != int64(42) {
		t.Errorf("Extract() = %v, want 42", v)
	}
}

func TestExtract_HeaderCaseInsensitive(t *testing.T) {
	resp := &NodeResponse{Headers: map[string]string{"Content-Type": "application/json"}}
	v, err := Extract(models.Assertion{Subject: models.SubjectHeaders, HeaderName: "content-type"}, resp)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if v != "application/json" {
		t.Errorf("Extract() = %v, want application/json", v)
	}
}

func TestExtract_HeaderMissingIsUndefined(t *testing.T) {
	resp := &NodeResponse{Headers: map[string]string{}}
	v, err := Extract(models.Assertion{Subject: models.SubjectHeaders, HeaderName: "x-missing"}, resp)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	ok, _ := Evaluate(models.Predicate{Type: models.PredicateUnary, Operator: string(models.OpIsNotNull)}, v)
	if ok {
		t.Error("missing header should fail IS_NOT_NULL")
	}
}

func TestExtract_BodyPath(t *testing.T) {
	body := map[string]any{
		"users": []any{
			map[string]any{"id": float64(1), "name": "alice"},
		},
	}
	resp := &NodeResponse{Body: body}

	v, err := Extract(models.Assertion{Subject: models.SubjectBody, ResponseType: models.ResponseFormatJSON, Path: []string{"users", "0", "name"}}, resp)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if v != "alice" {
		t.Errorf("Extract() = %v, want alice", v)
	}
}

func TestExtract_BodyPathUnresolvable(t *testing.T) {
	resp := &NodeResponse{Body: map[string]any{"a": float64(1)}}

	v, err := Extract(models.Assertion{Subject: models.SubjectBody, ResponseType: models.ResponseFormatJSON, Path: []string{"b", "c"}}, resp)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	ok, _ := Evaluate(models.Predicate{Type: models.PredicateBinary, Operator: string(models.OpEqual), Expected: "x"}, v)
	if ok {
		t.Error("unresolvable path should fail EQUAL")
	}
}

func TestExtract_BodyXMLUnsupported(t *testing.T) {
	_, err := Extract(models.Assertion{Subject: models.SubjectBody, ResponseType: models.ResponseFormatXML}, &NodeResponse{})
	if err == nil {
		t.Error("expected error for XML body assertions")
	}
}

func TestEvaluate_EqualNumeric(t *testing.T) {
	ok, msg := Evaluate(models.Predicate{Type: models.PredicateBinary, Operator: string(models.OpEqual), Expected: float64(200)}, 200)
	if !ok {
		t.Errorf("Evaluate() failed: %s", msg)
	}
}

func TestEvaluate_NotEqualFails(t *testing.T) {
	ok, msg := Evaluate(models.Predicate{Type: models.PredicateBinary, Operator: string(models.OpEqual), Expected: float64(2)}, float64(1))
	if ok {
		t.Error("expected EQUAL to fail")
	}
	if msg == "" {
		t.Error("expected a failure message")
	}
}

func TestEvaluate_ContainsRequiresStrings(t *testing.T) {
	ok, _ := Evaluate(models.Predicate{Type: models.PredicateBinary, Operator: string(models.OpContains), Expected: "x"}, 123)
	if ok {
		t.Error("CONTAINS should fail for a non-string subject")
	}
}

func TestEvaluate_IsEmpty(t *testing.T) {
	tests := []struct {
		subject any
		want    bool
	}{
		{"", true},
		{"a", false},
		{[]any{}, true},
		{[]any{1}, false},
		{map[string]any{}, true},
		{map[string]any{"a": 1}, false},
	}
	for _, tt := range tests {
		ok, _ := Evaluate(models.Predicate{Type: models.PredicateUnary, Operator: string(models.OpIsEmpty)}, tt.subject)
		if ok != tt.want {
			t.Errorf("IS_EMPTY(%v) = %v, want %v", tt.subject, ok, tt.want)
		}
	}
}

func TestEvaluate_GreaterThanRequiresNumbers(t *testing.T) {
	ok, _ := Evaluate(models.Predicate{Type: models.PredicateBinary, Operator: string(models.OpGreaterThan), Expected: float64(1)}, "not a number")
	if ok {
		t.Error("GREATER_THAN should fail for a non-numeric subject")
	}
}

func TestEvaluate_IsNotNullFailsOnUndefined(t *testing.T) {
	ok, _ := Evaluate(models.Predicate{Type: models.PredicateUnary, Operator: string(models.OpIsNotNull)}, undefined)
	if ok {
		t.Error("IS_NOT_NULL should fail for undefined")
	}
}
