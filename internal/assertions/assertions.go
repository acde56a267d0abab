// Package assertions extracts subject values from a captured node
// response and evaluates predicates over them.
package assertions

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// undefined is the sentinel subject value for a missing header or an
// unresolvable body path. It fails every binary predicate and
// IS_NOT_NULL, matching the "unresolvable paths yield undefined" rule.
type undefinedType struct{}

var undefined = undefinedType{}

// NodeResponse is the shape the engine's response table stores per node:
// enough to extract every assertion subject.
type NodeResponse struct {
	Body       any
	Headers    map[string]string
	Status     int
	DurationMs int64
}

// Extract returns the subject value an Assertion reads from resp.
func Extract(a models.Assertion, resp *NodeResponse) (any, error) {
	if resp == nil {
		return undefined, nil
	}

	switch a.Subject {
	case models.SubjectStatus:
		return resp.Status, nil
	case models.SubjectLatency:
		return resp.DurationMs, nil
	case models.SubjectHeaders:
		return extractHeader(resp.Headers, a.HeaderName), nil
	case models.SubjectBody:
		if a.ResponseType == models.ResponseFormatXML {
			return nil, fmt.Errorf("XML assertions are not supported yet")
		}
		return extractBodyPath(resp.Body, a.Path), nil
	default:
		return nil, fmt.Errorf("assertions: unknown subject %q", a.Subject)
	}
}

func extractHeader(headers map[string]string, name string) any {
	lowerName := strings.ToLower(name)
	for k, v := range headers {
		if strings.ToLower(k) == lowerName {
			return v
		}
	}
	return undefined
}

// extractBodyPath navigates path left-to-right: a numeric segment indexes
// an array, any other segment keys a map. An unresolvable path at any
// point yields undefined.
func extractBodyPath(body any, path []string) any {
	current := body
	for _, segment := range path {
		if current == nil {
			return undefined
		}

		if idx, err := strconv.Atoi(segment); err == nil {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return undefined
			}
			current = arr[idx]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return undefined
		}
		v, ok := obj[segment]
		if !ok {
			return undefined
		}
		current = v
	}
	return current
}

// Evaluate runs predicate p against subject and returns (success, message).
// message is non-empty iff success is false.
func Evaluate(p models.Predicate, subject any) (bool, string) {
	switch p.Type {
	case models.PredicateUnary:
		return evaluateUnary(models.UnaryOperator(p.Operator), subject)
	case models.PredicateBinary:
		return evaluateBinary(models.BinaryOperator(p.Operator), subject, p.Expected)
	default:
		return false, fmt.Sprintf("unknown predicate type %q", p.Type)
	}
}

func evaluateUnary(op models.UnaryOperator, subject any) (bool, string) {
	switch op {
	case models.OpIsNull:
		ok := isNull(subject)
		return ok, failMsg(ok, "expected value to be null")
	case models.OpIsNotNull:
		ok := !isNull(subject)
		return ok, failMsg(ok, "expected value to not be null")
	case models.OpIsTrue:
		b, isBool := subject.(bool)
		ok := isBool && b
		return ok, failMsg(ok, "expected value to be true")
	case models.OpIsFalse:
		b, isBool := subject.(bool)
		ok := isBool && !b
		return ok, failMsg(ok, "expected value to be false")
	case models.OpIsEmpty:
		ok := isEmpty(subject)
		return ok, failMsg(ok, "expected value to be empty")
	case models.OpIsNotEmpty:
		ok := !isEmpty(subject)
		return ok, failMsg(ok, "expected value to not be empty")
	default:
		return false, fmt.Sprintf("unknown unary operator %q", op)
	}
}

func evaluateBinary(op models.BinaryOperator, subject, expected any) (bool, string) {
	switch op {
	case models.OpEqual:
		ok := deepEqual(subject, expected)
		return ok, failMsg(ok, fmt.Sprintf("expected value to equal %v, got %v", expected, subject))
	case models.OpNotEqual:
		_, isUndefined := subject.(undefinedType)
		ok := !isUndefined && !deepEqual(subject, expected)
		return ok, failMsg(ok, fmt.Sprintf("expected value to not equal %v, got %v", expected, subject))
	case models.OpGreaterThan, models.OpLessThan, models.OpGreaterThanOrEqual, models.OpLessThanOrEqual:
		return evaluateNumericComparison(op, subject, expected)
	case models.OpContains, models.OpNotContains, models.OpStartsWith, models.OpNotStartsWith, models.OpEndsWith, models.OpNotEndsWith:
		return evaluateStringComparison(op, subject, expected)
	default:
		return false, fmt.Sprintf("unknown binary operator %q", op)
	}
}

func evaluateNumericComparison(op models.BinaryOperator, subject, expected any) (bool, string) {
	s, ok := asFloat(subject)
	if !ok {
		return false, fmt.Sprintf("expected a numeric value, got %v", subject)
	}
	e, ok := asFloat(expected)
	if !ok {
		return false, fmt.Sprintf("expected comparison value to be numeric, got %v", expected)
	}

	var result bool
	switch op {
	case models.OpGreaterThan:
		result = s > e
	case models.OpLessThan:
		result = s < e
	case models.OpGreaterThanOrEqual:
		result = s >= e
	case models.OpLessThanOrEqual:
		result = s <= e
	}
	return result, failMsg(result, fmt.Sprintf("expected %v %s %v", s, op, e))
}

func evaluateStringComparison(op models.BinaryOperator, subject, expected any) (bool, string) {
	s, ok := subject.(string)
	if !ok {
		return false, fmt.Sprintf("expected a string value, got %v", subject)
	}
	e, ok := expected.(string)
	if !ok {
		return false, fmt.Sprintf("expected comparison value to be a string, got %v", expected)
	}

	var result bool
	switch op {
	case models.OpContains:
		result = strings.Contains(s, e)
	case models.OpNotContains:
		result = !strings.Contains(s, e)
	case models.OpStartsWith:
		result = strings.HasPrefix(s, e)
	case models.OpNotStartsWith:
		result = !strings.HasPrefix(s, e)
	case models.OpEndsWith:
		result = strings.HasSuffix(s, e)
	case models.OpNotEndsWith:
		result = !strings.HasSuffix(s, e)
	}
	return result, failMsg(result, fmt.Sprintf("expected %q %s %q", s, op, e))
}

func isNull(v any) bool {
	return v == nil || v == undefined
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func deepEqual(a, b any) bool {
	if _, ok := a.(undefinedType); ok {
		return false
	}
	return reflect.DeepEqual(normalizeNumber(a), normalizeNumber(b))
}

// normalizeNumber widens int, int64 and float32 to float64 so that e.g. an
// int Status and a json.Number-free float64 Expected compare equal.
func normalizeNumber(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return t
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func failMsg(ok bool, msg string) string {
	if ok {
		return ""
	}
	return msg
}
