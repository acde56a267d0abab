package models

// AssertSubject is what part of a captured response an Assertion reads.
type AssertSubject string

const (
	SubjectStatus  AssertSubject = "status"
	SubjectLatency AssertSubject = "latency"
	SubjectHeaders AssertSubject = "headers"
	SubjectBody    AssertSubject = "body"
)

// PredicateType discriminates a unary predicate (no operand) from a
// binary one (compared against Expected).
type PredicateType string

const (
	PredicateUnary  PredicateType = "unary"
	PredicateBinary PredicateType = "binary"
)

// UnaryOperator enumerates predicates that need no comparison value.
type UnaryOperator string

const (
	OpIsNull     UnaryOperator = "IS_NULL"
	OpIsNotNull  UnaryOperator = "IS_NOT_NULL"
	OpIsTrue     UnaryOperator = "IS_TRUE"
	OpIsFalse    UnaryOperator = "IS_FALSE"
	OpIsEmpty    UnaryOperator = "IS_EMPTY"
	OpIsNotEmpty UnaryOperator = "IS_NOT_EMPTY"
)

// BinaryOperator enumerates predicates that compare the subject against
// an expected value.
type BinaryOperator string

const (
	OpEqual              BinaryOperator = "EQUAL"
	OpNotEqual           BinaryOperator = "NOT_EQUAL"
	OpGreaterThan        BinaryOperator = "GREATER_THAN"
	OpLessThan           BinaryOperator = "LESS_THAN"
	OpGreaterThanOrEqual BinaryOperator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    BinaryOperator = "LESS_THAN_OR_EQUAL"
	OpContains           BinaryOperator = "CONTAINS"
	OpNotContains        BinaryOperator = "NOT_CONTAINS"
	OpStartsWith         BinaryOperator = "STARTS_WITH"
	OpNotStartsWith      BinaryOperator = "NOT_STARTS_WITH"
	OpEndsWith           BinaryOperator = "ENDS_WITH"
	OpNotEndsWith        BinaryOperator = "NOT_ENDS_WITH"
)

// Predicate is either a unary check or a binary comparison against
// Expected. Operator holds whichever operator string applies to Type;
// it is not itself typed as UnaryOperator|BinaryOperator so a single
// field can hold either.
type Predicate struct {
	Type     PredicateType `json:"type"`
	Operator string        `json:"operator"`
	Expected any           `json:"expected,omitempty"`
}

// Assertion is discriminated on Subject. HeaderName applies only to
// SubjectHeaders; ResponseType and Path apply only to SubjectBody.
type Assertion struct {
	Subject      AssertSubject  `json:"subject"`
	HeaderName   string         `json:"headerName,omitempty"`
	ResponseType ResponseFormat `json:"responseType,omitempty"`
	Path         []string       `json:"path,omitempty"`
	Predicate    Predicate      `json:"predicate"`
}
