package models

import (
	"encoding/json"
	"fmt"
)

// SecretRef identifies a secret to resolve at execution time.
type SecretRef struct {
	Provider string  `json:"provider"`
	Ref      string  `json:"ref"`
	Version  *string `json:"version,omitempty"`
	Field    *string `json:"field,omitempty"`
}

// VariableRef identifies a plan-authoring variable. Variables are
// resolved before persistence (CLI-side); the engine never sees one.
type VariableRef struct {
	Key      string  `json:"key"`
	Template *string `json:"template,omitempty"`
}

// StringValue is the sum type Griffin uses everywhere a plan needs a
// string that might be a literal, a secret reference, or a variable
// reference: {$literal} | {$secret} | {$variable}. Exactly one of the
// three fields is set.
type StringValue struct {
	Literal  *string
	Secret   *SecretRef
	Variable *VariableRef
}

// Lit builds a literal StringValue.
func Lit(s string) StringValue {
	return StringValue{Literal: &s}
}

// Sec builds a secret-reference StringValue.
func Sec(ref SecretRef) StringValue {
	return StringValue{Secret: &ref}
}

// IsLiteral reports whether the value is already a plain string.
func (v StringValue) IsLiteral() bool { return v.Literal != nil }

// IsSecret reports whether the value is an unresolved secret reference.
func (v StringValue) IsSecret() bool { return v.Secret != nil }

// IsVariable reports whether the value is an unresolved variable
// reference. The engine aborts the run with a secret-resolution error if
// any variable reference survives to execution.
func (v StringValue) IsVariable() bool { return v.Variable != nil }

// MustLiteral returns the literal string, panicking if the value isn't
// one. Callers must resolve secrets before calling this.
func (v StringValue) MustLiteral() string {
	if v.Literal == nil {
		panic("models: StringValue.MustLiteral called on a non-literal value")
	}
	return *v.Literal
}

type stringValueJSON struct {
	Literal  *string      `json:"$literal,omitempty"`
	Secret   *SecretRef   `json:"$secret,omitempty"`
	Variable *VariableRef `json:"$variable,omitempty"`
}

// UnmarshalJSON decodes exactly one of $literal/$secret/$variable.
func (v *StringValue) UnmarshalJSON(data []byte) error {
	var raw stringValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("models: decoding StringValue: %w", err)
	}

	set := 0
	if raw.Literal != nil {
		set++
	}
	if raw.Secret != nil {
		set++
	}
	if raw.Variable != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("models: StringValue must have exactly one of $literal, $secret, $variable; got %d", set)
	}

	v.Literal = raw.Literal
	v.Secret = raw.Secret
	v.Variable = raw.Variable
	return nil
}

// MarshalJSON encodes whichever of the three variants is set.
func (v StringValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(stringValueJSON{
		Literal:  v.Literal,
		Secret:   v.Secret,
		Variable: v.Variable,
	})
}
