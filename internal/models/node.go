package models

import (
	"encoding/json"
	"fmt"
)

// NodeType discriminates the three node variants a Plan graph may contain.
type NodeType string

const (
	NodeTypeHTTPRequest NodeType = "http_request"
	NodeTypeWait        NodeType = "wait"
	NodeTypeAssertions  NodeType = "assertions"
)

// ResponseFormat is the body encoding an HttpRequest node expects back.
// Only JSON is implemented; XML is schema-reserved and always fails.
type ResponseFormat string

const (
	ResponseFormatJSON ResponseFormat = "JSON"
	ResponseFormatXML  ResponseFormat = "XML"
)

// HTTPMethod enumerates the methods an HttpRequest node may issue.
type HTTPMethod string

const (
	MethodGET     HTTPMethod = "GET"
	MethodPOST    HTTPMethod = "POST"
	MethodPUT     HTTPMethod = "PUT"
	MethodDELETE  HTTPMethod = "DELETE"
	MethodPATCH   HTTPMethod = "PATCH"
	MethodHEAD    HTTPMethod = "HEAD"
	MethodOPTIONS HTTPMethod = "OPTIONS"
	MethodCONNECT HTTPMethod = "CONNECT"
	MethodTRACE   HTTPMethod = "TRACE"
)

// Node is the sealed interface every plan graph vertex satisfies. Type
// switches on Type() are expected to be exhaustive over the three variants.
type Node interface {
	NodeID() string
	Type() NodeType
}

// HTTPRequestNode issues one HTTP request and records its response.
type HTTPRequestNode struct {
	ID             string                `json:"id"`
	Method         HTTPMethod            `json:"method"`
	Base           StringValue           `json:"base"`
	Path           StringValue           `json:"path"`
	Headers        map[string]StringValue `json:"headers,omitempty"`
	Body           any                   `json:"body,omitempty"`
	ResponseFormat ResponseFormat        `json:"response_format"`
}

func (n *HTTPRequestNode) NodeID() string { return n.ID }
func (n *HTTPRequestNode) Type() NodeType { return NodeTypeHTTPRequest }

// WaitNode sleeps for a fixed duration before continuing traversal.
type WaitNode struct {
	ID         string `json:"id"`
	DurationMs int    `json:"duration_ms"`
}

func (n *WaitNode) NodeID() string { return n.ID }
func (n *WaitNode) Type() NodeType { return NodeTypeWait }

// AssertionsNode evaluates a set of assertions over a previously captured
// response.
type AssertionsNode struct {
	ID         string      `json:"id"`
	Assertions []Assertion `json:"assertions"`
}

func (n *AssertionsNode) NodeID() string { return n.ID }
func (n *AssertionsNode) Type() NodeType { return NodeTypeAssertions }

// nodeEnvelope reads the discriminant before deciding which concrete type
// to unmarshal the rest of the payload into.
type nodeEnvelope struct {
	Type NodeType `json:"type"`
}

// UnmarshalNode decodes a single JSON node object into its concrete
// variant. Exported so callers decoding a Plan from a non-standard source
// (e.g. a CLI state file) can reuse it directly.
func UnmarshalNode(raw json.RawMessage) (Node, error) {
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("models: decoding node envelope: %w", err)
	}

	switch env.Type {
	case NodeTypeHTTPRequest:
		var n HTTPRequestNode
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("models: decoding http_request node: %w", err)
		}
		return &n, nil
	case NodeTypeWait:
		var n WaitNode
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("models: decoding wait node: %w", err)
		}
		return &n, nil
	case NodeTypeAssertions:
		var n AssertionsNode
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("models: decoding assertions node: %w", err)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("models: unknown node type %q", env.Type)
	}
}

// marshalNode re-attaches the "type" discriminant, since the concrete
// node structs don't carry it themselves.
func marshalNode(n Node) (json.RawMessage, error) {
	var payload []byte
	var err error

	switch v := n.(type) {
	case *HTTPRequestNode:
		payload, err = json.Marshal(v)
	case *WaitNode:
		payload, err = json.Marshal(v)
	case *AssertionsNode:
		payload, err = json.Marshal(v)
	default:
		return nil, fmt.Errorf("models: unknown node implementation %T", n)
	}
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(n.Type())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON

	return json.Marshal(fields)
}

// planAlias lets Plan's custom (Un)MarshalJSON delegate field-by-field
// decoding without recursing into itself.
type planAlias struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Project     string            `json:"project"`
	Environment string            `json:"environment"`
	Version     string            `json:"version"`
	Frequency   *Frequency        `json:"frequency,omitempty"`
	Locations   []string          `json:"locations,omitempty"`
	Nodes       []json.RawMessage `json:"nodes"`
	Edges       []Edge            `json:"edges"`
}

// UnmarshalJSON decodes a Plan, resolving each node's concrete type from
// its "type" discriminant.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var alias planAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("models: decoding plan: %w", err)
	}

	nodes := make([]Node, 0, len(alias.Nodes))
	for _, raw := range alias.Nodes {
		n, err := UnmarshalNode(raw)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}

	p.ID = alias.ID
	p.Name = alias.Name
	p.Project = alias.Project
	p.Environment = alias.Environment
	p.Version = alias.Version
	p.Frequency = alias.Frequency
	p.Locations = alias.Locations
	p.Nodes = nodes
	p.Edges = alias.Edges
	return nil
}

// MarshalJSON encodes a Plan, re-attaching each node's "type" discriminant.
func (p Plan) MarshalJSON() ([]byte, error) {
	nodes := make([]json.RawMessage, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		raw, err := marshalNode(n)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, raw)
	}

	return json.Marshal(planAlias{
		ID:          p.ID,
		Name:        p.Name,
		Project:     p.Project,
		Environment: p.Environment,
		Version:     p.Version,
		Frequency:   p.Frequency,
		Locations:   p.Locations,
		Nodes:       nodes,
		Edges:       p.Edges,
	})
}
