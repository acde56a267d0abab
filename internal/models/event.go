package models

// EventType enumerates the shapes an execution emits, in the fixed order
// the engine produces them: PLAN_START, then per node NODE_START ->
// (HTTP_REQUEST+HTTP_RESPONSE | WAIT_START | ASSERTION_RESULT*) ->
// NODE_END, then PLAN_END. ERROR may appear at any point on an
// engine-internal failure.
type EventType string

const (
	EventPlanStart      EventType = "PLAN_START"
	EventPlanEnd        EventType = "PLAN_END"
	EventNodeStart      EventType = "NODE_START"
	EventNodeEnd        EventType = "NODE_END"
	EventHTTPRequest    EventType = "HTTP_REQUEST"
	EventHTTPResponse   EventType = "HTTP_RESPONSE"
	EventWaitStart      EventType = "WAIT_START"
	EventAssertionResult EventType = "ASSERTION_RESULT"
	EventError          EventType = "ERROR"
)

// Event is the envelope every execution event carries, plus its
// type-specific payload. Seq is monotonic per ExecutionID starting at 0.
type Event struct {
	EventID        string    `json:"eventId"`
	Seq            int64     `json:"seq"`
	Timestamp      int64     `json:"timestamp"`
	Type           EventType `json:"type"`
	PlanID         string    `json:"planId"`
	ExecutionID    string    `json:"executionId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Payload        any       `json:"payload,omitempty"`
}

// PlanStartPayload is the Payload of a PLAN_START event.
type PlanStartPayload struct {
	Location string `json:"location"`
}

// PlanEndPayload is the Payload of a PLAN_END event.
type PlanEndPayload struct {
	Success         bool     `json:"success"`
	Errors          []string `json:"errors,omitempty"`
	TotalDurationMs int64    `json:"totalDurationMs"`
}

// NodeStartPayload is the Payload of a NODE_START event.
type NodeStartPayload struct {
	NodeID string   `json:"nodeId"`
	Type   NodeType `json:"type"`
}

// NodeEndPayload is the Payload of a NODE_END event.
type NodeEndPayload struct {
	NodeID     string `json:"nodeId"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// HTTPRequestPayload is the Payload of an HTTP_REQUEST event.
type HTTPRequestPayload struct {
	NodeID  string            `json:"nodeId"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// HTTPResponsePayload is the Payload of an HTTP_RESPONSE event.
type HTTPResponsePayload struct {
	NodeID     string `json:"nodeId"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	HasBody    bool   `json:"hasBody"`
	DurationMs int64  `json:"durationMs"`
}

// WaitStartPayload is the Payload of a WAIT_START event.
type WaitStartPayload struct {
	NodeID     string `json:"nodeId"`
	DurationMs int    `json:"durationMs"`
}

// AssertionResultPayload is the Payload of an ASSERTION_RESULT event.
type AssertionResultPayload struct {
	NodeID  string `json:"nodeId"`
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload is the Payload of an ERROR event, raised on
// engine-internal failures (as opposed to per-node TransportErrors).
type ErrorPayload struct {
	ErrorName string `json:"errorName"`
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
	Stack     string `json:"stack,omitempty"`
}
