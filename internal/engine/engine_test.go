package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/griffin-monitoring/griffin/internal/events"
	"github.com/griffin-monitoring/griffin/internal/events/adapters"
	"github.com/griffin-monitoring/griffin/internal/httpclient"
	"github.com/griffin-monitoring/griffin/internal/models"
	"github.com/griffin-monitoring/griffin/internal/secrets"
)

func plan(nodes []models.Node, edges []models.Edge) *models.Plan {
	return &models.Plan{ID: "plan-1", Name: "test", Nodes: nodes, Edges: edges}
}

func httpNode(id string, method models.HTTPMethod, base, path string) *models.HTTPRequestNode {
	return &models.HTTPRequestNode{
		ID:             id,
		Method:         method,
		Base:           models.Lit(base),
		Path:           models.Lit(path),
		ResponseFormat: models.ResponseFormatJSON,
	}
}

func collectEvents(t *testing.T, in Input) ([]models.Event, *models.ExecutionResult) {
	t.Helper()
	mem := adapters.NewMemory()
	sink := events.NewDurable(events.DurableConfig{BatchSize: 1, FlushInterval: time.Hour}, mem, slog.New(slog.DiscardHandler))
	in.Emitter = sink

	result, err := Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return mem.Events(), result
}

func eventTypes(evs []models.Event) []models.EventType {
	types := make([]models.EventType, len(evs))
	for i, e := range evs {
		types[i] = e.Type
	}
	return types
}

// S1: a single HttpRequest node, one successful GET.
func TestExecute_SimpleGet(t *testing.T) {
	stub := httpclient.NewStub()
	stub.On(httpclient.ExactURL("GET", "http://api.example.com/health"), httpclient.Response{
		Status: 200, StatusText: "OK", Data: map[string]any{"ok": true},
	})

	node := httpNode("n1", models.MethodGET, "http://api.example.com", "/health")
	p := plan([]models.Node{node}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: models.EndSentinel},
	})

	evs, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-1",
		Location:    "local",
		HTTPClient:  stub,
	})

	if !result.Success {
		t.Fatalf("result.Success = false, errors = %v", result.Errors)
	}
	if len(result.Results) != 1 || !result.Results[0].Success {
		t.Fatalf("results = %+v", result.Results)
	}
	if result.Results[0].Status == nil || *result.Results[0].Status != 200 {
		t.Errorf("status = %v, want 200", result.Results[0].Status)
	}

	types := eventTypes(evs)
	want := []models.EventType{
		models.EventPlanStart,
		models.EventNodeStart,
		models.EventHTTPRequest,
		models.EventHTTPResponse,
		models.EventNodeEnd,
		models.EventPlanEnd,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

// S2: a sequence of two HttpRequest nodes.
func TestExecute_Sequence(t *testing.T) {
	stub := httpclient.NewStub()
	stub.On(httpclient.ExactURL("GET", "http://api.example.com/a"), httpclient.Response{Status: 200, Data: "a"})
	stub.On(httpclient.ExactURL("GET", "http://api.example.com/b"), httpclient.Response{Status: 200, Data: "b"})

	n1 := httpNode("n1", models.MethodGET, "http://api.example.com", "/a")
	n2 := httpNode("n2", models.MethodGET, "http://api.example.com", "/b")
	p := plan([]models.Node{n1, n2}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: "n2"},
		{From: "n2", To: models.EndSentinel},
	})

	_, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-2",
		Location:    "local",
		HTTPClient:  stub,
	})

	if !result.Success {
		t.Fatalf("result.Success = false, errors = %v", result.Errors)
	}
	if len(result.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(result.Results))
	}
	sum := result.Results[0].DurationMs + result.Results[1].DurationMs
	if result.TotalDurationMs < sum {
		t.Errorf("TotalDurationMs = %d, want >= sum of node durations (%d)", result.TotalDurationMs, sum)
	}
}

// S3: a Wait node delays traversal by at least its configured duration.
func TestExecute_Wait(t *testing.T) {
	waitNode := &models.WaitNode{ID: "w1", DurationMs: 20}
	p := plan([]models.Node{waitNode}, []models.Edge{
		{From: models.StartSentinel, To: "w1"},
		{From: "w1", To: models.EndSentinel},
	})

	_, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-3",
		Location:    "local",
		HTTPClient:  httpclient.NewStub(),
	})

	if !result.Success {
		t.Fatalf("result.Success = false, errors = %v", result.Errors)
	}
	if result.Results[0].DurationMs < 20 {
		t.Errorf("wait node duration = %d, want >= 20", result.Results[0].DurationMs)
	}
}

// S4: an Assertion node fails when the prior response doesn't match.
func TestExecute_AssertionFailure(t *testing.T) {
	stub := httpclient.NewStub()
	stub.On(httpclient.ExactURL("GET", "http://api.example.com/v"), httpclient.Response{
		Status: 200, Data: map[string]any{"v": float64(1)},
	})

	n1 := httpNode("n1", models.MethodGET, "http://api.example.com", "/v")
	a1 := &models.AssertionsNode{
		ID: "a1",
		Assertions: []models.Assertion{
			{
				Subject: models.SubjectBody,
				Path:    []string{"v"},
				Predicate: models.Predicate{
					Type:     models.PredicateBinary,
					Operator: string(models.OpEqual),
					Expected: float64(2),
				},
			},
		},
	}
	p := plan([]models.Node{n1, a1}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: "a1"},
		{From: "a1", To: models.EndSentinel},
	})

	evs, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-4",
		Location:    "local",
		HTTPClient:  stub,
	})

	if result.Success {
		t.Fatal("result.Success = true, want false")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", result.Errors)
	}

	found := false
	for _, e := range evs {
		if e.Type == models.EventAssertionResult {
			payload := e.Payload.(models.AssertionResultPayload)
			if payload.Success {
				t.Error("assertion result reported success, want failure")
			}
			found = true
		}
	}
	if !found {
		t.Error("no ASSERTION_RESULT event emitted")
	}
}

// S5: a missing stub surfaces as a per-node transport failure, not a
// fatal engine error.
func TestExecute_MissingStub(t *testing.T) {
	stub := httpclient.NewStub()
	node := httpNode("n1", models.MethodGET, "http://api.example.com", "/missing")
	p := plan([]models.Node{node}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: models.EndSentinel},
	})

	evs, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-5",
		Location:    "local",
		HTTPClient:  stub,
	})

	if result.Success {
		t.Fatal("result.Success = true, want false")
	}
	if len(result.Results) != 1 || result.Results[0].Success {
		t.Fatalf("results = %+v, want one failed node", result.Results)
	}

	sawErrorResponse := false
	for _, e := range evs {
		if e.Type == models.EventHTTPResponse {
			payload := e.Payload.(models.HTTPResponsePayload)
			if payload.Status == 0 && payload.StatusText == "Error" {
				sawErrorResponse = true
			}
		}
	}
	if !sawErrorResponse {
		t.Error("expected an HTTP_RESPONSE event recording the transport failure")
	}

	// The run is not fatally aborted: PLAN_END still fires.
	if evs[len(evs)-1].Type != models.EventPlanEnd {
		t.Errorf("last event = %s, want PLAN_END", evs[len(evs)-1].Type)
	}
}

// An unsupported response format fails the node without aborting the run.
func TestExecute_UnsupportedResponseFormat(t *testing.T) {
	node := httpNode("n1", models.MethodGET, "http://api.example.com", "/x")
	node.ResponseFormat = models.ResponseFormatXML
	p := plan([]models.Node{node}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: models.EndSentinel},
	})

	_, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-6",
		Location:    "local",
		HTTPClient:  httpclient.NewStub(),
	})

	if result.Success {
		t.Fatal("result.Success = true, want false")
	}
	if result.Results[0].Error != "Unsupported response format" {
		t.Errorf("error = %q, want %q", result.Results[0].Error, "Unsupported response format")
	}
}

// A plan with a {$secret} header leaf emits the __SECRETS__ NODE_START/
// NODE_END pair ahead of the rest of the traversal.
func TestExecute_SecretResolution_EmitsSecretsNodeEvents(t *testing.T) {
	stub := httpclient.NewStub()
	stub.On(httpclient.ExactURL("GET", "http://api.example.com/health"), httpclient.Response{
		Status: 200, StatusText: "OK", Data: map[string]any{"ok": true},
	})

	node := httpNode("n1", models.MethodGET, "http://api.example.com", "/health")
	node.Headers = map[string]models.StringValue{
		"Authorization": models.Sec(models.SecretRef{Provider: "env", Ref: "GRIFFIN_TEST_SECRET_TOKEN"}),
	}
	p := plan([]models.Node{node}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: models.EndSentinel},
	})

	t.Setenv("GRIFFIN_TEST_SECRET_TOKEN", "abc123")
	reg, err := secrets.NewRegistry(context.Background(), map[string]secrets.Resolver{
		"env": secrets.NewEnvResolver(),
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	evs, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-secrets-ok",
		Location:    "local",
		HTTPClient:  stub,
		Secrets:     reg,
	})

	if !result.Success {
		t.Fatalf("result.Success = false, errors = %v", result.Errors)
	}

	types := eventTypes(evs)
	want := []models.EventType{
		models.EventPlanStart,
		models.EventNodeStart, models.EventNodeEnd, // __SECRETS__
		models.EventNodeStart,
		models.EventHTTPRequest,
		models.EventHTTPResponse,
		models.EventNodeEnd,
		models.EventPlanEnd,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

// An unknown secret provider fails the run before any node executes,
// still emitting the __SECRETS__ NODE_START/NODE_END pair (the latter
// with Success=false) for observability.
func TestExecute_SecretResolution_UnknownProviderAbortsRun(t *testing.T) {
	node := httpNode("n1", models.MethodGET, "http://api.example.com", "/health")
	node.Headers = map[string]models.StringValue{
		"Authorization": models.Sec(models.SecretRef{Provider: "bogus", Ref: "x"}),
	}
	p := plan([]models.Node{node}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: models.EndSentinel},
	})

	reg, err := secrets.NewRegistry(context.Background(), map[string]secrets.Resolver{})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	evs, result := collectEvents(t, Input{
		Plan:        p,
		ExecutionID: "exec-secrets-fail",
		Location:    "local",
		HTTPClient:  httpclient.NewStub(),
		Secrets:     reg,
	})

	if result.Success {
		t.Fatal("result.Success = true, want false")
	}
	if len(result.Results) != 0 {
		t.Errorf("results = %+v, want none (no node should run)", result.Results)
	}

	types := eventTypes(evs)
	want := []models.EventType{
		models.EventPlanStart,
		models.EventNodeStart, models.EventNodeEnd, // __SECRETS__, failed
		models.EventError,
		models.EventPlanEnd,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestExecute_OnStartAndOnCompleteAreCalled(t *testing.T) {
	node := httpNode("n1", models.MethodGET, "http://api.example.com", "/ok")
	p := plan([]models.Node{node}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: models.EndSentinel},
	})
	stub := httpclient.NewStub()
	stub.On(httpclient.ExactURL("GET", "http://api.example.com/ok"), httpclient.Response{Status: 200})

	started := false
	var completed *Summary
	_, err := Execute(context.Background(), Input{
		Plan:        p,
		ExecutionID: "exec-7",
		Location:    "local",
		HTTPClient:  stub,
		OnStart:     func() { started = true },
		OnComplete:  func(s Summary) { completed = &s },
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !started {
		t.Error("OnStart was not called")
	}
	if completed == nil || completed.Status != models.RunStatusCompleted {
		t.Errorf("completed summary = %+v, want status COMPLETED", completed)
	}
}

func TestExecute_OnStartPanicDoesNotFailRun(t *testing.T) {
	node := httpNode("n1", models.MethodGET, "http://api.example.com", "/ok")
	p := plan([]models.Node{node}, []models.Edge{
		{From: models.StartSentinel, To: "n1"},
		{From: "n1", To: models.EndSentinel},
	})
	stub := httpclient.NewStub()
	stub.On(httpclient.ExactURL("GET", "http://api.example.com/ok"), httpclient.Response{Status: 200})

	result, err := Execute(context.Background(), Input{
		Plan:        p,
		ExecutionID: "exec-8",
		Location:    "local",
		HTTPClient:  stub,
		OnStart:     func() { panic("boom") },
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Errorf("result.Success = false, a panicking OnStart must not affect the run's outcome")
	}
}
