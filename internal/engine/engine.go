package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/griffin-monitoring/griffin/internal/assertions"
	"github.com/griffin-monitoring/griffin/internal/graph"
	"github.com/griffin-monitoring/griffin/internal/httpclient"
	"github.com/griffin-monitoring/griffin/internal/metrics"
	"github.com/griffin-monitoring/griffin/internal/models"
	"github.com/griffin-monitoring/griffin/internal/secrets"
)

// secretsNodeID names the synthetic node the engine emits NODE_START/
// NODE_END events on while resolving secrets, per the observability
// requirement in the secret resolution prelude.
const secretsNodeID = "__SECRETS__"

// Emitter is the subset of events.Emitter the engine depends on. Defined
// here (rather than imported) so engine has no compile-time dependency on
// the events package's sink implementations.
type Emitter interface {
	Emit(ctx context.Context, event models.Event)
	Flush(ctx context.Context) error
}

// Summary is passed to Input.OnComplete after PLAN_END is emitted.
type Summary struct {
	Status      models.RunStatus
	CompletedAt time.Time
	DurationMs  int64
	Success     bool
	Errors      []string
}

// Input bundles everything one Execute call needs: a plan (with
// variables already resolved, secrets still unresolved), identifying
// metadata, and the engine's collaborators.
type Input struct {
	Plan           *models.Plan
	ExecutionID    string
	OrganizationID string
	Location       string

	HTTPClient httpclient.Client
	Secrets    *secrets.Registry
	Emitter    Emitter

	OnStart    func()
	OnComplete func(Summary)

	Logger *slog.Logger

	// RequestTimeout overrides the per-HttpRequest-node timeout; zero
	// means the client's own default (30s) applies.
	RequestTimeout time.Duration
}

type execution struct {
	in       Input
	logger   *slog.Logger
	seq      int64
	start    time.Time
	nodeIn   map[string]*assertions.NodeResponse
	previous string
}

// Execute traverses in.Plan's graph sequentially, issuing HTTP requests,
// sleeping for Wait nodes, and evaluating Assertions nodes, emitting
// ordered execution events throughout.
func Execute(ctx context.Context, in Input) (*models.ExecutionResult, error) {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ex := &execution{
		in:     in,
		logger: logger,
		start:  time.Now(),
		nodeIn: make(map[string]*assertions.NodeResponse),
	}

	ex.safeCallback(in.OnStart)
	ex.emitPlanStart()

	g, buildErr := graph.Build(in.Plan)
	if buildErr != nil {
		return ex.abort(ctx, &ValidationError{Message: buildErr.Error()})
	}

	resolvedPlan, secretErr := ex.resolveSecrets(ctx, in.Plan)
	if secretErr != nil {
		return ex.abort(ctx, secretErr)
	}

	resolvedByID := make(map[string]models.Node, len(resolvedPlan.Nodes))
	for _, n := range resolvedPlan.Nodes {
		resolvedByID[n.NodeID()] = n
	}

	var results []models.NodeResult
	for _, nodeID := range g.Walk() {
		if ctx.Err() != nil {
			results = append(results, models.NodeResult{NodeID: nodeID, Success: false, Error: "cancelled"})
			break
		}

		node := resolvedByID[nodeID]
		result := ex.executeNode(ctx, node)
		results = append(results, result)
		ex.previous = nodeID
	}

	return ex.finish(ctx, results)
}

func (ex *execution) resolveSecrets(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	reg := ex.in.Secrets
	if reg == nil {
		var err error
		reg, err = secrets.NewRegistry(ctx, map[string]secrets.Resolver{})
		if err != nil {
			return nil, err
		}
	}

	// The __SECRETS__ NODE_START/NODE_END pair exists purely for
	// observability into secret resolution (spec: "emit NODE_START/
	// NODE_END on a synthetic __SECRETS__ node for observability"); a
	// plan with no secret references has nothing to observe there, and
	// S1's event sequence (PLAN_START, NODE_START, ..., PLAN_END) has no
	// room for it. Only emit the pair when the plan actually has a
	// {$secret} leaf to resolve.
	if !planHasSecrets(plan) {
		return reg.ResolvePlan(ctx, plan)
	}

	ex.emit(models.EventNodeStart, models.NodeStartPayload{NodeID: secretsNodeID})

	resolved, err := reg.ResolvePlan(ctx, plan)
	if err != nil {
		ex.emit(models.EventNodeEnd, models.NodeEndPayload{NodeID: secretsNodeID, Success: false, Error: err.Error()})
		serr := &SecretResolutionError{Cause: err}
		var rerr *secrets.ResolutionError
		var uerr *secrets.UnknownProviderError
		if errors.As(err, &rerr) {
			serr.Provider, serr.Ref = rerr.Provider, rerr.Ref
		} else if errors.As(err, &uerr) {
			serr.Provider = uerr.Provider
		}
		return nil, serr
	}

	ex.emit(models.EventNodeEnd, models.NodeEndPayload{NodeID: secretsNodeID, Success: true})
	return resolved, nil
}

// planHasSecrets reports whether any StringValue leaf in plan's headers,
// body, base, or path is an unresolved {$secret} reference.
func planHasSecrets(plan *models.Plan) bool {
	for _, n := range plan.Nodes {
		req, ok := n.(*models.HTTPRequestNode)
		if !ok {
			continue
		}
		if req.Base.IsSecret() || req.Path.IsSecret() {
			return true
		}
		for _, h := range req.Headers {
			if h.IsSecret() {
				return true
			}
		}
		if anyHasSecret(req.Body) {
			return true
		}
	}
	return false
}

// anyHasSecret walks a JSON-decoded body (or a programmatically built one
// using models.StringValue directly) looking for a {$secret} leaf.
func anyHasSecret(v any) bool {
	switch t := v.(type) {
	case models.StringValue:
		return t.IsSecret()
	case map[string]any:
		if len(t) == 1 {
			if raw, ok := t["$secret"]; ok && raw != nil {
				return true
			}
		}
		for _, vv := range t {
			if anyHasSecret(vv) {
				return true
			}
		}
		return false
	case []any:
		for _, vv := range t {
			if anyHasSecret(vv) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (ex *execution) executeNode(ctx context.Context, node models.Node) models.NodeResult {
	ex.emit(models.EventNodeStart, models.NodeStartPayload{NodeID: node.NodeID(), Type: node.Type()})

	started := time.Now()
	var result models.NodeResult

	switch n := node.(type) {
	case *models.HTTPRequestNode:
		result = ex.executeHTTPRequest(ctx, n)
	case *models.WaitNode:
		result = ex.executeWait(ctx, n)
	case *models.AssertionsNode:
		result = ex.executeAssertions(ctx, n)
	default:
		result = models.NodeResult{NodeID: node.NodeID(), Success: false, Error: fmt.Sprintf("unknown node type %T", node)}
	}

	if result.DurationMs == 0 {
		result.DurationMs = time.Since(started).Milliseconds()
	}

	metrics.EngineNodeResults.WithLabelValues(string(node.Type()), nodeOutcome(node, result)).Inc()

	ex.emit(models.EventNodeEnd, models.NodeEndPayload{
		NodeID:     result.NodeID,
		Success:    result.Success,
		Error:      result.Error,
		DurationMs: result.DurationMs,
	})

	return result
}

// nodeOutcome classifies a node result for the node-results counter. It
// distinguishes transport failures (no response at all) from assertion and
// format failures so dashboards can separate "target is down" from
// "response didn't match expectations".
func nodeOutcome(node models.Node, result models.NodeResult) string {
	if result.Success {
		return "success"
	}
	switch node.(type) {
	case *models.HTTPRequestNode:
		if result.Error == "Unsupported response format" {
			return "unsupported_format"
		}
		if result.Status == nil {
			return "transport_error"
		}
		return "failure"
	case *models.AssertionsNode:
		return "assertion_failure"
	default:
		return "failure"
	}
}

func (ex *execution) executeHTTPRequest(ctx context.Context, n *models.HTTPRequestNode) models.NodeResult {
	if n.ResponseFormat != models.ResponseFormatJSON {
		return models.NodeResult{NodeID: n.ID, Success: false, Error: "Unsupported response format"}
	}

	url := n.Base.MustLiteral() + n.Path.MustLiteral()
	headers := make(map[string]string, len(n.Headers))
	for k, v := range n.Headers {
		headers[k] = v.MustLiteral()
	}

	ex.emit(models.EventHTTPRequest, models.HTTPRequestPayload{
		NodeID:  n.ID,
		Method:  string(n.Method),
		URL:     url,
		Headers: headers,
	})

	timeout := ex.in.RequestTimeout
	started := time.Now()
	resp, err := ex.in.HTTPClient.Do(ctx, httpclient.Request{
		Method:  string(n.Method),
		URL:     url,
		Headers: headers,
		Body:    n.Body,
		Timeout: timeout,
	})
	duration := time.Since(started).Milliseconds()

	if err != nil {
		ex.emit(models.EventHTTPResponse, models.HTTPResponsePayload{
			NodeID:     n.ID,
			Status:     0,
			StatusText: "Error",
			HasBody:    false,
			DurationMs: duration,
		})
		transportErr := &TransportError{NodeID: n.ID, Cause: err}
		return models.NodeResult{NodeID: n.ID, Success: false, Error: transportErr.Error(), DurationMs: duration}
	}

	ex.emit(models.EventHTTPResponse, models.HTTPResponsePayload{
		NodeID:     n.ID,
		Status:     resp.Status,
		StatusText: resp.StatusText,
		HasBody:    resp.Data != nil,
		DurationMs: duration,
	})

	ex.nodeIn[n.ID] = &assertions.NodeResponse{
		Body:       resp.Data,
		Headers:    resp.Headers,
		Status:     resp.Status,
		DurationMs: duration,
	}

	status := resp.Status
	return models.NodeResult{
		NodeID:     n.ID,
		Success:    true,
		Response:   resp.Data,
		Headers:    resp.Headers,
		Status:     &status,
		DurationMs: duration,
	}
}

func (ex *execution) executeWait(ctx context.Context, n *models.WaitNode) models.NodeResult {
	ex.emit(models.EventWaitStart, models.WaitStartPayload{NodeID: n.ID, DurationMs: n.DurationMs})

	started := time.Now()
	select {
	case <-time.After(time.Duration(n.DurationMs) * time.Millisecond):
	case <-ctx.Done():
		return models.NodeResult{NodeID: n.ID, Success: false, Error: "cancelled", DurationMs: time.Since(started).Milliseconds()}
	}

	return models.NodeResult{NodeID: n.ID, Success: true, DurationMs: time.Since(started).Milliseconds()}
}

func (ex *execution) executeAssertions(_ context.Context, n *models.AssertionsNode) models.NodeResult {
	resp := ex.nodeIn[ex.previous]

	var failures []string
	for i, a := range n.Assertions {
		subject, err := assertions.Extract(a, resp)
		var ok bool
		var msg string
		if err != nil {
			msg = err.Error()
		} else {
			ok, msg = assertions.Evaluate(a.Predicate, subject)
		}

		ex.emit(models.EventAssertionResult, models.AssertionResultPayload{
			NodeID:  n.ID,
			Index:   i,
			Success: ok,
			Message: msg,
		})

		if !ok {
			failures = append(failures, fmt.Sprintf("%s: %s", n.ID, msg))
		}
	}

	if len(failures) > 0 {
		joined := failures[0]
		for _, f := range failures[1:] {
			joined += "; " + f
		}
		return models.NodeResult{NodeID: n.ID, Success: false, Error: joined}
	}
	return models.NodeResult{NodeID: n.ID, Success: true}
}

func (ex *execution) abort(ctx context.Context, cause error) (*models.ExecutionResult, error) {
	ex.emit(models.EventError, ErrorPayloadFor(cause))
	result := &models.ExecutionResult{
		Success:         false,
		Errors:          []string{cause.Error()},
		TotalDurationMs: time.Since(ex.start).Milliseconds(),
	}
	ex.emitPlanEnd(result)
	ex.safeCallback(func() {
		ex.callOnComplete(models.RunStatusFailed, result)
	})
	ex.flush(ctx)
	return result, nil
}

func (ex *execution) finish(ctx context.Context, results []models.NodeResult) (*models.ExecutionResult, error) {
	success := true
	var errs []string
	for _, r := range results {
		if !r.Success {
			success = false
			if r.Error != "" {
				errs = append(errs, r.Error)
			}
		}
	}

	result := &models.ExecutionResult{
		Success:         success,
		Results:         results,
		Errors:          errs,
		TotalDurationMs: time.Since(ex.start).Milliseconds(),
	}

	ex.emitPlanEnd(result)

	status := models.RunStatusCompleted
	if !success {
		status = models.RunStatusFailed
	}
	ex.safeCallback(func() {
		ex.callOnComplete(status, result)
	})

	ex.flush(ctx)
	return result, nil
}

func (ex *execution) callOnComplete(status models.RunStatus, result *models.ExecutionResult) {
	if ex.in.OnComplete == nil {
		return
	}
	ex.in.OnComplete(Summary{
		Status:      status,
		CompletedAt: time.Now(),
		DurationMs:  result.TotalDurationMs,
		Success:     result.Success,
		Errors:      result.Errors,
	})
}

func (ex *execution) emitPlanStart() {
	ex.emit(models.EventPlanStart, models.PlanStartPayload{Location: ex.in.Location})
}

func (ex *execution) emitPlanEnd(result *models.ExecutionResult) {
	ex.emit(models.EventPlanEnd, models.PlanEndPayload{
		Success:         result.Success,
		Errors:          result.Errors,
		TotalDurationMs: result.TotalDurationMs,
	})
}

func (ex *execution) emit(t models.EventType, payload any) {
	if ex.in.Emitter == nil {
		ex.seq++
		return
	}
	event := models.Event{
		EventID:        ulid.Make().String(),
		Seq:            ex.seq,
		Timestamp:      time.Now().UnixMilli(),
		Type:           t,
		PlanID:         ex.in.Plan.ID,
		ExecutionID:    ex.in.ExecutionID,
		OrganizationID: ex.in.OrganizationID,
		Payload:        payload,
	}
	ex.seq++
	ex.in.Emitter.Emit(context.Background(), event)
}

func (ex *execution) flush(ctx context.Context) {
	if ex.in.Emitter == nil {
		return
	}
	if err := ex.in.Emitter.Flush(ctx); err != nil {
		ex.logger.Warn("engine: flushing event sink failed", "err", err)
	}
}

func (ex *execution) safeCallback(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			ex.logger.Error("engine: callback panicked", "recover", r)
		}
	}()
	fn()
}

// ErrorPayloadFor builds the ERROR event payload for an engine-internal
// failure.
func ErrorPayloadFor(cause error) models.ErrorPayload {
	return models.ErrorPayload{
		ErrorName: fmt.Sprintf("%T", cause),
		Message:   cause.Error(),
	}
}
