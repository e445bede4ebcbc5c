package ptt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/nodetalk/internal/gateway"
	"github.com/flemzord/nodetalk/internal/history"
	"github.com/flemzord/nodetalk/internal/metrics"
	"github.com/flemzord/nodetalk/internal/telemetry"
)

// Caller sends one gateway request. *gateway.Client implements it.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Recorder persists completed invocations. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, r history.Record) error
}

// InvokeOptions are per-call settings supplied by a front end.
type InvokeOptions struct {
	// TimeoutMs is forwarded to the gateway as the node invoke budget.
	// Nil or negative leaves the field out so the gateway default applies.
	TimeoutMs *int

	// Surface names the originating front end, for history and logs.
	Surface string
}

// InvocationRequest is the node.invoke parameter object.
type InvocationRequest struct {
	NodeID         string         `json:"nodeId"`
	Command        string         `json:"command"`
	Params         map[string]any `json:"params"`
	IdempotencyKey string         `json:"idempotencyKey"`
	TimeoutMs      *int           `json:"timeoutMs,omitempty"`
}

// InvocationResult is the decoded node.invoke response. Payload always
// holds a JSON object, exactly as sent by the node.
type InvocationResult struct {
	OK      bool            `json:"ok"`
	NodeID  string          `json:"nodeId"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// Fields decodes the payload into a map.
func (r InvocationResult) Fields() map[string]any {
	fields := map[string]any{}
	_ = json.Unmarshal(r.Payload, &fields)
	return fields
}

// Config configures a Dispatcher.
type Config struct {
	// Caller reaches the gateway. Required.
	Caller Caller

	// NewKey mints idempotency keys. Defaults to gateway.RandomIdempotencyKey.
	NewKey func() string

	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	Recorder Recorder
}

// Dispatcher performs push-to-talk invocations. Both the chat handler and
// the CLI go through Dispatch, so idempotency and timeout handling live in
// one place. It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	caller   Caller
	newKey   func() string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	recorder Recorder
}

// NewDispatcher validates cfg and returns a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Caller == nil {
		return nil, ErrNoCaller
	}
	d := &Dispatcher{
		caller:   cfg.Caller,
		newKey:   cfg.NewKey,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		recorder: cfg.Recorder,
	}
	if d.newKey == nil {
		d.newKey = gateway.RandomIdempotencyKey
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = telemetry.Tracer(nil)
	}
	return d, nil
}

// Dispatch invokes action on nodeID with a freshly minted idempotency key
// and waits for the single response. It never retries.
//
// A gateway-level failure is returned as an error; a node that answers
// with ok=false yields a result with OK unset and a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, nodeID string, opts InvokeOptions) (InvocationResult, error) {
	req := InvocationRequest{
		NodeID:         nodeID,
		Command:        action.RemoteCommand(),
		Params:         map[string]any{},
		IdempotencyKey: d.newKey(),
	}
	if opts.TimeoutMs != nil && *opts.TimeoutMs >= 0 {
		timeout := *opts.TimeoutMs
		req.TimeoutMs = &timeout
	}

	ctx, span := d.tracer.Start(ctx, "ptt.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ptt.action", action.Name()),
			attribute.String("ptt.command", req.Command),
			attribute.String("node.id", nodeID),
			attribute.String("ptt.surface", opts.Surface),
		),
	)
	defer span.End()

	start := time.Now()
	raw, err := d.caller.Call(ctx, gateway.MethodNodeInvoke, req)
	elapsed := time.Since(start)

	var result InvocationResult
	if err == nil {
		result, err = decodeResult(raw, req)
	}

	outcome := Outcome(result, err)
	d.metrics.ObserveInvocation(action.Name(), outcome, elapsed)
	span.SetAttributes(attribute.String("ptt.outcome", outcome))

	logAttrs := []any{
		"action", action.Name(),
		"node_id", nodeID,
		"surface", opts.Surface,
		"outcome", outcome,
		"elapsed", elapsed,
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("ptt dispatch failed", append(logAttrs, "error", err)...)
	} else {
		if !result.OK {
			span.SetStatus(codes.Error, "node reported failure")
		}
		d.logger.Info("ptt dispatch done", logAttrs...)
	}

	d.record(ctx, action, req, opts.Surface, result, outcome, elapsed, err)
	return result, err
}

func (d *Dispatcher) record(ctx context.Context, action Action, req InvocationRequest, surface string,
	result InvocationResult, outcome string, elapsed time.Duration, callErr error,
) {
	if d.recorder == nil {
		return
	}
	rec := history.Record{
		IdempotencyKey: req.IdempotencyKey,
		Action:         action.Name(),
		Command:        req.Command,
		NodeID:         req.NodeID,
		Surface:        surface,
		OK:             callErr == nil && result.OK,
		Outcome:        outcome,
		DurationMs:     elapsed.Milliseconds(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	// History is best effort; the caller gets the invocation outcome regardless.
	if err := d.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn("ptt history record failed", "idempotency_key", req.IdempotencyKey, "error", err)
	}
}

func decodeResult(raw json.RawMessage, req InvocationRequest) (InvocationResult, error) {
	var result InvocationResult
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return InvocationResult{}, fmt.Errorf("%w: decode %s response: %w", gateway.ErrProtocol, gateway.MethodNodeInvoke, err)
		}
	}
	if result.NodeID == "" {
		result.NodeID = req.NodeID
	}
	if result.Command == "" {
		result.Command = req.Command
	}
	trimmed := bytes.TrimSpace(result.Payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		result.Payload = json.RawMessage(`{}`)
	}
	return result, nil
}
