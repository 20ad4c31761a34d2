package observability

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TelemetryEventType is one of the frozen canonical event types a run
// emits over its lifetime.
type TelemetryEventType string

const (
	EventRunStarted       TelemetryEventType = "run_started"
	EventRunFinished      TelemetryEventType = "run_finished"
	EventAgentRegistered  TelemetryEventType = "agent_registered"
	EventAgentSpawned     TelemetryEventType = "agent_spawned"
	EventAgentRetired     TelemetryEventType = "agent_retired"
	EventAgentStatus      TelemetryEventType = "agent_status"
	EventTaskCreated      TelemetryEventType = "task_created"
	EventTaskEnqueued     TelemetryEventType = "task_enqueued"
	EventTaskAssigned     TelemetryEventType = "task_assigned"
	EventTaskStarted      TelemetryEventType = "task_started"
	EventTaskBlocked      TelemetryEventType = "task_blocked"
	EventTaskCompleted    TelemetryEventType = "task_completed"
	EventTaskFailed       TelemetryEventType = "task_failed"
	EventHandoff          TelemetryEventType = "handoff"
	EventMessageSent      TelemetryEventType = "message_sent"
	EventMessageReceived  TelemetryEventType = "message_received"
	EventToolCallStarted  TelemetryEventType = "tool_call_started"
	EventToolCallFinished TelemetryEventType = "tool_call_finished"
	EventToolCallFailed   TelemetryEventType = "tool_call_failed"
	EventArtifactCreated  TelemetryEventType = "artifact_created"
	EventArtifactUpdated  TelemetryEventType = "artifact_updated"

	// EventSystemReset is synthetic: the observer emits it on a buffer
	// clear rather than any component emitting it through the sink.
	EventSystemReset TelemetryEventType = "system_reset"
)

const (
	maxEventFields = 80
	maxStringLen   = 2000
	maxArrayLen    = 50
)

// SpanContext correlates events within and across runs. It is
// deliberately independent of the OpenTelemetry Tracer in tracing.go:
// that tracer exports live spans for distributed tracing backends, while
// SpanContext is the cheap string-id correlation scheme carried on every
// sink line so a tail reader can reconstruct a run's event tree without
// a trace collector in the loop.
type SpanContext struct {
	RunID        string
	TraceID      string
	SpanID       string
	ParentSpanID string
	TenantID     string
}

func newRunID() string  { return uuid.NewString() }
func newTraceID() string { return uuid.NewString() }
func newSpanID() string { return uuid.NewString() }

// NewRootContext begins a new run: run_id and trace_id are freshly
// minted and equal, span_id is fresh, parent_span_id is empty.
func NewRootContext(tenantID string) SpanContext {
	runID := newRunID()
	return SpanContext{
		RunID:    runID,
		TraceID:  runID,
		SpanID:   newSpanID(),
		TenantID: tenantID,
	}
}

// ChildSpan derives a child of sc: run_id and trace_id are inherited, a
// fresh span_id is minted, and parent_span_id becomes sc's span_id.
func ChildSpan(sc SpanContext) SpanContext {
	return SpanContext{
		RunID:        sc.RunID,
		TraceID:      sc.TraceID,
		SpanID:       newSpanID(),
		ParentSpanID: sc.SpanID,
		TenantID:     sc.TenantID,
	}
}

// TelemetryConfig controls the Emitter. Emission is disabled by default;
// an operator opts in explicitly.
type TelemetryConfig struct {
	Enabled  bool
	SinkPath string
}

// Emitter writes sanitized, append-only NDJSON telemetry lines to a sink
// file. When disabled, every Emit call is a cheap no-op — no allocation
// beyond the already-built field map, no file touched.
//
// Emitters never throw: a disabled emitter, a missing sink file, and a
// failed write are all silently absorbed, because telemetry must never
// be the reason a request fails.
type Emitter struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	logger  *slog.Logger
}

// NewEmitter opens the sink file in append mode when cfg.Enabled. A
// disabled config returns a usable, inert Emitter rather than nil so
// callers never need a nil check before calling an Emit method.
func NewEmitter(cfg TelemetryConfig, logger *slog.Logger) (*Emitter, error) {
	if !cfg.Enabled {
		return &Emitter{enabled: false, logger: logger}, nil
	}
	f, err := os.OpenFile(cfg.SinkPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Emitter{enabled: true, file: f, logger: logger}, nil
}

// Enabled reports whether emission is active.
func (e *Emitter) Enabled() bool { return e != nil && e.enabled }

// Close releases the sink file handle. Safe to call on a disabled
// Emitter.
func (e *Emitter) Close() error {
	if e == nil || e.file == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close()
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringLen {
			return val[:maxStringLen]
		}
		return val
	case []interface{}:
		if len(val) > maxArrayLen {
			return val[:maxArrayLen]
		}
		return val
	case []string:
		if len(val) > maxArrayLen {
			return val[:maxArrayLen]
		}
		return val
	default:
		return val
	}
}

func (e *Emitter) emit(sc SpanContext, eventType TelemetryEventType, fields map[string]interface{}) {
	if !e.Enabled() {
		return
	}

	record := map[string]interface{}{
		"_telemetry": true,
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"type":       string(eventType),
		"run_id":     sc.RunID,
		"trace_id":   sc.TraceID,
		"span_id":    sc.SpanID,
	}
	if sc.ParentSpanID != "" {
		record["parent_span_id"] = sc.ParentSpanID
	}
	if sc.TenantID != "" {
		record["tenant_id"] = sc.TenantID
	}

	budget := maxEventFields - len(record)
	for k, v := range fields {
		if v == nil {
			continue
		}
		if budget <= 0 {
			break
		}
		record[k] = sanitizeValue(v)
		budget--
	}

	line, err := json.Marshal(record)
	if err != nil {
		return
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return
	}
	if _, werr := e.file.Write(line); werr != nil && e.logger != nil {
		e.logger.Debug("telemetry sink write failed", "error", werr)
	}
}

// EmitRunStarted marks the beginning of a conversational turn.
func (e *Emitter) EmitRunStarted(sc SpanContext, conversationID string) {
	e.emit(sc, EventRunStarted, map[string]interface{}{"conversation_id": conversationID})
}

// EmitRunFinished closes out a turn. errMsg is omitted when status is
// success.
func (e *Emitter) EmitRunFinished(sc SpanContext, status string, durationMs int64, errMsg string) {
	fields := map[string]interface{}{"status": status, "duration_ms": durationMs}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	e.emit(sc, EventRunFinished, fields)
}

func (e *Emitter) EmitAgentRegistered(sc SpanContext, agentID, agentType string) {
	e.emit(sc, EventAgentRegistered, map[string]interface{}{"agent_id": agentID, "agent_type": agentType})
}

func (e *Emitter) EmitAgentSpawned(sc SpanContext, agentID string) {
	e.emit(sc, EventAgentSpawned, map[string]interface{}{"agent_id": agentID})
}

func (e *Emitter) EmitAgentRetired(sc SpanContext, agentID, reason string) {
	e.emit(sc, EventAgentRetired, map[string]interface{}{"agent_id": agentID, "reason": reason})
}

func (e *Emitter) EmitAgentStatus(sc SpanContext, agentID, status string) {
	e.emit(sc, EventAgentStatus, map[string]interface{}{"agent_id": agentID, "status": status})
}

func (e *Emitter) EmitTaskCreated(sc SpanContext, taskID, taskType string) {
	e.emit(sc, EventTaskCreated, map[string]interface{}{"task_id": taskID, "task_type": taskType})
}

func (e *Emitter) EmitTaskEnqueued(sc SpanContext, taskID string) {
	e.emit(sc, EventTaskEnqueued, map[string]interface{}{"task_id": taskID})
}

func (e *Emitter) EmitTaskAssigned(sc SpanContext, taskID, agentID string) {
	e.emit(sc, EventTaskAssigned, map[string]interface{}{"task_id": taskID, "agent_id": agentID})
}

func (e *Emitter) EmitTaskStarted(sc SpanContext, taskID string) {
	e.emit(sc, EventTaskStarted, map[string]interface{}{"task_id": taskID})
}

func (e *Emitter) EmitTaskBlocked(sc SpanContext, taskID, reason string) {
	e.emit(sc, EventTaskBlocked, map[string]interface{}{"task_id": taskID, "reason": reason})
}

func (e *Emitter) EmitTaskCompleted(sc SpanContext, taskID string, durationMs int64) {
	e.emit(sc, EventTaskCompleted, map[string]interface{}{"task_id": taskID, "duration_ms": durationMs})
}

func (e *Emitter) EmitTaskFailed(sc SpanContext, taskID, errMsg string) {
	e.emit(sc, EventTaskFailed, map[string]interface{}{"task_id": taskID, "error": errMsg})
}

func (e *Emitter) EmitHandoff(sc SpanContext, fromAgentID, toAgentID, reason string) {
	e.emit(sc, EventHandoff, map[string]interface{}{
		"from_agent_id": fromAgentID,
		"to_agent_id":   toAgentID,
		"reason":        reason,
	})
}

func (e *Emitter) EmitMessageSent(sc SpanContext, messageID, channel string) {
	e.emit(sc, EventMessageSent, map[string]interface{}{"message_id": messageID, "channel": channel})
}

func (e *Emitter) EmitMessageReceived(sc SpanContext, messageID, channel string) {
	e.emit(sc, EventMessageReceived, map[string]interface{}{"message_id": messageID, "channel": channel})
}

// EmitToolCallStarted records the beginning of a tool invocation. args
// should already be sanitized of secrets by the caller; this method only
// enforces size caps, not content redaction.
func (e *Emitter) EmitToolCallStarted(sc SpanContext, toolCallID, toolName string, args map[string]interface{}) {
	e.emit(sc, EventToolCallStarted, map[string]interface{}{
		"tool_call_id": toolCallID,
		"tool_name":    toolName,
		"args":         args,
	})
}

// EmitToolCallFinished records a completed tool call. outputSummary and
// resultRef are mutually exclusive: a call whose result was offloaded to
// artifact storage carries resultRef and omits outputSummary, and vice
// versa.
func (e *Emitter) EmitToolCallFinished(sc SpanContext, toolCallID, status, cacheStatus string, durationMs int64, outputSummary, resultRef string) {
	fields := map[string]interface{}{
		"tool_call_id": toolCallID,
		"status":       status,
		"cache":        cacheStatus,
		"duration_ms":  durationMs,
	}
	if resultRef != "" {
		fields["result_ref"] = resultRef
	} else if outputSummary != "" {
		fields["output_summary"] = outputSummary
	}
	e.emit(sc, EventToolCallFinished, fields)
}

// EmitToolCallFailed records a failed tool call. retryable mirrors the
// apperr.Code's own Retryable() classification so a downstream consumer
// can decide whether to re-attempt without re-deriving it from errCode.
func (e *Emitter) EmitToolCallFailed(sc SpanContext, toolCallID, errCode, errMsg string, retryable bool) {
	e.emit(sc, EventToolCallFailed, map[string]interface{}{
		"tool_call_id": toolCallID,
		"error_code":   errCode,
		"error":        errMsg,
		"retryable":    retryable,
	})
}

func (e *Emitter) EmitArtifactCreated(sc SpanContext, artifactID, kind string, sizeBytes int64) {
	e.emit(sc, EventArtifactCreated, map[string]interface{}{
		"artifact_id": artifactID,
		"kind":        kind,
		"size_bytes":  sizeBytes,
	})
}

func (e *Emitter) EmitArtifactUpdated(sc SpanContext, artifactID string) {
	e.emit(sc, EventArtifactUpdated, map[string]interface{}{"artifact_id": artifactID})
}
