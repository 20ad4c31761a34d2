package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aishacrm/orchestrator-core/internal/apperr"
	"github.com/aishacrm/orchestrator-core/internal/artifacts"
	"github.com/aishacrm/orchestrator-core/internal/auth"
	"github.com/aishacrm/orchestrator-core/internal/cache"
	"github.com/aishacrm/orchestrator-core/internal/observability"
)

// offloadThresholdBytes is the serialized-result size past which Execute
// offloads the payload to artifact storage and returns a ref instead of
// the inline value.
const offloadThresholdBytes = 64 * 1024

const maxOutputSummaryLen = 400

// ExecContext is what a HandlerFunc receives: a cancellable context plus
// the caller's freshly minted internal token, so the handler can attach
// it to whatever transport the underlying resource call requires.
type ExecContext struct {
	context.Context
	Token  string
	Caller auth.CallerIdentity
}

// ExecutorConfig wires an Executor's dependencies. Cache and Artifacts
// may be nil: a nil Cache disables the cache-around/invalidation paths
// and a nil Artifacts repository disables offload, in both cases falling
// back to returning the result inline.
type ExecutorConfig struct {
	Registry  *Registry
	Cache     cache.Layer
	Artifacts artifacts.Repository
	Minter    *auth.InternalTokenMinter
	Emitter   *observability.Emitter
}

// Executor runs the tool-call contract: validate, mint, cache-around or
// invalidate, offload, and emit telemetry at every step.
type Executor struct {
	registry  *Registry
	cache     cache.Layer
	artifacts artifacts.Repository
	minter    *auth.InternalTokenMinter
	emitter   *observability.Emitter
}

// NewExecutor builds an Executor from cfg.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		registry:  cfg.Registry,
		cache:     cfg.Cache,
		artifacts: cfg.Artifacts,
		minter:    cfg.Minter,
		emitter:   cfg.Emitter,
	}
}

// ExecuteResult is what Execute hands back to a caller (the chat router,
// a confirmed goal action).
type ExecuteResult struct {
	StatusCode  int
	Payload     any
	CacheStatus string
	Artifact    *artifacts.ArtifactRef
}

// Execute runs toolName against args on behalf of caller. The returned
// error is always an *apperr.Error.
func (x *Executor) Execute(ctx context.Context, parent observability.SpanContext, toolName string, args map[string]any, caller auth.CallerIdentity) (*ExecuteResult, error) {
	start := time.Now()
	sc := observability.ChildSpan(parent)
	toolCallID := uuid.NewString()

	d, ok := x.registry.Get(toolName)
	if !ok {
		return nil, x.fail(sc, toolCallID, apperr.NotFound(fmt.Sprintf("unknown tool: %s", toolName)))
	}

	if d.Destructive {
		return nil, x.fail(sc, toolCallID, apperr.Forbidden(fmt.Sprintf("tool %q is destructive and cannot be invoked", toolName)))
	}

	if d.schema != nil {
		decoded, derr := roundTripJSON(args)
		if derr == nil {
			derr = d.schema.Validate(decoded)
		}
		if derr != nil {
			return nil, x.fail(sc, toolCallID, apperr.ValidationError(fmt.Sprintf("invalid arguments for %q: %v", toolName, derr)))
		}
	}

	token, terr := x.minter.Mint(caller)
	if terr != nil {
		return nil, x.fail(sc, toolCallID, apperr.Wrap(apperr.CodeUnauthorized, terr, "mint internal token"))
	}

	x.emitter.EmitToolCallStarted(sc, toolCallID, toolName, args)

	var cacheKey string
	cacheStatus := "bypass"
	if d.SafetyClass == ReadOnly && x.cache != nil {
		cacheKey = cache.Key(d.Module, caller.TenantUUID, toolName, args)
		if cached, hit := x.cache.Get(cacheKey); hit {
			var payload any
			if jerr := json.Unmarshal(cached, &payload); jerr == nil {
				dur := time.Since(start).Milliseconds()
				x.emitter.EmitToolCallFinished(sc, toolCallID, "success", "hit", dur, summarize(d, payload), "")
				return &ExecuteResult{StatusCode: 200, Payload: payload, CacheStatus: "hit"}, nil
			}
		}
		cacheStatus = "miss"
	}

	execCtx := &ExecContext{Context: ctx, Token: token, Caller: caller}
	result, herr := d.Handler(execCtx, args)
	if herr != nil {
		return nil, x.fail(sc, toolCallID, herr)
	}
	if result.StatusCode >= 400 {
		return nil, x.fail(sc, toolCallID, apperr.New(apperr.CodeInternal, fmt.Sprintf("tool %q returned status %d", toolName, result.StatusCode)))
	}

	encoded, eerr := json.Marshal(result.Payload)

	if d.SafetyClass == ReadOnly && x.cache != nil && cacheKey != "" && eerr == nil {
		x.cache.Set(cacheKey, encoded, ttlFor(d))
	}

	if d.SafetyClass == Write && x.cache != nil {
		dashboard := false
		for _, m := range d.Invalidates {
			x.cache.InvalidateTenant(caller.TenantUUID, m)
			if cache.IsCRMEntityModule(m) {
				dashboard = true
			}
		}
		if dashboard {
			x.cache.InvalidateDashboard(caller.TenantUUID)
		}
	}

	var ref *artifacts.ArtifactRef
	outputSummary := summarize(d, result.Payload)
	if eerr == nil && len(encoded) > offloadThresholdBytes && x.artifacts != nil {
		if stored, aerr := x.artifacts.Put(ctx, caller.TenantUUID, "tool_result", d.Module, toolName, encoded, artifacts.PutOptions{MimeType: "application/json"}); aerr == nil {
			ref = stored
			x.emitter.EmitArtifactCreated(sc, ref.ID, ref.Kind, ref.SizeBytes)
			outputSummary = ""
		}
	}

	resultRef := ""
	if ref != nil {
		resultRef = ref.ID
	}
	x.emitter.EmitToolCallFinished(sc, toolCallID, "success", cacheStatus, time.Since(start).Milliseconds(), outputSummary, resultRef)

	return &ExecuteResult{
		StatusCode:  result.StatusCode,
		Payload:     result.Payload,
		CacheStatus: cacheStatus,
		Artifact:    ref,
	}, nil
}

// fail emits tool_call_failed and returns an *apperr.Error for err,
// wrapping it if it isn't already tagged.
func (x *Executor) fail(sc observability.SpanContext, toolCallID string, err error) error {
	tagged, ok := err.(*apperr.Error)
	if !ok {
		tagged = apperr.Wrap(apperr.CodeInternal, err, "")
	}
	x.emitter.EmitToolCallFailed(sc, toolCallID, string(tagged.Code), tagged.Error(), tagged.Code.Retryable())
	return tagged
}

// roundTripJSON re-encodes args through JSON so number/bool/string/null
// values match the canonical decoded shape jsonschema validation expects,
// regardless of the Go-native numeric types a caller passed in.
func roundTripJSON(args map[string]any) (any, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// summarize renders a short caller-visible description of a successful
// result, using the descriptor's HumanSummary when provided.
func summarize(d *Descriptor, payload any) string {
	if d.HumanSummary != nil {
		return truncate(d.HumanSummary(payload), maxOutputSummaryLen)
	}
	return truncate(fmt.Sprintf("%v", payload), maxOutputSummaryLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ttlFor returns d's declared cache TTL, or a name-pattern default when
// unset. These defaults are illustrative starting points, not a fixed
// contract: any tool can override by setting Descriptor.TTL explicitly.
func ttlFor(d *Descriptor) time.Duration {
	if d.TTL > 0 {
		return time.Duration(d.TTL) * time.Second
	}
	return defaultTTL(d.Name)
}

func defaultTTL(toolName string) time.Duration {
	name := strings.ToLower(toolName)
	switch {
	case strings.Contains(name, "live") || strings.Contains(name, "realtime") || strings.Contains(name, "status"):
		return 10 * time.Second
	case strings.Contains(name, "search"):
		return 60 * time.Second
	case strings.Contains(name, "list"):
		return 120 * time.Second
	case strings.Contains(name, "get_") || strings.Contains(name, "detail") || strings.Contains(name, "fetch"):
		return 180 * time.Second
	case strings.Contains(name, "aggregate") || strings.Contains(name, "report") || strings.Contains(name, "dashboard") || strings.Contains(name, "summary"):
		return 300 * time.Second
	default:
		return 90 * time.Second
	}
}
