// Package gateway provides the main Nexus gateway server.
//
// router.go implements the Chat Router (C11): the per-turn state machine
// deciding whether an utterance starts, continues, or has nothing to do
// with an active goal, dispatching to the goal store (C8), the intent
// classifier (C10), the tool executor (C9), and the LLM adapter (C12).
// Grounded on message_service.go/processing.go's per-turn orchestration
// shape and broadcast.go's bounded-concurrency dispatch pattern, adapted
// to a single synchronous request/response turn instead of the donor's
// background channel-aggregation loop.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aishacrm/orchestrator-core/internal/apperr"
	"github.com/aishacrm/orchestrator-core/internal/auth"
	"github.com/aishacrm/orchestrator-core/internal/goals"
	"github.com/aishacrm/orchestrator-core/internal/goals/classify"
	"github.com/aishacrm/orchestrator-core/internal/llm"
	"github.com/aishacrm/orchestrator-core/internal/observability"
	"github.com/aishacrm/orchestrator-core/internal/tools"
)

// maxStatelessToolCalls bounds the stateless tool-calling loop so a
// misbehaving model can never run the router forever.
const maxStatelessToolCalls = 8

// ChatTurnRequest is the decoded body of a POST /ai/chat call.
type ChatTurnRequest struct {
	ConversationID string
	TenantID       string
	UserText       string
	Caller         auth.CallerIdentity
	Temperature    float64
	Model          string
}

// ChatTurnResponse is what the router hands back to the HTTP layer.
type ChatTurnResponse struct {
	Reply string
}

// RouterConfig wires the Router's dependencies. LookupTool, when set, is
// the read-only tool name invoked to resolve a bare lead name into
// whatever identifier downstream goal actions require (the spec's
// "resolve leadName via the read-only lookup tool" step); when empty the
// router carries the extracted name through unresolved.
type RouterConfig struct {
	Goals        goals.Store
	Handlers     map[goals.Type]goals.Handler
	Registry     *tools.Registry
	Executor     *tools.Executor
	LLM          *llm.Adapter
	Emitter      *observability.Emitter
	Logger       *slog.Logger
	DefaultModel string
	LookupTool   string
	Now          func() time.Time
}

// Router implements C11.
type Router struct {
	goals        goals.Store
	handlers     map[goals.Type]goals.Handler
	registry     *tools.Registry
	executor     *tools.Executor
	llm          *llm.Adapter
	emitter      *observability.Emitter
	logger       *slog.Logger
	defaultModel string
	lookupTool   string
	now          func() time.Time
}

// NewRouter builds a Router from cfg.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = goals.DefaultRegistry()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		goals:        cfg.Goals,
		handlers:     handlers,
		registry:     cfg.Registry,
		executor:     cfg.Executor,
		llm:          cfg.LLM,
		emitter:      cfg.Emitter,
		logger:       logger,
		defaultModel: cfg.DefaultModel,
		lookupTool:   cfg.LookupTool,
		now:          now,
	}
}

// HandleTurn runs one conversation turn end to end.
func (r *Router) HandleTurn(ctx context.Context, req ChatTurnRequest) (*ChatTurnResponse, error) {
	start := time.Now()
	sc := observability.NewRootContext(req.TenantID)
	r.emitter.EmitRunStarted(sc, req.ConversationID)

	reply, status, runErr := r.route(ctx, sc, req)

	r.emitter.EmitRunFinished(sc, status, time.Since(start).Milliseconds(), errString(runErr))
	if runErr != nil {
		return nil, runErr
	}
	return &ChatTurnResponse{Reply: reply}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// route implements the state machine body. The returned status is one of
// "success" or "failure", matching run_finished's status field.
func (r *Router) route(ctx context.Context, sc observability.SpanContext, req ChatTurnRequest) (reply, status string, err error) {
	g, gerr := r.activeGoal(ctx, req.ConversationID)
	if gerr != nil {
		r.logger.Warn("goal store unavailable, degrading to stateless", "conversation_id", req.ConversationID, "error", gerr)
	}

	if g != nil {
		reply, err = r.continueGoal(ctx, sc, req, g)
		if err != nil {
			return "", "failure", err
		}
		return reply, "success", nil
	}

	reply, started, err := r.tryStartGoal(ctx, req)
	if err != nil {
		return "", "failure", err
	}
	if started {
		return reply, "success", nil
	}

	reply, err = r.statelessReply(ctx, sc, req)
	if err != nil {
		return "", "failure", err
	}
	return reply, "success", nil
}

func (r *Router) activeGoal(ctx context.Context, conversationID string) (*goals.Goal, error) {
	if r.goals == nil {
		return nil, nil
	}
	return r.goals.GetActiveGoal(ctx, conversationID)
}

// continueGoal implements the g != nil branch of the state machine.
func (r *Router) continueGoal(ctx context.Context, sc observability.SpanContext, req ChatTurnRequest, g *goals.Goal) (string, error) {
	switch classify.ClassifyResponse(req.UserText) {
	case classify.ResponseConfirm:
		return r.confirmGoal(ctx, sc, req, g)
	case classify.ResponseCancel:
		if err := r.clearGoal(ctx, req.ConversationID); err != nil {
			return "", err
		}
		return "Okay, I've cancelled that.", nil
	case classify.ResponseReschedule:
		return r.rescheduleGoal(ctx, req, g)
	case classify.ResponseProvideInfo:
		return r.provideInfo(ctx, req, g)
	default:
		return g.ConfirmationMessage, nil
	}
}

func (r *Router) confirmGoal(ctx context.Context, sc observability.SpanContext, req ChatTurnRequest, g *goals.Goal) (string, error) {
	handler, ok := r.handlers[g.GoalType]
	if !ok {
		return "", apperr.New(apperr.CodeInternal, fmt.Sprintf("no handler registered for goal type %q", g.GoalType))
	}

	if _, err := r.executor.Execute(ctx, sc, handler.ToolName, g.ExtractedData, req.Caller); err != nil {
		return fmt.Sprintf("I couldn't do that: %v", err), nil
	}

	if err := r.clearGoal(ctx, req.ConversationID); err != nil {
		r.logger.Warn("failed to clear goal after confirmation", "conversation_id", req.ConversationID, "error", err)
	}
	return handler.SuccessMessage(g.ExtractedData), nil
}

func (r *Router) clearGoal(ctx context.Context, conversationID string) error {
	if r.goals == nil {
		return nil
	}
	return r.goals.ClearActiveGoal(ctx, conversationID)
}

// rescheduleGoal attempts to extract a new date/time; absent one, it
// proposes the current goal time plus one hour, rollover-safe.
func (r *Router) rescheduleGoal(ctx context.Context, req ChatTurnRequest, g *goals.Goal) (string, error) {
	now := r.now()
	if dt := classify.ExtractDateTime(req.UserText, now); dt != nil {
		g.ExtractedData["dateTime"] = dt.TimestampUTC
		g.Status = goals.StatusPendingConfirmation
		g.UpdatedAt = now
		if err := r.saveGoal(ctx, req.ConversationID, g); err != nil {
			return "", err
		}
		return confirmationPrompt(g), nil
	}

	proposed := proposeNextSlot(g, now)
	g.ExtractedData["dateTime"] = proposed.Format(time.RFC3339)
	g.Status = goals.StatusPendingConfirmation
	g.UpdatedAt = now
	if err := r.saveGoal(ctx, req.ConversationID, g); err != nil {
		return "", err
	}
	return confirmationPrompt(g), nil
}

// proposeNextSlot returns the current goal time plus one hour. Using
// time.Time.Add keeps date rollover correct (23:30 + 1h becomes the next
// calendar day) without any special-casing.
func proposeNextSlot(g *goals.Goal, now time.Time) time.Time {
	current, ok := g.ExtractedData["dateTime"].(string)
	if !ok || current == "" {
		return now.Add(time.Hour)
	}
	parsed, err := time.Parse(time.RFC3339, current)
	if err != nil {
		return now.Add(time.Hour)
	}
	return parsed.Add(time.Hour)
}

// provideInfo fills missing slots (lead, dateTime) from the turn's text.
func (r *Router) provideInfo(ctx context.Context, req ChatTurnRequest, g *goals.Goal) (string, error) {
	if name, ok := classify.ExtractLeadName(req.UserText); ok {
		g.ExtractedData["lead"] = r.resolveLead(ctx, req, name)
	}
	if dt := classify.ExtractDateTime(req.UserText, r.now()); dt != nil {
		g.ExtractedData["dateTime"] = dt.TimestampUTC
	}

	missing := g.GoalType.MissingSlots(g.ExtractedData)
	g.UpdatedAt = r.now()
	if len(missing) == 0 {
		g.Status = goals.StatusPendingConfirmation
		if err := r.saveGoal(ctx, req.ConversationID, g); err != nil {
			return "", err
		}
		return confirmationPrompt(g), nil
	}

	g.Status = goals.StatusAwaitingInput
	if err := r.saveGoal(ctx, req.ConversationID, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("I still need: %v. Could you provide that?", missing), nil
}

func (r *Router) saveGoal(ctx context.Context, conversationID string, g *goals.Goal) error {
	if r.goals == nil {
		return nil
	}
	return r.goals.SetActiveGoal(ctx, conversationID, g)
}

// resolveLead calls the read-only lookup tool, falling back to the raw
// extracted name when no lookup tool is configured or the call fails —
// a failed lookup must never block goal-slot filling.
func (r *Router) resolveLead(ctx context.Context, req ChatTurnRequest, name string) string {
	if r.lookupTool == "" || r.executor == nil {
		return name
	}
	sc := observability.NewRootContext(req.TenantID)
	res, err := r.executor.Execute(ctx, sc, r.lookupTool, map[string]any{"name": name}, req.Caller)
	if err != nil {
		return name
	}
	if payload, ok := res.Payload.(map[string]any); ok {
		if resolved, ok := payload["id"].(string); ok && resolved != "" {
			return resolved
		}
	}
	return name
}

func confirmationPrompt(g *goals.Goal) string {
	if g.ConfirmationMessage != "" {
		return g.ConfirmationMessage
	}
	return "Shall I go ahead with that?"
}

// tryStartGoal implements the g == nil, intent-detected branch.
func (r *Router) tryStartGoal(ctx context.Context, req ChatTurnRequest) (reply string, started bool, err error) {
	intent := classify.DetectIntent(req.UserText)
	if !intent.Detected {
		return "", false, nil
	}

	data := map[string]any{}
	if name, ok := classify.ExtractLeadName(req.UserText); ok {
		data["lead"] = r.resolveLead(ctx, req, name)
	}
	if dt := classify.ExtractDateTime(req.UserText, r.now()); dt != nil {
		data["dateTime"] = dt.TimestampUTC
	}

	g := goals.NewGoal(newGoalID(), req.ConversationID, req.TenantID, intent.GoalType, data, r.now())
	missing := intent.GoalType.MissingSlots(g.ExtractedData)
	if len(missing) == 0 {
		g.Status = goals.StatusPendingConfirmation
	}

	if err := r.saveGoal(ctx, req.ConversationID, g); err != nil {
		return "", false, err
	}

	if len(missing) != 0 {
		return fmt.Sprintf("Sure — could you tell me %v?", missing), true, nil
	}
	return confirmationPrompt(g), true, nil
}

// statelessReply implements the g == nil, no-intent branch: a bounded
// tool-calling loop against the LLM adapter.
func (r *Router) statelessReply(ctx context.Context, sc observability.SpanContext, req ChatTurnRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = r.defaultModel
	}

	messages := []llm.Message{{Role: "user", Content: req.UserText}}
	toolSchemas := r.toolSchemas()

	for i := 0; i < maxStatelessToolCalls; i++ {
		resp, err := r.llm.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Tools:       toolSchemas,
			Temperature: req.Temperature,
			Model:       model,
		})
		if err != nil {
			return "I'm sorry, I'm having trouble reaching the model right now.", nil
		}

		if len(resp.ToolCalls) == 0 {
			return resp.AssistantMessage, nil
		}

		for _, call := range resp.ToolCalls {
			args, perr := decodeToolArgs(call.Input)
			if perr != nil {
				messages = append(messages, llm.Message{Role: "tool", Content: fmt.Sprintf("invalid arguments: %v", perr)})
				continue
			}

			res, terr := r.executor.Execute(ctx, sc, call.Name, args, req.Caller)
			if terr != nil {
				messages = append(messages, llm.Message{Role: "tool", Content: fmt.Sprintf("tool %q failed: %v", call.Name, terr)})
				continue
			}
			messages = append(messages, llm.Message{Role: "tool", Content: llm.TruncateToolSummary(summarizeResult(res))})
		}
	}

	return "I wasn't able to finish that within the allotted number of tool calls.", nil
}

func summarizeResult(res *tools.ExecuteResult) string {
	if res.Artifact != nil {
		return fmt.Sprintf("result_ref:%s", res.Artifact.ID)
	}
	return fmt.Sprintf("%v", res.Payload)
}

// toolSchemas advertises every registered non-destructive tool's schema
// to the model. Destructive tools are never offered: the executor
// rejects them outright, so advertising them would only waste a model's
// tool-call budget on a guaranteed Forbidden response.
func (r *Router) toolSchemas() []llm.ToolSchema {
	if r.registry == nil {
		return nil
	}
	descriptors := r.registry.List()
	schemas := make([]llm.ToolSchema, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Destructive {
			continue
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  json.RawMessage(d.ArgsSchema),
		})
	}
	return schemas
}

// decodeToolArgs parses a model-provided tool-call argument payload.
func decodeToolArgs(input json.RawMessage) (map[string]any, error) {
	if len(input) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func newGoalID() string {
	return fmt.Sprintf("goal-%d", time.Now().UnixNano())
}
