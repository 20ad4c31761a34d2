package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aishacrm/orchestrator-core/internal/tools"
)

// leadBook is a process-local, tenant-scoped lead store backing the
// list_leads/create_lead demo tools. A production deployment would swap
// this for a CRM-backed handler without touching the registry contract.
type leadBook struct {
	mu    sync.Mutex
	byTen map[string][]lead
}

type lead struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func newLeadBook() *leadBook {
	return &leadBook{byTen: map[string][]lead{}}
}

func (b *leadBook) list(tenantUUID string) []lead {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]lead(nil), b.byTen[tenantUUID]...)
}

func (b *leadBook) create(tenantUUID, name, email string) lead {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := lead{ID: uuid.NewString(), Name: name, Email: email}
	b.byTen[tenantUUID] = append(b.byTen[tenantUUID], l)
	return l
}

// registerCRMTools wires the CRM tool surface C9's executor dispatches
// to: the read-only lead lookup the router's LookupTool resolves bare
// names against, the write tool that invalidates it, and the four
// goal-completion tools goals.DefaultRegistry's handlers invoke on
// confirmation.
func registerCRMTools(reg *tools.Registry) {
	book := newLeadBook()

	must(reg.Register(tools.Descriptor{
		Name:        "list_leads",
		Module:      "leads",
		Description: "List leads for the caller's tenant.",
		SafetyClass: tools.ReadOnly,
		Handler: func(ctx *tools.ExecContext, args map[string]any) (tools.Result, error) {
			leads := book.list(ctx.Caller.TenantUUID)
			return tools.Result{StatusCode: 200, Payload: map[string]any{"leads": leads}}, nil
		},
	}))

	must(reg.Register(tools.Descriptor{
		Name:        "create_lead",
		Module:      "leads",
		Description: "Create a new lead for the caller's tenant.",
		SafetyClass: tools.Write,
		Invalidates: []string{"leads"},
		ArgsSchema:  []byte(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"},"email":{"type":"string"}}}`),
		Handler: func(ctx *tools.ExecContext, args map[string]any) (tools.Result, error) {
			name, _ := args["name"].(string)
			email, _ := args["email"].(string)
			l := book.create(ctx.Caller.TenantUUID, name, email)
			return tools.Result{StatusCode: 201, Payload: l}, nil
		},
	}))

	must(reg.Register(tools.Descriptor{
		Name:        "schedule_call",
		Module:      "activities",
		Description: "Schedule a call with a lead at the extracted date/time.",
		SafetyClass: tools.Write,
		Invalidates: []string{"activities"},
		Handler:     goalActionHandler("call"),
	}))

	must(reg.Register(tools.Descriptor{
		Name:        "book_meeting",
		Module:      "activities",
		Description: "Book a meeting with a lead at the extracted date/time.",
		SafetyClass: tools.Write,
		Invalidates: []string{"activities"},
		Handler:     goalActionHandler("meeting"),
	}))

	must(reg.Register(tools.Descriptor{
		Name:        "send_email",
		Module:      "activities",
		Description: "Send an email to a lead.",
		SafetyClass: tools.Write,
		Invalidates: []string{"activities"},
		Handler:     goalActionHandler("email"),
	}))

	must(reg.Register(tools.Descriptor{
		Name:        "create_reminder",
		Module:      "activities",
		Description: "Create a follow-up reminder.",
		SafetyClass: tools.Write,
		Invalidates: []string{"activities"},
		Handler:     goalActionHandler("reminder"),
	}))
}

// goalActionHandler builds a handler for the goal-completion tools,
// which the router calls with the goal's ExtractedData once a pending
// goal is confirmed. The activity itself is not persisted anywhere
// beyond the telemetry trail this call emits; wiring a real CRM backend
// is an operator concern outside this orchestration core's scope.
func goalActionHandler(kind string) tools.HandlerFunc {
	return func(ctx *tools.ExecContext, args map[string]any) (tools.Result, error) {
		return tools.Result{
			StatusCode: 200,
			Payload: map[string]any{
				"kind":        kind,
				"scheduledAt": time.Now().UTC().Format(time.RFC3339),
			},
		}, nil
	}
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("orchestrator: tool registration failed: %v", err))
	}
}
