package tools

import "testing"

func echoHandler(ctx *ExecContext, args map[string]any) (Result, error) {
	return Result{StatusCode: 200, Payload: args}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Descriptor{
		Name:        "leads.list",
		Module:      "leads",
		SafetyClass: ReadOnly,
		Handler:     echoHandler,
		ArgsSchema:  []byte(`{"type":"object","properties":{"limit":{"type":"integer"}}}`),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	d, ok := r.Get("leads.list")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	if d.Module != "leads" {
		t.Fatalf("module = %q, want leads", d.Module)
	}
	if d.schema == nil {
		t.Fatal("expected compiled schema to be cached on the descriptor")
	}
}

func TestRegistry_RegisterRejectsMissingHandler(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Name: "x"}); err == nil {
		t.Fatal("expected an error for a descriptor with no handler")
	}
}

func TestRegistry_RegisterRejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Descriptor{
		Name:       "bad",
		Handler:    echoHandler,
		ArgsSchema: []byte(`{not json`),
	})
	if err == nil {
		t.Fatal("expected schema compile error")
	}
}

func TestRegistry_GetMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected ok=false for an unregistered tool")
	}
}

func TestRegistry_ListReturnsAllRegistered(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Descriptor{Name: "a", Handler: echoHandler})
	_ = r.Register(Descriptor{Name: "b", Handler: echoHandler})
	if got := len(r.List()); got != 2 {
		t.Fatalf("List length = %d, want 2", got)
	}
}
