// Package tools implements the tool registry and executor (C9): the
// single choke point every resource-layer call to an underlying CRM
// action passes through, whether invoked from the chat router (C11) or
// a confirmed goal action. Schema validation follows
// pkg/pluginsdk/validation.go's compiled-and-cached jsonschema idiom.
package tools

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SafetyClass governs whether a tool call goes through the cache-around
// path (READ_ONLY) or the invalidate-on-success path (WRITE).
type SafetyClass string

const (
	ReadOnly SafetyClass = "READ_ONLY"
	Write    SafetyClass = "WRITE"
)

// HandlerFunc invokes the underlying resource. token is the minted
// internal token string (C2); the handler is responsible for attaching
// it however its transport requires (header, query param, etc). The
// returned Result.StatusCode follows HTTP status-code conventions:
// < 400 is success, even though no actual HTTP request may be involved.
type HandlerFunc func(ctx *ExecContext, args map[string]any) (Result, error)

// Result is a handler's raw response, before size-threshold offload and
// output-summary truncation are applied.
type Result struct {
	StatusCode int
	Payload    any
}

// Descriptor is a tool's full declaration.
type Descriptor struct {
	Name   string
	Module string

	// Description is the natural-language summary advertised to the LLM
	// alongside the tool's schema, helping it decide when to call it.
	Description string

	// ArgsSchema is a raw JSON Schema document validating the tool's
	// argument object.
	ArgsSchema []byte

	SafetyClass SafetyClass

	// TTL is the cache lifetime for a READ_ONLY tool. Zero means "use
	// the name-pattern default" (see defaultTTL).
	TTL int

	// Invalidates lists the cache modules a successful WRITE call
	// invalidates tenant-wide.
	Invalidates []string

	// Destructive tools (delete, drop, truncate, bulk-wipe) are
	// rejected outright in realtime/assistant contexts, before schema
	// validation ever runs.
	Destructive bool

	// HumanSummary renders a short caller-visible summary of a
	// successful result. If nil, a generic truncation is used.
	HumanSummary func(result any) string

	Handler HandlerFunc

	schema *jsonschema.Schema
}

// Registry holds compiled tool descriptors, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register compiles d's schema (if present) and adds it to the
// registry, replacing any existing tool of the same name.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tools: descriptor missing a name")
	}
	if d.Handler == nil {
		return fmt.Errorf("tools: descriptor %q missing a handler", d.Name)
	}
	if len(d.ArgsSchema) > 0 {
		compiled, err := jsonschema.CompileString(d.Name+".schema.json", string(d.ArgsSchema))
		if err != nil {
			return fmt.Errorf("tools: compile schema for %q: %w", d.Name, err)
		}
		d.schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := d
	r.tools[d.Name] = &cp
	return nil
}

// Get returns the descriptor for name, if registered.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns every registered descriptor, unordered.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}
