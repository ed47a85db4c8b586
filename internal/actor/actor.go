// Package actor defines what an actor is: its dispatch kind, its schema,
// and the handler signature the executor invokes.
package actor

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind selects which executor pool a descriptor's handler runs on.
type Kind string

const (
	// Cooperative handlers must never block; they run on a shared
	// goroutine pool fed by a channel, the same way the source runtime's
	// cooperative scheduler multiplexed coroutines.
	Cooperative Kind = "cooperative"
	// Blocking handlers may perform blocking I/O; they run on a bounded
	// pool sized to the number of concurrent blocking calls a node can
	// afford, standing in for the source runtime's OS-thread pool.
	Blocking Kind = "blocking"
	// CPU handlers are assumed CPU-bound; they run on a separate bounded
	// pool so a CPU-heavy handler cannot starve blocking I/O handlers.
	// Go has no equivalent of a real OS process pool, so this is modeled
	// as another bounded goroutine set rather than a subprocess pool.
	CPU Kind = "cpu"
)

// Context is what a handler receives: the message it is processing, plus
// the ask/tell/hope surface to send further messages.
type Context struct {
	msg      MessageView
	dispatch Dispatcher
}

// MessageView is the subset of message.Message a handler is allowed to
// read. Defined here (rather than importing message directly into every
// handler signature) keeps actor free of a dependency on the wire format.
type MessageView struct {
	ID      string
	Src     string
	Dst     string
	Content map[string]any
}

// Dispatcher is implemented by executor.Executor; actor never imports
// executor (that would be a cycle), so Context is handed a narrow
// interface instead.
type Dispatcher interface {
	Tell(dst string, content map[string]any) error
	Ask(dst string, content map[string]any, timeout time.Duration) (map[string]any, error)
	Hope(dst string, content map[string]any) error
}

func NewContext(msg MessageView, d Dispatcher) *Context {
	return &Context{msg: msg, dispatch: d}
}

func (c *Context) Message() MessageView { return c.msg }

func (c *Context) Tell(dst string, content map[string]any) error {
	return c.dispatch.Tell(dst, content)
}

func (c *Context) Ask(dst string, content map[string]any, timeout time.Duration) (map[string]any, error) {
	return c.dispatch.Ask(dst, content, timeout)
}

func (c *Context) Hope(dst string, content map[string]any) error {
	return c.dispatch.Hope(dst, content)
}

// Handler is the function an actor module registers for one action.
type Handler func(ctx *Context, content map[string]any) (map[string]any, error)

// Descriptor is one registered actor action: "module.action" plus its
// dispatch kind, optional input/output schema, optional timer interval,
// and the handler itself.
type Descriptor struct {
	Name         string
	Module       string
	Kind         Kind
	Timer        *time.Duration
	InputSchema  any
	OutputSchema any
	Invoke       Handler
}

var validate = validator.New()

// ValidateInput runs the descriptor's InputSchema (a struct tagged with
// `validate:"..."`) against content, decoded via a plain map-to-struct
// copy. A nil InputSchema means the action accepts any shape.
func (d Descriptor) ValidateInput(content map[string]any) error {
	return validateAgainst(d.InputSchema, content)
}

func (d Descriptor) ValidateOutput(result map[string]any) error {
	return validateAgainst(d.OutputSchema, result)
}

func validateAgainst(schema any, content map[string]any) error {
	if schema == nil {
		return nil
	}
	decoded, err := decodeInto(schema, content)
	if err != nil {
		return fmt.Errorf("actor: decode schema: %w", err)
	}
	if err := validate.Struct(decoded); err != nil {
		return fmt.Errorf("actor: schema validation: %w", err)
	}
	return nil
}

// Registry holds every registered Descriptor, keyed by "module.action".
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	modules     map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		modules:     make(map[string]struct{}),
	}
}

// Register adds d under d.Name, rejecting a second registration of the
// same name.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("actor: %q already registered", d.Name)
	}
	r.descriptors[d.Name] = d
	r.modules[d.Module] = struct{}{}
	return nil
}

func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Modules lists every module name with at least one registered action, the
// set a node advertises to its registry peers.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for m := range r.modules {
		out = append(out, m)
	}
	return out
}

// Timers returns every descriptor with a non-nil Timer, for the node's
// timer-firing loop.
func (r *Registry) Timers() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, d := range r.descriptors {
		if d.Timer != nil {
			out = append(out, d)
		}
	}
	return out
}
