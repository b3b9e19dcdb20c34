package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/cathouse/taskmanager/internal/store"
)

// Handler executes one action for userID. Payload is the caller's open
// key/value mapping and is never nil.
type Handler func(ctx context.Context, userID string, payload map[string]interface{}, st *store.Store) Result

// Action is a named operation the router can dispatch.
type Action struct {
	Name        string
	Description string
	Handler     Handler
	// ReadOnly marks actions that never write. Used for MCP tool hints.
	ReadOnly bool
}

// Registry maps action names to handlers. It is built once and never
// modified; tests that need different handlers build their own.
type Registry struct {
	actions map[string]Action
	names   []string
}

// NewRegistry builds a registry from actions. An empty name, a nil handler
// or a duplicate name panics.
func NewRegistry(actions ...Action) *Registry {
	r := &Registry{actions: make(map[string]Action, len(actions))}
	for _, a := range actions {
		if a.Name == "" {
			panic("command: action with empty name")
		}
		if a.Handler == nil {
			panic(fmt.Sprintf("command: action %q has no handler", a.Name))
		}
		if _, dup := r.actions[a.Name]; dup {
			panic(fmt.Sprintf("command: duplicate action %q", a.Name))
		}
		r.actions[a.Name] = a
		r.names = append(r.names, a.Name)
	}
	sort.Strings(r.names)
	return r
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Actions returns the registered actions sorted by name.
func (r *Registry) Actions() []Action {
	out := make([]Action, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.actions[n])
	}
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.names)
}
