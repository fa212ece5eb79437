package tenant

import (
	"context"
	"sync"
)

// Context captures the resolved tenant for one unit of work (an HTTP request,
// a background job). It is immutable once constructed: changing the active
// tenant means installing a new Context, never mutating the old one.
type Context struct {
	ID         ID
	SchemaName string
	Properties map[string]string
}

// NewContext builds a Context, copying the supplied properties so later
// mutations of the caller's map cannot leak in.
func NewContext(id ID, schemaName string, properties map[string]string) Context {
	var props map[string]string
	if len(properties) > 0 {
		props = make(map[string]string, len(properties))
		for k, v := range properties {
			props[k] = v
		}
	}
	return Context{ID: id, SchemaName: schemaName, Properties: props}
}

// Valid reports whether the Context names a real tenant.
func (c Context) Valid() bool {
	return !c.ID.IsNil()
}

// Property returns an arbitrary key-value attached at resolution time.
func (c Context) Property(key string) (string, bool) {
	v, ok := c.Properties[key]
	return v, ok
}

type ctxKey struct{}

// WithCurrent returns a derived context carrying the tenant Context.
// Because context.Context values are immutable, nested overrides restore
// naturally when the derived context goes out of scope.
func WithCurrent(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// Current extracts the tenant Context and a boolean indicating presence.
func Current(ctx context.Context) (Context, bool) {
	v, ok := ctx.Value(ctxKey{}).(Context)
	return v, ok
}

// Carrier holds the ambient tenant Context for a unit of work that is not
// driven by a context.Context chain (CLI loops, seeders sharing one worker).
// Enter pushes a new Context and returns a restore function; restores are
// LIFO, so nested scopes unwind to exactly the Context seen on entry.
type Carrier struct {
	mu    sync.Mutex
	stack []Context
}

// NewCarrier returns an empty Carrier.
func NewCarrier() *Carrier {
	return &Carrier{}
}

// Current returns the innermost Context, if any.
func (c *Carrier) Current() (Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stack) == 0 {
		return Context{}, false
	}
	return c.stack[len(c.stack)-1], true
}

// Enter installs tc as the ambient Context and returns a restore function
// that must run on every exit path (defer it).
func (c *Carrier) Enter(tc Context) (restore func()) {
	c.mu.Lock()
	c.stack = append(c.stack, tc)
	depth := len(c.stack)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if len(c.stack) >= depth {
				c.stack = c.stack[:depth-1]
			}
		})
	}
}
