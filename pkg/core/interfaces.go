package core

import "context"

// Executor is the single external execution boundary. The host supplies it
// to dispatch tool containers, sub-agent recursion, persistent-service
// calls, workflow execution, and recursive model calls; all of that is
// opaque to the runtime core. Context-feed sources resolve through the
// same callback.
type Executor interface {
	Execute(ctx context.Context, action *Action) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, action *Action) (any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, action *Action) (any, error) {
	return f(ctx, action)
}

// Internal action names handled without the external Executor. These
// mutate the binding environment and feed set directly.
const (
	InternalAddContextFeed    = "add_context_feed"
	InternalRemoveContextFeed = "remove_context_feed"
	InternalSetVariable       = "set_variable"
	InternalDeleteVariable    = "delete_variable"
	InternalClearContext      = "clear_context"
)
