package pipeline

import "context"

// MiddlewarePhase distinguishes a middleware invocation before a phase
// runs from one after it completes.
type MiddlewarePhase string

const (
	MiddlewareBefore MiddlewarePhase = "before"
	MiddlewareAfter  MiddlewarePhase = "after"
)

// Middleware observes or rewrites a record as it crosses a phase
// boundary. Returning an error aborts the pipeline with that error
// wrapped in a MappingExecutionError attributed to the phase.
type Middleware func(ctx context.Context, data map[string]interface{}, execCtx MiddlewareContext, when MiddlewarePhase) (map[string]interface{}, error)

// MiddlewareContext is the subset of an execution context middleware is
// allowed to observe; declared locally to avoid importing pkg/execution
// just for a type assertion.
type MiddlewareContext interface {
	AddWarning(message string, metadata map[string]interface{})
}

func (p *Pipeline) Use(mw Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = append(p.middleware, mw)
}

func (p *Pipeline) runMiddleware(ctx context.Context, data map[string]interface{}, execCtx MiddlewareContext, when MiddlewarePhase) (map[string]interface{}, error) {
	p.mu.RLock()
	chain := append([]Middleware(nil), p.middleware...)
	p.mu.RUnlock()

	current := data
	for _, mw := range chain {
		out, err := mw(ctx, current, execCtx, when)
		if err != nil {
			return current, err
		}
		current = out
	}
	return current, nil
}
