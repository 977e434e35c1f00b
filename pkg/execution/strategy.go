package execution

import "context"

// Pipeline is the subset of pkg/pipeline's Pipeline that a strategy
// needs: one record in, one record out, threaded through an execution
// context. Declaring it here (rather than importing pkg/pipeline)
// keeps strategies decoupled from the pipeline's own construction.
type Pipeline interface {
	Execute(ctx context.Context, data map[string]interface{}, execCtx *Context) (map[string]interface{}, error)
}

// Result is the outcome of a Strategy.Execute call.
type Result struct {
	Records []map[string]interface{}
	Errors  []RecordedError
}

// Strategy is the contract shared by Sequential, Batch, Stream, and
// Parallel: execute(data, pipeline, context) -> result, where data is
// either a single record or an ordered sequence.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, data []map[string]interface{}, pipeline Pipeline, execCtx *Context) (Result, error)
	GetMetrics() MetricsSnapshot
}

// Factory builds a Strategy from untyped options, in the style of
// pkg/position's TrackerFactory.
type Factory func(options map[string]interface{}) (Strategy, error)

var strategyRegistry = map[string]Factory{
	"sequential": func(options map[string]interface{}) (Strategy, error) {
		return NewSequentialStrategy(parseSequentialOptions(options)), nil
	},
	"batch": func(options map[string]interface{}) (Strategy, error) {
		return NewBatchStrategy(parseBatchOptions(options)), nil
	},
	"stream": func(options map[string]interface{}) (Strategy, error) {
		return NewStreamStrategy(parseStreamOptions(options)), nil
	},
	"parallel": func(options map[string]interface{}) (Strategy, error) {
		return NewParallelStrategy(parseParallelOptions(options)), nil
	},
}

// RegisterStrategyFactory registers a custom strategy implementation
// under a type name.
func RegisterStrategyFactory(name string, factory Factory) {
	strategyRegistry[name] = factory
}

// CreateStrategy builds a strategy by type name; unknown types return
// ErrUnsupportedStrategyType.
func CreateStrategy(strategyType string, options map[string]interface{}) (Strategy, error) {
	factory, ok := strategyRegistry[strategyType]
	if !ok {
		return nil, ErrUnsupportedStrategyType
	}
	return factory(options)
}

func optInt(options map[string]interface{}, key string, def int) int {
	if v, ok := options[key]; ok {
		if i, ok := v.(int); ok {
			return i
		}
	}
	return def
}

func optBool(options map[string]interface{}, key string, def bool) bool {
	if v, ok := options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
