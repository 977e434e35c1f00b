package perf

const (
	defaultMemoryPressureThreshold = 0.8
	smallDataSizeThreshold         = 50
	largeDataSizeThreshold         = 5000
	highComplexityThreshold        = 0.6
	lowComplexityThreshold         = 0.3
)

// Recommendation is optimizeExecutionStrategy's output: the suggested
// executor type plus any parameters it should be constructed with, and
// the reasons the optimizer picked it (useful for logging/telemetry,
// never for control flow).
type Recommendation struct {
	ExecutorType string
	BatchSize    int
	Parallelism  int
	Reasons      []string
}

// Optimizer holds the tunables and adaptive state (batch size history,
// memory pressure threshold) that optimizeExecutionStrategy consults.
type Optimizer struct {
	memoryPressureThreshold float64
	lastBatchSize           int
	consecutiveSuccesses    int
}

func NewOptimizer() *Optimizer {
	return &Optimizer{
		memoryPressureThreshold: defaultMemoryPressureThreshold,
		lastBatchSize:           100,
	}
}

// OptimizeExecutionStrategy picks an executor type and its parameters
// from the dataset size, the mapping's complexity score, and a current
// resource snapshot.
func (o *Optimizer) OptimizeExecutionStrategy(dataSize int, complexity float64, resources Resources) Recommendation {
	if dataSize <= 1 {
		return Recommendation{ExecutorType: "sequential", Reasons: []string{"single record"}}
	}

	if dataSize <= smallDataSizeThreshold && complexity >= highComplexityThreshold {
		return Recommendation{ExecutorType: "sequential", Reasons: []string{"small dataset with high mapping complexity"}}
	}

	if dataSize >= largeDataSizeThreshold && complexity <= lowComplexityThreshold && resources.AvailableMemory >= 0.6 {
		parallelism := 2 + int(resources.AvailableMemory*8)
		return Recommendation{
			ExecutorType: "parallel",
			Parallelism:  parallelism,
			Reasons:      []string{"large low-complexity dataset with abundant memory"},
		}
	}

	if dataSize >= largeDataSizeThreshold && complexity > lowComplexityThreshold && complexity < highComplexityThreshold {
		return Recommendation{ExecutorType: "stream", Reasons: []string{"large medium-complexity dataset suits streaming"}}
	}

	batchSize := o.adaptiveBatchSize(resources)
	return Recommendation{
		ExecutorType: "batch",
		BatchSize:    batchSize,
		Reasons:      []string{"default: batching balances throughput and memory use"},
	}
}

// adaptiveBatchSize shrinks the batch size under memory pressure and
// grows it back after a run of successful invocations at the current
// size, so sustained healthy execution recovers throughput over time.
func (o *Optimizer) adaptiveBatchSize(resources Resources) int {
	if resources.MemoryPressure > o.memoryPressureThreshold {
		o.lastBatchSize = maxInt(o.lastBatchSize/2, 10)
		o.consecutiveSuccesses = 0
		return o.lastBatchSize
	}
	return o.lastBatchSize
}

// RecordBatchOutcome feeds a completed batch's outcome back into the
// adaptive sizing state; call after every batch execution.
func (o *Optimizer) RecordBatchOutcome(success bool) {
	if !success {
		o.consecutiveSuccesses = 0
		return
	}
	o.consecutiveSuccesses++
	if o.consecutiveSuccesses >= 5 {
		o.lastBatchSize = minInt(o.lastBatchSize*2, 1000)
		o.consecutiveSuccesses = 0
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
