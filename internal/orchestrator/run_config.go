package orchestrator

// Config holds the limits and switches for a run.
type Config struct {
	// MaxRecursionDepth is the deepest task depth that may be dispatched.
	MaxRecursionDepth int

	// MaxIterations bounds the number of loop steps per Analyze call,
	// independently of depth.
	MaxIterations int

	// CostTracking accumulates reported cost into Stats.TotalCostUSD.
	CostTracking bool

	// ParallelBranches is reserved. Tasks always run one at a time.
	ParallelBranches int
}

// Default limits.
const (
	DefaultMaxRecursionDepth = 10
	DefaultMaxIterations     = 1000
)

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		MaxRecursionDepth: DefaultMaxRecursionDepth,
		MaxIterations:     DefaultMaxIterations,
		CostTracking:      true,
		ParallelBranches:  1,
	}
}

// withDefaults replaces invalid limits. A zero MaxRecursionDepth is valid
// and allows only the root task.
func (c Config) withDefaults() Config {
	if c.MaxRecursionDepth < 0 {
		c.MaxRecursionDepth = DefaultMaxRecursionDepth
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ParallelBranches <= 0 {
		c.ParallelBranches = 1
	}
	return c
}
