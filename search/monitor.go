package search

import (
	"time"

	"github.com/poiesic/recall/core"
)

// Monitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type Monitor interface {
	Start(query string)
	Stage(stage core.Stage)
	Finish(results []core.QueryResult, elapsed time.Duration, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                        {}
func (n *noopMonitor) Stage(_ core.Stage)                                    {}
func (n *noopMonitor) Finish(_ []core.QueryResult, _ time.Duration, _ error) {}
