package ingestion

import (
	"time"

	"github.com/poiesic/recall/core"
)

// Monitor provides hooks to observe ingestion.
// Implementations must be safe for concurrent use; calls for concurrent
// ingestions interleave.
type Monitor interface {
	Start(source string, texts int)
	Stage(stage core.Stage)
	Finish(result *Result, elapsed time.Duration, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                      {}
func (n *noopMonitor) Stage(_ core.Stage)                         {}
func (n *noopMonitor) Finish(_ *Result, _ time.Duration, _ error) {}
