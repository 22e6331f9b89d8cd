package crawl

import (
	"context"
	"sync"
)

// CancelRegistry tracks in-flight jobs so operators can cancel them by ID.
type CancelRegistry struct {
	mu    sync.Mutex
	byJob map[string]context.CancelFunc
}

// NewCancelRegistry returns an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{byJob: make(map[string]context.CancelFunc)}
}

func (c *CancelRegistry) register(jobID string, cancel context.CancelFunc) {
	c.mu.Lock()
	c.byJob[jobID] = cancel
	c.mu.Unlock()
}

func (c *CancelRegistry) unregister(jobID string) {
	c.mu.Lock()
	delete(c.byJob, jobID)
	c.mu.Unlock()
}

// Cancel requests cancellation of a running job. Returns false when the job
// is not currently running.
func (c *CancelRegistry) Cancel(jobID string) bool {
	c.mu.Lock()
	cancel, ok := c.byJob[jobID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
