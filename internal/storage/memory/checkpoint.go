package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

// Checkpoint holds DispatchProgress and remembers every saved value.
type Checkpoint struct {
	mu      sync.Mutex
	current archive.DispatchProgress
	history []int
}

// NewCheckpoint returns a checkpoint starting at lastIndex.
func NewCheckpoint(lastIndex int) *Checkpoint {
	return &Checkpoint{current: archive.DispatchProgress{LastIndex: lastIndex}}
}

// Load returns the current progress.
func (c *Checkpoint) Load(_ context.Context) (archive.DispatchProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

// Save records progress.
func (c *Checkpoint) Save(_ context.Context, progress archive.DispatchProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = progress
	c.history = append(c.history, progress.LastIndex)
	return nil
}

// History returns every index passed to Save, in order.
func (c *Checkpoint) History() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.history...)
}
