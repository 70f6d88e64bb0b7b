// Package checkpoint tracks the host ledger's checkpoint (slot, block height)
// as seen by the control plane. Checkpoints are supplied from outside and
// never move backward.
package checkpoint

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegression is returned when a caller supplies a checkpoint below the
// last one observed.
var ErrRegression = errors.New("checkpoint: regression")

// Checkpoint is a monotonic position on the host ledger.
type Checkpoint = uint64

// Source reports the current checkpoint.
type Source interface {
	Current() Checkpoint
}

// Counter is a Source that only moves forward.
type Counter struct {
	mu  sync.RWMutex
	cur Checkpoint
}

func NewCounter(start Checkpoint) *Counter {
	return &Counter{cur: start}
}

func (c *Counter) Current() Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// Advance moves the counter to to. Advancing to the current value is a no-op.
func (c *Counter) Advance(to Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to < c.cur {
		return fmt.Errorf("%w: %d < %d", ErrRegression, to, c.cur)
	}
	c.cur = to
	return nil
}

// Check returns ErrRegression if at is behind src.
func Check(src Source, at Checkpoint) error {
	if cur := src.Current(); at < cur {
		return fmt.Errorf("%w: %d < %d", ErrRegression, at, cur)
	}
	return nil
}
