package coordinator

import (
	"context"
	"sync"
)

// Noop is the single-node coordinator: the lease always succeeds locally.
type Noop struct {
	identity string

	mu   sync.Mutex
	held bool
}

var _ Coordinator = (*Noop)(nil)

// NewNoop creates a coordinator for single-node deployments.
func NewNoop(identity string) *Noop {
	if identity == "" {
		identity = "local"
	}
	return &Noop{identity: identity}
}

func (n *Noop) Acquire(ctx context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.held {
		return true, nil
	}
	n.held = true
	return true, nil
}

func (n *Noop) Release(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.held = false
	return nil
}

func (n *Noop) Holder(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.held {
		return "", nil
	}
	return n.identity, nil
}
