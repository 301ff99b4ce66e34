// Package coordinator elects which node may run collection.
//
// Multiple nodes can serve reads and writes concurrently, but only one
// collector may sweep at a time. The election is a leased Redis lock: the
// winner holds a key with a TTL and renews it in the background, so a
// crashed holder frees the lease automatically when the TTL lapses.
package coordinator

import "context"

// Coordinator serializes collection runs across nodes.
type Coordinator interface {
	// Acquire tries to take the collection lease. It does not block: a
	// false return means another node holds it.
	Acquire(ctx context.Context) (bool, error)

	// Release gives the lease back. Releasing a lease this node does not
	// hold is a no-op.
	Release(ctx context.Context) error

	// Holder reports the identity of the current lease holder, or ""
	// when nobody holds it.
	Holder(ctx context.Context) (string, error)
}
