package session

import (
	"context"
	"sync"

	"masterd/internal/models"
)

// flight is one in-progress chunk production. Concurrent requests for the
// same key attach to the same flight instead of duplicating work, and a
// flight always runs to completion: a stopped session or an expired waiter
// never cancels it, because the finished chunk lands in the cache either way.
type flight struct {
	done  chan struct{}
	chunk *models.Chunk
	err   error
}

// wait blocks until the flight completes or the waiter's context expires.
// Expiry abandons the wait only; production continues.
func (f *flight) wait(ctx context.Context) (*models.Chunk, error) {
	select {
	case <-f.done:
		return f.chunk, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// inflightRegistry guarantees at most one in-flight production per chunk
// key. Locking is per-registry but held only for map bookkeeping; the
// production itself runs outside.
type inflightRegistry struct {
	mutex   sync.Mutex
	flights map[models.ChunkKey]*flight
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{flights: make(map[models.ChunkKey]*flight)}
}

// begin returns the flight for the key and whether the caller is its leader
// (responsible for running production and calling finish).
func (r *inflightRegistry) begin(key models.ChunkKey) (*flight, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if f, ok := r.flights[key]; ok {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	r.flights[key] = f
	return f, true
}

// finish records the result, releases all waiters, and retires the flight.
func (r *inflightRegistry) finish(key models.ChunkKey, f *flight, chunk *models.Chunk, err error) {
	f.chunk = chunk
	f.err = err

	r.mutex.Lock()
	delete(r.flights, key)
	r.mutex.Unlock()

	close(f.done)
}

// pending reports how many productions are currently in flight.
func (r *inflightRegistry) pending() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.flights)
}
