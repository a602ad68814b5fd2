// Package registry tracks the outbound queues of live sessions so the
// host can broadcast to every connected client.
package registry

import "sync"

// Registry maps connection ids to outbound message channels. It holds
// sender endpoints only, not the sockets: an entry is valid for as long
// as the owning session's writer is alive, and the session removes its
// own entry on teardown. A stale entry between a session's death and its
// removal only costs a dropped broadcast.
//
// All operations are mutually exclusive; nothing performs I/O or blocks
// while the lock is held.
type Registry struct {
	mu    sync.Mutex
	conns map[string]chan<- []byte
}

func New() *Registry {
	return &Registry{conns: make(map[string]chan<- []byte)}
}

// Register inserts unconditionally; the last writer for an id wins.
// Ids are generated fresh per session, so collisions do not occur in
// practice.
func (r *Registry) Register(id string, ch chan<- []byte) {
	r.mu.Lock()
	r.conns[id] = ch
	r.mu.Unlock()
}

// Unregister removes the entry if present. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Count returns the current number of entries. Approximate under
// concurrent churn.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Broadcast enqueues message on every registered channel and returns the
// number of successful deliveries. The enqueue is a non-blocking push
// against a snapshot of the current entries: a session whose queue is
// full is skipped and never blocks the others. Dead sessions are not
// unregistered here; their own writers notice on the next send.
func (r *Registry) Broadcast(message []byte) int {
	r.mu.Lock()
	snapshot := make([]chan<- []byte, 0, len(r.conns))
	for _, ch := range r.conns {
		snapshot = append(snapshot, ch)
	}
	r.mu.Unlock()

	delivered := 0
	for _, ch := range snapshot {
		select {
		case ch <- message:
			delivered++
		default:
		}
	}
	return delivered
}
