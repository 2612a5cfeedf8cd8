package socket

import (
	"sync"

	"github.com/gorilla/websocket"
)

// record tracks one registered handle: its callback set and, once a
// remote client has connected, a non-owning reference to the physical
// connection. A record outlives its connection; the conn reference is
// cleared on remote close so sends can be failed as stale rather than
// unknown.
type record struct {
	handle string
	cb     ConnectionCallbacks
	conn   *websocket.Conn

	// writeMu serializes writes to conn; gorilla/websocket permits at
	// most one concurrent writer per connection.
	writeMu sync.Mutex
}

// registry maps terminal handles to their records. It is written from
// connection goroutines (attach/detach) and from the owning goroutine
// (listen/remove/removeAll), so every access goes through mu.
type registry struct {
	mu      sync.Mutex
	records map[string]*record
}

func newRegistry() *registry {
	return &registry{records: make(map[string]*record)}
}

// listen registers or replaces the callback set for handle. An existing
// live connection reference is preserved; only the callbacks change.
func (r *registry) listen(handle string, cb ConnectionCallbacks) {
	if cb == nil {
		cb = NopCallbacks{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[handle]; ok {
		rec.cb = cb
		return
	}
	r.records[handle] = &record{handle: handle, cb: cb}
}

// remove deletes the record for handle. Returns false if no record
// exists. The physical connection, if any, is not closed.
func (r *registry) remove(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[handle]; !ok {
		return false
	}
	delete(r.records, handle)
	return true
}

// removeAll clears every record.
func (r *registry) removeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*record)
}

// count returns the number of registered handles.
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// attach stores the live connection reference for handle, creating the
// record with no-op callbacks if the handle was never registered, and
// returns the callbacks in effect.
func (r *registry) attach(handle string, conn *websocket.Conn) ConnectionCallbacks {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[handle]
	if !ok {
		rec = &record{handle: handle, cb: NopCallbacks{}}
		r.records[handle] = rec
	}
	rec.conn = conn
	return rec.cb
}

// detach clears the connection reference for handle if it still points
// at conn. The record itself is kept; deletion only happens through
// remove/removeAll. Returns the callbacks and whether a record existed.
func (r *registry) detach(handle string, conn *websocket.Conn) (ConnectionCallbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[handle]
	if !ok {
		return nil, false
	}
	if rec.conn == conn {
		rec.conn = nil
	}
	return rec.cb, true
}

// callbacks returns the callback set for handle, if registered.
func (r *registry) callbacks(handle string) (ConnectionCallbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[handle]
	if !ok {
		return nil, false
	}
	return rec.cb, true
}

// lookup returns the record for handle, if registered.
func (r *registry) lookup(handle string) (*record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[handle]
	return rec, ok
}

// connection returns the live connection reference for the record, or
// nil when the remote end has closed or never connected.
func (r *registry) connection(rec *record) *websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rec.conn
}
