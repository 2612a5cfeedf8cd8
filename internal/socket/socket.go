package socket

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terminal-mux/backend/internal/model"
)

// writeWait is the time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// Socket channels input and output between logical terminal sessions
// and their remote websocket clients. Sessions are identified by an
// opaque handle; clients connect to ws://host:port/terminal/<handle>/.
//
// All public operations are synchronous and safe to call from the
// owning goroutine while the server's connection goroutines run in the
// background. After StopServer returns, no callback fires.
type Socket struct {
	mu      sync.Mutex
	port    int
	running bool
	srv     *transportServer

	registry *registry
}

// New creates a Socket with no server running and no handles registered.
func New() *Socket {
	return &Socket{registry: newRegistry()}
}

// EnsureServerRunning starts the websocket server if it is not already
// running. Idempotent. A port is chosen pseudo-randomly from a fixed
// range; address-in-use failures are retried transparently up to the
// retry ceiling, after which ErrBindExhausted is returned.
func (s *Socket) EnsureServerRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	srv := newTransportServer(s.registry)
	port, err := srv.start()
	if err != nil {
		return err
	}

	s.srv = srv
	s.port = port
	s.running = true
	return nil
}

// StopServer stops the websocket server if it is running. Idempotent.
// All registered handles are cleared and the call blocks until every
// background goroutine has exited, so no callback fires after it
// returns. Teardown faults are converted to error values; the call
// never panics across this boundary.
func (s *Socket) StopServer() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: shutdown panic: %v", model.ErrTransport, r)
		}
	}()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	srv := s.srv
	s.srv = nil
	s.running = false
	s.port = 0
	s.mu.Unlock()

	s.registry.removeAll()
	err = srv.stop()

	// A connection goroutine that was already past track when teardown
	// began may attach after the clear above; sweep again now that every
	// goroutine has been joined.
	s.registry.removeAll()
	return err
}

// Listen registers (or replaces) the callback set for handle, arming
// the socket to route a future inbound connection whose resolved handle
// matches. No network connection is opened. Fails with ErrNotRunning if
// the server has not been started.
//
// If a live connection already exists for handle, it stays up;
// subsequent events are routed to the new callbacks.
func (s *Socket) Listen(handle string, cb ConnectionCallbacks) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return model.ErrNotRunning
	}

	s.registry.listen(handle, cb)
	return nil
}

// Stop removes the registration for handle. The underlying physical
// connection, if any, is not force-closed. Fails with ErrUnknownHandle
// if no record exists.
func (s *Socket) Stop(handle string) error {
	if !s.registry.remove(handle) {
		return fmt.Errorf("%w: %q", model.ErrUnknownHandle, handle)
	}
	return nil
}

// StopAll clears every registration. Always succeeds.
func (s *Socket) StopAll() error {
	s.registry.removeAll()
	return nil
}

// SendText sends message to handle's remote client as a single text
// frame. Fails with ErrUnknownHandle if the handle has no registration,
// ErrStaleConnection if the physical connection is gone, and
// ErrBadMessage wrapping any low-level send failure.
func (s *Socket) SendText(handle, message string) error {
	rec, ok := s.registry.lookup(handle)
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownHandle, handle)
	}

	conn := s.registry.connection(rec)
	if conn == nil {
		return fmt.Errorf("%w: %q", model.ErrStaleConnection, handle)
	}

	rec.writeMu.Lock()
	defer rec.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		return fmt.Errorf("%w: %v", model.ErrBadMessage, err)
	}
	return nil
}

// Port returns the currently bound port, or 0 when not running.
func (s *Socket) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Count returns the number of registered handles.
func (s *Socket) Count() int {
	return s.registry.count()
}
