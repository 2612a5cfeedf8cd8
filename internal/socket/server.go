package socket

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/terminal-mux/backend/internal/model"
)

const (
	// Candidate ports are drawn from [minPort, minPort+portRange).
	minPort   = 3000
	portRange = 5000

	// maxBindRetries is how many candidate ports are tried before
	// giving up with ErrBindExhausted.
	maxBindRetries = 20

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds an ephemeral port known only to the session
		// owner; cross-origin clients are expected.
		return true
	},
}

// diagnosticsPage is returned for plain HTTP requests to the websocket
// port. Manual inspection only, not part of the protocol contract.
const diagnosticsPage = `<html><body><pre>
terminal websocket server

connect with: ws://host:port/terminal/&lt;handle&gt;/
</pre></body></html>
`

// transportServer owns the listening socket and drives per-connection
// event dispatch. Each accepted connection is handled on its own
// goroutine; stop closes the listener and every live connection and
// waits for all of those goroutines to exit.
type transportServer struct {
	registry *registry
	httpSrv  *http.Server
	port     int

	mu     sync.Mutex
	closed bool
	conns  map[*websocket.Conn]struct{}

	wg   sync.WaitGroup
	done chan struct{}
}

func newTransportServer(reg *registry) *transportServer {
	return &transportServer{
		registry: reg,
		conns:    make(map[*websocket.Conn]struct{}),
		done:     make(chan struct{}),
	}
}

// start binds a port from the candidate range and launches the accept
// loop. Returns the bound port.
func (t *transportServer) start() (int, error) {
	ln, port, err := bindListener()
	if err != nil {
		return 0, err
	}

	t.port = port
	t.httpSrv = &http.Server{Handler: t}

	go func() {
		defer close(t.done)
		if err := t.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Terminal websocket server stopped: %v", err)
		}
	}()

	return port, nil
}

// stop closes the listener and every live connection, then blocks until
// all connection goroutines and the accept loop have exited. No handler
// event fires after stop returns.
func (t *transportServer) stop() error {
	t.mu.Lock()
	t.closed = true
	conns := make([]*websocket.Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	err := t.httpSrv.Close()

	// Close does not touch hijacked connections, so force the websocket
	// read loops to unblock ourselves.
	for _, c := range conns {
		c.Close()
	}

	t.wg.Wait()
	<-t.done

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%w: %v", model.ErrTransport, err)
	}
	return nil
}

// ServeHTTP dispatches inbound requests: websocket upgrades are routed
// by handle, anything else gets the diagnostic page.
func (t *transportServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, diagnosticsPage)
		return
	}

	handle := ResolveHandle(r.URL.Path)
	if handle == "" {
		// A connection that can never be routed is rejected before the
		// upgrade completes.
		http.Error(w, "unknown terminal handle", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed for terminal %s: %v", handle, err)
		return
	}

	if !t.track(conn) {
		conn.Close()
		return
	}
	defer t.untrack(conn)

	t.serveConn(handle, conn)
}

// track records a live connection. Returns false if the server is
// already stopping, in which case the caller must drop the connection.
func (t *transportServer) track(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.conns[conn] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *transportServer) untrack(conn *websocket.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
	t.wg.Done()
}

// serveConn runs the read loop for one physical connection: attach the
// connection to its handle, forward text frames to the registered
// callbacks, and signal the close event when the remote end goes away.
func (t *transportServer) serveConn(handle string, conn *websocket.Conn) {
	defer conn.Close()

	cb := t.registry.attach(handle, conn)
	cb.OnConnectionOpened()

	conn.SetReadLimit(maxMessageSize)
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Terminal %s: websocket read error: %v", handle, err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		// Look callbacks up per message so a Listen replacement takes
		// effect on the live connection.
		if current, ok := t.registry.callbacks(handle); ok {
			current.OnReceivedInput(string(payload))
		}
	}

	if closedCb, ok := t.registry.detach(handle, conn); ok {
		closedCb.OnConnectionClosed()
	}
}

// bindListener picks candidate ports pseudo-randomly and binds the
// first free one. Address-in-use failures are retried with a fresh
// candidate; any other bind failure is fatal.
func bindListener() (net.Listener, int, error) {
	for attempt := 0; attempt < maxBindRetries; attempt++ {
		port := minPort + rand.Intn(portRange)

		ln, err := listenPort(port)
		if err == nil {
			return ln, port, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, fmt.Errorf("%w: %v", model.ErrTransport, err)
		}
	}
	return nil, 0, model.ErrBindExhausted
}

// listenPort binds the given port. On hosts with an IPv6 stack the
// wildcard "tcp" listen yields a dual-stack socket that also accepts
// IPv4 clients; hosts without IPv6 get an explicit IPv4 bind.
func listenPort(port int) (net.Listener, error) {
	if hasIPv6() {
		return net.Listen("tcp", fmt.Sprintf(":%d", port))
	}
	return net.Listen("tcp4", fmt.Sprintf(":%d", port))
}

// hasIPv6 reports whether any interface carries an IPv6 address.
func hasIPv6() bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if ok && ipNet.IP.To4() == nil && ipNet.IP.To16() != nil {
			return true
		}
	}
	return false
}
