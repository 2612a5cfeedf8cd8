package socket

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terminal-mux/backend/internal/model"
)

func startSocket(t *testing.T) *Socket {
	t.Helper()

	s := New()
	if err := s.EnsureServerRunning(); err != nil {
		t.Fatalf("EnsureServerRunning: %v", err)
	}
	t.Cleanup(func() { s.StopServer() })
	return s
}

func terminalURL(port int, handle string) string {
	return fmt.Sprintf("ws://localhost:%d/terminal/%s/", port, handle)
}

func dialTerminal(t *testing.T, port int, handle string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(terminalURL(port, handle), nil)
	if err != nil {
		t.Fatalf("failed to dial terminal %s: %v", handle, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitOpened(t *testing.T, rec *inputRecorder) {
	t.Helper()
	select {
	case <-rec.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for open event")
	}
}

func waitClosed(t *testing.T, rec *inputRecorder) {
	t.Helper()
	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close event")
	}
}

func expectInput(t *testing.T, rec *inputRecorder, want string) {
	t.Helper()
	select {
	case got := <-rec.inputs:
		if got != want {
			t.Errorf("received input %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for input %q", want)
	}
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected text frame, got type %d", msgType)
	}
	return string(payload)
}

// TestRoundTrip verifies byte-exact delivery in both directions for a
// single handle.
func TestRoundTrip(t *testing.T) {
	s := startSocket(t)

	rec := newInputRecorder()
	if err := s.Listen("abcd", rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	conn := dialTerminal(t, s.Port(), "abcd")
	waitOpened(t, rec)

	input := "echo 'hello \x1b[31mworld\x1b[0m'\r"
	if err := conn.WriteMessage(websocket.TextMessage, []byte(input)); err != nil {
		t.Fatalf("client write: %v", err)
	}
	expectInput(t, rec, input)

	output := "hello \x1b[31mworld\x1b[0m\r\n"
	if err := s.SendText("abcd", output); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got := readText(t, conn); got != output {
		t.Errorf("client received %q, want %q", got, output)
	}
}

// TestHandleIsolation verifies that traffic for one handle never
// reaches another handle's callbacks.
func TestHandleIsolation(t *testing.T) {
	s := startSocket(t)

	rec1 := newInputRecorder()
	rec2 := newInputRecorder()
	if err := s.Listen("h1", rec1); err != nil {
		t.Fatalf("Listen h1: %v", err)
	}
	if err := s.Listen("h2", rec2); err != nil {
		t.Fatalf("Listen h2: %v", err)
	}

	conn1 := dialTerminal(t, s.Port(), "h1")
	conn2 := dialTerminal(t, s.Port(), "h2")
	waitOpened(t, rec1)
	waitOpened(t, rec2)

	if err := conn1.WriteMessage(websocket.TextMessage, []byte("for h1")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	expectInput(t, rec1, "for h1")

	select {
	case got := <-rec2.inputs:
		t.Errorf("h2 received h1's input %q", got)
	case <-time.After(200 * time.Millisecond):
	}

	// And sends route independently.
	if err := s.SendText("h2", "to h2"); err != nil {
		t.Fatalf("SendText h2: %v", err)
	}
	if got := readText(t, conn2); got != "to h2" {
		t.Errorf("h2 client received %q, want %q", got, "to h2")
	}
}

// TestSendAfterStop verifies the distinction between a removed
// registration and a stale connection.
func TestSendAfterStop(t *testing.T) {
	s := startSocket(t)

	rec := newInputRecorder()
	if err := s.Listen("abcd", rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	conn := dialTerminal(t, s.Port(), "abcd")
	waitOpened(t, rec)

	if err := s.Stop("abcd"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.SendText("abcd", "msg"); !errors.Is(err, model.ErrUnknownHandle) {
		t.Errorf("SendText after Stop = %v, want ErrUnknownHandle", err)
	}

	// The physical connection is not force-closed by Stop.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("still up")); err != nil {
		t.Errorf("connection closed by Stop: %v", err)
	}
}

// TestSendAfterRemoteClose verifies that a remote disconnect leaves the
// record in place but marks the connection stale.
func TestSendAfterRemoteClose(t *testing.T) {
	s := startSocket(t)

	rec := newInputRecorder()
	if err := s.Listen("abcd", rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	conn := dialTerminal(t, s.Port(), "abcd")
	waitOpened(t, rec)

	conn.Close()
	waitClosed(t, rec)

	if err := s.SendText("abcd", "msg"); !errors.Is(err, model.ErrStaleConnection) {
		t.Errorf("SendText after remote close = %v, want ErrStaleConnection", err)
	}

	// The registration itself survives until an explicit Stop.
	if s.Count() != 1 {
		t.Errorf("count after remote close = %d, want 1", s.Count())
	}
}

// TestListenReplacementReroutesLiveConnection verifies the re-listen
// policy: callbacks are swapped while the physical connection stays up.
func TestListenReplacementReroutesLiveConnection(t *testing.T) {
	s := startSocket(t)

	first := newInputRecorder()
	if err := s.Listen("abcd", first); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	conn := dialTerminal(t, s.Port(), "abcd")
	waitOpened(t, first)

	second := newInputRecorder()
	if err := s.Listen("abcd", second); err != nil {
		t.Fatalf("re-Listen: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("rerouted")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	expectInput(t, second, "rerouted")

	select {
	case got := <-first.inputs:
		t.Errorf("replaced callbacks received input %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestDiagnosticsPage verifies that a plain HTTP request to the
// websocket port returns the static diagnostic page.
func TestDiagnosticsPage(t *testing.T) {
	s := startSocket(t)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/anything", s.Port()))
	if err != nil {
		t.Fatalf("http get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "terminal websocket server") {
		t.Errorf("unexpected diagnostic body: %s", body)
	}
}

// TestUnresolvableHandleRejected verifies that upgrades whose path
// carries no handle are rejected before the upgrade completes.
func TestUnresolvableHandleRejected(t *testing.T) {
	s := startSocket(t)

	badPaths := []string{
		fmt.Sprintf("ws://localhost:%d/terminal/abcd", s.Port()),
		fmt.Sprintf("ws://localhost:%d/terminal//", s.Port()),
		fmt.Sprintf("ws://localhost:%d/", s.Port()),
	}
	for _, url := range badPaths {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			conn.Close()
			t.Errorf("%s: expected handshake failure", url)
			continue
		}
		if resp == nil || resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404 rejection, got %v", url, resp)
		}
	}
}

// TestIPv4ClientsReachServer verifies the listener accepts explicit
// IPv4 connections. On hosts with an IPv6 stack the wildcard listen
// must be dual-stack, not v6-only.
func TestIPv4ClientsReachServer(t *testing.T) {
	s := startSocket(t)

	raw, err := net.Dial("tcp4", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	if err != nil {
		t.Fatalf("IPv4 dial refused: %v", err)
	}
	raw.Close()

	rec := newInputRecorder()
	if err := s.Listen("abcd", rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("ws://127.0.0.1:%d/terminal/abcd/", s.Port()), nil)
	if err != nil {
		t.Fatalf("IPv4 websocket dial: %v", err)
	}
	defer conn.Close()
	waitOpened(t, rec)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("over v4")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	expectInput(t, rec, "over v4")
}

// TestStopServerLeavesRegistryEmpty races connection opens against
// StopServer: a goroutine already past the upgrade must not leave a
// phantom record behind once StopServer has returned.
func TestStopServerLeavesRegistryEmpty(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := New()
		if err := s.EnsureServerRunning(); err != nil {
			t.Fatalf("EnsureServerRunning: %v", err)
		}
		port := s.Port()

		stop := make(chan struct{})
		var wg sync.WaitGroup
		for d := 0; d < 4; d++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; ; j++ {
					select {
					case <-stop:
						return
					default:
					}
					conn, _, err := websocket.DefaultDialer.Dial(
						terminalURL(port, fmt.Sprintf("h%d-%d", n, j)), nil)
					if err != nil {
						return
					}
					conn.Close()
				}
			}(d)
		}

		time.Sleep(5 * time.Millisecond)
		if err := s.StopServer(); err != nil {
			t.Fatalf("StopServer: %v", err)
		}
		if got := s.Count(); got != 0 {
			t.Fatalf("iteration %d: count after StopServer = %d, want 0", i, got)
		}

		close(stop)
		wg.Wait()
	}
}

// TestNoCallbackAfterStopServer verifies the hard synchronization
// contract: once StopServer returns, no event fires.
func TestNoCallbackAfterStopServer(t *testing.T) {
	s := startSocket(t)

	rec := newInputRecorder()
	if err := s.Listen("abcd", rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	dialTerminal(t, s.Port(), "abcd")
	waitOpened(t, rec)

	if err := s.StopServer(); err != nil {
		t.Fatalf("StopServer: %v", err)
	}

	// Drain anything delivered before the stop completed, then verify
	// silence.
	for {
		select {
		case <-rec.inputs:
			continue
		case <-rec.closed:
			continue
		case <-time.After(200 * time.Millisecond):
			return
		}
	}
}

// TestStopAllDuringConcurrentOpens stresses the registry with opens
// racing StopAll.
func TestStopAllDuringConcurrentOpens(t *testing.T) {
	s := startSocket(t)
	port := s.Port()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; ; j++ {
				select {
				case <-stop:
					return
				default:
				}

				conn, _, err := websocket.DefaultDialer.Dial(
					terminalURL(port, fmt.Sprintf("h%d-%d", n, j)), nil)
				if err != nil {
					continue
				}
				conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				conn.Close()
			}
		}(i)
	}

	for i := 0; i < 100; i++ {
		if err := s.Listen(fmt.Sprintf("reg-%d", i), newInputRecorder()); err != nil {
			t.Errorf("Listen: %v", err)
		}
		if err := s.StopAll(); err != nil {
			t.Errorf("StopAll: %v", err)
		}
	}

	close(stop)
	wg.Wait()

	// Let in-flight server handlers settle, then a final clear must
	// leave the registry empty.
	time.Sleep(100 * time.Millisecond)
	if err := s.StopAll(); err != nil {
		t.Fatalf("final StopAll: %v", err)
	}
	if got := s.Count(); got != 0 {
		t.Errorf("count after final StopAll = %d, want 0", got)
	}
}
