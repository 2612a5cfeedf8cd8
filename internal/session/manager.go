// Package session coordinates terminal sessions: persistence, the PTY
// process, and the websocket routing for each handle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terminal-mux/backend/internal/model"
	"github.com/terminal-mux/backend/internal/pty"
	"github.com/terminal-mux/backend/internal/repository"
	"github.com/terminal-mux/backend/internal/socket"
)

// Manager manages terminal sessions end to end. For each session it
// spawns the PTY process, persists the record, and arms the websocket
// socket to route the session's handle.
type Manager struct {
	ptyManager *pty.Manager
	repo       *repository.TerminalRepository
	sock       *socket.Socket
	logDir     string

	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Context
}

// Context holds the runtime state for one session.
type Context struct {
	Session *model.Session
	Process *pty.TerminalProcess
}

// Config holds configuration for the session manager.
type Config struct {
	LogDir      string
	MaxSessions int
}

// NewManager creates a session manager.
func NewManager(ptyManager *pty.Manager, repo *repository.TerminalRepository, sock *socket.Socket, config Config) *Manager {
	if config.MaxSessions == 0 {
		config.MaxSessions = 10
	}

	return &Manager{
		ptyManager:  ptyManager,
		repo:        repo,
		sock:        sock,
		logDir:      config.LogDir,
		maxSessions: config.MaxSessions,
		sessions:    make(map[string]*Context),
	}
}

// Socket returns the websocket facade the manager routes through.
func (m *Manager) Socket() *socket.Socket {
	return m.sock
}

// Create creates a new terminal session: generates a handle, persists
// the record, spawns the PTY process, and registers the handle with the
// websocket server so a remote client can attach.
func (m *Manager) Create(ctx context.Context, req *model.CreateSessionRequest) (*model.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	activeCount, err := m.repo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}
	if activeCount >= m.maxSessions {
		return nil, model.ErrConcurrencyLimit
	}

	handle := uuid.New().String()
	logFilePath := filepath.Join(m.logDir, fmt.Sprintf("%s.cast", handle))

	now := time.Now()
	sess := &model.Session{
		Handle:      handle,
		Name:        req.Name,
		Command:     req.Command,
		Workdir:     req.Workdir,
		Env:         req.Env,
		Status:      model.SessionStatusRunning,
		LogFilePath: logFilePath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sess.Name == "" {
		sess.Name = fmt.Sprintf("Terminal %s", handle[:8])
	}

	if err := m.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	process, err := m.ptyManager.Spawn(ctx, pty.SpawnOptions{
		Session:     sess,
		InitialRows: 24,
		InitialCols: 80,
		OutputCallback: func(data []byte) {
			m.forwardOutput(handle, data)
		},
		ExitCallback: func(exitCode int, err error) {
			m.handleProcessExit(handle, exitCode, err)
		},
	})
	if err != nil {
		m.repo.Delete(ctx, handle)
		return nil, fmt.Errorf("failed to spawn PTY: %w", err)
	}

	pid := process.PID()
	sess.PID = &pid

	// Arm the socket to recognize a future inbound connection for this
	// handle. The bridge routes client input into the PTY.
	if err := m.sock.Listen(handle, &terminalBridge{handle: handle, mgr: m}); err != nil {
		process.Close()
		m.repo.Delete(ctx, handle)
		return nil, fmt.Errorf("failed to register handle: %w", err)
	}

	m.mu.Lock()
	m.sessions[handle] = &Context{Session: sess, Process: process}
	m.mu.Unlock()

	return sess, nil
}

// Get retrieves a session by handle, preferring in-memory state.
func (m *Manager) Get(ctx context.Context, handle string) (*model.Session, error) {
	m.mu.RLock()
	sc, ok := m.sessions[handle]
	m.mu.RUnlock()

	if ok {
		return sc.Session, nil
	}
	return m.repo.GetByHandle(ctx, handle)
}

// GetContext retrieves the runtime context for a session.
func (m *Manager) GetContext(handle string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.sessions[handle]
	return sc, ok
}

// List retrieves all sessions.
func (m *Manager) List(ctx context.Context) ([]*model.Session, error) {
	return m.repo.List(ctx)
}

// Delete terminates a session: kills the PTY, unregisters the handle,
// and removes the persisted record.
func (m *Manager) Delete(ctx context.Context, handle string) error {
	m.mu.Lock()
	sc, ok := m.sessions[handle]
	if ok {
		delete(m.sessions, handle)
	}
	m.mu.Unlock()

	if ok && sc.Process != nil {
		if err := sc.Process.Close(); err != nil {
			log.Printf("Error closing terminal process %s: %v", handle, err)
		}
	}

	if err := m.sock.Stop(handle); err != nil && !errors.Is(err, model.ErrUnknownHandle) {
		log.Printf("Error unregistering handle %s: %v", handle, err)
	}

	return m.repo.Delete(ctx, handle)
}

// Close terminates all sessions and clears the socket registrations.
func (m *Manager) Close() {
	m.mu.Lock()
	contexts := make([]*Context, 0, len(m.sessions))
	for _, sc := range m.sessions {
		contexts = append(contexts, sc)
	}
	m.sessions = make(map[string]*Context)
	m.mu.Unlock()

	for _, sc := range contexts {
		if sc.Process != nil {
			sc.Process.Close()
		}
	}
	m.sock.StopAll()
}

// forwardOutput pushes PTY output down the session's websocket. A
// stale or unknown handle just means no client is attached; the output
// is still captured in the history buffer for replay on attach.
func (m *Manager) forwardOutput(handle string, data []byte) {
	err := m.sock.SendText(handle, string(data))
	if err != nil && !errors.Is(err, model.ErrStaleConnection) && !errors.Is(err, model.ErrUnknownHandle) {
		log.Printf("Failed to send output for terminal %s: %v", handle, err)
	}
}

// handleProcessExit records the exit and retires the handle.
func (m *Manager) handleProcessExit(handle string, exitCode int, err error) {
	status := model.SessionStatusExited
	var code *int
	if err != nil {
		status = model.SessionStatusFailed
		log.Printf("Terminal %s failed: %v", handle, err)
	} else {
		code = &exitCode
		log.Printf("Terminal %s exited with code %d", handle, exitCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if updateErr := m.repo.UpdateStatus(ctx, handle, status, code); updateErr != nil {
		log.Printf("Failed to update status for terminal %s: %v", handle, updateErr)
	}

	m.mu.Lock()
	if sc, ok := m.sessions[handle]; ok {
		sc.Session.Status = status
		sc.Session.ExitCode = code
		sc.Session.UpdatedAt = time.Now()
	}
	m.mu.Unlock()

	if stopErr := m.sock.Stop(handle); stopErr != nil && !errors.Is(stopErr, model.ErrUnknownHandle) {
		log.Printf("Failed to unregister exited terminal %s: %v", handle, stopErr)
	}
}

// terminalBridge implements socket.ConnectionCallbacks for one handle,
// connecting websocket events to the session's PTY.
type terminalBridge struct {
	handle string
	mgr    *Manager
}

// OnReceivedInput feeds client input into the PTY.
func (b *terminalBridge) OnReceivedInput(input string) {
	tp, ok := b.mgr.ptyManager.Get(b.handle)
	if !ok {
		return
	}
	if err := tp.Write([]byte(input)); err != nil {
		log.Printf("Failed to write input for terminal %s: %v", b.handle, err)
	}
}

// OnConnectionOpened replays buffered history so a reconnecting client
// sees recent output.
func (b *terminalBridge) OnConnectionOpened() {
	tp, ok := b.mgr.ptyManager.Get(b.handle)
	if !ok {
		return
	}

	history := tp.History.Bytes()
	if len(history) == 0 {
		return
	}
	if err := b.mgr.sock.SendText(b.handle, string(history)); err != nil {
		log.Printf("Failed to replay history for terminal %s: %v", b.handle, err)
	}
}

// OnConnectionClosed logs the detach; the PTY keeps running so the
// client can reattach later.
func (b *terminalBridge) OnConnectionClosed() {
	log.Printf("Client disconnected from terminal %s, process continues running", b.handle)
}
