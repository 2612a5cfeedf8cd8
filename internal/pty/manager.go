package pty

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/terminal-mux/backend/internal/buffer"
	"github.com/terminal-mux/backend/internal/logger"
	"github.com/terminal-mux/backend/internal/model"
)

const (
	// DefaultHistorySize is the ring buffer capacity per terminal (64KB).
	DefaultHistorySize = 64 * 1024

	// DefaultReadBufferSize is the buffer size for reading PTY output.
	DefaultReadBufferSize = 4096
)

// TerminalProcess is a running PTY process and its associated
// resources, identified by its session handle.
type TerminalProcess struct {
	Handle   string
	Session  *model.Session
	Process  *Process
	History  *buffer.RingBuffer
	Recorder *logger.Recorder

	// OutputCallback is invoked with each chunk of terminal output.
	OutputCallback func(data []byte)

	// ExitCallback is invoked once when the process exits.
	ExitCallback func(exitCode int, err error)

	mu     sync.RWMutex
	closed bool
}

// Manager tracks the PTY processes backing terminal sessions.
type Manager struct {
	mu        sync.RWMutex
	processes map[string]*TerminalProcess

	// HistorySize is the ring buffer capacity for each terminal.
	HistorySize int
}

// NewManager creates a PTY manager.
func NewManager() *Manager {
	return &Manager{
		processes:   make(map[string]*TerminalProcess),
		HistorySize: DefaultHistorySize,
	}
}

// SpawnOptions contains options for spawning a terminal process.
type SpawnOptions struct {
	// Session carries the handle, command, workdir, env and transcript path.
	Session *model.Session

	InitialRows uint16
	InitialCols uint16

	OutputCallback func(data []byte)
	ExitCallback   func(exitCode int, err error)
}

// Spawn starts a new PTY process for the session.
func (m *Manager) Spawn(ctx context.Context, opts SpawnOptions) (*TerminalProcess, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.Session.Command == "" {
		return nil, model.ErrCommandRequired
	}

	if opts.InitialRows == 0 {
		opts.InitialRows = 24
	}
	if opts.InitialCols == 0 {
		opts.InitialCols = 80
	}

	env := os.Environ()
	for k, v := range opts.Session.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	var recorder *logger.Recorder
	if opts.Session.LogFilePath != "" {
		var err error
		recorder, err = logger.NewRecorder(opts.Session.LogFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create transcript recorder: %w", err)
		}
		if err := recorder.WriteHeader(int(opts.InitialCols), int(opts.InitialRows), nil); err != nil {
			recorder.Close()
			return nil, fmt.Errorf("failed to write transcript header: %w", err)
		}
	}

	parts := splitCommand(opts.Session.Command)
	if len(parts) == 0 {
		if recorder != nil {
			recorder.Close()
		}
		return nil, fmt.Errorf("invalid command")
	}

	process, err := Start(StartOptions{
		Command:     parts[0],
		Args:        parts[1:],
		Env:         env,
		Dir:         opts.Session.Workdir,
		InitialRows: opts.InitialRows,
		InitialCols: opts.InitialCols,
	})
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	tp := &TerminalProcess{
		Handle:         opts.Session.Handle,
		Session:        opts.Session,
		Process:        process,
		History:        buffer.NewRingBuffer(m.HistorySize),
		Recorder:       recorder,
		OutputCallback: opts.OutputCallback,
		ExitCallback:   opts.ExitCallback,
	}

	m.mu.Lock()
	m.processes[tp.Handle] = tp
	m.mu.Unlock()

	go tp.readLoop()
	go tp.waitLoop(m)

	return tp, nil
}

// Get returns the terminal process for handle.
func (m *Manager) Get(handle string) (*TerminalProcess, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tp, ok := m.processes[handle]
	return tp, ok
}

// Remove drops the process from the manager. Call after exit.
func (m *Manager) Remove(handle string) {
	m.mu.Lock()
	delete(m.processes, handle)
	m.mu.Unlock()
}

// List returns all tracked terminal processes.
func (m *Manager) List() []*TerminalProcess {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*TerminalProcess, 0, len(m.processes))
	for _, tp := range m.processes {
		result = append(result, tp)
	}
	return result
}

// Close terminates every tracked process.
func (m *Manager) Close() error {
	m.mu.Lock()
	processes := make([]*TerminalProcess, 0, len(m.processes))
	for _, tp := range m.processes {
		processes = append(processes, tp)
	}
	m.mu.Unlock()

	var firstErr error
	for _, tp := range processes {
		if err := tp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readLoop reads terminal output and distributes it to the history
// buffer, the transcript recorder, and the output callback.
func (tp *TerminalProcess) readLoop() {
	buf := make([]byte, DefaultReadBufferSize)

	for {
		n, err := tp.Process.PTY.Read(buf)
		if n > 0 {
			data := buf[:n]

			tp.History.Write(data)
			if tp.Recorder != nil {
				tp.Recorder.WriteOutput(data)
			}
			if tp.OutputCallback != nil {
				tp.OutputCallback(data)
			}
		}
		if err != nil {
			// EOF or a read error after close; either way the terminal
			// produces no more output.
			return
		}
	}
}

// waitLoop waits for process exit, fires the exit callback, and cleans up.
func (tp *TerminalProcess) waitLoop(m *Manager) {
	exitCode, err := tp.Process.Wait()

	if tp.ExitCallback != nil {
		tp.ExitCallback(exitCode, err)
	}

	tp.Close()
	m.Remove(tp.Handle)
}

// Write feeds data to the terminal's input.
func (tp *TerminalProcess) Write(data []byte) error {
	tp.mu.RLock()
	closed := tp.closed
	tp.mu.RUnlock()
	if closed {
		return fmt.Errorf("terminal process is closed")
	}

	if _, err := tp.Process.PTY.Write(data); err != nil {
		return fmt.Errorf("failed to write to PTY: %w", err)
	}

	if tp.Recorder != nil {
		tp.Recorder.WriteInput(data)
	}
	return nil
}

// Resize changes the terminal window size.
func (tp *TerminalProcess) Resize(rows, cols uint16) error {
	return tp.Process.PTY.Resize(rows, cols)
}

// PID returns the process ID.
func (tp *TerminalProcess) PID() int {
	return tp.Process.PID()
}

// Close kills the process and releases the PTY and transcript.
func (tp *TerminalProcess) Close() error {
	tp.mu.Lock()
	if tp.closed {
		tp.mu.Unlock()
		return nil
	}
	tp.closed = true
	tp.mu.Unlock()

	tp.Process.Kill()
	err := tp.Process.Close()
	if tp.Recorder != nil {
		tp.Recorder.Close()
	}
	return err
}

// splitCommand splits a command line into fields, honoring single and
// double quotes.
func splitCommand(command string) []string {
	var (
		parts   []string
		current strings.Builder
		quote   rune
	)

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t':
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
