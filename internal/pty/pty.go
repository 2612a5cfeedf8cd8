// Package pty spawns and manages the pseudo-terminal processes that
// back terminal sessions.
package pty

import (
	"io"
	"os/exec"
)

// PTY is a platform pseudo-terminal: reads return process output,
// writes feed process input.
type PTY interface {
	io.Reader
	io.Writer
	io.Closer

	// Resize changes the terminal window size.
	Resize(rows, cols uint16) error

	// Fd returns the master file descriptor.
	Fd() uintptr
}

// StartOptions contains options for starting a PTY process.
type StartOptions struct {
	// Command is the program to execute.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the process environment. If nil, the current environment is used.
	Env []string

	// Dir is the working directory. If empty, the current directory is used.
	Dir string

	// InitialRows and InitialCols set the starting window size.
	InitialRows uint16
	InitialCols uint16
}

// Process is a running command attached to a PTY.
type Process struct {
	PTY PTY
	Cmd *exec.Cmd

	pid int
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.pid
}

// Wait blocks until the process exits and returns its exit code.
// Returns -1 when the process was killed by a signal.
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Kill terminates the process.
func (p *Process) Kill() error {
	if p.Cmd.Process != nil {
		return p.Cmd.Process.Kill()
	}
	return nil
}

// Close releases the PTY.
func (p *Process) Close() error {
	return p.PTY.Close()
}
