// Package repository provides persistence for terminal session records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/terminal-mux/backend/internal/model"
)

// TerminalRepository stores terminal session records in SQLite, keyed
// by handle.
type TerminalRepository struct {
	db *sql.DB
}

// NewTerminalRepository creates a TerminalRepository backed by db.
func NewTerminalRepository(db *sql.DB) *TerminalRepository {
	return &TerminalRepository{db: db}
}

// Create inserts a new session record.
func (r *TerminalRepository) Create(ctx context.Context, s *model.Session) error {
	env, err := s.EnvToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode env: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO terminals (handle, name, command, workdir, env, status, exit_code, pid, log_file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Handle, s.Name, s.Command, s.Workdir, env, string(s.Status),
		s.ExitCode, s.PID, s.LogFilePath, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByHandle retrieves the session registered under handle.
func (r *TerminalRepository) GetByHandle(ctx context.Context, handle string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT handle, name, command, workdir, env, status, exit_code, pid, log_file_path, created_at, updated_at
		FROM terminals WHERE handle = ?`, handle)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// List retrieves all sessions, newest first.
func (r *TerminalRepository) List(ctx context.Context) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT handle, name, command, workdir, env, status, exit_code, pid, log_file_path, created_at, updated_at
		FROM terminals ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpdateStatus sets the session's status and exit code.
func (r *TerminalRepository) UpdateStatus(ctx context.Context, handle string, status model.SessionStatus, exitCode *int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE terminals SET status = ?, exit_code = ?, updated_at = ? WHERE handle = ?`,
		string(status), exitCode, time.Now(), handle)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// Delete removes the session record.
func (r *TerminalRepository) Delete(ctx context.Context, handle string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM terminals WHERE handle = ?`, handle)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// CountActive returns the number of sessions in the running state.
func (r *TerminalRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM terminals WHERE status = ?`,
		string(model.SessionStatusRunning)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// scanner abstracts sql.Row and sql.Rows for scanSession.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*model.Session, error) {
	var (
		s       model.Session
		workdir sql.NullString
		env     sql.NullString
		status  string
	)

	err := row.Scan(&s.Handle, &s.Name, &s.Command, &workdir, &env, &status,
		&s.ExitCode, &s.PID, &s.LogFilePath, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.Workdir = workdir.String
	s.Status = model.SessionStatus(status)
	if err := s.EnvFromJSON(env.String); err != nil {
		return nil, fmt.Errorf("failed to decode env: %w", err)
	}
	return &s, nil
}
