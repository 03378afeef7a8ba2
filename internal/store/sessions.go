package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iksnae/tempo/internal"
)

const sessionColumns = `id, project_id, start_time, end_time, context, paused_duration, notes, created_at`

// SessionEnd closes one open session
type SessionEnd struct {
	ID             int64
	EndTime        time.Time
	PausedDuration time.Duration
}

// SessionFilter narrows ListSessions. Zero values mean "no constraint".
type SessionFilter struct {
	ProjectID int64
	From      time.Time
	To        time.Time
	Limit     int
}

func scanSession(row rowScanner) (*internal.Session, error) {
	var (
		s              internal.Session
		start, created string
		end, notes     sql.NullString
		contextName    string
		pausedSeconds  int64
	)
	if err := row.Scan(&s.ID, &s.ProjectID, &start, &end, &contextName, &pausedSeconds, &notes, &created); err != nil {
		return nil, err
	}
	var err error
	if s.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, err
		}
		s.EndTime = &t
	}
	if s.Context, err = internal.ParseSessionContext(contextName); err != nil {
		return nil, err
	}
	s.PausedDuration = time.Duration(pausedSeconds) * time.Second
	s.Notes = stringPtr(notes)
	return &s, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, sess *internal.Session) (int64, error) {
	if err := sess.Validate(sess.StartTime); err != nil {
		return 0, err
	}
	var end sql.NullString
	if sess.EndTime != nil {
		end = sql.NullString{String: formatTime(*sess.EndTime), Valid: true}
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO sessions (project_id, start_time, end_time, context, paused_duration, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ProjectID, formatTime(sess.StartTime), end, sess.Context.String(),
		int64(sess.PausedDuration/time.Second), nullString(sess.Notes), formatTime(sess.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func endSession(ctx context.Context, db execer, end SessionEnd) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, paused_duration = ? WHERE id = ? AND end_time IS NULL`,
		formatTime(end.EndTime), int64(end.PausedDuration/time.Second), end.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("open session %d: %w", end.ID, internal.ErrSessionNotFound)
	}
	return nil
}

// CreateSession inserts sess and returns its id. sess.ID is set on success.
func (s *Store) CreateSession(ctx context.Context, sess *internal.Session) (int64, error) {
	var id int64
	err := s.withDB(ctx, "create", "session", func(db *sql.DB) error {
		var err error
		id, err = insertSession(ctx, db, sess)
		return err
	})
	if err != nil {
		return 0, err
	}
	sess.ID = id
	return id, nil
}

// EndSession stamps the end time of an open session
func (s *Store) EndSession(ctx context.Context, end SessionEnd) error {
	return s.withDB(ctx, "end", "session", func(db *sql.DB) error {
		return endSession(ctx, db, end)
	})
}

// SwitchSession closes prev and opens next in one transaction, so either both
// rows change or neither does.
func (s *Store) SwitchSession(ctx context.Context, prev SessionEnd, next *internal.Session) (int64, error) {
	var id int64
	err := s.withTx(ctx, "switch", "session", func(tx *sql.Tx) error {
		if err := endSession(ctx, tx, prev); err != nil {
			return err
		}
		var err error
		id, err = insertSession(ctx, tx, next)
		return err
	})
	if err != nil {
		return 0, err
	}
	next.ID = id
	return id, nil
}

// FindSessionByID returns internal.ErrSessionNotFound when id is unknown
func (s *Store) FindSessionByID(ctx context.Context, id int64) (*internal.Session, error) {
	var sess *internal.Session
	err := s.withDB(ctx, "find", "session", func(db *sql.DB) error {
		var err error
		sess, err = scanSession(db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return internal.ErrSessionNotFound
		}
		return err
	})
	return sess, err
}

// ListOpenSessions returns every session without an end time
func (s *Store) ListOpenSessions(ctx context.Context) ([]*internal.Session, error) {
	return s.querySessions(ctx, "list", `SELECT `+sessionColumns+` FROM sessions WHERE end_time IS NULL ORDER BY start_time`)
}

// CloseOpenSessions ends every open session at the given time and returns how
// many rows it closed. Pause bookkeeping is not recoverable for these rows.
func (s *Store) CloseOpenSessions(ctx context.Context, at time.Time) (int64, error) {
	var n int64
	err := s.withDB(ctx, "end", "session", func(db *sql.DB) error {
		// A row that started after at (clock skew) is closed at its own start.
		res, err := db.ExecContext(ctx,
			`UPDATE sessions SET end_time = MAX(start_time, ?) WHERE end_time IS NULL`, formatTime(at))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ListSessions returns sessions matching f, newest first
func (s *Store) ListSessions(ctx context.Context, f SessionFilter) ([]*internal.Session, error) {
	var (
		where []string
		args  []any
	)
	if f.ProjectID != 0 {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if !f.From.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(f.To))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return s.querySessions(ctx, "list", query, args...)
}

func (s *Store) querySessions(ctx context.Context, op, query string, args ...any) ([]*internal.Session, error) {
	var sessions []*internal.Session
	err := s.withDB(ctx, op, "session", func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			sess, err := scanSession(rows)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			sessions = append(sessions, sess)
		}
		return rows.Err()
	})
	return sessions, err
}
