package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iksnae/tempo/internal"
)

const projectColumns = `id, name, path, git_hash, description, is_archived, created_at, updated_at`

func isNotFound(err error) bool {
	return errors.Is(err, internal.ErrProjectNotFound) || errors.Is(err, internal.ErrSessionNotFound)
}

func scanProject(row rowScanner) (*internal.Project, error) {
	var (
		p                internal.Project
		gitHash, desc    sql.NullString
		archived         int
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Path, &gitHash, &desc, &archived, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	p.GitHash = stringPtr(gitHash)
	p.Description = stringPtr(desc)
	p.Archived = archived != 0
	return &p, nil
}

// CreateProject inserts p and returns its id. p.ID is set on success.
func (s *Store) CreateProject(ctx context.Context, p *internal.Project) (int64, error) {
	var id int64
	err := s.withDB(ctx, "create", "project", func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO projects (name, path, git_hash, description, is_archived, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.Path, nullString(p.GitHash), nullString(p.Description), boolInt(p.Archived),
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// FindProjectByPath returns internal.ErrProjectNotFound when path is unknown
func (s *Store) FindProjectByPath(ctx context.Context, path string) (*internal.Project, error) {
	return s.findProject(ctx, `SELECT `+projectColumns+` FROM projects WHERE path = ?`, path)
}

// FindProjectByID returns internal.ErrProjectNotFound when id is unknown
func (s *Store) FindProjectByID(ctx context.Context, id int64) (*internal.Project, error) {
	return s.findProject(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
}

func (s *Store) findProject(ctx context.Context, query string, arg any) (*internal.Project, error) {
	var p *internal.Project
	err := s.withDB(ctx, "find", "project", func(db *sql.DB) error {
		var err error
		p, err = scanProject(db.QueryRowContext(ctx, query, arg))
		if errors.Is(err, sql.ErrNoRows) {
			return internal.ErrProjectNotFound
		}
		return err
	})
	return p, err
}

// ListProjects returns projects ordered by name
func (s *Store) ListProjects(ctx context.Context, includeArchived bool) ([]*internal.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if !includeArchived {
		query += ` WHERE is_archived = 0`
	}
	query += ` ORDER BY name`

	var projects []*internal.Project
	err := s.withDB(ctx, "list", "project", func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			projects = append(projects, p)
		}
		return rows.Err()
	})
	return projects, err
}

// UpdateProject writes the mutable fields of p
func (s *Store) UpdateProject(ctx context.Context, p *internal.Project) error {
	return s.withDB(ctx, "update", "project", func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE projects SET name = ?, path = ?, git_hash = ?, description = ?, is_archived = ?, updated_at = ?
			 WHERE id = ?`,
			p.Name, p.Path, nullString(p.GitHash), nullString(p.Description), boolInt(p.Archived),
			formatTime(p.UpdatedAt), p.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return internal.ErrProjectNotFound
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
