package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/record"
)

const buildColumns = `id, seq, started_at, game, name, dest, status, error, sha256, size, stats, summary`

// ListBuilds returns the most recent builds first, at most limit of them
// (all when limit <= 0). Plugins and conflicts are not loaded.
//
// Returns an empty slice (not nil) if no builds exist.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// GetBuild returns the build with the given id, or the latest build when
// id is "latest", with its load order and conflicts. Conflicts are ordered
// by FormID.
func (s *Store) GetBuild(ctx context.Context, id string) (Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds WHERE id = ?`
	args := []any{id}
	if id == "latest" {
		query = `SELECT ` + buildColumns + ` FROM builds ORDER BY seq DESC LIMIT 1`
		args = nil
	}
	b, err := scanBuild(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	if err != nil {
		return Build{}, err
	}

	if b.Plugins, err = s.readPlugins(ctx, b.ID); err != nil {
		return Build{}, err
	}
	if b.Conflicts, err = s.readConflicts(ctx, b.ID, ""); err != nil {
		return Build{}, err
	}
	return b, nil
}

// Conflicts returns the recorded conflicts of a build with the given
// status, or all of them when status is empty.
func (s *Store) Conflicts(ctx context.Context, buildID string, status conflict.Status) ([]Conflict, error) {
	return s.readConflicts(ctx, buildID, status)
}

func (s *Store) readPlugins(ctx context.Context, buildID string) ([]Plugin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, active FROM build_plugins
		WHERE build_id = ?
		ORDER BY position ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query build plugins: %w", err)
	}
	defer rows.Close()

	var out []Plugin
	for rows.Next() {
		var p Plugin
		if err := rows.Scan(&p.Name, &p.Active); err != nil {
			return nil, fmt.Errorf("scan build plugin: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build plugins: %w", err)
	}
	return out, nil
}

func (s *Store) readConflicts(ctx context.Context, buildID string, status conflict.Status) ([]Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT formid, type, editor_id, status, winner, fields
		FROM build_conflicts
		WHERE build_id = ? AND (? = '' OR status = ?)
		ORDER BY formid ASC
	`, buildID, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("query build conflicts: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var (
			c              Conflict
			fid            int64
			typ, st, field string
		)
		if err := rows.Scan(&fid, &typ, &c.EditorID, &st, &c.Winner, &field); err != nil {
			return nil, fmt.Errorf("scan build conflict: %w", err)
		}
		c.FormID = record.FormID(fid)
		if c.Type, err = record.ParseSignature(typ); err != nil {
			return nil, fmt.Errorf("scan build conflict: %w", err)
		}
		c.Status = conflict.Status(st)
		if err := unmarshalJSON("fields", field, &c.Fields); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build conflicts: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (Build, error) {
	var (
		b              Build
		started        string
		stats, summary string
	)
	err := row.Scan(&b.ID, &b.Seq, &started, &b.Game, &b.Name, &b.Dest, &b.Status, &b.Error, &b.SHA256, &b.Size, &stats, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, err
	}
	if err != nil {
		return Build{}, fmt.Errorf("scan build: %w", err)
	}
	if b.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Build{}, fmt.Errorf("scan build %s: started_at: %w", b.ID, err)
	}
	if err := unmarshalJSON("stats", stats, &b.Stats); err != nil {
		return Build{}, err
	}
	if err := unmarshalJSON("summary", summary, &b.Summary); err != nil {
		return Build{}, err
	}
	return b, nil
}
