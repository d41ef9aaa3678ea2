package store

import (
	"context"
	"fmt"
	"time"
)

// RecordBuild appends b to the log and returns it with ID, Seq and
// StartedAt assigned (ID and StartedAt are kept when already set).
// The build row, its load order and its conflicts are written in one
// transaction.
func (s *Store) RecordBuild(ctx context.Context, b Build) (Build, error) {
	if b.ID == "" {
		b.ID = s.ids.Generate()
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = s.now()
	}
	b.StartedAt = b.StartedAt.UTC()

	stats, err := marshalJSON(b.Stats)
	if err != nil {
		return Build{}, fmt.Errorf("record build: %w", err)
	}
	summary, err := marshalJSON(b.Summary)
	if err != nil {
		return Build{}, fmt.Errorf("record build: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Build{}, fmt.Errorf("record build: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM builds`).Scan(&b.Seq); err != nil {
		return Build{}, fmt.Errorf("record build: next seq: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds
		(id, seq, started_at, game, name, dest, status, error, sha256, size, stats, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID,
		b.Seq,
		b.StartedAt.Format(time.RFC3339Nano),
		b.Game,
		b.Name,
		b.Dest,
		b.Status,
		b.Error,
		b.SHA256,
		b.Size,
		stats,
		summary,
	)
	if err != nil {
		return Build{}, fmt.Errorf("record build: insert build: %w", err)
	}

	for i, p := range b.Plugins {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_plugins (build_id, position, name, active)
			VALUES (?, ?, ?, ?)
		`, b.ID, i, p.Name, p.Active)
		if err != nil {
			return Build{}, fmt.Errorf("record build: insert plugin %s: %w", p.Name, err)
		}
	}

	for _, c := range b.Conflicts {
		fields, err := marshalJSON(c.Fields)
		if err != nil {
			return Build{}, fmt.Errorf("record build: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO build_conflicts (build_id, formid, type, editor_id, status, winner, fields)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, int64(c.FormID), c.Type.String(), c.EditorID, string(c.Status), c.Winner, fields)
		if err != nil {
			return Build{}, fmt.Errorf("record build: insert conflict %s: %w", c.FormID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Build{}, fmt.Errorf("record build: commit: %w", err)
	}
	return b, nil
}
