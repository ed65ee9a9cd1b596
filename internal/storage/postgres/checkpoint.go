package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

const checkpointTable = "dispatch_checkpoints"

// Checkpoint stores DispatchProgress in a single keyed row, so several
// fetch runs can share one database under different names.
type Checkpoint struct {
	pool querier
	name string
}

// NewCheckpoint constructs a Checkpoint for the run called name.
func NewCheckpoint(pool querier, name string) (*Checkpoint, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if name == "" {
		return nil, fmt.Errorf("checkpoint name is required")
	}
	return &Checkpoint{pool: pool, name: name}, nil
}

// EnsureSchema creates the checkpoint table if it does not exist.
func (c *Checkpoint) EnsureSchema(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + checkpointTable + ` (
	name        TEXT PRIMARY KEY,
	last_index  BIGINT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", checkpointTable, err)
	}
	return nil
}

// Load returns the stored progress, or zero progress if no row exists.
func (c *Checkpoint) Load(ctx context.Context) (archive.DispatchProgress, error) {
	var last int64
	err := c.pool.QueryRow(ctx, `SELECT last_index FROM `+checkpointTable+` WHERE name = $1`, c.name).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archive.DispatchProgress{}, nil
		}
		return archive.DispatchProgress{}, fmt.Errorf("select checkpoint: %w", err)
	}
	return archive.DispatchProgress{LastIndex: int(last)}, nil
}

// Save upserts progress.
func (c *Checkpoint) Save(ctx context.Context, progress archive.DispatchProgress) error {
	query := `
INSERT INTO ` + checkpointTable + ` (name, last_index, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET last_index = EXCLUDED.last_index, updated_at = EXCLUDED.updated_at`
	if _, err := c.pool.Exec(ctx, query, c.name, int64(progress.LastIndex)); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}
