package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

// Checkpoint stores DispatchProgress as a single plain-text integer.
type Checkpoint struct {
	path string
}

// NewCheckpoint returns a checkpoint backed by path.
func NewCheckpoint(path string) (*Checkpoint, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	return &Checkpoint{path: path}, nil
}

// Load returns the persisted progress, or zero progress if the file is absent.
func (c *Checkpoint) Load(_ context.Context) (archive.DispatchProgress, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return archive.DispatchProgress{}, nil
		}
		return archive.DispatchProgress{}, fmt.Errorf("read checkpoint %s: %w", c.path, err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return archive.DispatchProgress{}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return archive.DispatchProgress{}, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	if n < 0 {
		return archive.DispatchProgress{}, fmt.Errorf("checkpoint %s holds negative index %d", c.path, n)
	}
	return archive.DispatchProgress{LastIndex: n}, nil
}

// Save overwrites the checkpoint file.
func (c *Checkpoint) Save(_ context.Context, progress archive.DispatchProgress) error {
	return writeFileAtomic(c.path, []byte(strconv.Itoa(progress.LastIndex)))
}
