package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

func TestCheckpointMissingFileIsZero(t *testing.T) {
	t.Parallel()
	cp, err := NewCheckpoint(filepath.Join(t.TempDir(), "status"))
	require.NoError(t, err)

	got, err := cp.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, got.LastIndex)
}

func TestCheckpointSaveLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "status")
	cp, err := NewCheckpoint(path)
	require.NoError(t, err)

	require.NoError(t, cp.Save(context.Background(), archive.DispatchProgress{LastIndex: 42}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42", string(raw))

	got, err := cp.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got.LastIndex)
}

func TestCheckpointLoadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		wantErr bool
		want    int
	}{
		{name: "garbage", content: "abc", wantErr: true},
		{name: "negative", content: "-3", wantErr: true},
		{name: "whitespace", content: " 7\n", want: 7},
		{name: "empty", content: "", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "status")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			cp, err := NewCheckpoint(path)
			require.NoError(t, err)

			got, err := cp.Load(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.LastIndex)
		})
	}
}

func TestNewCheckpointRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := NewCheckpoint(" ")
	assert.Error(t, err)
}
