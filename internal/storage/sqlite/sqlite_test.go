package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vectorwar/arena/internal/database"
	"github.com/vectorwar/arena/internal/model"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestClose_WritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectorwar.db")

	b, err := New(Config{DumpPath: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	s := &core.Session{Label: "dumped", Participants: 2}
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordShipState(&core.ShipState{Frame: 1, Slot: 0, X: 1, Y: 2}))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	onDisk, err := database.GetSqliteDB(path)
	require.NoError(t, err)

	var rec model.SessionRecord
	require.NoError(t, onDisk.First(&rec).Error)
	assert.Equal(t, "dumped", rec.Label)
	assert.True(t, rec.EndedAt.Valid)

	var states int64
	require.NoError(t, onDisk.Model(&model.ShipState{}).Count(&states).Error)
	assert.Equal(t, int64(1), states)
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")

	b, err := New(Config{DumpPath: path, DumpInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_NoDumpPath(t *testing.T) {
	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	assert.NoError(t, b.Close())
}
