// internal/storage/storage_test.go
package storage_test

import (
	"testing"

	"github.com/vectorwar/arena/internal/storage"
	gormstorage "github.com/vectorwar/arena/internal/storage/gorm"
	"github.com/vectorwar/arena/internal/storage/memory"
	"github.com/vectorwar/arena/internal/storage/postgres"
	sqlitestorage "github.com/vectorwar/arena/internal/storage/sqlite"
	"github.com/vectorwar/arena/internal/storage/websocket"
	"github.com/stretchr/testify/assert"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Exportable = (*memory.Backend)(nil)
	_ storage.Backend    = (*gormstorage.Backend)(nil)
	_ storage.Flusher    = (*gormstorage.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*postgres.Backend)(nil)
	_ storage.Backend    = (*websocket.Backend)(nil)
)

func TestErrorsAreDistinct(t *testing.T) {
	assert.NotErrorIs(t, storage.ErrNoSession, storage.ErrUnknownBackend)
}
