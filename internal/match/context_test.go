package match

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vectorwar/arena/pkg/core"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext()

	assert.Equal(t, "No session running", ctx.Label())
	assert.Equal(t, int32(0), ctx.GetFrame())
}

func TestContext_SetSessionResetsFrame(t *testing.T) {
	ctx := NewContext()
	ctx.SetFrame(99)

	ctx.SetSession(&core.Session{ID: 4, Label: "duel"})

	assert.Equal(t, "duel", ctx.Label())
	assert.Equal(t, uint(4), ctx.GetSession().ID)
	assert.Equal(t, int32(0), ctx.GetFrame())

	ctx.Clear()
	assert.Equal(t, "No session running", ctx.Label())
}

func TestContext_LogAttrs(t *testing.T) {
	ctx := NewContext()
	ctx.SetSession(&core.Session{ID: 2, Label: "x"})
	ctx.SetFrame(12)

	attrs := ctx.LogAttrs()
	got := make(map[string]slog.Value, len(attrs))
	for _, a := range attrs {
		got[a.Key] = a.Value
	}
	assert.Equal(t, "x", got["session"].String())
	assert.Equal(t, uint64(2), got["sessionId"].Uint64())
	assert.Equal(t, int64(12), got["frame"].Int64())
}
