package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/livescore/go/internal/models"
)

func TestRegistry_RegisterResolveDrop(t *testing.T) {
	r := NewRegistry()

	identity := models.Identity{
		ConnectionID: "conn-1",
		UserID:       "anon_conn-1",
		DisplayName:  "Player",
	}
	r.Register(identity)

	got, ok := r.Resolve("conn-1")
	require.True(t, ok)
	assert.Equal(t, identity, got)
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.Drop("conn-1"))
	_, ok = r.Resolve("conn-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_DropUnknownConnection(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Drop("nope"))
}

func TestRegistry_ReRegisterReplacesIdentity(t *testing.T) {
	r := NewRegistry()

	r.Register(models.Identity{ConnectionID: "conn-1", UserID: "anon_conn-1", DisplayName: "Player"})
	r.Register(models.Identity{ConnectionID: "conn-1", UserID: "admin_1", DisplayName: "admin", IsAdmin: true})

	got, ok := r.Resolve("conn-1")
	require.True(t, ok)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, "admin_1", got.UserID)
	assert.Equal(t, 1, r.Count())
}
