package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConnection(t *testing.T) {
	before := time.Now()
	c := NewConnection("id-1", Identity{Package: "mediactl", UID: 1000}, "connect", true, "__ROOT__")

	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, "mediactl", c.Identity.Package)
	assert.Equal(t, 1000, c.Identity.UID)
	assert.Equal(t, "connect", c.Transport)
	assert.True(t, c.Allowed)
	assert.Equal(t, "__ROOT__", c.RootID)
	assert.False(t, c.AttachedAt.Before(before))
}

func TestIdentity_String(t *testing.T) {
	tests := []struct {
		name      string
		identity  Identity
		expected  string
		anonymous bool
	}{
		{name: "named", identity: Identity{Package: "mediactl", UID: 1000}, expected: "mediactl(1000)"},
		{name: "anonymous", identity: Identity{UID: 0}, expected: "anonymous(0)", anonymous: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.identity.String())
			assert.Equal(t, tt.anonymous, tt.identity.IsAnonymous())
		})
	}
}
