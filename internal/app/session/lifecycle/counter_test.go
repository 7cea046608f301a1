package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_Attachments(t *testing.T) {
	c := New()

	assert.Equal(t, 1, c.Attach())
	assert.Equal(t, 2, c.Attach())
	assert.Equal(t, 1, c.Detach())
	assert.Equal(t, 0, c.Detach())
	assert.Equal(t, 0, c.Detach(), "never negative")
	assert.Equal(t, 0, c.Attached())
}

func TestCounter_StickyStart(t *testing.T) {
	c := New()
	assert.False(t, c.IsStarted())

	c.MarkStarted()
	c.Attach()
	c.Detach()
	assert.True(t, c.IsStarted(), "survives detach")

	c.ClearStarted()
	assert.False(t, c.IsStarted())
}

func TestCounter_Generations(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *Counter) bool
		want bool
	}{
		{
			name: "fire current arm",
			run: func(c *Counter) bool {
				gen := c.Arm()
				return c.Fire(gen)
			},
			want: true,
		},
		{
			name: "rearm invalidates the previous arm",
			run: func(c *Counter) bool {
				gen := c.Arm()
				c.Arm()
				return c.Fire(gen)
			},
			want: false,
		},
		{
			name: "cancel invalidates",
			run: func(c *Counter) bool {
				gen := c.Arm()
				c.Cancel()
				return c.Fire(gen)
			},
			want: false,
		},
		{
			name: "fires at most once per arm",
			run: func(c *Counter) bool {
				gen := c.Arm()
				c.Fire(gen)
				return c.Fire(gen)
			},
			want: false,
		},
		{
			name: "never armed",
			run: func(c *Counter) bool {
				return c.Fire(0)
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.run(New()))
		})
	}
}

func TestCounter_Snapshot(t *testing.T) {
	c := New()
	c.MarkStarted()
	c.Attach()
	gen := c.Arm()
	c.SetPendingTeardown(true)

	s := c.Snapshot()
	assert.True(t, s.Started)
	assert.Equal(t, 1, s.Attached)
	assert.Equal(t, TimerArmed, s.Timer)
	assert.Equal(t, gen, s.Generation)
	assert.True(t, s.PendingTeardown)
	assert.True(t, c.IsArmed())

	c.Fire(gen)
	assert.Equal(t, TimerFired, c.Snapshot().Timer)
	assert.Equal(t, "fired", TimerFired.String())
}
