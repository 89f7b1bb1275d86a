package pacer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_New_panicsOnNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-time.Second) })
}

func TestPacer_Allow_firstCallAlwaysAllowed(t *testing.T) {
	p := New(time.Second)
	next, ok := p.Allow(time.Unix(1000, 0))
	require.True(t, ok)
	assert.True(t, next.IsZero())
}

func TestPacer_Allow_throttlesWithinInterval(t *testing.T) {
	p := New(time.Second)
	base := time.Unix(1000, 0)

	_, ok := p.Allow(base)
	require.True(t, ok)

	next, ok := p.Allow(base.Add(500 * time.Millisecond))
	require.False(t, ok)
	assert.Equal(t, base.Add(time.Second), next)
}

func TestPacer_Allow_allowsAgainAfterInterval(t *testing.T) {
	p := New(time.Second)
	base := time.Unix(1000, 0)

	_, ok := p.Allow(base)
	require.True(t, ok)

	// exactly at the boundary: already due (Before is strict, so equality passes)
	_, ok = p.Allow(base.Add(time.Second))
	require.True(t, ok, "boundary instant should be allowed")

	next, ok := p.Allow(base.Add(time.Second).Add(time.Nanosecond))
	require.False(t, ok)
	assert.Equal(t, base.Add(2*time.Second), next)
}

func TestPacer_Allow_repeatedThrottledCallsReturnSameDeadline(t *testing.T) {
	p := New(time.Minute)
	base := time.Unix(5000, 0)

	_, ok := p.Allow(base)
	require.True(t, ok)

	first, ok := p.Allow(base.Add(time.Second))
	require.False(t, ok)

	second, ok := p.Allow(base.Add(2 * time.Second))
	require.False(t, ok)

	assert.Equal(t, first, second, "the deadline shouldn't drift while throttled")
}
