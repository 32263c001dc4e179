package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiterBurstThenRefill(t *testing.T) {
	l := New(1, 2)
	now := time.Unix(1000, 0)

	assert.True(t, l.Allow("c1", now))
	assert.True(t, l.Allow("c1", now))
	assert.False(t, l.Allow("c1", now))

	// other keys have their own bucket
	assert.True(t, l.Allow("c2", now))

	assert.True(t, l.Allow("c1", now.Add(1100*time.Millisecond)))
}

func TestKeyedLimiterForget(t *testing.T) {
	l := New(1, 1)
	now := time.Unix(1000, 0)

	assert.True(t, l.Allow("c1", now))
	assert.False(t, l.Allow("c1", now))
	assert.Equal(t, 1, l.Len())

	l.Forget("c1")
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Allow("c1", now))
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	l := New(0, 10)
	assert.Nil(t, l)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("c", time.Now()))
	}
	l.Forget("c")
	assert.Equal(t, 0, l.Len())
}
