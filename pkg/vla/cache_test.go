package vla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unswei/muesli-bt/pkg/scheduler"
)

func TestMemCacheGetSetRoundTrip(t *testing.T) {
	c := NewMemCache(4)
	resp := Response{Status: StatusOK, Explanation: "ok"}

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, resp, time.Minute)
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, resp, got)
	assert.Equal(t, 1, c.Len())
}

func TestMemCacheExpiresEntries(t *testing.T) {
	c := NewMemCache(4)
	c.Set(1, Response{Status: StatusOK}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemCache(2)
	c.Set(1, Response{Status: StatusOK, Explanation: "one"}, time.Minute)
	c.Set(2, Response{Status: StatusOK, Explanation: "two"}, time.Minute)

	// Touch key 1 so key 2 becomes the least-recently-used entry.
	_, _ = c.Get(1)
	c.Set(3, Response{Status: StatusOK, Explanation: "three"}, time.Minute)

	_, ok := c.Get(2)
	assert.False(t, ok, "key 2 should have been evicted as least-recently-used")
	_, ok = c.Get(1)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestMemCacheSetCapacityEvictsImmediately(t *testing.T) {
	c := NewMemCache(4)
	c.Set(1, Response{Status: StatusOK}, time.Minute)
	c.Set(2, Response{Status: StatusOK}, time.Minute)
	c.Set(3, Response{Status: StatusOK}, time.Minute)
	require.Equal(t, 3, c.Len())

	c.SetCapacity(1)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Capacity())
}

func TestServiceWithCacheOverridesDefault(t *testing.T) {
	sched := scheduler.NewThreadPoolScheduler(1)
	defer sched.Close()

	custom := NewMemCache(1)
	svc := NewService(sched, WithJSONLDisabled(), WithCache(custom))

	id := svc.Submit(baseRequest())
	poll := waitForTerminal(t, svc, id)
	require.Equal(t, StatusOK, poll.Final.Status)

	_, ok := custom.Get(HashRequest(baseRequest()))
	assert.True(t, ok, "response should have been written into the overriding cache")
}
