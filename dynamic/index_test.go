package dynamic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRegistersSynthesizedBlocks(t *testing.T) {
	g := testGraph(t)
	index := NewIndex(10 * time.Minute)
	s := NewSynthesizer(g, index, 0, nil)

	require.NotNil(t, s.Synthesize(addedTrip(t, "s1", "s2", "s3")))
	assert.Equal(t, 1, index.Len())

	byBlock := index.ForBlock(id("extra1"))
	require.Equal(t, 1, len(byBlock.Trips))
	assert.Equal(t, id("extra1"), byBlock.Trips[0].BlockID)
	assert.Equal(t, 8*3600+30, byBlock.Trips[0].Start)

	byCollection := index.ForRouteCollection(id("rc1"))
	require.Equal(t, 1, len(byCollection.Trips))
	assert.Equal(t, id("extra1"), byCollection.Trips[0].Trips[0])
	assert.Equal(t, 0, len(index.ForRouteCollection(id("rc2")).Trips))

	byStop := index.ForStop(id("s2"))
	require.Equal(t, 1, len(byStop))
	require.Equal(t, 1, len(byStop[0].Entries))
	assert.Equal(t, id("extra1"), byStop[0].Entries[0].TripID)

	// Re-synthesizing doesn't duplicate entries.
	s.Synthesize(addedTrip(t, "s1", "s2", "s3"))
	assert.Equal(t, 1, len(index.ForStop(id("s2"))[0].Entries))
}

func TestIndexExpiry(t *testing.T) {
	now := time.Date(2024, 2, 12, 13, 0, 0, 0, time.UTC)
	g := testGraph(t)
	index := NewIndex(10 * time.Minute)
	index.instances.TimeNow = func() time.Time { return now }
	s := NewSynthesizer(g, index, 0, nil)

	first := s.Synthesize(addedTrip(t, "s1", "s2"))
	require.NotNil(t, first)

	// Repeat observations extend the lifetime.
	now = now.Add(8 * time.Minute)
	assert.Same(t, first, s.Synthesize(addedTrip(t, "s1", "s2")))
	now = now.Add(8 * time.Minute)
	_, ok := index.Instance(id("extra1"))
	assert.True(t, ok)

	now = now.Add(10 * time.Minute)
	_, ok = index.Instance(id("extra1"))
	assert.False(t, ok)
	assert.Equal(t, 0, len(index.ForBlock(id("extra1")).Trips))
	assert.Equal(t, 0, len(index.ForStop(id("s1"))))
	assert.Equal(t, 0, index.Len())

	// Expired blocks are synthesized anew.
	again := s.Synthesize(addedTrip(t, "s1", "s2"))
	require.NotNil(t, again)
	assert.NotSame(t, first, again)
}
