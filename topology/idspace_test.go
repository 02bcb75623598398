package topology

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSpaceGenesis(t *testing.T) {
	s, err := NewIDSpace(3)
	require.NoError(t, err)

	assert.Equal(t, []NodeID{1, 2, 3}, s.IDs())
	assert.Equal(t, NodeID(3), s.Max())
	assert.Equal(t, 3, s.Len())
}

func TestIDSpaceGenesisEmpty(t *testing.T) {
	_, err := NewIDSpace(0)
	require.Error(t, err)
}

func TestIDSpaceAllocateNeverReuses(t *testing.T) {
	s, err := NewIDSpace(3)
	require.NoError(t, err)

	require.NoError(t, s.Release(2))
	assert.Equal(t, []NodeID{1, 3}, s.IDs())

	// The high-water mark must not move on release, so the next
	// allocation is 4, never 2.
	assert.Equal(t, NodeID(3), s.Max())
	assert.Equal(t, NodeID(4), s.Allocate())
	assert.Equal(t, []NodeID{1, 3, 4}, s.IDs())
}

func TestIDSpaceReleaseNotFound(t *testing.T) {
	s, err := NewIDSpace(2)
	require.NoError(t, err)

	err = s.Release(7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	// A failed release leaves the space untouched.
	assert.Equal(t, []NodeID{1, 2}, s.IDs())
	assert.Equal(t, NodeID(2), s.Max())
}

func TestIDSpaceReleaseTwice(t *testing.T) {
	s, err := NewIDSpace(2)
	require.NoError(t, err)

	require.NoError(t, s.Release(1))
	err = s.Release(1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestIDSpaceHighWaterMonotonic(t *testing.T) {
	s, err := NewIDSpace(1)
	require.NoError(t, err)

	seen := map[NodeID]bool{1: true}
	prevMax := s.Max()

	for i := 0; i < 50; i++ {
		var id NodeID
		if i%3 == 2 && s.Len() > 0 {
			victim := s.IDs()[0]
			require.NoError(t, s.Release(victim))
		} else {
			id = s.Allocate()
			assert.False(t, seen[id], "id %d was handed out twice", id)
			seen[id] = true
		}

		if s.Max() < prevMax {
			t.Fatalf("high-water mark decreased from %d to %d", prevMax, s.Max())
		}
		prevMax = s.Max()

		for _, live := range s.IDs() {
			if live > s.Max() {
				t.Fatalf("live id %d exceeds high-water mark %d", live, s.Max())
			}
		}
	}
}
