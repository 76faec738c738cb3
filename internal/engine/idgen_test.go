package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7GeneratorProducesValidSortableIDs(t *testing.T) {
	gen := UUIDv7Generator{}

	a := gen.NewID()
	b := gen.NewID()

	ua, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), ua.Version())

	// v7 ids are time-ordered; two ids minted in sequence never invert.
	assert.Less(t, a, b)
}

func TestSequenceIDs(t *testing.T) {
	gen := NewSequenceIDs("asg")
	assert.Equal(t, "asg-1", gen.NewID())
	assert.Equal(t, "asg-2", gen.NewID())
}

func TestSequenceIDsConcurrentUnique(t *testing.T) {
	gen := NewSequenceIDs("x")

	const n = 100
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = gen.NewID()
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
