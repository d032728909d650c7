package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenerepo/internal/domain"
)

func TestDiff(t *testing.T) {
	s1, s2, s3, s4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	prev := map[uuid.UUID]uuid.UUID{s1: uuid.New(), s2: uuid.New(), s3: uuid.New()}
	next := map[uuid.UUID]uuid.UUID{s1: prev[s1], s2: uuid.New(), s4: uuid.New()}

	added, removed, modified := Diff(prev, next)
	assert.Equal(t, []uuid.UUID{s4}, added)
	assert.Equal(t, []uuid.UUID{s3}, removed)
	assert.Equal(t, []uuid.UUID{s2}, modified)

	added, removed, modified = Diff(nil, nil)
	assert.Nil(t, added)
	assert.Nil(t, removed)
	assert.Nil(t, modified)
}

func TestApplyDelta(t *testing.T) {
	s1, s2, s3 := uuid.New(), uuid.New(), uuid.New()
	u1, u2, u2b, u3 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	parent := map[uuid.UUID]uuid.UUID{s1: u1, s2: u2}

	t.Run("applies every delta", func(t *testing.T) {
		next, err := ApplyDelta(parent,
			[]uuid.UUID{s3}, []uuid.UUID{s1}, []uuid.UUID{s2},
			map[uuid.UUID]uuid.UUID{s2: u2b, s3: u3})
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]uuid.UUID{s2: u2b, s3: u3}, next)
		// parent untouched
		assert.Equal(t, u1, parent[s1])
	})

	t.Run("empty delta copies parent", func(t *testing.T) {
		next, err := ApplyDelta(parent, nil, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, parent, next)
	})

	failures := []struct {
		name                     string
		added, removed, modified []uuid.UUID
		changed                  map[uuid.UUID]uuid.UUID
	}{
		{"remove absent", nil, []uuid.UUID{s3}, nil, nil},
		{"add present", []uuid.UUID{s1}, nil, nil, map[uuid.UUID]uuid.UUID{s1: uuid.New()}},
		{"add without unique id", []uuid.UUID{s3}, nil, nil, nil},
		{"modify absent", nil, nil, []uuid.UUID{s3}, map[uuid.UUID]uuid.UUID{s3: u3}},
		{"modify keeps unique id", nil, nil, []uuid.UUID{s1}, map[uuid.UUID]uuid.UUID{s1: u1}},
		{"unexplained change", nil, nil, nil, map[uuid.UUID]uuid.UUID{s3: u3}},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyDelta(parent, tt.added, tt.removed, tt.modified, tt.changed)
			assert.ErrorIs(t, err, domain.ErrLedgerConsistency)
		})
	}
}

func TestSnapshotCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newSnapshotCache(2)
	r1, r2, r3 := uuid.New(), uuid.New(), uuid.New()
	idx := map[uuid.UUID]uuid.UUID{uuid.New(): uuid.New()}

	c.put(r1, idx)
	c.put(r2, idx)
	_, ok := c.get(r1)
	require.True(t, ok)
	c.put(r3, idx)

	assert.Equal(t, 2, c.len())
	_, ok = c.get(r2)
	assert.False(t, ok, "r2 was least recently used")
	_, ok = c.get(r1)
	assert.True(t, ok)

	// returned maps are copies
	got, _ := c.get(r3)
	for k := range got {
		delete(got, k)
	}
	again, _ := c.get(r3)
	assert.Len(t, again, 1)

	disabled := newSnapshotCache(0)
	disabled.put(r1, idx)
	_, ok = disabled.get(r1)
	assert.False(t, ok)
}
