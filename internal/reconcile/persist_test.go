package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/confluence/internal/catalog"
)

func stagedArtist(t *testing.T, store *memStore) (UnitOfWork, ApplyResult) {
	t.Helper()
	g := NewClaimGraph()
	c := claim(g, &catalog.Artist{Name: "Air"}, catalog.ProviderSpotify)
	uow := begin(t, store)
	res, err := newTestApplier().Apply(context.Background(), uow, g,
		Instructions{c.ID: {ClaimID: c.ID, Strategy: StrategyCreate}}, mustKeys(t, g))
	require.NoError(t, err)
	return uow, res
}

func TestPersistCommitsChangeset(t *testing.T) {
	store := newMemStore()
	uow, applied := stagedArtist(t, store)

	res, err := NewPersister(testLogger()).Persist(context.Background(), uow, Instructions{}, applied)
	require.NoError(t, err)

	assert.True(t, res.Committed)
	assert.Equal(t, 1, res.PersistedEntities)
	assert.Equal(t, 0, res.PersistedEvents)
	assert.Equal(t, 1, store.commits)
	assert.Equal(t, 1, store.count(catalog.TypeArtist))
	assert.Len(t, store.state.sidecar, 2)
}

func TestPersistRollsBackOnFailure(t *testing.T) {
	store := newMemStore()
	store.failAdd = catalog.TypeArtist
	uow, applied := stagedArtist(t, store)

	res, err := NewPersister(testLogger()).Persist(context.Background(), uow, Instructions{}, applied)

	require.ErrorIs(t, err, errInjected)
	assert.False(t, res.Committed)
	assert.Equal(t, 0, store.commits)
	assert.Equal(t, 1, store.rollbacks)
	assert.Equal(t, 0, store.count(catalog.TypeArtist))
}

func TestPersistWithoutChangesetIsInvariantViolation(t *testing.T) {
	store := newMemStore()

	_, err := NewPersister(testLogger()).Persist(context.Background(), begin(t, store), Instructions{}, ApplyResult{})

	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, 1, store.rollbacks)
}

func TestPersistCountsAuditEvents(t *testing.T) {
	store := newMemStore()
	cs := NewChangeset()
	cs.Merges = append(cs.Merges, catalog.EntityMerge{ID: "m1", EntityType: catalog.TypeArtist, SourceID: "x", TargetID: "y"})
	cs.Reviews = append(cs.Reviews, ReviewItem{ID: "r1", ClaimID: "c1", EntityType: catalog.TypeArtist})

	res, err := NewPersister(testLogger()).Persist(context.Background(), begin(t, store), Instructions{}, ApplyResult{Changes: cs})
	require.NoError(t, err)

	assert.Equal(t, 2, res.PersistedEvents)
	assert.Len(t, store.state.merges, 1)
	assert.Len(t, store.state.reviews, 1)
}
