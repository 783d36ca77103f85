package store

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/confluence/internal/catalog"
	"github.com/sydlexius/confluence/internal/database"
	"github.com/sydlexius/confluence/internal/reconcile"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.MemoryPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return New(db)
}

func begin(t *testing.T, s *Store) reconcile.UnitOfWork {
	t.Helper()
	uow, err := s.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = uow.Rollback() })
	return uow
}

func artist(t *testing.T, id, name string, ns catalog.Namespace, value string) *catalog.Artist {
	t.Helper()
	a := &catalog.Artist{Record: catalog.Record{ID: id}, Name: name}
	if ns != "" {
		require.NoError(t, catalog.AddExternalID(a, ns, value, ""))
	}
	return a
}

func TestEntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	uow := begin(t, s)

	a := artist(t, "a-1", "Air", catalog.NSSpotifyArtist, "sp-air")
	require.NoError(t, uow.Entities().Add(ctx, a))

	got, err := uow.Entities().Get(ctx, catalog.TypeArtist, "a-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Air", got.(*catalog.Artist).Name)

	byExt, err := uow.Entities().GetByExternalID(ctx, catalog.NSSpotifyArtist, "sp-air")
	require.NoError(t, err)
	require.NotNil(t, byExt)
	assert.Equal(t, "a-1", byExt.Base().ID)

	missing, err := uow.Entities().Get(ctx, catalog.TypeArtist, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	wrongType, err := uow.Entities().Get(ctx, catalog.TypeLabel, "a-1")
	require.NoError(t, err)
	assert.Nil(t, wrongType)
}

func TestUpdateIndexesNewExternalIDs(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	uow := begin(t, s)

	a := artist(t, "a-1", "Air", "", "")
	require.NoError(t, uow.Entities().Add(ctx, a))
	require.NoError(t, catalog.AddExternalID(a, catalog.NSMusicBrainzArtist, "mb-air", ""))
	require.NoError(t, uow.Entities().Update(ctx, a))

	got, err := uow.Entities().GetByExternalID(ctx, catalog.NSMusicBrainzArtist, "mb-air")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a-1", got.Base().ID)
}

func TestUpdateMissingEntityFails(t *testing.T) {
	s := setupTestStore(t)
	uow := begin(t, s)

	err := uow.Entities().Update(context.Background(), artist(t, "ghost", "Nobody", "", ""))
	assert.Error(t, err)
}

func TestExternalIDCannotMoveBetweenEntities(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	uow := begin(t, s)

	require.NoError(t, uow.Entities().Add(ctx, artist(t, "a-1", "Air", catalog.NSSpotifyArtist, "sp-air")))
	err := uow.Entities().Add(ctx, artist(t, "a-2", "Air", catalog.NSSpotifyArtist, "sp-air"))
	assert.ErrorIs(t, err, ErrExternalIDTaken)
}

func TestSidecarFirstOwnerWins(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	uow := begin(t, s)

	first := artist(t, "a-1", "Air", "", "")
	second := artist(t, "a-2", "Air", "", "")
	require.NoError(t, uow.Entities().Add(ctx, first))
	require.NoError(t, uow.Entities().Add(ctx, second))

	name, ok := reconcile.NewKey("artist_name", "air")
	require.True(t, ok)
	other, ok := reconcile.NewKey("artist_name", "moloko")
	require.True(t, ok)

	require.NoError(t, uow.Sidecar().Save(ctx, first, []reconcile.Key{name}))
	require.NoError(t, uow.Sidecar().Save(ctx, second, []reconcile.Key{name, other}))

	found, err := uow.Sidecar().FindByKeys(ctx, catalog.TypeArtist, []reconcile.Key{name, other})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a-1", found[name.String()].Base().ID)
	assert.Equal(t, "a-2", found[other.String()].Base().ID)

	none, err := uow.Sidecar().FindByKeys(ctx, catalog.TypeLabel, []reconcile.Key{name})
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := uow.Sidecar().FindByKeys(ctx, catalog.TypeArtist, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Entities().Add(ctx, artist(t, "a-1", "Air", "", "")))
	require.NoError(t, uow.Rollback())
	require.NoError(t, uow.Rollback(), "second rollback is a no-op")

	counts, err := s.CountEntities(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[string(catalog.TypeArtist)])
}

func TestReviewQueue(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Audit().SaveReview(ctx, reconcile.ReviewItem{
		ID:         "r-1",
		BatchID:    "batch-1",
		ClaimID:    "claim-1",
		EntityType: catalog.TypeArtist,
		Reason:     reconcile.ReasonMultipleExactMatches,
		Candidates: []string{"a", "b"},
		Source:     catalog.ProviderSpotify,
		Payload:    []byte(`{"name":"Air"}`),
		CreatedAt:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, uow.Commit())

	open, err := s.ListReviews(ctx, ReviewOpen, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, []string{"a", "b"}, open[0].Candidates)
	assert.Equal(t, catalog.ProviderSpotify, open[0].Source)
	assert.JSONEq(t, `{"name":"Air"}`, string(open[0].Payload))

	require.NoError(t, s.SetReviewStatus(ctx, "r-1", ReviewDismissed))
	open, err = s.ListReviews(ctx, ReviewOpen, 0)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := s.ListReviews(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ReviewDismissed, all[0].Status)

	assert.Error(t, s.SetReviewStatus(ctx, "missing", ReviewDismissed))
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	run, err := s.StartRun(ctx, "batch-1", "inbox/batch-1.json", 3)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)

	run.Finish(
		reconcile.ApplyResult{Created: 2, Merged: 1},
		reconcile.PersistenceResult{Committed: true, PersistedEntities: 2, PersistedEvents: 1},
		nil, time.Now().UTC(),
	)
	require.NoError(t, s.FinishRun(ctx, run))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunSucceeded, runs[0].Status)
	assert.Equal(t, 2, runs[0].Created)
	assert.Equal(t, 1, runs[0].Merged)
	assert.Equal(t, 3, runs[0].Claims)
	require.NotNil(t, runs[0].FinishedAt)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEngineMergesIntoStoredRecording(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	existing := &catalog.Recording{Record: catalog.Record{ID: "rec-1"}, Title: "Around the World"}
	require.NoError(t, catalog.AddExternalID(existing, catalog.NSMusicBrainzRecording, "mb-atw", ""))
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Entities().Add(ctx, existing))
	require.NoError(t, uow.Commit())

	incoming := &catalog.Recording{Title: "Around The World (Radio Edit)"}
	incoming.DurationMS = new(int)
	*incoming.DurationMS = 429000
	require.NoError(t, catalog.AddExternalID(incoming, catalog.NSMusicBrainzRecording, "mb-atw", ""))
	require.NoError(t, catalog.AddExternalID(incoming, catalog.NSRecordingISRC, "GBDUW9700012", ""))
	g := reconcile.NewClaimGraph()
	g.AddRoot(reconcile.NewEntityClaim(incoming, reconcile.ClaimMetadata{Source: catalog.ProviderMusicBrainz, IngestEventID: "batch-1"}))

	engine := reconcile.NewEngine(s, reconcile.Settings{Actor: "tester"}, testLogger())
	applied, persisted, err := engine.Reconcile(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Merged)
	assert.True(t, persisted.Committed)

	check := begin(t, s)
	got, err := check.Entities().GetByExternalID(ctx, catalog.NSRecordingISRC, "GBDUW9700012")
	require.NoError(t, err)
	require.NotNil(t, got)
	rec := got.(*catalog.Recording)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, "Around the World", rec.Title)
	require.NotNil(t, rec.DurationMS)
	assert.Equal(t, 429000, *rec.DurationMS)
	require.NoError(t, check.Rollback())

	merges, err := s.MergesInto(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, "tester", merges[0].CreatedBy)
}

func playGraph(t *testing.T, playedAt time.Time) *reconcile.ClaimGraph {
	t.Helper()
	md := reconcile.ClaimMetadata{Source: catalog.ProviderLastFM, IngestEventID: "batch-1"}
	handle := "annb"
	g := reconcile.NewClaimGraph()
	u := reconcile.NewEntityClaim(&catalog.User{DisplayName: "ann", LastFMUser: &handle}, md)
	g.AddRoot(u)
	play := reconcile.NewEntityClaim(&catalog.PlayEvent{Source: catalog.ProviderLastFM, PlayedAt: playedAt, RecordingID: "rec-x"}, md)
	g.Add(play, false)
	require.NoError(t, g.AddRelationship(reconcile.NewRelationshipClaim(reconcile.RelUserPlayEvent, u.ID, play.ID, reconcile.ClaimMetadata{}, nil)))
	return g
}

func TestEngineReingestAgainstSQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	engine := reconcile.NewEngine(s, reconcile.Settings{Actor: "tester"}, testLogger())
	playedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first, _, err := engine.Reconcile(ctx, playGraph(t, playedAt))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, _, err := engine.Reconcile(ctx, playGraph(t, playedAt))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Merged)

	counts, err := s.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(catalog.TypeUser)])
	assert.Equal(t, 1, counts[string(catalog.TypePlayEvent)])
}
