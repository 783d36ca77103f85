package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/confluence/internal/batch"
	"github.com/sydlexius/confluence/internal/catalog"
	"github.com/sydlexius/confluence/internal/database"
	"github.com/sydlexius/confluence/internal/event"
	"github.com/sydlexius/confluence/internal/reconcile"
	"github.com/sydlexius/confluence/internal/store"
)

const playsDoc = `{
  "batch_id": "plays-1",
  "source": "lastfm",
  "claims": [
    {"ref": "ann", "type": "user", "root": true, "entity": {"display_name": "ann", "lastfm_user": "annb"}},
    {"ref": "atw", "type": "recording",
     "entity": {"title": "Around the World", "external_ids": [{"namespace": "musicbrainz:recording", "value": "mb-atw"}]}},
    {"ref": "p1", "type": "play_event", "entity": {"played_at": "2024-05-01T20:15:00Z", "recording": "atw"}}
  ],
  "relationships": [{"kind": "user_play_event", "source": "ann", "target": "p1"}]
}`

const ambiguousDoc = `{
  "batch_id": "air-1",
  "source": "spotify",
  "claims": [
    {"ref": "air", "type": "artist", "root": true,
     "entity": {"name": "Air", "external_ids": [
       {"namespace": "spotify:artist", "value": "sp-air"},
       {"namespace": "musicbrainz:artist", "value": "mb-air"}]}}
  ]
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	store  *store.Store
	runner *Runner
	events *recorded
}

type recorded struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorded) add(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorded) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = database.Migrate(ctx, db)
	require.NoError(t, err)

	s := store.New(db)
	logger := testLogger()
	engine := reconcile.NewEngine(s, reconcile.Settings{Actor: "ingest-test"}, logger)
	runner := NewRunner(batch.NewDecoder(logger), engine, s, logger)

	bus := event.NewBus(logger, 16)
	rec := &recorded{}
	bus.SubscribeAll(rec.add)
	runner.SetBus(bus)

	busCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Run(busCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{store: s, runner: runner, events: rec}
}

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunFileReconcilesAndRecordsRun(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	path := writeDoc(t, playsDoc)

	out, err := f.runner.RunFile(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, "plays-1", out.BatchID)
	assert.Equal(t, 3, out.Claims)
	assert.Equal(t, 3, out.Applied.Created)
	assert.True(t, out.Persisted.Committed)

	runs, err := f.store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunSucceeded, runs[0].Status)
	assert.Equal(t, path, runs[0].File)
	assert.Equal(t, 3, runs[0].Created)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]event.Type{event.BatchReconciled}, f.events.types())
	}, time.Second, 5*time.Millisecond)
}

func TestRunFileRecordsDecodeFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.runner.RunFile(ctx, writeDoc(t, `{"batch_id":"x","source":"spotify","claims":[]}`))
	require.Error(t, err)

	runs, err := f.store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "decoding")

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]event.Type{event.BatchFailed}, f.events.types())
	}, time.Second, 5*time.Millisecond)
}

func TestRunFilePublishesReviewNeeded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	uow, err := f.store.Begin(ctx)
	require.NoError(t, err)
	a := &catalog.Artist{Record: catalog.Record{ID: "a"}, Name: "Air"}
	require.NoError(t, catalog.AddExternalID(a, catalog.NSSpotifyArtist, "sp-air", ""))
	b := &catalog.Artist{Record: catalog.Record{ID: "b"}, Name: "Air"}
	require.NoError(t, catalog.AddExternalID(b, catalog.NSMusicBrainzArtist, "mb-air", ""))
	require.NoError(t, uow.Entities().Add(ctx, a))
	require.NoError(t, uow.Entities().Add(ctx, b))
	require.NoError(t, uow.Commit())

	out, err := f.runner.RunFile(ctx, writeDoc(t, ambiguousDoc))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Applied.ManualReview)

	reviews, err := f.store.ListReviews(ctx, store.ReviewOpen, 10)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, reviews[0].Candidates)
	assert.Equal(t, "air-1", reviews[0].BatchID)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]event.Type{event.BatchReconciled, event.ReviewNeeded}, f.events.types())
	}, time.Second, 5*time.Millisecond)
}
