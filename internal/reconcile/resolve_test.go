package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/confluence/internal/catalog"
)

func fixedFinder(candidates ...CanonicalRef) CandidateFinder {
	return FinderFunc(func(context.Context, Repositories, *EntityClaim, []Key) (Match, error) {
		return Match{Key: Key{"artist:name", "air"}, Confidence: SidecarConfidence, Candidates: candidates}, nil
	})
}

func resolveOne(t *testing.T, finder CandidateFinder) *Resolution {
	t.Helper()
	g := NewClaimGraph()
	c := claim(g, &catalog.Artist{Name: "Air"}, catalog.ProviderSpotify)
	res, err := NewResolver(finder, testLogger()).Resolve(context.Background(), nil, g, mustKeys(t, g))
	require.NoError(t, err)
	require.Contains(t, res, c.ID)
	return res[c.ID]
}

func TestResolveClassification(t *testing.T) {
	artistA := CanonicalRef{EntityType: catalog.TypeArtist, ResolvedID: "a"}
	artistB := CanonicalRef{EntityType: catalog.TypeArtist, ResolvedID: "b"}
	label := CanonicalRef{EntityType: catalog.TypeLabel, ResolvedID: "l"}

	tests := []struct {
		name       string
		candidates []CanonicalRef
		status     ResolutionStatus
		reason     string
	}{
		{"no candidates", nil, StatusNew, ReasonNoExactMatch},
		{"one candidate", []CanonicalRef{artistA}, StatusResolved, ReasonExactMatch},
		{"same candidate twice", []CanonicalRef{artistA, artistA}, StatusResolved, ReasonExactMatch},
		{"two candidates", []CanonicalRef{artistA, artistB}, StatusAmbiguous, ReasonMultipleExactMatches},
		{"type mismatch", []CanonicalRef{label}, StatusConflict, ReasonCandidateTypeMismatch},
		{"mismatch beats ambiguity", []CanonicalRef{artistA, artistB, label}, StatusConflict, ReasonCandidateTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolveOne(t, fixedFinder(tt.candidates...))
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, catalog.TypeArtist, res.EntityType)
		})
	}
}

func TestResolveResolvedCarriesTarget(t *testing.T) {
	res := resolveOne(t, fixedFinder(CanonicalRef{EntityType: catalog.TypeArtist, ResolvedID: "a"}))

	require.NotNil(t, res.Target)
	assert.Equal(t, "a", res.Target.ResolvedID)
	assert.Equal(t, MatchExact, res.MatchKind)
	assert.Equal(t, SidecarConfidence, res.Confidence)
	assert.Equal(t, Key{"artist:name", "air"}, res.MatchedKey)
}

func TestResolveFinderErrorAborts(t *testing.T) {
	boom := errors.New("store offline")
	g := NewClaimGraph()
	claim(g, &catalog.Artist{Name: "Air"}, catalog.ProviderSpotify)
	finder := FinderFunc(func(context.Context, Repositories, *EntityClaim, []Key) (Match, error) {
		return Match{}, boom
	})

	_, err := NewResolver(finder, testLogger()).Resolve(context.Background(), nil, g, mustKeys(t, g))
	assert.ErrorIs(t, err, boom)
}

func TestExactFinderPrefersExternalIDs(t *testing.T) {
	store := newMemStore()
	existing := recordingWithMBID(t, "Around the World", "mb-atw")
	existing.ID = "rec-1"
	store.seed(t, existing, Key{"recording:artist-title", "daft punk", "around the world"})

	g := NewClaimGraph()
	c := claim(g, recordingWithMBID(t, "Around The World", "mb-atw"), catalog.ProviderMusicBrainz)

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	res, err := NewResolver(nil, testLogger()).Resolve(context.Background(), uow, g, mustKeys(t, g))
	require.NoError(t, err)

	r := res[c.ID]
	assert.Equal(t, StatusResolved, r.Status)
	assert.Equal(t, "rec-1", r.Target.ResolvedID)
	assert.Equal(t, ExternalIDConfidence, r.Confidence)
	assert.Equal(t, Key{"musicbrainz:recording", "mb-atw"}, r.MatchedKey)
	require.NotNil(t, r.Target.Entity, "finder attaches the loaded entity")
}

func TestExactFinderFallsBackToSidecarKeys(t *testing.T) {
	store := newMemStore()
	store.seed(t, &catalog.Artist{Record: catalog.Record{ID: "artist-1"}, Name: "Air"}, Key{"artist:name", "air"})

	g := NewClaimGraph()
	c := claim(g, &catalog.Artist{Name: "AIR"}, catalog.ProviderLastFM)

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	res, err := NewResolver(ExactFinder{}, testLogger()).Resolve(context.Background(), uow, g, mustKeys(t, g))
	require.NoError(t, err)

	r := res[c.ID]
	assert.Equal(t, StatusResolved, r.Status)
	assert.Equal(t, "artist-1", r.Target.ResolvedID)
	assert.Equal(t, SidecarConfidence, r.Confidence)
	assert.Equal(t, Key{"artist:name", "air"}, r.MatchedKey)
}

func TestResolveZeroKeyClaimIsNew(t *testing.T) {
	store := newMemStore()
	existing := &catalog.User{Record: catalog.Record{ID: "user-1"}, DisplayName: "ann"}
	require.NoError(t, catalog.AddExternalID(existing, catalog.NSSpotifyUser, "sp-1", ""))
	store.seed(t, existing)

	g := NewClaimGraph()
	incoming := &catalog.User{DisplayName: "!!!"}
	require.NoError(t, catalog.AddExternalID(incoming, catalog.NSSpotifyUser, "sp-1", ""))
	c := claim(g, incoming, catalog.ProviderSpotify)
	keys := mustKeys(t, g)
	require.Empty(t, keys[c.ID])

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	res, err := NewResolver(nil, testLogger()).Resolve(context.Background(), uow, g, keys)
	require.NoError(t, err)

	assert.Equal(t, StatusNew, res[c.ID].Status)
	assert.Equal(t, ReasonNoExactMatch, res[c.ID].Reason)
	assert.Nil(t, res[c.ID].Target)
}

func TestResolveSubstitutesResolvedDependencies(t *testing.T) {
	store := newMemStore()
	store.seed(t, &catalog.User{Record: catalog.Record{ID: "user-1"}, DisplayName: "ann", LastFMUser: ptr("annb")},
		Key{"user:lastfm", "annb"})
	playedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.seed(t, &catalog.PlayEvent{
		Record:      catalog.Record{ID: "play-1"},
		UserID:      "user-1",
		Source:      catalog.ProviderLastFM,
		PlayedAt:    playedAt,
		RecordingID: "rec-1",
	}, Key{"play_event:user-source-played_at", "user-1", "lastfm", "2024-05-01T12:00:00Z"})

	g := NewClaimGraph()
	u := claim(g, &catalog.User{DisplayName: "ann", LastFMUser: ptr("annb")}, catalog.ProviderLastFM)
	play := claim(g, &catalog.PlayEvent{Source: catalog.ProviderLastFM, PlayedAt: playedAt, RecordingID: "rec-1"}, catalog.ProviderLastFM)
	link(t, g, RelUserPlayEvent, u, play, nil)

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	res, err := NewResolver(nil, testLogger()).Resolve(context.Background(), uow, g, mustKeys(t, g))
	require.NoError(t, err)

	assert.Equal(t, StatusResolved, res[u.ID].Status)
	require.Equal(t, StatusResolved, res[play.ID].Status)
	assert.Equal(t, "play-1", res[play.ID].Target.ResolvedID)
}

func TestRefForRedirectedEntityDropsEntity(t *testing.T) {
	e := &catalog.Artist{Record: catalog.Record{ID: "dup", Redirect: "canon"}, Name: "Air"}
	ref := RefFor(e)
	assert.Equal(t, "canon", ref.ResolvedID)
	assert.Nil(t, ref.Entity)
}

func TestSubstituteKeysDoesNotModifyInput(t *testing.T) {
	keys := []Key{{"release_track:release-recording", "batch-release", "rec-1"}}
	out := substituteKeys(keys, map[string]string{"batch-release": "release-9"})

	assert.Equal(t, Key{"release_track:release-recording", "release-9", "rec-1"}, out[0])
	assert.Equal(t, "batch-release", keys[0][1])
}
