package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedIDFollowsRedirect(t *testing.T) {
	a := &Artist{Record: Record{ID: "a1"}, Name: "Daft Punk"}
	assert.Equal(t, "a1", a.ResolvedID())
	assert.True(t, a.IsCanonical())

	a.PointTo("a2")
	assert.Equal(t, "a2", a.ResolvedID())
	assert.False(t, a.IsCanonical())

	a.PointTo("a1")
	assert.Empty(t, a.Redirect, "pointing at self should clear the redirect")
	assert.Equal(t, "a1", ResolvedID(a))
}

func TestAddSourceKeepsSortedSet(t *testing.T) {
	var r Record
	r.AddSource(ProviderSpotify)
	r.AddSource(ProviderLastFM)
	r.AddSource(ProviderSpotify)
	r.AddSource("")

	assert.Equal(t, []Provider{ProviderLastFM, ProviderSpotify}, r.Sources)
	assert.Equal(t, ProviderLastFM, r.PrimarySource())
	assert.True(t, r.HasSource(ProviderSpotify))
	assert.False(t, r.HasSource(ProviderMusicBrainz))
}

func TestAddExternalID(t *testing.T) {
	rec := &Recording{Record: Record{ID: "r1", Redirect: "r0"}, Title: "One More Time"}

	require.NoError(t, AddExternalID(rec, NSMusicBrainzRecording, "mbid-1", ""))
	require.Len(t, rec.ExternalIDs, 1)
	ext := rec.ExternalIDs[0]
	assert.Equal(t, ProviderMusicBrainz, ext.Provider, "provider derived from namespace")
	assert.Equal(t, "r0", ext.OwnerID, "owner is the resolved id")
	assert.Equal(t, TypeRecording, ext.OwnerType)

	require.NoError(t, AddExternalID(rec, NSMusicBrainzRecording, "mbid-1", ""), "same value is a no-op")
	assert.Len(t, rec.ExternalIDs, 1)

	err := AddExternalID(rec, NSMusicBrainzRecording, "mbid-2", "")
	var conflict *ExternalIDConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "mbid-1", conflict.Existing)
	assert.Equal(t, "mbid-2", conflict.Incoming)
	assert.Equal(t, NSMusicBrainzRecording, conflict.Namespace)
}

func TestProviderFor(t *testing.T) {
	tests := []struct {
		ns   Namespace
		want Provider
	}{
		{NSMusicBrainzArtist, ProviderMusicBrainz},
		{NSSpotifyAlbum, ProviderSpotify},
		{NSLastFMUser, ProviderLastFM},
		{NSRecordingISRC, ProviderMusicBrainz},
		{NSReleaseUPC, ProviderSpotify},
		{Namespace("discogs:artist"), ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.ns), func(t *testing.T) {
			assert.Equal(t, tt.want, ProviderFor(tt.ns))
		})
	}
}

func TestRolePriority(t *testing.T) {
	assert.Less(t, RolePrimary.Priority(), RoleFeatured.Priority())
	assert.Less(t, RoleConductor.Priority(), ArtistRole("").Priority())
	assert.Equal(t, 10, ArtistRole("remixer").Priority())
	assert.True(t, RoleComposer.Valid())
	assert.False(t, ArtistRole("primay").Valid())
}
