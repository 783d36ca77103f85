package catalog

import (
	"fmt"
	"time"
)

// Namespace names the external system an identifier belongs to.
type Namespace string

// External identifier namespaces.
const (
	NSMusicBrainzArtist       Namespace = "musicbrainz:artist"
	NSMusicBrainzReleaseGroup Namespace = "musicbrainz:release-group"
	NSMusicBrainzRelease      Namespace = "musicbrainz:release"
	NSMusicBrainzRecording    Namespace = "musicbrainz:recording"
	NSMusicBrainzLabel        Namespace = "musicbrainz:label"
	NSSpotifyArtist           Namespace = "spotify:artist"
	NSSpotifyAlbum            Namespace = "spotify:album"
	NSSpotifyTrack            Namespace = "spotify:track"
	NSSpotifyUser             Namespace = "spotify:user"
	NSLastFMArtist            Namespace = "lastfm:artist"
	NSLastFMRecording         Namespace = "lastfm:recording"
	NSLastFMUser              Namespace = "lastfm:user"
	NSRecordingISRC           Namespace = "recording:isrc"
	NSReleaseEAN              Namespace = "release:ean"
	NSReleaseUPC              Namespace = "release:upc"
	NSLabelCatalogNumber      Namespace = "label:catalog_number"
	NSLabelBarcode            Namespace = "label:barcode"
)

var namespaceProviders = map[Namespace]Provider{
	NSMusicBrainzArtist:       ProviderMusicBrainz,
	NSMusicBrainzReleaseGroup: ProviderMusicBrainz,
	NSMusicBrainzRelease:      ProviderMusicBrainz,
	NSMusicBrainzRecording:    ProviderMusicBrainz,
	NSMusicBrainzLabel:        ProviderMusicBrainz,
	NSSpotifyArtist:           ProviderSpotify,
	NSSpotifyAlbum:            ProviderSpotify,
	NSSpotifyTrack:            ProviderSpotify,
	NSSpotifyUser:             ProviderSpotify,
	NSLastFMArtist:            ProviderLastFM,
	NSLastFMRecording:         ProviderLastFM,
	NSLastFMUser:              ProviderLastFM,
	NSRecordingISRC:           ProviderMusicBrainz,
	NSReleaseEAN:              ProviderSpotify,
	NSReleaseUPC:              ProviderSpotify,
	NSLabelCatalogNumber:      ProviderMusicBrainz,
	NSLabelBarcode:            ProviderMusicBrainz,
}

// ProviderFor returns the provider that issues identifiers in ns, or "" for
// an unknown namespace.
func ProviderFor(ns Namespace) Provider {
	return namespaceProviders[ns]
}

// Known reports whether ns is a registered namespace.
func (ns Namespace) Known() bool {
	_, ok := namespaceProviders[ns]
	return ok
}

// MBIDNamespace returns the MusicBrainz namespace used for entities of type t.
func MBIDNamespace(t EntityType) (Namespace, bool) {
	switch t {
	case TypeArtist:
		return NSMusicBrainzArtist, true
	case TypeReleaseSet:
		return NSMusicBrainzReleaseGroup, true
	case TypeRelease:
		return NSMusicBrainzRelease, true
	case TypeRecording:
		return NSMusicBrainzRecording, true
	case TypeLabel:
		return NSMusicBrainzLabel, true
	}
	return "", false
}

// ExternalID links an entity to an identifier from an external system.
// The owner is the entity's resolved id at the time the id was attached.
type ExternalID struct {
	Namespace Namespace  `json:"namespace" db:"namespace"`
	Value     string     `json:"value" db:"value"`
	OwnerType EntityType `json:"owner_type,omitempty" db:"entity_type"`
	OwnerID   string     `json:"owner_id,omitempty" db:"entity_id"`
	Provider  Provider   `json:"provider,omitempty" db:"provider"`
	CreatedAt *time.Time `json:"created_at,omitempty" db:"-"`
}

// ExternalIDConflictError is returned when an entity already holds a different
// value under the same namespace.
type ExternalIDConflictError struct {
	EntityType EntityType
	EntityID   string
	Namespace  Namespace
	Existing   string
	Incoming   string
}

func (e *ExternalIDConflictError) Error() string {
	return fmt.Sprintf("external id conflict on %s %s: namespace %s holds %q, incoming %q",
		e.EntityType, e.EntityID, e.Namespace, e.Existing, e.Incoming)
}
