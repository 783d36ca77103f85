package catalog

// Provider identifies an upstream source of catalog or listening data.
type Provider string

// Known providers.
const (
	ProviderLastFM      Provider = "lastfm"
	ProviderSpotify     Provider = "spotify"
	ProviderMusicBrainz Provider = "musicbrainz"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderLastFM, ProviderSpotify, ProviderMusicBrainz:
		return true
	}
	return false
}

// EntityType discriminates catalog entities and associations.
type EntityType string

// Entity types. Contribution types name associations that never stand alone.
const (
	TypeArtist                 EntityType = "artist"
	TypeReleaseSet             EntityType = "release_set"
	TypeRelease                EntityType = "release"
	TypeRecording              EntityType = "recording"
	TypeLabel                  EntityType = "label"
	TypeReleaseTrack           EntityType = "release_track"
	TypeReleaseSetContribution EntityType = "release_set_contribution"
	TypeRecordingContribution  EntityType = "recording_contribution"
	TypeUser                   EntityType = "user"
	TypePlayEvent              EntityType = "play_event"
	TypeLibraryItem            EntityType = "library_item"
)

// EntityTypes lists every entity type in declaration order.
var EntityTypes = []EntityType{
	TypeArtist,
	TypeReleaseSet,
	TypeRelease,
	TypeRecording,
	TypeLabel,
	TypeReleaseTrack,
	TypeReleaseSetContribution,
	TypeRecordingContribution,
	TypeUser,
	TypePlayEvent,
	TypeLibraryItem,
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ArtistRole is the capacity in which an artist is credited.
type ArtistRole string

// Artist roles.
const (
	RolePrimary   ArtistRole = "primary"
	RoleFeatured  ArtistRole = "featured"
	RoleProducer  ArtistRole = "producer"
	RoleComposer  ArtistRole = "composer"
	RoleConductor ArtistRole = "conductor"
)

// rolePriority orders roles when picking the primary credited artist.
var rolePriority = map[ArtistRole]int{
	RolePrimary:   0,
	RoleFeatured:  1,
	RoleProducer:  2,
	RoleComposer:  3,
	RoleConductor: 4,
}

// Valid reports whether r is a known role.
func (r ArtistRole) Valid() bool {
	_, ok := rolePriority[r]
	return ok
}

// Priority returns the sort priority of the role. Lower is more significant;
// unknown or empty roles sort after every named role.
func (r ArtistRole) Priority() int {
	if p, ok := rolePriority[r]; ok {
		return p
	}
	return 10
}

// ReleaseSetType is the primary type of a release group.
type ReleaseSetType string

// Release set types.
const (
	ReleaseSetAlbum       ReleaseSetType = "album"
	ReleaseSetSingle      ReleaseSetType = "single"
	ReleaseSetEP          ReleaseSetType = "ep"
	ReleaseSetLive        ReleaseSetType = "live"
	ReleaseSetCompilation ReleaseSetType = "compilation"
	ReleaseSetSoundtrack  ReleaseSetType = "soundtrack"
	ReleaseSetMixtape     ReleaseSetType = "mixtape"
	ReleaseSetOther       ReleaseSetType = "other"
)

// MergeReason records why a duplicate entity was pointed at its canonical target.
type MergeReason string

// Merge reasons.
const (
	MergeManual     MergeReason = "manual"
	MergeExactMatch MergeReason = "exact_match"
)

// PartialDate is a date where the month and day may be unknown.
type PartialDate struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}
