package catalog

import "time"

// User is a listener whose plays and saved items are tracked.
type User struct {
	Record
	DisplayName   string  `json:"display_name"`
	Email         *string `json:"email,omitempty"`
	SpotifyUserID *string `json:"spotify_user_id,omitempty"`
	LastFMUser    *string `json:"lastfm_user,omitempty"`
}

// EntityType implements Entity.
func (*User) EntityType() EntityType { return TypeUser }

// PlayEvent is one listen of a recording, optionally of a specific track.
type PlayEvent struct {
	Record
	UserID      string    `json:"user_id,omitempty"`
	Source      Provider  `json:"source"`
	PlayedAt    time.Time `json:"played_at"`
	RecordingID string    `json:"recording_id,omitempty"`
	TrackID     *string   `json:"track_id,omitempty"`
	DurationMS  *int      `json:"duration_ms,omitempty"`
}

// EntityType implements Entity.
func (*PlayEvent) EntityType() EntityType { return TypePlayEvent }

// LibraryItem is an entity saved to a user's library.
type LibraryItem struct {
	Record
	UserID     string     `json:"user_id,omitempty"`
	TargetType EntityType `json:"target_type"`
	TargetID   string     `json:"target_id"`
	Source     Provider   `json:"source"`
	SavedAt    *time.Time `json:"saved_at,omitempty"`
}

// EntityType implements Entity.
func (*LibraryItem) EntityType() EntityType { return TypeLibraryItem }
