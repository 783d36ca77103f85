package batch

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/sydlexius/confluence/internal/catalog"
)

type artistDoc struct {
	Name          string          `json:"name" validate:"required"`
	SortName      *string         `json:"sort_name,omitempty"`
	Country       *string         `json:"country,omitempty" validate:"omitempty,len=2"`
	FormedYear    *int            `json:"formed_year,omitempty" validate:"omitempty,gt=0"`
	DisbandedYear *int            `json:"disbanded_year,omitempty" validate:"omitempty,gt=0"`
	ExternalIDs   []ExternalIDDoc `json:"external_ids,omitempty" validate:"dive"`
}

type releaseSetDoc struct {
	Title        string                  `json:"title" validate:"required"`
	PrimaryType  *catalog.ReleaseSetType `json:"primary_type,omitempty"`
	FirstRelease *catalog.PartialDate    `json:"first_release,omitempty"`
	ExternalIDs  []ExternalIDDoc         `json:"external_ids,omitempty" validate:"dive"`
}

type releaseDoc struct {
	Title        string               `json:"title" validate:"required"`
	ReleaseSetID string               `json:"release_set_id,omitempty"`
	ReleaseDate  *catalog.PartialDate `json:"release_date,omitempty"`
	Country      *string              `json:"country,omitempty" validate:"omitempty,len=2"`
	Format       *string              `json:"format,omitempty"`
	MediumCount  *int                 `json:"medium_count,omitempty" validate:"omitempty,gt=0"`
	ExternalIDs  []ExternalIDDoc      `json:"external_ids,omitempty" validate:"dive"`
}

type recordingDoc struct {
	Title       string          `json:"title" validate:"required"`
	DurationMS  *int            `json:"duration_ms,omitempty" validate:"omitempty,gte=0"`
	Version     *string         `json:"version,omitempty"`
	ExternalIDs []ExternalIDDoc `json:"external_ids,omitempty" validate:"dive"`
}

type labelDoc struct {
	Name        string          `json:"name" validate:"required"`
	Country     *string         `json:"country,omitempty" validate:"omitempty,len=2"`
	ExternalIDs []ExternalIDDoc `json:"external_ids,omitempty" validate:"dive"`
}

type releaseTrackDoc struct {
	Recording     string  `json:"recording,omitempty"`
	RecordingID   string  `json:"recording_id,omitempty"`
	ReleaseID     string  `json:"release_id,omitempty"`
	DiscNumber    *int    `json:"disc_number,omitempty" validate:"omitempty,gt=0"`
	TrackNumber   *int    `json:"track_number,omitempty" validate:"omitempty,gt=0"`
	TitleOverride *string `json:"title_override,omitempty"`
	DurationMS    *int    `json:"duration_ms,omitempty" validate:"omitempty,gte=0"`
}

type userDoc struct {
	DisplayName   string          `json:"display_name" validate:"required"`
	Email         *string         `json:"email,omitempty" validate:"omitempty,email"`
	SpotifyUserID *string         `json:"spotify_user_id,omitempty"`
	LastFMUser    *string         `json:"lastfm_user,omitempty"`
	ExternalIDs   []ExternalIDDoc `json:"external_ids,omitempty" validate:"dive"`
}

type playEventDoc struct {
	PlayedAt    time.Time        `json:"played_at" validate:"required"`
	Source      catalog.Provider `json:"source,omitempty" validate:"omitempty,provider"`
	UserID      string           `json:"user_id,omitempty"`
	Recording   string           `json:"recording,omitempty"`
	RecordingID string           `json:"recording_id,omitempty"`
	Track       string           `json:"track,omitempty"`
	TrackID     string           `json:"track_id,omitempty"`
	DurationMS  *int             `json:"duration_ms,omitempty" validate:"omitempty,gte=0"`
}

type libraryItemDoc struct {
	TargetType catalog.EntityType `json:"target_type" validate:"required,entity_type"`
	Target     string             `json:"target,omitempty"`
	TargetID   string             `json:"target_id,omitempty"`
	UserID     string             `json:"user_id,omitempty"`
	Source     catalog.Provider   `json:"source,omitempty" validate:"omitempty,provider"`
	SavedAt    *time.Time         `json:"saved_at,omitempty"`
}

// claimRef is a reference from one claim's body to another claim in the
// same document. set receives the referenced entity's id.
type claimRef struct {
	field string
	ref   string
	want  catalog.EntityType
	set   func(id string)
}

// builder turns a decoded entity body into a catalog entity and the claim
// references still to be bound.
type builder interface {
	build(claimSource catalog.Provider) (catalog.Entity, []claimRef, error)
}

func newBody(t catalog.EntityType) (builder, error) {
	switch t {
	case catalog.TypeArtist:
		return &artistDoc{}, nil
	case catalog.TypeReleaseSet:
		return &releaseSetDoc{}, nil
	case catalog.TypeRelease:
		return &releaseDoc{}, nil
	case catalog.TypeRecording:
		return &recordingDoc{}, nil
	case catalog.TypeLabel:
		return &labelDoc{}, nil
	case catalog.TypeReleaseTrack:
		return &releaseTrackDoc{}, nil
	case catalog.TypeUser:
		return &userDoc{}, nil
	case catalog.TypePlayEvent:
		return &playEventDoc{}, nil
	case catalog.TypeLibraryItem:
		return &libraryItemDoc{}, nil
	}
	return nil, fmt.Errorf("entity type %q cannot be claimed directly", t)
}

func decodeBody(t catalog.EntityType, raw json.RawMessage) (builder, error) {
	body, err := newBody(t)
	if err != nil {
		return nil, err
	}
	if err := decodeStrict(raw, body); err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", t, err)
	}
	return body, nil
}

func attachIDs(e catalog.Entity, ids []ExternalIDDoc) error {
	for _, ext := range ids {
		if err := catalog.AddExternalID(e, ext.Namespace, ext.Value, ""); err != nil {
			return err
		}
	}
	return nil
}

func (d *artistDoc) build(catalog.Provider) (catalog.Entity, []claimRef, error) {
	a := &catalog.Artist{
		Name:          d.Name,
		SortName:      d.SortName,
		Country:       d.Country,
		FormedYear:    d.FormedYear,
		DisbandedYear: d.DisbandedYear,
	}
	return a, nil, attachIDs(a, d.ExternalIDs)
}

func (d *releaseSetDoc) build(catalog.Provider) (catalog.Entity, []claimRef, error) {
	rs := &catalog.ReleaseSet{Title: d.Title, PrimaryType: d.PrimaryType, FirstRelease: d.FirstRelease}
	return rs, nil, attachIDs(rs, d.ExternalIDs)
}

func (d *releaseDoc) build(catalog.Provider) (catalog.Entity, []claimRef, error) {
	r := &catalog.Release{
		Title:        d.Title,
		ReleaseSetID: d.ReleaseSetID,
		ReleaseDate:  d.ReleaseDate,
		Country:      d.Country,
		Format:       d.Format,
		MediumCount:  d.MediumCount,
	}
	return r, nil, attachIDs(r, d.ExternalIDs)
}

func (d *recordingDoc) build(catalog.Provider) (catalog.Entity, []claimRef, error) {
	r := &catalog.Recording{Title: d.Title, DurationMS: d.DurationMS, Version: d.Version}
	return r, nil, attachIDs(r, d.ExternalIDs)
}

func (d *labelDoc) build(catalog.Provider) (catalog.Entity, []claimRef, error) {
	l := &catalog.Label{Name: d.Name, Country: d.Country}
	return l, nil, attachIDs(l, d.ExternalIDs)
}

func (d *releaseTrackDoc) build(catalog.Provider) (catalog.Entity, []claimRef, error) {
	if d.Recording == "" && d.RecordingID == "" {
		return nil, nil, fmt.Errorf("release_track needs recording or recording_id")
	}
	t := &catalog.ReleaseTrack{
		ReleaseID:     d.ReleaseID,
		RecordingID:   d.RecordingID,
		DiscNumber:    d.DiscNumber,
		TrackNumber:   d.TrackNumber,
		TitleOverride: d.TitleOverride,
		DurationMS:    d.DurationMS,
	}
	var refs []claimRef
	if d.Recording != "" {
		refs = append(refs, claimRef{
			field: "recording", ref: d.Recording, want: catalog.TypeRecording,
			set: func(id string) { t.RecordingID = id },
		})
	}
	return t, refs, nil
}

func (d *userDoc) build(catalog.Provider) (catalog.Entity, []claimRef, error) {
	u := &catalog.User{
		DisplayName:   d.DisplayName,
		Email:         d.Email,
		SpotifyUserID: d.SpotifyUserID,
		LastFMUser:    d.LastFMUser,
	}
	return u, nil, attachIDs(u, d.ExternalIDs)
}

func (d *playEventDoc) build(source catalog.Provider) (catalog.Entity, []claimRef, error) {
	if d.Recording == "" && d.RecordingID == "" && d.Track == "" && d.TrackID == "" {
		return nil, nil, fmt.Errorf("play_event needs a recording or a track")
	}
	p := &catalog.PlayEvent{
		UserID:      d.UserID,
		Source:      d.Source,
		PlayedAt:    d.PlayedAt.UTC(),
		RecordingID: d.RecordingID,
		DurationMS:  d.DurationMS,
	}
	if p.Source == "" {
		p.Source = source
	}
	if d.TrackID != "" {
		p.TrackID = &d.TrackID
	}
	var refs []claimRef
	if d.Recording != "" {
		refs = append(refs, claimRef{
			field: "recording", ref: d.Recording, want: catalog.TypeRecording,
			set: func(id string) { p.RecordingID = id },
		})
	}
	if d.Track != "" {
		refs = append(refs, claimRef{
			field: "track", ref: d.Track, want: catalog.TypeReleaseTrack,
			set: func(id string) { p.TrackID = &id },
		})
	}
	return p, refs, nil
}

func (d *libraryItemDoc) build(source catalog.Provider) (catalog.Entity, []claimRef, error) {
	if d.Target == "" && d.TargetID == "" {
		return nil, nil, fmt.Errorf("library_item needs target or target_id")
	}
	item := &catalog.LibraryItem{
		UserID:     d.UserID,
		TargetType: d.TargetType,
		TargetID:   d.TargetID,
		Source:     d.Source,
		SavedAt:    d.SavedAt,
	}
	if item.Source == "" {
		item.Source = source
	}
	var refs []claimRef
	if d.Target != "" {
		refs = append(refs, claimRef{
			field: "target", ref: d.Target, want: d.TargetType,
			set: func(id string) { item.TargetID = id },
		})
	}
	return item, refs, nil
}
