package catalog

import "slices"

// Artist is a performer, group or other credited creator.
type Artist struct {
	Record
	Name          string  `json:"name"`
	SortName      *string `json:"sort_name,omitempty"`
	Country       *string `json:"country,omitempty"`
	FormedYear    *int    `json:"formed_year,omitempty"`
	DisbandedYear *int    `json:"disbanded_year,omitempty"`
}

// EntityType implements Entity.
func (*Artist) EntityType() EntityType { return TypeArtist }

// ReleaseSetContribution credits an artist on a release set. It is owned by
// the release set and refers to the artist only by id.
type ReleaseSetContribution struct {
	ArtistID    string     `json:"artist_id"`
	Role        ArtistRole `json:"role,omitempty"`
	CreditOrder *int       `json:"credit_order,omitempty"`
	CreditedAs  string     `json:"credited_as,omitempty"`
	JoinPhrase  string     `json:"join_phrase,omitempty"`
}

// ReleaseSet groups the releases of one work (an album, single or EP).
type ReleaseSet struct {
	Record
	Title         string                   `json:"title"`
	PrimaryType   *ReleaseSetType          `json:"primary_type,omitempty"`
	FirstRelease  *PartialDate             `json:"first_release,omitempty"`
	Contributions []ReleaseSetContribution `json:"contributions,omitempty"`
}

// EntityType implements Entity.
func (*ReleaseSet) EntityType() EntityType { return TypeReleaseSet }

// AddContribution appends c unless the same artist is already credited in
// the same role.
func (rs *ReleaseSet) AddContribution(c ReleaseSetContribution) bool {
	for _, existing := range rs.Contributions {
		if existing.ArtistID == c.ArtistID && existing.Role == c.Role {
			return false
		}
	}
	rs.Contributions = append(rs.Contributions, c)
	return true
}

// ReplaceArtist moves every credit held by from onto to and reports whether
// any moved. A moved credit that repeats one to holds in the same role is
// dropped.
func (rs *ReleaseSet) ReplaceArtist(from, to string) bool {
	if !slices.ContainsFunc(rs.Contributions, func(c ReleaseSetContribution) bool { return c.ArtistID == from }) {
		return false
	}
	kept := rs.Contributions[:0]
	for _, c := range rs.Contributions {
		if c.ArtistID == from {
			c.ArtistID = to
		}
		if slices.ContainsFunc(kept, func(k ReleaseSetContribution) bool {
			return k.ArtistID == c.ArtistID && k.Role == c.Role
		}) {
			continue
		}
		kept = append(kept, c)
	}
	rs.Contributions = kept
	return true
}

// Release is one concrete issue of a release set.
type Release struct {
	Record
	Title        string       `json:"title"`
	ReleaseSetID string       `json:"release_set_id,omitempty"`
	ReleaseDate  *PartialDate `json:"release_date,omitempty"`
	Country      *string      `json:"country,omitempty"`
	Format       *string      `json:"format,omitempty"`
	MediumCount  *int         `json:"medium_count,omitempty"`
	LabelIDs     []string     `json:"label_ids,omitempty"`
}

// EntityType implements Entity.
func (*Release) EntityType() EntityType { return TypeRelease }

// AddLabel links the release to a label once.
func (r *Release) AddLabel(labelID string) bool {
	for _, id := range r.LabelIDs {
		if id == labelID {
			return false
		}
	}
	r.LabelIDs = append(r.LabelIDs, labelID)
	return true
}

// RecordingContribution credits an artist on a recording.
type RecordingContribution struct {
	ArtistID    string     `json:"artist_id"`
	Role        ArtistRole `json:"role,omitempty"`
	CreditOrder *int       `json:"credit_order,omitempty"`
	CreditedAs  string     `json:"credited_as,omitempty"`
	Instrument  string     `json:"instrument,omitempty"`
}

// Recording is a distinct captured performance.
type Recording struct {
	Record
	Title         string                  `json:"title"`
	DurationMS    *int                    `json:"duration_ms,omitempty"`
	Version       *string                 `json:"version,omitempty"`
	Contributions []RecordingContribution `json:"contributions,omitempty"`
}

// EntityType implements Entity.
func (*Recording) EntityType() EntityType { return TypeRecording }

// AddContribution appends c unless the same artist is already credited in
// the same role.
func (rec *Recording) AddContribution(c RecordingContribution) bool {
	for _, existing := range rec.Contributions {
		if existing.ArtistID == c.ArtistID && existing.Role == c.Role {
			return false
		}
	}
	rec.Contributions = append(rec.Contributions, c)
	return true
}

// ReplaceArtist moves every credit held by from onto to, dropping moved
// credits that repeat an existing (artist, role) pair.
func (rec *Recording) ReplaceArtist(from, to string) bool {
	if !slices.ContainsFunc(rec.Contributions, func(c RecordingContribution) bool { return c.ArtistID == from }) {
		return false
	}
	kept := rec.Contributions[:0]
	for _, c := range rec.Contributions {
		if c.ArtistID == from {
			c.ArtistID = to
		}
		if slices.ContainsFunc(kept, func(k RecordingContribution) bool {
			return k.ArtistID == c.ArtistID && k.Role == c.Role
		}) {
			continue
		}
		kept = append(kept, c)
	}
	rec.Contributions = kept
	return true
}

// Label is a record label.
type Label struct {
	Record
	Name    string  `json:"name"`
	Country *string `json:"country,omitempty"`
}

// EntityType implements Entity.
func (*Label) EntityType() EntityType { return TypeLabel }

// ReleaseTrack places a recording at a position on a release. The release
// owns the track; the recording is a back-reference.
type ReleaseTrack struct {
	Record
	ReleaseID     string  `json:"release_id,omitempty"`
	RecordingID   string  `json:"recording_id,omitempty"`
	DiscNumber    *int    `json:"disc_number,omitempty"`
	TrackNumber   *int    `json:"track_number,omitempty"`
	TitleOverride *string `json:"title_override,omitempty"`
	DurationMS    *int    `json:"duration_ms,omitempty"`
}

// EntityType implements Entity.
func (*ReleaseTrack) EntityType() EntityType { return TypeReleaseTrack }
