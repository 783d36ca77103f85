package catalog

import (
	"fmt"
	"slices"
)

// ScalarPolicy decides what happens when a merge meets two different non-null
// values for the same plain attribute.
type ScalarPolicy string

// Scalar policies.
const (
	// KeepExisting fills absent target attributes and never overwrites.
	KeepExisting ScalarPolicy = "keep_existing"
	// PreferIncoming overwrites target attributes with present incoming values.
	PreferIncoming ScalarPolicy = "prefer_incoming"
	// ReviewConflicts merges like KeepExisting; callers check Conflicts first
	// and route conflicting claims to manual review.
	ReviewConflicts ScalarPolicy = "review_conflicts"
)

// Valid reports whether p is a known policy.
func (p ScalarPolicy) Valid() bool {
	switch p {
	case KeepExisting, PreferIncoming, ReviewConflicts:
		return true
	}
	return false
}

type fieldMerger struct {
	policy    ScalarPolicy
	dryRun    bool
	conflicts []string
}

func mergeScalar[T comparable](m *fieldMerger, name string, dst **T, src *T) {
	if src == nil {
		return
	}
	if *dst == nil {
		if !m.dryRun {
			v := *src
			*dst = &v
		}
		return
	}
	if **dst == *src {
		return
	}
	m.conflicts = append(m.conflicts, name)
	if m.policy == PreferIncoming && !m.dryRun {
		v := *src
		*dst = &v
	}
}

// mergeRef fills an absent foreign id. References are structural and never
// reported as conflicts.
func mergeRef(m *fieldMerger, dst *string, src string) {
	if *dst == "" && src != "" && !m.dryRun {
		*dst = src
	}
}

func mergeString(m *fieldMerger, name string, dst *string, src string) {
	if src == "" {
		return
	}
	if *dst == "" {
		if !m.dryRun {
			*dst = src
		}
		return
	}
	if *dst == src {
		return
	}
	m.conflicts = append(m.conflicts, name)
	if m.policy == PreferIncoming && !m.dryRun {
		*dst = src
	}
}

// Merge folds incoming into target: plain attributes per policy, provenance
// as a union, external ids as a union keyed by (namespace, value), and owned
// associations appended. Both entities must be of the same type.
func Merge(target, incoming Entity, policy ScalarPolicy) error {
	if target.EntityType() != incoming.EntityType() {
		return fmt.Errorf("merging %s into %s: entity type mismatch", incoming.EntityType(), target.EntityType())
	}
	m := &fieldMerger{policy: policy}
	if err := absorb(m, target, incoming); err != nil {
		return err
	}
	for _, src := range incoming.Base().Sources {
		target.Base().AddSource(src)
	}
	return mergeExternalIDs(target, incoming)
}

// Conflicts lists the plain attributes for which target and incoming hold
// different non-null values. Neither entity is modified.
func Conflicts(target, incoming Entity) []string {
	if target.EntityType() != incoming.EntityType() {
		return nil
	}
	m := &fieldMerger{policy: KeepExisting, dryRun: true}
	_ = absorb(m, target, incoming)
	return m.conflicts
}

func mergeExternalIDs(target, incoming Entity) error {
	for _, ext := range incoming.Base().ExternalIDs {
		if err := AddExternalID(target, ext.Namespace, ext.Value, ext.Provider); err != nil {
			return err
		}
	}
	return nil
}

func absorb(m *fieldMerger, target, incoming Entity) error {
	switch t := target.(type) {
	case *Artist:
		in := incoming.(*Artist)
		mergeScalar(m, "sort_name", &t.SortName, in.SortName)
		mergeScalar(m, "country", &t.Country, in.Country)
		mergeScalar(m, "formed_year", &t.FormedYear, in.FormedYear)
		mergeScalar(m, "disbanded_year", &t.DisbandedYear, in.DisbandedYear)
	case *ReleaseSet:
		in := incoming.(*ReleaseSet)
		mergeScalar(m, "primary_type", &t.PrimaryType, in.PrimaryType)
		mergeScalar(m, "first_release", &t.FirstRelease, in.FirstRelease)
		if !m.dryRun {
			for _, c := range in.Contributions {
				t.AddContribution(c)
			}
		}
	case *Release:
		in := incoming.(*Release)
		mergeScalar(m, "release_date", &t.ReleaseDate, in.ReleaseDate)
		mergeScalar(m, "country", &t.Country, in.Country)
		mergeScalar(m, "format", &t.Format, in.Format)
		mergeScalar(m, "medium_count", &t.MediumCount, in.MediumCount)
		mergeRef(m, &t.ReleaseSetID, in.ReleaseSetID)
		if !m.dryRun && len(t.LabelIDs) == 0 && len(in.LabelIDs) > 0 {
			t.LabelIDs = slices.Clone(in.LabelIDs)
		}
	case *Recording:
		in := incoming.(*Recording)
		mergeScalar(m, "duration_ms", &t.DurationMS, in.DurationMS)
		mergeScalar(m, "version", &t.Version, in.Version)
		if !m.dryRun {
			for _, c := range in.Contributions {
				t.AddContribution(c)
			}
		}
	case *Label:
		in := incoming.(*Label)
		mergeScalar(m, "country", &t.Country, in.Country)
	case *ReleaseTrack:
		in := incoming.(*ReleaseTrack)
		mergeRef(m, &t.ReleaseID, in.ReleaseID)
		mergeRef(m, &t.RecordingID, in.RecordingID)
		mergeScalar(m, "disc_number", &t.DiscNumber, in.DiscNumber)
		mergeScalar(m, "track_number", &t.TrackNumber, in.TrackNumber)
		mergeScalar(m, "title_override", &t.TitleOverride, in.TitleOverride)
		mergeScalar(m, "duration_ms", &t.DurationMS, in.DurationMS)
	case *User:
		in := incoming.(*User)
		mergeScalar(m, "email", &t.Email, in.Email)
		mergeScalar(m, "spotify_user_id", &t.SpotifyUserID, in.SpotifyUserID)
		mergeScalar(m, "lastfm_user", &t.LastFMUser, in.LastFMUser)
		mergeString(m, "display_name", &t.DisplayName, in.DisplayName)
	case *PlayEvent:
		in := incoming.(*PlayEvent)
		mergeRef(m, &t.UserID, in.UserID)
		mergeRef(m, &t.RecordingID, in.RecordingID)
		if t.TrackID == nil && in.TrackID != nil && !m.dryRun {
			id := *in.TrackID
			t.TrackID = &id
		}
		mergeScalar(m, "duration_ms", &t.DurationMS, in.DurationMS)
	case *LibraryItem:
		in := incoming.(*LibraryItem)
		mergeRef(m, &t.UserID, in.UserID)
		mergeScalar(m, "saved_at", &t.SavedAt, in.SavedAt)
	default:
		return fmt.Errorf("merging %s: unsupported entity", target.EntityType())
	}
	return nil
}
