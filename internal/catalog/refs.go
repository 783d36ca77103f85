package catalog

// Reference is a foreign id held by an entity, with the type it points at.
type Reference struct {
	Type EntityType
	ID   string
}

// References lists the foreign ids e holds, owners first. Library item
// targets are typed by the item's target type.
func References(e Entity) []Reference {
	var refs []Reference
	add := func(t EntityType, id string) {
		if id != "" {
			refs = append(refs, Reference{Type: t, ID: id})
		}
	}
	switch v := e.(type) {
	case *ReleaseSet:
		for _, c := range v.Contributions {
			add(TypeArtist, c.ArtistID)
		}
	case *Release:
		add(TypeReleaseSet, v.ReleaseSetID)
		for _, id := range v.LabelIDs {
			add(TypeLabel, id)
		}
	case *Recording:
		for _, c := range v.Contributions {
			add(TypeArtist, c.ArtistID)
		}
	case *ReleaseTrack:
		add(TypeRelease, v.ReleaseID)
		add(TypeRecording, v.RecordingID)
	case *PlayEvent:
		add(TypeUser, v.UserID)
		add(TypeRecording, v.RecordingID)
		if v.TrackID != nil {
			add(TypeReleaseTrack, *v.TrackID)
		}
	case *LibraryItem:
		add(TypeUser, v.UserID)
		add(v.TargetType, v.TargetID)
	}
	return refs
}

// RewriteReferences replaces every foreign id equal to from with to and
// reports whether anything changed. Artist credits that become repeats are
// dropped.
func RewriteReferences(e Entity, from, to string) bool {
	if from == "" || from == to {
		return false
	}
	changed := false
	swap := func(id *string) {
		if *id == from {
			*id = to
			changed = true
		}
	}
	switch v := e.(type) {
	case *ReleaseSet:
		if v.ReplaceArtist(from, to) {
			changed = true
		}
	case *Release:
		swap(&v.ReleaseSetID)
		for i := range v.LabelIDs {
			swap(&v.LabelIDs[i])
		}
	case *Recording:
		if v.ReplaceArtist(from, to) {
			changed = true
		}
	case *ReleaseTrack:
		swap(&v.ReleaseID)
		swap(&v.RecordingID)
	case *PlayEvent:
		swap(&v.UserID)
		swap(&v.RecordingID)
		if v.TrackID != nil {
			swap(v.TrackID)
		}
	case *LibraryItem:
		swap(&v.UserID)
		swap(&v.TargetID)
	}
	return changed
}
