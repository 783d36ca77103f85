package catalog

// Arena is an id-keyed store of entities for one unit of work. Associations
// hold foreign ids, so back-references are found by scanning owners rather
// than kept as a second set of pointers.
type Arena struct {
	byID  map[string]Entity
	order []string
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{byID: make(map[string]Entity)}
}

// Put stores e under its own id, replacing any previous entry.
func (a *Arena) Put(e Entity) {
	id := e.Base().ID
	if _, ok := a.byID[id]; !ok {
		a.order = append(a.order, id)
	}
	a.byID[id] = e
}

// Get returns the entity stored under id, or nil.
func (a *Arena) Get(id string) Entity {
	return a.byID[id]
}

// Remove drops id from the arena.
func (a *Arena) Remove(id string) {
	if _, ok := a.byID[id]; !ok {
		return
	}
	delete(a.byID, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored entities.
func (a *Arena) Len() int {
	return len(a.order)
}

// All returns the stored entities in insertion order.
func (a *Arena) All() []Entity {
	out := make([]Entity, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id])
	}
	return out
}

// Lookup returns the entity stored under id if it has type T.
func Lookup[T Entity](a *Arena, id string) (T, bool) {
	v, ok := a.byID[id].(T)
	return v, ok
}

func collect[T Entity](a *Arena, match func(T) bool) []T {
	var out []T
	for _, id := range a.order {
		if v, ok := a.byID[id].(T); ok && match(v) {
			out = append(out, v)
		}
	}
	return out
}

// ReleasesOf returns the releases owned by a release set.
func (a *Arena) ReleasesOf(releaseSetID string) []*Release {
	return collect(a, func(r *Release) bool { return r.ReleaseSetID == releaseSetID })
}

// TracksOf returns the tracks owned by a release.
func (a *Arena) TracksOf(releaseID string) []*ReleaseTrack {
	return collect(a, func(t *ReleaseTrack) bool { return t.ReleaseID == releaseID })
}

// PlaysOf returns the play events owned by a user.
func (a *Arena) PlaysOf(userID string) []*PlayEvent {
	return collect(a, func(p *PlayEvent) bool { return p.UserID == userID })
}

// LibraryItemsOf returns the library items owned by a user.
func (a *Arena) LibraryItemsOf(userID string) []*LibraryItem {
	return collect(a, func(li *LibraryItem) bool { return li.UserID == userID })
}

// ContributionsBy returns the release sets and recordings crediting an artist.
func (a *Arena) ContributionsBy(artistID string) ([]*ReleaseSet, []*Recording) {
	sets := collect(a, func(rs *ReleaseSet) bool {
		for _, c := range rs.Contributions {
			if c.ArtistID == artistID {
				return true
			}
		}
		return false
	})
	recs := collect(a, func(r *Recording) bool {
		for _, c := range r.Contributions {
			if c.ArtistID == artistID {
				return true
			}
		}
		return false
	})
	return sets, recs
}
