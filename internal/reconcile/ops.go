package reconcile

import (
	"github.com/sydlexius/confluence/internal/catalog"
)

// entityOps bundles the per-type operations used while collapsing claims.
type entityOps struct {
	keys   func(*Session, *EntityClaim) ([]Key, error)
	merge  func(primary, duplicate catalog.Entity) error
	rewire func(claims []*EntityClaim, from, to string)
}

var registry = map[catalog.EntityType]entityOps{
	catalog.TypeArtist:       {keys: artistKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypeLabel:        {keys: labelKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypeReleaseSet:   {keys: releaseSetKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypeRecording:    {keys: recordingKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypeRelease:      {keys: releaseKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypeReleaseTrack: {keys: releaseTrackKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypeUser:         {keys: userKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypePlayEvent:    {keys: playEventKeys, merge: mergeKeepExisting, rewire: rewireReferences},
	catalog.TypeLibraryItem:  {keys: libraryItemKeys, merge: mergeKeepExisting, rewire: rewireReferences},
}

func mergeKeepExisting(primary, duplicate catalog.Entity) error {
	return catalog.Merge(primary, duplicate, catalog.KeepExisting)
}

// rewireReferences moves foreign ids held by claims from the entity from to
// the entity to.
func rewireReferences(claims []*EntityClaim, from, to string) {
	for _, c := range claims {
		catalog.RewriteReferences(c.Entity, from, to)
	}
}
