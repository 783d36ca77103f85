package catalog

import (
	"slices"
)

// Entity is implemented by every canonical catalog entity.
type Entity interface {
	EntityType() EntityType
	Base() *Record
}

// Record carries the identity, external identifiers and provenance shared by
// every entity. It is embedded in each concrete entity type.
type Record struct {
	ID          string       `json:"id"`
	Redirect    string       `json:"redirect_id,omitempty"`
	ExternalIDs []ExternalID `json:"external_ids,omitempty"`
	Sources     []Provider   `json:"sources,omitempty"`
}

// Base returns the record itself so embedding types satisfy Entity.
func (r *Record) Base() *Record { return r }

// ResolvedID returns the redirect target if one is set, otherwise the own id.
func (r *Record) ResolvedID() string {
	if r.Redirect != "" {
		return r.Redirect
	}
	return r.ID
}

// IsCanonical reports whether the record has no redirect.
func (r *Record) IsCanonical() bool {
	return r.Redirect == ""
}

// PointTo redirects the record at id. Pointing at itself clears the redirect.
func (r *Record) PointTo(id string) {
	if id == r.ID {
		r.Redirect = ""
		return
	}
	r.Redirect = id
}

// AddSource records p in the provenance set, keeping it sorted and unique.
func (r *Record) AddSource(p Provider) {
	if p == "" {
		return
	}
	i, found := slices.BinarySearch(r.Sources, p)
	if found {
		return
	}
	r.Sources = slices.Insert(r.Sources, i, p)
}

// HasSource reports whether p has asserted this entity.
func (r *Record) HasSource(p Provider) bool {
	_, found := slices.BinarySearch(r.Sources, p)
	return found
}

// PrimarySource returns the first provider of the sorted provenance set.
func (r *Record) PrimarySource() Provider {
	if len(r.Sources) == 0 {
		return ""
	}
	return r.Sources[0]
}

// ExternalID returns the value stored under ns, if any.
func (r *Record) ExternalID(ns Namespace) (string, bool) {
	for _, ext := range r.ExternalIDs {
		if ext.Namespace == ns {
			return ext.Value, true
		}
	}
	return "", false
}

// normalizeSources sorts and de-duplicates a provenance slice decoded from storage.
func (r *Record) normalizeSources() {
	slices.Sort(r.Sources)
	r.Sources = slices.Compact(r.Sources)
}

// ResolvedID is a convenience for e.Base().ResolvedID().
func ResolvedID(e Entity) string {
	return e.Base().ResolvedID()
}

// AddExternalID attaches (ns, value) to e, owned by e's resolved id. When
// provider is empty it is derived from the namespace. Adding a value that is
// already present is a no-op; a different value under an existing namespace
// returns *ExternalIDConflictError.
func AddExternalID(e Entity, ns Namespace, value string, provider Provider) error {
	rec := e.Base()
	if existing, ok := rec.ExternalID(ns); ok {
		if existing == value {
			return nil
		}
		return &ExternalIDConflictError{
			EntityType: e.EntityType(),
			EntityID:   rec.ResolvedID(),
			Namespace:  ns,
			Existing:   existing,
			Incoming:   value,
		}
	}
	if provider == "" {
		provider = ProviderFor(ns)
	}
	rec.ExternalIDs = append(rec.ExternalIDs, ExternalID{
		Namespace: ns,
		Value:     value,
		OwnerType: e.EntityType(),
		OwnerID:   rec.ResolvedID(),
		Provider:  provider,
	})
	return nil
}
