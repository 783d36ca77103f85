package reconcile

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/confluence/internal/catalog"
)

// ClaimMetadata describes one observation for policy and audit decisions.
type ClaimMetadata struct {
	Source        catalog.Provider
	Confidence    *float64
	ObservedAt    time.Time
	IngestEventID string
	PayloadHash   string
	Notes         []string
}

// Evidence is auxiliary, provider-specific scoring data. It is never
// canonical state.
type Evidence map[string]any

// EntityClaim wraps a freshly built, not yet persisted entity with the
// metadata of the observation that produced it. Associations are not
// entities and travel as RelationshipClaims instead.
type EntityClaim struct {
	ID       string
	Entity   catalog.Entity
	Metadata ClaimMetadata
	Evidence Evidence
}

// NewEntityClaim wraps e in a claim with a fresh id. An entity without an id
// is given one so other claims can refer to it, and the claim's source joins
// the entity's provenance.
func NewEntityClaim(e catalog.Entity, md ClaimMetadata) *EntityClaim {
	if e.Base().ID == "" {
		e.Base().ID = uuid.New().String()
	}
	e.Base().AddSource(md.Source)
	if md.ObservedAt.IsZero() {
		md.ObservedAt = time.Now().UTC()
	}
	return &EntityClaim{ID: uuid.New().String(), Entity: e, Metadata: md}
}

// EntityType returns the type of the wrapped entity.
func (c *EntityClaim) EntityType() catalog.EntityType {
	return c.Entity.EntityType()
}

// RelationshipKind is the type of edge a RelationshipClaim asserts.
type RelationshipKind string

// Relationship kinds. Each edge runs from the owning claim to the owned or
// credited claim.
const (
	RelReleaseSetContribution RelationshipKind = "release_set_contribution"
	RelRecordingContribution  RelationshipKind = "recording_contribution"
	RelReleaseTrack           RelationshipKind = "release_track"
	RelReleaseLabel           RelationshipKind = "release_label"
	RelReleaseSetRelease      RelationshipKind = "release_set_release"
	RelUserLibraryItem        RelationshipKind = "user_library_item"
	RelUserPlayEvent          RelationshipKind = "user_play_event"
)

// RelationshipKinds lists every kind in declaration order.
var RelationshipKinds = []RelationshipKind{
	RelReleaseSetContribution,
	RelRecordingContribution,
	RelReleaseTrack,
	RelReleaseLabel,
	RelReleaseSetRelease,
	RelUserLibraryItem,
	RelUserPlayEvent,
}

// Endpoints returns the entity types expected at the source and target of
// an edge of this kind.
func (k RelationshipKind) Endpoints() (source, target catalog.EntityType) {
	switch k {
	case RelReleaseSetContribution:
		return catalog.TypeReleaseSet, catalog.TypeArtist
	case RelRecordingContribution:
		return catalog.TypeRecording, catalog.TypeArtist
	case RelReleaseTrack:
		return catalog.TypeRelease, catalog.TypeReleaseTrack
	case RelReleaseLabel:
		return catalog.TypeRelease, catalog.TypeLabel
	case RelReleaseSetRelease:
		return catalog.TypeReleaseSet, catalog.TypeRelease
	case RelUserLibraryItem:
		return catalog.TypeUser, catalog.TypeLibraryItem
	case RelUserPlayEvent:
		return catalog.TypeUser, catalog.TypePlayEvent
	}
	return "", ""
}

// Valid reports whether k is a known kind.
func (k RelationshipKind) Valid() bool {
	s, _ := k.Endpoints()
	return s != ""
}

// RelationshipPayload is structured data carried on an edge. KeyParts feeds
// the relationship key used to collapse identical edges.
type RelationshipPayload interface {
	KeyParts() []string
}

// ContributionPayload carries an artist credit.
type ContributionPayload struct {
	Role        catalog.ArtistRole
	CreditOrder *int
	CreditedAs  string
	JoinPhrase  string
	Instrument  string
}

// KeyParts implements RelationshipPayload.
func (p ContributionPayload) KeyParts() []string {
	order := ""
	if p.CreditOrder != nil {
		order = strconv.Itoa(*p.CreditOrder)
	}
	last := NormalizeText(p.JoinPhrase)
	if p.Instrument != "" {
		last = NormalizeText(p.Instrument)
	}
	return []string{string(p.Role), order, p.CreditedAs, last}
}

// LabelPayload carries the catalog number of a release on a label.
type LabelPayload struct {
	CatalogNumber string
}

// KeyParts implements RelationshipPayload.
func (p LabelPayload) KeyParts() []string {
	return []string{p.CatalogNumber}
}

// RelationshipClaim asserts a typed edge between two entity claims in the
// same graph.
type RelationshipClaim struct {
	ID       string
	SourceID string
	TargetID string
	Kind     RelationshipKind
	Metadata ClaimMetadata
	Payload  RelationshipPayload
	Evidence Evidence
}

// NewRelationshipClaim builds an edge with a fresh id.
func NewRelationshipClaim(kind RelationshipKind, sourceID, targetID string, md ClaimMetadata, payload RelationshipPayload) *RelationshipClaim {
	if md.ObservedAt.IsZero() {
		md.ObservedAt = time.Now().UTC()
	}
	return &RelationshipClaim{
		ID:       uuid.New().String(),
		SourceID: sourceID,
		TargetID: targetID,
		Kind:     kind,
		Metadata: md,
		Payload:  payload,
	}
}

// Rewired returns a copy of the edge with new endpoints.
func (r *RelationshipClaim) Rewired(sourceID, targetID string) *RelationshipClaim {
	cp := *r
	cp.SourceID = sourceID
	cp.TargetID = targetID
	return &cp
}
