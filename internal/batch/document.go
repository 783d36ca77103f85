// Package batch decodes claim batch documents into claim graphs.
package batch

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/sydlexius/confluence/internal/catalog"
	"github.com/sydlexius/confluence/internal/reconcile"
)

// Document is the wire form of one ingest batch.
type Document struct {
	BatchID       string            `json:"batch_id" validate:"required"`
	Source        catalog.Provider  `json:"source" validate:"required,provider"`
	ObservedAt    time.Time         `json:"observed_at"`
	Claims        []json.RawMessage `json:"claims" validate:"required,min=1"`
	Relationships []RelationshipDoc `json:"relationships" validate:"dive"`
}

// ClaimDoc is one entity claim. Entity holds the per-type body.
type ClaimDoc struct {
	Ref        string             `json:"ref" validate:"required"`
	Type       catalog.EntityType `json:"type" validate:"required,entity_type"`
	Root       bool               `json:"root,omitempty"`
	Source     catalog.Provider   `json:"source,omitempty" validate:"omitempty,provider"`
	Confidence *float64           `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	ObservedAt *time.Time         `json:"observed_at,omitempty"`
	Entity     json.RawMessage    `json:"entity" validate:"required"`
	Evidence   map[string]any     `json:"evidence,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
}

// RelationshipDoc is one edge between two claims, named by their refs.
type RelationshipDoc struct {
	Ref     string                     `json:"ref,omitempty"`
	Kind    reconcile.RelationshipKind `json:"kind" validate:"required,relationship_kind"`
	Source  string                     `json:"source" validate:"required"`
	Target  string                     `json:"target" validate:"required"`
	Payload *PayloadDoc                `json:"payload,omitempty"`
}

// PayloadDoc carries the edge payload for contribution and label edges.
type PayloadDoc struct {
	Role          catalog.ArtistRole `json:"role,omitempty" validate:"omitempty,artist_role"`
	CreditOrder   *int               `json:"credit_order,omitempty" validate:"omitempty,gte=0"`
	CreditedAs    string             `json:"credited_as,omitempty"`
	JoinPhrase    string             `json:"join_phrase,omitempty"`
	Instrument    string             `json:"instrument,omitempty"`
	CatalogNumber string             `json:"catalog_number,omitempty"`
}

// ExternalIDDoc is an identifier in an external namespace.
type ExternalIDDoc struct {
	Namespace catalog.Namespace `json:"namespace" validate:"required,namespace"`
	Value     string            `json:"value" validate:"required"`
}

// Batch is a decoded document ready for reconciliation.
type Batch struct {
	ID         string
	Source     catalog.Provider
	ObservedAt time.Time
	Graph      *reconcile.ClaimGraph
	// Claims maps document refs to the claims built for them.
	Claims map[string]*reconcile.EntityClaim
}
