package reconcile

import (
	"fmt"

	"github.com/sydlexius/confluence/internal/catalog"
)

// InvariantError reports a malformed claim graph. It indicates a bug in the
// claim producer and is never retried.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "claim graph invariant violated: " + e.Msg
}

func invariantf(format string, args ...any) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// Endpoint names a side of a relationship claim.
type Endpoint string

// Relationship endpoints.
const (
	EndpointSource Endpoint = "source"
	EndpointTarget Endpoint = "target"
)

// MissingRelationshipEndpointError is returned when a rewired relationship
// points at a claim that did not survive deduplication.
type MissingRelationshipEndpointError struct {
	RelationshipID string
	Endpoint       Endpoint
	ClaimID        string
}

func (e *MissingRelationshipEndpointError) Error() string {
	return fmt.Sprintf("rewired relationship endpoint is missing from deduplicated graph: relationship=%s, endpoint=%s, claim_id=%s",
		e.RelationshipID, e.Endpoint, e.ClaimID)
}

// DependencyOrderError is returned when a claim is normalized before a claim
// its keys depend on.
type DependencyOrderError struct {
	ClaimID           string
	EntityType        catalog.EntityType
	DependencyClaimID string
	DependencyType    catalog.EntityType
}

func (e *DependencyOrderError) Error() string {
	return fmt.Sprintf("%s claim %s normalized before its %s dependency %s",
		e.EntityType, e.ClaimID, e.DependencyType, e.DependencyClaimID)
}
