package reconcile

import (
	"slices"

	"github.com/sydlexius/confluence/internal/catalog"
)

// ClaimGraph holds the claims of one reconciliation run. Claims and
// relationships keep insertion order so every stage walks them
// deterministically.
type ClaimGraph struct {
	claims        map[string]*EntityClaim
	claimOrder    []string
	roots         []string
	byType        map[catalog.EntityType][]string
	byEntity      map[string]string
	relationships map[string]*RelationshipClaim
	relOrder      []string
	byKind        map[RelationshipKind][]string
}

// NewClaimGraph returns an empty graph with a bucket for every entity type
// and relationship kind.
func NewClaimGraph() *ClaimGraph {
	g := &ClaimGraph{
		claims:        make(map[string]*EntityClaim),
		byType:        make(map[catalog.EntityType][]string, len(catalog.EntityTypes)),
		byEntity:      make(map[string]string),
		relationships: make(map[string]*RelationshipClaim),
		byKind:        make(map[RelationshipKind][]string, len(RelationshipKinds)),
	}
	for _, t := range catalog.EntityTypes {
		g.byType[t] = nil
	}
	for _, k := range RelationshipKinds {
		g.byKind[k] = nil
	}
	return g
}

// Add inserts claim, marking it as a root when root is true. Adding a claim
// id twice keeps the first claim but can still promote it to a root.
func (g *ClaimGraph) Add(claim *EntityClaim, root bool) {
	if _, ok := g.claims[claim.ID]; !ok {
		g.claims[claim.ID] = claim
		g.claimOrder = append(g.claimOrder, claim.ID)
		t := claim.EntityType()
		g.byType[t] = append(g.byType[t], claim.ID)
		g.byEntity[claim.Entity.Base().ID] = claim.ID
	}
	if root && !slices.Contains(g.roots, claim.ID) {
		g.roots = append(g.roots, claim.ID)
	}
}

// AddRoot inserts claim as a root.
func (g *ClaimGraph) AddRoot(claim *EntityClaim) {
	g.Add(claim, true)
}

// AddRelationship inserts rel. Both endpoints must already be in the graph.
func (g *ClaimGraph) AddRelationship(rel *RelationshipClaim) error {
	if !rel.Kind.Valid() {
		return invariantf("relationship %s has unknown kind %q", rel.ID, rel.Kind)
	}
	if _, ok := g.claims[rel.SourceID]; !ok {
		return invariantf("relationship %s source claim %s does not exist", rel.ID, rel.SourceID)
	}
	if _, ok := g.claims[rel.TargetID]; !ok {
		return invariantf("relationship %s target claim %s does not exist", rel.ID, rel.TargetID)
	}
	if _, ok := g.relationships[rel.ID]; ok {
		return nil
	}
	g.relationships[rel.ID] = rel
	g.relOrder = append(g.relOrder, rel.ID)
	g.byKind[rel.Kind] = append(g.byKind[rel.Kind], rel.ID)
	return nil
}

// Claim returns the claim with the given id, or nil.
func (g *ClaimGraph) Claim(id string) *EntityClaim {
	return g.claims[id]
}

// ClaimByEntity returns the claim wrapping the entity with the given id, or nil.
func (g *ClaimGraph) ClaimByEntity(entityID string) *EntityClaim {
	if id, ok := g.byEntity[entityID]; ok {
		return g.claims[id]
	}
	return nil
}

// Relationship returns the relationship with the given id, or nil.
func (g *ClaimGraph) Relationship(id string) *RelationshipClaim {
	return g.relationships[id]
}

// Len returns the number of entity claims.
func (g *ClaimGraph) Len() int {
	return len(g.claimOrder)
}

// Claims returns every entity claim in insertion order.
func (g *ClaimGraph) Claims() []*EntityClaim {
	return g.lookupClaims(g.claimOrder)
}

// Roots returns the root claims in the order they were marked.
func (g *ClaimGraph) Roots() []*EntityClaim {
	return g.lookupClaims(g.roots)
}

// ClaimsFor returns the claims of one entity type in insertion order.
func (g *ClaimGraph) ClaimsFor(t catalog.EntityType) []*EntityClaim {
	return g.lookupClaims(g.byType[t])
}

// Relationships returns every relationship in insertion order.
func (g *ClaimGraph) Relationships() []*RelationshipClaim {
	return g.lookupRelationships(g.relOrder)
}

// RelationshipsFor returns the relationships of one kind in insertion order.
func (g *ClaimGraph) RelationshipsFor(kind RelationshipKind) []*RelationshipClaim {
	return g.lookupRelationships(g.byKind[kind])
}

// RelationshipsFrom returns the relationships of kind whose source is claimID.
func (g *ClaimGraph) RelationshipsFrom(kind RelationshipKind, claimID string) []*RelationshipClaim {
	var out []*RelationshipClaim
	for _, rel := range g.RelationshipsFor(kind) {
		if rel.SourceID == claimID {
			out = append(out, rel)
		}
	}
	return out
}

// RelationshipsTo returns the relationships of kind whose target is claimID.
func (g *ClaimGraph) RelationshipsTo(kind RelationshipKind, claimID string) []*RelationshipClaim {
	var out []*RelationshipClaim
	for _, rel := range g.RelationshipsFor(kind) {
		if rel.TargetID == claimID {
			out = append(out, rel)
		}
	}
	return out
}

// Validate checks the graph's structural invariants: every index entry
// resolves, relationship endpoints exist and have the types their kind
// expects.
func (g *ClaimGraph) Validate() error {
	for _, id := range g.roots {
		if _, ok := g.claims[id]; !ok {
			return invariantf("root claim %s does not exist", id)
		}
	}
	for t, ids := range g.byType {
		for _, id := range ids {
			c, ok := g.claims[id]
			if !ok {
				return invariantf("entity index references missing claim %s", id)
			}
			if c.EntityType() != t {
				return invariantf("entity index mismatch for %s: %s != %s", id, c.EntityType(), t)
			}
		}
	}
	for _, rel := range g.Relationships() {
		src, ok := g.claims[rel.SourceID]
		if !ok {
			return invariantf("relationship %s source claim %s does not exist", rel.ID, rel.SourceID)
		}
		dst, ok := g.claims[rel.TargetID]
		if !ok {
			return invariantf("relationship %s target claim %s does not exist", rel.ID, rel.TargetID)
		}
		wantSrc, wantDst := rel.Kind.Endpoints()
		if src.EntityType() != wantSrc || dst.EntityType() != wantDst {
			return invariantf("relationship %s of kind %s links %s to %s", rel.ID, rel.Kind, src.EntityType(), dst.EntityType())
		}
	}
	return nil
}

func (g *ClaimGraph) lookupClaims(ids []string) []*EntityClaim {
	out := make([]*EntityClaim, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.claims[id])
	}
	return out
}

func (g *ClaimGraph) lookupRelationships(ids []string) []*RelationshipClaim {
	out := make([]*RelationshipClaim, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.relationships[id])
	}
	return out
}
