package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/sydlexius/confluence/internal/catalog"
)

// DedupResult is the reduced graph and the mapping from every dropped claim
// or relationship id to the id that absorbed it.
type DedupResult struct {
	Graph           *ClaimGraph
	Representatives map[string]string
}

// RepresentativeFor returns the surviving id for id.
func (r *DedupResult) RepresentativeFor(id string) string {
	if rep, ok := r.Representatives[id]; ok {
		return rep
	}
	return id
}

// Deduplicator collapses duplicate claims within one graph.
type Deduplicator struct {
	logger *slog.Logger
}

// NewDeduplicator creates a deduplicator.
func NewDeduplicator(logger *slog.Logger) *Deduplicator {
	return &Deduplicator{logger: logger.With("component", "deduplicator")}
}

// Deduplicate collapses claims of the same entity type that share a key and
// then rewires and collapses relationships. The input graph is not
// modified: surviving claims carry copies of their entities.
func (d *Deduplicator) Deduplicate(g *ClaimGraph, keys KeysByClaim) (*DedupResult, error) {
	out := NewClaimGraph()
	reps := make(map[string]string)
	index := make(map[catalog.EntityType]keyIndex, len(catalog.EntityTypes))
	for _, t := range catalog.EntityTypes {
		index[t] = keyIndex{}
	}

	type redirect struct {
		ops      entityOps
		from, to string
	}
	var redirects []redirect

	for _, c := range g.Claims() {
		t := c.EntityType()
		ops, ok := registry[t]
		if !ok {
			return nil, invariantf("claim %s wraps unsupported entity type %s", c.ID, t)
		}
		claimKeys := keys[c.ID]
		if primaryID, found := index[t].match(claimKeys); found {
			primary := out.Claim(primaryID)
			if err := ops.merge(primary.Entity, c.Entity); err != nil {
				return nil, fmt.Errorf("absorbing claim %s into %s: %w", c.ID, primaryID, err)
			}
			reps[c.ID] = primaryID
			redirects = append(redirects, redirect{
				ops:  ops,
				from: c.Entity.Base().ID,
				to:   primary.Entity.Base().ID,
			})
			continue
		}
		cp, err := copyClaim(c)
		if err != nil {
			return nil, err
		}
		out.Add(cp, false)
		index[t].register(claimKeys, c.ID)
	}

	survivors := out.Claims()
	for _, r := range redirects {
		r.ops.rewire(survivors, r.from, r.to)
	}

	for _, root := range g.Roots() {
		if rep := out.Claim(representative(reps, root.ID)); rep != nil {
			out.AddRoot(rep)
		}
	}

	relIndex := make(map[string]string)
	for _, rel := range g.Relationships() {
		rewired := rel.Rewired(representative(reps, rel.SourceID), representative(reps, rel.TargetID))
		if out.Claim(rewired.SourceID) == nil {
			return nil, &MissingRelationshipEndpointError{RelationshipID: rel.ID, Endpoint: EndpointSource, ClaimID: rewired.SourceID}
		}
		if out.Claim(rewired.TargetID) == nil {
			return nil, &MissingRelationshipEndpointError{RelationshipID: rel.ID, Endpoint: EndpointTarget, ClaimID: rewired.TargetID}
		}
		key := RelationshipKey(rewired)
		if existing, ok := relIndex[key]; ok {
			reps[rel.ID] = existing
			continue
		}
		if err := out.AddRelationship(rewired); err != nil {
			return nil, err
		}
		relIndex[key] = rel.ID
	}

	d.logger.Debug("deduplicated claim graph",
		"claims_in", g.Len(),
		"claims_out", out.Len(),
		"relationships_in", len(g.Relationships()),
		"relationships_out", len(out.Relationships()),
	)
	return &DedupResult{Graph: out, Representatives: reps}, nil
}

func representative(reps map[string]string, id string) string {
	if rep, ok := reps[id]; ok {
		return rep
	}
	return id
}

// copyClaim returns a claim sharing c's metadata but owning a deep copy of
// its entity.
func copyClaim(c *EntityClaim) (*EntityClaim, error) {
	e, err := catalog.Clone(c.Entity)
	if err != nil {
		return nil, fmt.Errorf("copying claim %s: %w", c.ID, err)
	}
	cp := *c
	cp.Entity = e
	return &cp, nil
}
