package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sydlexius/confluence/internal/catalog"
)

// ResolutionStatus classifies a claim against the canonical catalog.
type ResolutionStatus string

// Resolution statuses.
const (
	StatusNew       ResolutionStatus = "new"
	StatusResolved  ResolutionStatus = "resolved"
	StatusAmbiguous ResolutionStatus = "ambiguous"
	StatusConflict  ResolutionStatus = "conflict"
)

// MatchKind describes how a candidate was found.
type MatchKind string

// Match kinds. Only exact matching is implemented; the others are reserved
// for alternate finders.
const (
	MatchExact     MatchKind = "exact"
	MatchFuzzy     MatchKind = "fuzzy"
	MatchHeuristic MatchKind = "heuristic"
)

// Resolution reasons.
const (
	ReasonNoExactMatch          = "no_exact_match"
	ReasonExactMatch            = "exact_match"
	ReasonMultipleExactMatches  = "multiple_exact_matches"
	ReasonCandidateTypeMismatch = "candidate_type_mismatch"
)

// CanonicalRef points at a canonical entity. Entity is set when the finder
// already loaded it.
type CanonicalRef struct {
	EntityType catalog.EntityType
	ResolvedID string
	Entity     catalog.Entity
}

// RefFor builds a reference to e's resolved identity. The entity is only
// attached when e is itself canonical.
func RefFor(e catalog.Entity) CanonicalRef {
	ref := CanonicalRef{EntityType: e.EntityType(), ResolvedID: catalog.ResolvedID(e)}
	if e.Base().IsCanonical() {
		ref.Entity = e
	}
	return ref
}

// Resolution is the outcome of resolving one claim.
type Resolution struct {
	ClaimID    string
	EntityType catalog.EntityType
	Status     ResolutionStatus
	Target     *CanonicalRef
	Candidates []CanonicalRef
	MatchKind  MatchKind
	Confidence float64
	MatchedKey Key
	Reason     string
}

// Resolutions maps claim ids to their resolution.
type Resolutions map[string]*Resolution

// Match is what a finder found for one claim.
type Match struct {
	Key        Key
	Kind       MatchKind
	Confidence float64
	Candidates []CanonicalRef
}

// CandidateFinder looks up canonical candidates for a claim.
type CandidateFinder interface {
	FindExact(ctx context.Context, repos Repositories, claim *EntityClaim, keys []Key) (Match, error)
}

// FinderFunc adapts a function to CandidateFinder.
type FinderFunc func(ctx context.Context, repos Repositories, claim *EntityClaim, keys []Key) (Match, error)

// FindExact implements CandidateFinder.
func (f FinderFunc) FindExact(ctx context.Context, repos Repositories, claim *EntityClaim, keys []Key) (Match, error) {
	return f(ctx, repos, claim, keys)
}

// Match confidences.
const (
	ExternalIDConfidence = 1.0
	SidecarConfidence    = 0.95
)

// ExactFinder matches claims first by their external ids, then by the
// highest-priority normalization key known to the sidecar.
type ExactFinder struct{}

// FindExact implements CandidateFinder.
func (ExactFinder) FindExact(ctx context.Context, repos Repositories, claim *EntityClaim, keys []Key) (Match, error) {
	m := Match{Kind: MatchExact}
	for _, ext := range claim.Entity.Base().ExternalIDs {
		e, err := repos.Entities().GetByExternalID(ctx, ext.Namespace, ext.Value)
		if err != nil {
			return Match{}, fmt.Errorf("looking up %s %s: %w", ext.Namespace, ext.Value, err)
		}
		if e == nil {
			continue
		}
		if m.Key == nil {
			m.Key = Key{string(ext.Namespace), ext.Value}
		}
		m.Candidates = append(m.Candidates, RefFor(e))
	}
	if len(m.Candidates) > 0 {
		m.Confidence = ExternalIDConfidence
		return m, nil
	}
	if len(keys) == 0 {
		return m, nil
	}

	found, err := repos.Sidecar().FindByKeys(ctx, claim.EntityType(), keys)
	if err != nil {
		return Match{}, fmt.Errorf("looking up keys for claim %s: %w", claim.ID, err)
	}
	for _, k := range keys {
		if e, ok := found[k.String()]; ok {
			m.Key = k
			m.Candidates = []CanonicalRef{RefFor(e)}
			m.Confidence = SidecarConfidence
			return m, nil
		}
	}
	return m, nil
}

// Resolver classifies claims against the canonical catalog without
// mutating it.
type Resolver struct {
	finder CandidateFinder
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil finder selects ExactFinder.
func NewResolver(finder CandidateFinder, logger *slog.Logger) *Resolver {
	if finder == nil {
		finder = ExactFinder{}
	}
	return &Resolver{finder: finder, logger: logger.With("component", "resolver")}
}

// Resolve classifies every claim of g. Claims without normalization keys
// are new and never reach the finder. Claims are visited in dependency
// order; once a claim resolves to a canonical entity, key components naming
// its in-batch entity are replaced by the canonical id for the claims that
// depend on it.
func (r *Resolver) Resolve(ctx context.Context, repos Repositories, g *ClaimGraph, keys KeysByClaim) (Resolutions, error) {
	out := make(Resolutions, g.Len())
	canonical := make(map[string]string)
	for _, c := range orderedClaims(g) {
		claimKeys := substituteKeys(keys[c.ID], canonical)
		var m Match
		// A claim without keys cannot be matched exactly and is always new.
		if len(claimKeys) > 0 {
			var err error
			m, err = r.finder.FindExact(ctx, repos, c, claimKeys)
			if err != nil {
				return nil, fmt.Errorf("resolving claim %s: %w", c.ID, err)
			}
		}
		res := classify(c, m)
		out[c.ID] = res
		if res.Status == StatusResolved {
			canonical[c.Entity.Base().ID] = res.Target.ResolvedID
		}
		r.logger.Debug("resolved claim",
			"claim_id", c.ID,
			"entity_type", string(c.EntityType()),
			"status", string(res.Status),
			"reason", res.Reason,
		)
	}
	return out, nil
}

func classify(c *EntityClaim, m Match) *Resolution {
	candidates := dedupeCandidates(m.Candidates)
	res := &Resolution{
		ClaimID:    c.ID,
		EntityType: c.EntityType(),
		Candidates: candidates,
		MatchedKey: m.Key,
		MatchKind:  m.Kind,
	}
	if res.MatchKind == "" {
		res.MatchKind = MatchExact
	}
	for _, cand := range candidates {
		if cand.EntityType != c.EntityType() {
			res.Status = StatusConflict
			res.Reason = ReasonCandidateTypeMismatch
			return res
		}
	}
	switch len(candidates) {
	case 0:
		res.Status = StatusNew
		res.Reason = ReasonNoExactMatch
		res.MatchedKey = nil
	case 1:
		target := candidates[0]
		res.Status = StatusResolved
		res.Reason = ReasonExactMatch
		res.Target = &target
		res.Confidence = m.Confidence
		if res.Confidence == 0 {
			res.Confidence = ExternalIDConfidence
		}
	default:
		res.Status = StatusAmbiguous
		res.Reason = ReasonMultipleExactMatches
	}
	return res
}

func dedupeCandidates(candidates []CanonicalRef) []CanonicalRef {
	type ident struct {
		t  catalog.EntityType
		id string
	}
	seen := make(map[ident]bool, len(candidates))
	var out []CanonicalRef
	for _, c := range candidates {
		k := ident{c.EntityType, c.ResolvedID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// substituteKeys returns keys with every component found in canonical
// replaced by its mapped value. The input is not modified.
func substituteKeys(keys []Key, canonical map[string]string) []Key {
	if len(canonical) == 0 {
		return keys
	}
	out := make([]Key, len(keys))
	for i, k := range keys {
		var cp Key
		for j, part := range k {
			if j == 0 {
				continue
			}
			if to, ok := canonical[part]; ok {
				if cp == nil {
					cp = append(Key(nil), k...)
				}
				cp[j] = to
			}
		}
		if cp == nil {
			cp = k
		}
		out[i] = cp
	}
	return out
}
