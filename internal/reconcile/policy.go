package reconcile

import (
	"github.com/sydlexius/confluence/internal/catalog"
)

// Strategy is how the applier materializes one claim.
type Strategy string

// Apply strategies.
const (
	StrategyCreate       Strategy = "create"
	StrategyMerge        Strategy = "merge"
	StrategySkip         Strategy = "skip"
	StrategyManualReview Strategy = "manual_review"
)

// Policy reasons.
const (
	ReasonBelowMinConfidence        = "below_min_confidence"
	ReasonScalarConflict            = "scalar_conflict"
	ReasonDependencyNotMaterialized = "dependency_not_materialized"
	ReasonTargetNotFound            = "target_not_found"
)

// Instruction is the apply decision for one claim. It lives for one batch
// and is never persisted.
type Instruction struct {
	ClaimID    string
	Strategy   Strategy
	Target     *CanonicalRef
	Candidates []CanonicalRef
	Reason     string
}

// Instructions maps claim ids to their instruction.
type Instructions map[string]*Instruction

// Policy turns resolutions into apply instructions.
type Policy struct {
	// MinConfidence skips claims whose metadata confidence is below it.
	// Claims without a confidence are never skipped.
	MinConfidence float64
	// Scalars selects how merges treat differing non-null attributes.
	// ReviewConflicts routes such merges to manual review.
	Scalars catalog.ScalarPolicy
}

// Refine produces exactly one instruction per resolution. It does not
// modify its inputs.
func (p Policy) Refine(resolutions Resolutions, g *ClaimGraph) Instructions {
	out := make(Instructions, len(resolutions))
	for id, res := range resolutions {
		out[id] = p.instructionFor(res, g.Claim(id))
	}
	return out
}

func (p Policy) instructionFor(res *Resolution, c *EntityClaim) *Instruction {
	in := &Instruction{ClaimID: res.ClaimID, Reason: res.Reason}
	if c != nil && p.MinConfidence > 0 {
		if conf := c.Metadata.Confidence; conf != nil && *conf < p.MinConfidence {
			in.Strategy = StrategySkip
			in.Reason = ReasonBelowMinConfidence
			return in
		}
	}

	switch res.Status {
	case StatusNew:
		in.Strategy = StrategyCreate
	case StatusResolved:
		in.Strategy = StrategyMerge
		in.Target = res.Target
		if p.Scalars == catalog.ReviewConflicts && c != nil && res.Target != nil && res.Target.Entity != nil {
			if len(catalog.Conflicts(res.Target.Entity, c.Entity)) > 0 {
				in.Strategy = StrategyManualReview
				in.Reason = ReasonScalarConflict
				in.Candidates = []CanonicalRef{*res.Target}
				in.Target = nil
			}
		}
	default:
		in.Strategy = StrategyManualReview
		in.Candidates = res.Candidates
	}
	return in
}
