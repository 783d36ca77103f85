package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/confluence/internal/catalog"
)

// ReviewItem is a claim left for an operator, with the canonical entities
// it could have matched.
type ReviewItem struct {
	ID         string             `json:"id"`
	BatchID    string             `json:"batch_id,omitempty"`
	ClaimID    string             `json:"claim_id"`
	EntityType catalog.EntityType `json:"entity_type"`
	Reason     string             `json:"reason"`
	Candidates []string           `json:"candidates,omitempty"`
	Source     catalog.Provider   `json:"source,omitempty"`
	Payload    []byte             `json:"-"`
	CreatedAt  time.Time          `json:"created_at"`
}

// SidecarEntry pairs a canonical entity with the keys to index it under.
type SidecarEntry struct {
	Entity catalog.Entity
	Keys   []Key
}

// Changeset is everything the applier staged for one batch.
type Changeset struct {
	Created *catalog.Arena
	Updated *catalog.Arena
	Merges  []catalog.EntityMerge
	Reviews []ReviewItem
	Sidecar []SidecarEntry
}

// NewChangeset returns an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{Created: catalog.NewArena(), Updated: catalog.NewArena()}
}

// staged returns the staged copy of a canonical entity, if any.
func (cs *Changeset) staged(id string) catalog.Entity {
	if e := cs.Created.Get(id); e != nil {
		return e
	}
	return cs.Updated.Get(id)
}

// touch marks e as modified unless it is being created.
func (cs *Changeset) touch(e catalog.Entity) {
	if cs.Created.Get(e.Base().ID) == nil {
		cs.Updated.Put(e)
	}
}

// ApplyResult counts what the applier did. Applied is the number of
// instructions consumed.
type ApplyResult struct {
	Applied      int
	Created      int
	Merged       int
	Skipped      int
	ManualReview int
	Linked       int
	Deferred     int
	Changes      *Changeset
}

// Applier stages the mutations described by instructions.
type Applier struct {
	scalars catalog.ScalarPolicy
	actor   string
	now     func() time.Time
	logger  *slog.Logger
}

// NewApplier creates an applier merging under scalars. Actor is recorded
// on merge audits.
func NewApplier(scalars catalog.ScalarPolicy, actor string, logger *slog.Logger) *Applier {
	if !scalars.Valid() {
		scalars = catalog.KeepExisting
	}
	return &Applier{
		scalars: scalars,
		actor:   actor,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With("component", "applier"),
	}
}

// ownedKinds are the relationships through which a claim's owner is a
// dependency of the claim itself.
var ownedKinds = []RelationshipKind{RelReleaseTrack, RelUserPlayEvent, RelUserLibraryItem}

// applyRun is the state of one Apply call.
type applyRun struct {
	a      *Applier
	repos  Repositories
	g      *ClaimGraph
	result ApplyResult
	// canonical maps in-batch entity ids to the canonical id they became.
	canonical map[string]string
	// entities maps claim ids to the canonical entity they materialized as.
	entities map[string]catalog.Entity
	blocked  map[string]bool
}

// Apply walks the claims of g in dependency order and stages each one per
// its instruction, then materializes relationships between the resulting
// canonical entities. Claim entities are modified in place: merged claims
// are pointed at their target.
func (a *Applier) Apply(ctx context.Context, repos Repositories, g *ClaimGraph, instructions Instructions, keys KeysByClaim) (ApplyResult, error) {
	run := &applyRun{
		a:         a,
		repos:     repos,
		g:         g,
		result:    ApplyResult{Changes: NewChangeset()},
		canonical: make(map[string]string),
		entities:  make(map[string]catalog.Entity),
		blocked:   make(map[string]bool),
	}

	for _, c := range orderedClaims(g) {
		in, ok := instructions[c.ID]
		if !ok {
			return ApplyResult{}, invariantf("claim %s has no apply instruction", c.ID)
		}
		if err := run.applyClaim(ctx, c, in); err != nil {
			return ApplyResult{}, err
		}
		run.result.Applied++
	}

	for _, rel := range g.Relationships() {
		run.link(rel)
	}

	for _, c := range orderedClaims(g) {
		e, ok := run.entities[c.ID]
		if !ok {
			continue
		}
		if k := substituteKeys(keys[c.ID], run.canonical); len(k) > 0 {
			run.result.Changes.Sidecar = append(run.result.Changes.Sidecar, SidecarEntry{Entity: e, Keys: k})
		}
	}

	a.logger.Debug("applied instructions",
		"created", run.result.Created,
		"merged", run.result.Merged,
		"skipped", run.result.Skipped,
		"manual_review", run.result.ManualReview,
		"linked", run.result.Linked,
		"deferred", run.result.Deferred,
	)
	return run.result, nil
}

func (r *applyRun) applyClaim(ctx context.Context, c *EntityClaim, in *Instruction) error {
	strategy, reason := in.Strategy, in.Reason
	if strategy == StrategyCreate || strategy == StrategyMerge {
		if dep := r.blockedDependency(c); dep != nil {
			r.a.logger.Debug("dependency not materialized",
				"claim_id", c.ID,
				"dependency_claim_id", dep.ID,
			)
			strategy, reason = StrategyManualReview, ReasonDependencyNotMaterialized
		}
	}

	switch strategy {
	case StrategyCreate:
		r.create(c)
		return nil
	case StrategyMerge:
		target, err := r.mergeTarget(ctx, c, in.Target)
		if err != nil {
			return err
		}
		if target == nil {
			r.review(c, ReasonTargetNotFound, []CanonicalRef{*in.Target})
			return nil
		}
		return r.merge(c, target)
	case StrategySkip:
		r.blocked[c.Entity.Base().ID] = true
		r.result.Skipped++
		return nil
	case StrategyManualReview:
		candidates := in.Candidates
		if in.Target != nil {
			candidates = append([]CanonicalRef{*in.Target}, candidates...)
		}
		r.review(c, reason, candidates)
		return nil
	}
	return invariantf("claim %s has unknown strategy %q", c.ID, in.Strategy)
}

// blockedDependency returns the first in-batch claim c depends on that was
// skipped or sent to review.
func (r *applyRun) blockedDependency(c *EntityClaim) *EntityClaim {
	for _, ref := range catalog.References(c.Entity) {
		if r.blocked[ref.ID] {
			return r.g.ClaimByEntity(ref.ID)
		}
	}
	for _, kind := range ownedKinds {
		for _, rel := range r.g.RelationshipsTo(kind, c.ID) {
			if owner := r.g.Claim(rel.SourceID); owner != nil && r.blocked[owner.Entity.Base().ID] {
				return owner
			}
		}
	}
	return nil
}

// rewriteRefs points e's foreign ids at the canonical entities the
// referenced claims became.
func (r *applyRun) rewriteRefs(e catalog.Entity) {
	for _, ref := range catalog.References(e) {
		if to, ok := r.canonical[ref.ID]; ok {
			catalog.RewriteReferences(e, ref.ID, to)
		}
	}
}

func (r *applyRun) create(c *EntityClaim) {
	e := c.Entity
	if e.Base().ID == "" {
		e.Base().ID = uuid.New().String()
	}
	r.rewriteRefs(e)
	r.result.Changes.Created.Put(e)
	r.canonical[e.Base().ID] = e.Base().ID
	r.entities[c.ID] = e
	r.result.Created++
}

func (r *applyRun) mergeTarget(ctx context.Context, c *EntityClaim, ref *CanonicalRef) (catalog.Entity, error) {
	if ref == nil {
		return nil, invariantf("merge instruction for claim %s has no target", c.ID)
	}
	if e := r.result.Changes.staged(ref.ResolvedID); e != nil {
		return e, nil
	}
	if ref.Entity != nil && ref.Entity.Base().ID == ref.ResolvedID {
		return ref.Entity, nil
	}
	e, err := r.repos.Entities().Get(ctx, ref.EntityType, ref.ResolvedID)
	if err != nil {
		return nil, fmt.Errorf("loading merge target %s %s: %w", ref.EntityType, ref.ResolvedID, err)
	}
	return e, nil
}

func (r *applyRun) merge(c *EntityClaim, target catalog.Entity) error {
	r.rewriteRefs(c.Entity)
	if err := catalog.Merge(target, c.Entity, r.a.scalars); err != nil {
		return fmt.Errorf("merging claim %s into %s %s: %w", c.ID, target.EntityType(), target.Base().ID, err)
	}
	sourceID := c.Entity.Base().ID
	targetID := target.Base().ID
	c.Entity.Base().PointTo(targetID)
	r.result.Changes.touch(target)
	r.result.Changes.Merges = append(r.result.Changes.Merges, catalog.EntityMerge{
		ID:         uuid.New().String(),
		EntityType: target.EntityType(),
		SourceID:   sourceID,
		TargetID:   targetID,
		Reason:     catalog.MergeExactMatch,
		CreatedAt:  r.a.now(),
		CreatedBy:  r.a.actor,
	})
	r.canonical[sourceID] = targetID
	r.entities[c.ID] = target
	r.result.Merged++
	return nil
}

func (r *applyRun) review(c *EntityClaim, reason string, candidates []CanonicalRef) {
	r.blocked[c.Entity.Base().ID] = true
	ids := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		ids = append(ids, cand.ResolvedID)
	}
	payload, err := catalog.Marshal(c.Entity)
	if err != nil {
		r.a.logger.Warn("encoding review payload", "claim_id", c.ID, "error", err)
	}
	r.result.Changes.Reviews = append(r.result.Changes.Reviews, ReviewItem{
		ID:         uuid.New().String(),
		BatchID:    c.Metadata.IngestEventID,
		ClaimID:    c.ID,
		EntityType: c.EntityType(),
		Reason:     reason,
		Candidates: ids,
		Source:     c.Metadata.Source,
		Payload:    payload,
		CreatedAt:  r.a.now(),
	})
	r.result.ManualReview++
}

// link materializes one relationship onto the canonical entities of its
// endpoints. The owning side of the edge is the one modified. Ownership
// edges only fill an empty owner id on entities that already existed.
func (r *applyRun) link(rel *RelationshipClaim) {
	src, dst := r.entities[rel.SourceID], r.entities[rel.TargetID]
	if src == nil || dst == nil {
		r.result.Deferred++
		return
	}
	srcID, dstID := src.Base().ID, dst.Base().ID
	var changed catalog.Entity
	// owned is the owner id field of dst for ownership edges.
	var owned *string
	switch rel.Kind {
	case RelReleaseSetContribution:
		p, _ := rel.Payload.(ContributionPayload)
		if rs, ok := src.(*catalog.ReleaseSet); ok && rs.AddContribution(catalog.ReleaseSetContribution{
			ArtistID:    dstID,
			Role:        p.Role,
			CreditOrder: p.CreditOrder,
			CreditedAs:  p.CreditedAs,
			JoinPhrase:  p.JoinPhrase,
		}) {
			changed = src
		}
	case RelRecordingContribution:
		p, _ := rel.Payload.(ContributionPayload)
		if rec, ok := src.(*catalog.Recording); ok && rec.AddContribution(catalog.RecordingContribution{
			ArtistID:    dstID,
			Role:        p.Role,
			CreditOrder: p.CreditOrder,
			CreditedAs:  p.CreditedAs,
			Instrument:  p.Instrument,
		}) {
			changed = src
		}
	case RelReleaseLabel:
		if rl, ok := src.(*catalog.Release); ok && rl.AddLabel(dstID) {
			changed = src
		}
	case RelReleaseTrack:
		if t, ok := dst.(*catalog.ReleaseTrack); ok {
			owned = &t.ReleaseID
		}
	case RelReleaseSetRelease:
		if rl, ok := dst.(*catalog.Release); ok {
			owned = &rl.ReleaseSetID
		}
	case RelUserLibraryItem:
		if li, ok := dst.(*catalog.LibraryItem); ok {
			owned = &li.UserID
		}
	case RelUserPlayEvent:
		if pe, ok := dst.(*catalog.PlayEvent); ok {
			owned = &pe.UserID
		}
	}
	if owned != nil && *owned != srcID {
		// A stored entity keeps the owner it already has.
		if *owned != "" && r.result.Changes.Created.Get(dstID) == nil {
			r.a.logger.Debug("owner already set, relationship deferred",
				"relationship_id", rel.ID,
				"kind", string(rel.Kind),
				"entity_id", dstID,
				"owner_id", *owned,
				"asserted_owner_id", srcID,
			)
			r.result.Deferred++
			return
		}
		*owned = srcID
		changed = dst
	}
	if changed != nil {
		r.result.Changes.touch(changed)
	}
	r.result.Linked++
}
