package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/sydlexius/confluence/internal/catalog"
)

// Stage names reported to observers.
const (
	StageNormalize   = "normalize"
	StageDeduplicate = "deduplicate"
	StageResolve     = "resolve"
	StageRefine      = "refine"
	StageApply       = "apply"
	StagePersist     = "persist"
)

// Observer receives stage timings and batch outcomes.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveBatch(applied ApplyResult, persisted PersistenceResult, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration) {}

func (nopObserver) ObserveBatch(ApplyResult, PersistenceResult, error) {}

// Settings tunes the reconciliation stages.
type Settings struct {
	DurationBucketMS int
	Scalars          catalog.ScalarPolicy
	MinConfidence    float64
	Actor            string
}

// Engine runs one claim graph through normalize, deduplicate, resolve,
// refine, apply and persist inside a single unit of work.
type Engine struct {
	uows       UnitOfWorkFactory
	normalizer *Normalizer
	dedup      *Deduplicator
	resolver   *Resolver
	policy     Policy
	applier    *Applier
	persister  *Persister
	observer   Observer
	logger     *slog.Logger
}

// NewEngine creates an engine that opens its units of work from uows.
func NewEngine(uows UnitOfWorkFactory, settings Settings, logger *slog.Logger) *Engine {
	scalars := settings.Scalars
	if !scalars.Valid() {
		scalars = catalog.KeepExisting
	}
	return &Engine{
		uows:       uows,
		normalizer: NewNormalizer(logger, settings.DurationBucketMS),
		dedup:      NewDeduplicator(logger),
		resolver:   NewResolver(nil, logger),
		policy:     Policy{MinConfidence: settings.MinConfidence, Scalars: scalars},
		applier:    NewApplier(scalars, settings.Actor, logger),
		persister:  NewPersister(logger),
		observer:   nopObserver{},
		logger:     logger.With("component", "engine"),
	}
}

// SetFinder replaces the candidate finder used by the resolver.
func (e *Engine) SetFinder(f CandidateFinder) {
	e.resolver = NewResolver(f, e.logger)
}

// SetObserver registers an observer for stage timings and outcomes.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

// Reconcile reconciles one batch. Resolve, refine and apply all run on the
// deduplicated graph. Either the whole batch commits or nothing does.
func (e *Engine) Reconcile(ctx context.Context, g *ClaimGraph) (applied ApplyResult, persisted PersistenceResult, err error) {
	defer func() { e.observer.ObserveBatch(applied, persisted, err) }()

	if err := g.Validate(); err != nil {
		return ApplyResult{}, PersistenceResult{}, err
	}

	var keys KeysByClaim
	if err := e.stage(StageNormalize, func() (err error) {
		keys, err = e.normalizer.Normalize(g)
		return err
	}); err != nil {
		return ApplyResult{}, PersistenceResult{}, fmt.Errorf("normalizing: %w", err)
	}

	var deduped *DedupResult
	if err := e.stage(StageDeduplicate, func() (err error) {
		deduped, err = e.dedup.Deduplicate(g, keys)
		return err
	}); err != nil {
		return ApplyResult{}, PersistenceResult{}, fmt.Errorf("deduplicating: %w", err)
	}

	uow, err := e.uows.Begin(ctx)
	if err != nil {
		return ApplyResult{}, PersistenceResult{}, fmt.Errorf("beginning unit of work: %w", err)
	}

	applied, instructions, err := e.decide(ctx, uow, deduped.Graph, keys)
	if err != nil {
		return ApplyResult{}, PersistenceResult{}, multierr.Append(err, uow.Rollback())
	}

	if err := e.stage(StagePersist, func() (err error) {
		persisted, err = e.persister.Persist(ctx, uow, instructions, applied)
		return err
	}); err != nil {
		return applied, persisted, fmt.Errorf("persisting: %w", err)
	}

	e.logger.Info("batch reconciled",
		"claims", g.Len(),
		"deduplicated", deduped.Graph.Len(),
		"created", applied.Created,
		"merged", applied.Merged,
		"skipped", applied.Skipped,
		"manual_review", applied.ManualReview,
		"persisted_entities", persisted.PersistedEntities,
	)
	return applied, persisted, nil
}

// decide runs the resolve, refine and apply stages against uow.
func (e *Engine) decide(ctx context.Context, uow UnitOfWork, g *ClaimGraph, keys KeysByClaim) (ApplyResult, Instructions, error) {
	var resolutions Resolutions
	if err := e.stage(StageResolve, func() (err error) {
		resolutions, err = e.resolver.Resolve(ctx, uow, g, keys)
		return err
	}); err != nil {
		return ApplyResult{}, nil, fmt.Errorf("resolving: %w", err)
	}

	var instructions Instructions
	_ = e.stage(StageRefine, func() error {
		instructions = e.policy.Refine(resolutions, g)
		return nil
	})

	var applied ApplyResult
	if err := e.stage(StageApply, func() (err error) {
		applied, err = e.applier.Apply(ctx, uow, g, instructions, keys)
		return err
	}); err != nil {
		return ApplyResult{}, nil, fmt.Errorf("applying: %w", err)
	}
	return applied, instructions, nil
}

func (e *Engine) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	e.observer.ObserveStage(name, time.Since(start))
	return err
}
