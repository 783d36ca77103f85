// Package ingest runs batch files through the reconciliation engine and
// records the outcome.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/sydlexius/confluence/internal/batch"
	"github.com/sydlexius/confluence/internal/event"
	"github.com/sydlexius/confluence/internal/reconcile"
	"github.com/sydlexius/confluence/internal/store"
)

// Reconciler runs one claim graph.
type Reconciler interface {
	Reconcile(ctx context.Context, g *reconcile.ClaimGraph) (reconcile.ApplyResult, reconcile.PersistenceResult, error)
}

// RunRecorder keeps the run history.
type RunRecorder interface {
	StartRun(ctx context.Context, batchID, file string, claims int) (*store.Run, error)
	FinishRun(ctx context.Context, run *store.Run) error
}

// Outcome describes one processed file.
type Outcome struct {
	File      string
	BatchID   string
	Claims    int
	Applied   reconcile.ApplyResult
	Persisted reconcile.PersistenceResult
	Run       *store.Run
}

// Runner decodes, reconciles and records batch files one at a time.
type Runner struct {
	decoder *batch.Decoder
	engine  Reconciler
	runs    RunRecorder
	bus     *event.Bus
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a runner. Events are only published once SetBus is
// called.
func NewRunner(decoder *batch.Decoder, engine Reconciler, runs RunRecorder, logger *slog.Logger) *Runner {
	return &Runner{
		decoder: decoder,
		engine:  engine,
		runs:    runs,
		logger:  logger.With("component", "ingest"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetBus sets the bus that receives batch outcome events.
func (r *Runner) SetBus(bus *event.Bus) {
	r.bus = bus
}

// RunFile processes the batch document at path. A run row is recorded
// even when the document cannot be decoded.
func (r *Runner) RunFile(ctx context.Context, path string) (*Outcome, error) {
	out := &Outcome{File: path}

	b, decodeErr := r.decoder.DecodeFile(path)
	if b != nil {
		out.BatchID = b.ID
		out.Claims = b.Graph.Len()
	}

	run, err := r.runs.StartRun(ctx, out.BatchID, path, out.Claims)
	if err != nil {
		return out, multierr.Append(decodeErr, err)
	}
	out.Run = run

	var runErr error
	if decodeErr != nil {
		runErr = fmt.Errorf("decoding %s: %w", path, decodeErr)
	} else {
		out.Applied, out.Persisted, runErr = r.engine.Reconcile(ctx, b.Graph)
	}

	run.Finish(out.Applied, out.Persisted, runErr, r.now())
	if err := r.runs.FinishRun(ctx, run); err != nil {
		runErr = multierr.Append(runErr, err)
	}

	r.publish(out, runErr)
	if runErr != nil {
		r.logger.Warn("batch failed", "file", path, "batch_id", out.BatchID, "error", runErr)
		return out, runErr
	}
	return out, nil
}

func (r *Runner) publish(out *Outcome, err error) {
	if r.bus == nil {
		return
	}
	if err != nil {
		r.bus.Publish(event.Event{
			Type:    event.BatchFailed,
			BatchID: out.BatchID,
			File:    out.File,
			Data:    map[string]any{"error": err.Error()},
		})
		return
	}
	r.bus.Publish(event.Event{
		Type:    event.BatchReconciled,
		BatchID: out.BatchID,
		File:    out.File,
		Data: map[string]any{
			"claims":        out.Claims,
			"created":       out.Applied.Created,
			"merged":        out.Applied.Merged,
			"skipped":       out.Applied.Skipped,
			"manual_review": out.Applied.ManualReview,
		},
	})
	if out.Applied.ManualReview > 0 {
		r.bus.Publish(event.Event{
			Type:    event.ReviewNeeded,
			BatchID: out.BatchID,
			File:    out.File,
			Data:    map[string]any{"count": out.Applied.ManualReview},
		})
	}
}
