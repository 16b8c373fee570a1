package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

// Remote reconciliation runs as a fixed sequence of stages:
//
//  1. FETCH   - read candidate records from the remote source (no locks held)
//  2. VERIFY  - drop candidates that would break the list invariant
//  3. MERGE   - apply the survivors to the store, remote category wins
//  4. PERSIST - save the merged list and announce the change
//
// A failing stage stops the run and is reported as a *SyncError naming it.
// Nothing before MERGE touches the store, and MERGE is never undone.

// SyncStep names a stage of a reconciliation run.
type SyncStep string

const (
	StepFetch   SyncStep = "fetch"
	StepVerify  SyncStep = "verify"
	StepMerge   SyncStep = "merge"
	StepPersist SyncStep = "persist"
)

// SyncError wraps a failure with the stage where it happened.
type SyncError struct {
	Step  SyncStep
	Cause error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// SyncStepOf extracts the failing stage from a sync error.
func SyncStepOf(err error) (SyncStep, bool) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Step, true
	}

	return "", false
}

// syncRun carries state between stages.
type syncRun struct {
	candidates []domain.Quote
	verified   []domain.Quote
	report     domain.MergeReport
}

type stage struct {
	step SyncStep
	run  func(ctx context.Context, state *syncRun) error
}

// runStages executes stages in order, each under its own span, and stops at
// the first failure.
func runStages(ctx context.Context, tracer trace.Tracer, logger *slog.Logger, state *syncRun, stages ...stage) error {
	for _, st := range stages {
		if err := runStage(ctx, tracer, logger, state, st); err != nil {
			return err
		}
	}

	return nil
}

func runStage(ctx context.Context, tracer trace.Tracer, logger *slog.Logger, state *syncRun, st stage) error {
	ctx, span := tracer.Start(ctx, "quotes.sync."+string(st.step))
	defer span.End()

	stepLogger := logger.With(slog.String("step", string(st.step)))
	stepLogger.DebugContext(ctx, "stage started")

	if err := st.run(ctx, state); err != nil {
		stepLogger.DebugContext(ctx, "stage failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return &SyncError{Step: st.step, Cause: err}
	}

	return nil
}

// verifyCandidates keeps the records NewQuote accepts, trimmed.
func verifyCandidates(candidates []domain.Quote) []domain.Quote {
	out := make([]domain.Quote, 0, len(candidates))

	for _, c := range candidates {
		q, err := domain.NewQuote(c.Text, c.Category)
		if err != nil {
			continue
		}

		out = append(out, q)
	}

	return out
}
