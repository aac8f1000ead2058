// Package validation bridges operator decisions into call sessions.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MillerSebastian/telegram-call/internal/flow"
	"github.com/MillerSebastian/telegram-call/internal/session"
)

var (
	ErrUnknownStage   = errors.New("validation: unknown stage")
	ErrWidthMismatch  = errors.New("validation: decision width does not match stage")
	ErrAmbiguousWidth = errors.New("validation: decision width matches no single stage")
)

// Coordinator applies and exposes operator decisions. Writes are
// last-write-wins per stage; a decision stays visible until the flow
// consumes it or a newer one replaces it.
type Coordinator struct {
	store *session.Store
	cfg   flow.Config
	log   *slog.Logger
}

func NewCoordinator(store *session.Store, cfg flow.Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{store: store, cfg: cfg, log: log}
}

// ApplyDecision upserts the decision vector for a stage and resets the
// stage's wait counter. The session is created if the call was never seen;
// a decision arriving ahead of its data is then invalidated by the next
// field collection.
func (co *Coordinator) ApplyDecision(ctx context.Context, callID, stage string, marks []int) error {
	batch, ok := co.cfg.BatchByStage(stage)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if len(marks) != batch.Width() {
		return fmt.Errorf("%w: stage %q wants %d marks, got %d", ErrWidthMismatch, stage, batch.Width(), len(marks))
	}

	co.store.Update(ctx, callID, func(s *session.Session) {
		s.SetDecision(stage, marks)
	})
	co.log.Info("decision applied", "call_id", callID, "stage", stage, "marks", marks)
	return nil
}

// ApplyByWidth routes a stageless decision (operator commands carry only
// marks) to the unique batch with that vector width.
func (co *Coordinator) ApplyByWidth(ctx context.Context, callID string, marks []int) (string, error) {
	batch, ok := co.cfg.BatchByWidth(len(marks))
	if !ok {
		return "", fmt.Errorf("%w: %d marks", ErrAmbiguousWidth, len(marks))
	}
	return batch.Stage, co.ApplyDecision(ctx, callID, batch.Stage, marks)
}

// PeekDecision reads the pending decision for a stage without consuming it.
func (co *Coordinator) PeekDecision(callID, stage string) ([]int, bool) {
	sess, ok := co.store.Get(callID)
	if !ok {
		return nil, false
	}
	return sess.Decision(stage)
}
