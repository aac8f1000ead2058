package session

import "time"

// CallStatus is the canonical call lifecycle status. Raw provider tokens are
// normalized into this enum at the telephony boundary.
type CallStatus string

const (
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in_progress"
	StatusCompleted  CallStatus = "completed"
	StatusBusy       CallStatus = "busy"
	StatusNoAnswer   CallStatus = "no_answer"
	StatusFailed     CallStatus = "failed"
	StatusCanceled   CallStatus = "canceled"
	StatusUnknown    CallStatus = "unknown"
)

// IsTerminal reports whether no further lifecycle events are expected.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusNoAnswer, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Session is the per-call state, keyed by the provider call id.
//
// Invariants:
// - Collecting a field invalidates any pending decision for its batch.
// - A consumed decision is cleared; it is never re-read for the same batch.
// - Retry/correction counters reset exactly when a decision for their stage
//   is accepted.
type Session struct {
	CallID string `json:"call_id"`

	// Fields holds raw digit strings per collection step.
	Fields map[string]string `json:"fields,omitempty"`

	Status             CallStatus `json:"call_status,omitempty"`
	LastStatusChangeAt time.Time  `json:"last_status_change_at,omitempty"`
	DurationSeconds    int        `json:"call_duration_seconds,omitempty"`

	ToNumber    string    `json:"to_number,omitempty"`
	InitiatedAt time.Time `json:"initiated_at,omitempty"`

	// ChatID is the operator chat that placed the call, 0 when the call was
	// not operator-placed. Call-specific notifications route here.
	ChatID int64 `json:"operator_chat_id,omitempty"`

	// Pending maps a stage name to its decision vector while one is waiting
	// to be consumed by the flow.
	Pending map[string][]int `json:"pending_validation,omitempty"`

	RetryCounts      map[string]int `json:"retry_counts,omitempty"`
	CorrectionCounts map[string]int `json:"correction_counts,omitempty"`

	// CorrectionInProgress is set while the caller re-enters a rejected
	// field and cleared the moment new digits for it arrive.
	CorrectionInProgress bool   `json:"correction_in_progress,omitempty"`
	CorrectionField      string `json:"correction_field,omitempty"`
}

// Clone returns a deep copy safe to hand out across the store lock.
func (s *Session) Clone() Session {
	out := *s
	if s.Fields != nil {
		out.Fields = make(map[string]string, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = v
		}
	}
	if s.Pending != nil {
		out.Pending = make(map[string][]int, len(s.Pending))
		for k, v := range s.Pending {
			vv := make([]int, len(v))
			copy(vv, v)
			out.Pending[k] = vv
		}
	}
	if s.RetryCounts != nil {
		out.RetryCounts = make(map[string]int, len(s.RetryCounts))
		for k, v := range s.RetryCounts {
			out.RetryCounts[k] = v
		}
	}
	if s.CorrectionCounts != nil {
		out.CorrectionCounts = make(map[string]int, len(s.CorrectionCounts))
		for k, v := range s.CorrectionCounts {
			out.CorrectionCounts[k] = v
		}
	}
	return out
}

// SetField records collected digits and invalidates any pending decision,
// since a decision vector must not outlive the data it judged.
func (s *Session) SetField(name, digits string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[name] = digits
	s.Pending = nil
	if s.CorrectionInProgress && s.CorrectionField == name {
		s.CorrectionInProgress = false
		s.CorrectionField = ""
	}
}

// Decision returns the pending decision vector for a stage, if any.
func (s *Session) Decision(stage string) ([]int, bool) {
	v, ok := s.Pending[stage]
	return v, ok
}

// SetDecision upserts the decision vector for a stage (last write wins) and
// resets the stage retry counter.
func (s *Session) SetDecision(stage string, marks []int) {
	if s.Pending == nil {
		s.Pending = make(map[string][]int)
	}
	s.Pending[stage] = marks
	if s.RetryCounts != nil {
		delete(s.RetryCounts, stage)
	}
}

// ClearDecision consumes the decision for a stage.
func (s *Session) ClearDecision(stage string) {
	delete(s.Pending, stage)
}

// RetryCount returns the wait-loop counter for a stage.
func (s *Session) RetryCount(stage string) int { return s.RetryCounts[stage] }

// BumpRetry increments the wait-loop counter and returns the previous value.
func (s *Session) BumpRetry(stage string) int {
	if s.RetryCounts == nil {
		s.RetryCounts = make(map[string]int)
	}
	prev := s.RetryCounts[stage]
	s.RetryCounts[stage] = prev + 1
	return prev
}

// ResetStage zeroes the retry and correction counters for a stage. It runs
// when a decision for the stage is accepted.
func (s *Session) ResetStage(stage string) {
	delete(s.RetryCounts, stage)
	delete(s.CorrectionCounts, stage)
}

// BumpCorrection increments the re-collection counter and returns the new value.
func (s *Session) BumpCorrection(stage string) int {
	if s.CorrectionCounts == nil {
		s.CorrectionCounts = make(map[string]int)
	}
	s.CorrectionCounts[stage]++
	return s.CorrectionCounts[stage]
}
