package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MillerSebastian/telegram-call/internal/flow"
	"github.com/MillerSebastian/telegram-call/internal/session"
)

// providerStatus maps raw Twilio lifecycle tokens to the canonical enum.
var providerStatus = map[string]session.CallStatus{
	"queued":      session.StatusInitiated,
	"initiated":   session.StatusInitiated,
	"ringing":     session.StatusRinging,
	"answered":    session.StatusInProgress,
	"in-progress": session.StatusInProgress,
	"completed":   session.StatusCompleted,
	"busy":        session.StatusBusy,
	"no-answer":   session.StatusNoAnswer,
	"failed":      session.StatusFailed,
	"canceled":    session.StatusCanceled,
}

// NormalizeStatus converts a raw provider token into the canonical status.
func NormalizeStatus(raw string) session.CallStatus {
	if st, ok := providerStatus[raw]; ok {
		return st
	}
	return session.StatusUnknown
}

type statusNotice struct {
	Icon string
	Desc string
}

var statusNotices = map[session.CallStatus]statusNotice{
	session.StatusInitiated:  {"🔄", "Call initiated"},
	session.StatusRinging:    {"📳", "Phone ringing"},
	session.StatusInProgress: {"✅", "Call answered"},
	session.StatusCompleted:  {"🏁", "Call ended"},
	session.StatusBusy:       {"🔴", "Number busy"},
	session.StatusNoAnswer:   {"❌", "No answer"},
	session.StatusFailed:     {"⚠️", "Call failed"},
	session.StatusCanceled:   {"🚫", "Call canceled"},
	session.StatusUnknown:    {"📞", "Status updated"},
}

type gateKey struct {
	callID string
	status session.CallStatus
}

// NotifyGate suppresses rapid-repeat notifications for the same
// (call, status) pair. Entries expire after gateTTL to bound memory; a
// terminal status evicts everything for its call.
type NotifyGate struct {
	mu      sync.Mutex
	entries map[gateKey]time.Time
	window  time.Duration
	ttl     time.Duration
	clock   func() time.Time
}

func NewNotifyGate(window, ttl time.Duration) *NotifyGate {
	return &NotifyGate{
		entries: make(map[gateKey]time.Time),
		window:  window,
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Allow reports whether a notification for (callID, status) may be sent now,
// recording it if so. Each pass sweeps entries older than the TTL.
func (g *NotifyGate) Allow(callID string, status session.CallStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	for k, sent := range g.entries {
		if now.Sub(sent) > g.ttl {
			delete(g.entries, k)
		}
	}

	k := gateKey{callID: callID, status: status}
	if sent, ok := g.entries[k]; ok && now.Sub(sent) <= g.window {
		return false
	}
	g.entries[k] = now
	return true
}

// EvictCall drops every gate entry for a call.
func (g *NotifyGate) EvictCall(callID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.entries {
		if k.callID == callID {
			delete(g.entries, k)
		}
	}
}

// Len returns the number of live gate entries.
func (g *NotifyGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// StatusService normalizes raw lifecycle callbacks into session updates and
// decides when the operator hears about them. Safe under duplicate and
// reordered redelivery: an unchanged status is a no-op.
type StatusService struct {
	store    *session.Store
	gate     *NotifyGate
	notifier flow.Notifier
	log      *slog.Logger
	clock    func() time.Time
}

func NewStatusService(store *session.Store, gate *NotifyGate, notifier flow.Notifier, log *slog.Logger) *StatusService {
	if log == nil {
		log = slog.Default()
	}
	return &StatusService{store: store, gate: gate, notifier: notifier, log: log, clock: time.Now}
}

// HandleStatus applies one raw status callback. Unknown call ids create a
// session on the spot rather than erroring.
func (s *StatusService) HandleStatus(ctx context.Context, callID, rawStatus string, durationSeconds int) {
	status := NormalizeStatus(rawStatus)

	var (
		changed  bool
		snapshot session.Session
	)
	snapshot = s.store.Update(ctx, callID, func(sess *session.Session) {
		if sess.Status == status {
			return
		}
		changed = true
		sess.Status = status
		sess.LastStatusChangeAt = s.clock().UTC()
		if durationSeconds > 0 {
			sess.DurationSeconds = durationSeconds
		}
	})

	s.log.Info("call status update",
		"call_id", callID, "status", status, "raw", rawStatus, "duration_s", durationSeconds, "changed", changed)

	// Placement seeds the session with an initiated status, so the first
	// "initiated" callback lands here as unchanged and stays silent.
	if !changed {
		return
	}

	if s.gate.Allow(callID, status) {
		s.notifier.NotifySession(ctx, snapshot, s.formatNotice(snapshot, status))
	}

	if status.IsTerminal() {
		s.gate.EvictCall(callID)
	}
}

func (s *StatusService) formatNotice(sess session.Session, status session.CallStatus) string {
	n := statusNotices[status]
	to := sess.ToNumber
	if to == "" {
		to = "unknown"
	}
	msg := fmt.Sprintf("%s <b>%s</b>\nSID: %s\nNumber: %s\nStatus: %s", n.Icon, n.Desc, sess.CallID, to, status)
	if (status == session.StatusCompleted || status == session.StatusInProgress) && sess.DurationSeconds > 0 {
		msg += fmt.Sprintf("\nDuration: %ds", sess.DurationSeconds)
	}
	return msg
}
