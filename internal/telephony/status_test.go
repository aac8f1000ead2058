package telephony

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MillerSebastian/telegram-call/internal/session"
)

type recordingNotifier struct {
	msgs []string
}

func (n *recordingNotifier) NotifySession(ctx context.Context, sess session.Session, text string) {
	n.msgs = append(n.msgs, text)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStatusService(t *testing.T) (*StatusService, *session.Store, *recordingNotifier, *NotifyGate) {
	t.Helper()
	store := session.NewStore(session.NewMemoryRepo(), testLogger())
	gate := NewNotifyGate(30*time.Second, 5*time.Minute)
	notifier := &recordingNotifier{}
	svc := NewStatusService(store, gate, notifier, testLogger())
	return svc, store, notifier, gate
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]session.CallStatus{
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
		"garbage":     session.StatusUnknown,
		"":            session.StatusUnknown,
	}
	for raw, want := range cases {
		if got := NormalizeStatus(raw); got != want {
			t.Fatalf("%q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestStatusService_UnchangedStatusIsNoOp(t *testing.T) {
	svc, store, notifier, _ := newStatusService(t)
	ctx := context.Background()

	svc.HandleStatus(ctx, "CA1", "ringing", 0)
	svc.HandleStatus(ctx, "CA1", "ringing", 0)

	if len(notifier.msgs) != 1 {
		t.Fatalf("duplicate callback must not notify twice, got %d messages", len(notifier.msgs))
	}
	sess, _ := store.Get("CA1")
	if sess.Status != session.StatusRinging {
		t.Fatalf("expected ringing, got %s", sess.Status)
	}
}

func TestStatusService_NormalizedDuplicateIsNoOp(t *testing.T) {
	svc, _, notifier, _ := newStatusService(t)
	ctx := context.Background()

	// answered and in-progress normalize to the same status.
	svc.HandleStatus(ctx, "CA1", "answered", 0)
	svc.HandleStatus(ctx, "CA1", "in-progress", 0)

	if len(notifier.msgs) != 1 {
		t.Fatalf("expected a single notification, got %d", len(notifier.msgs))
	}
}

func TestStatusService_PlacementSeededCallSkipsInitialNotice(t *testing.T) {
	svc, store, notifier, _ := newStatusService(t)
	ctx := context.Background()

	// Placement seeds an initiated status alongside the chat binding.
	store.Update(ctx, "CA1", func(s *session.Session) {
		s.Status = session.StatusInitiated
		s.ChatID = 42
		s.ToNumber = "+573001112233"
	})

	svc.HandleStatus(ctx, "CA1", "initiated", 0)
	if len(notifier.msgs) != 0 {
		t.Fatalf("the placement notice already covered initiation, got %d messages", len(notifier.msgs))
	}

	svc.HandleStatus(ctx, "CA1", "ringing", 0)
	if len(notifier.msgs) != 1 {
		t.Fatalf("later transitions must notify, got %d messages", len(notifier.msgs))
	}
	if !strings.Contains(notifier.msgs[0], "+573001112233") {
		t.Fatalf("notice missing the dialed number: %q", notifier.msgs[0])
	}
}

func TestStatusService_CompletedNoticeCarriesDuration(t *testing.T) {
	svc, _, notifier, gate := newStatusService(t)
	ctx := context.Background()

	svc.HandleStatus(ctx, "CA1", "in-progress", 0)
	svc.HandleStatus(ctx, "CA1", "completed", 75)

	last := notifier.msgs[len(notifier.msgs)-1]
	if !strings.Contains(last, "Duration: 75s") {
		t.Fatalf("completed notice missing duration: %q", last)
	}
	if gate.Len() != 0 {
		t.Fatalf("terminal status must evict the call's gate entries, %d left", gate.Len())
	}
}

func TestNotifyGate_SuppressesWithinWindow(t *testing.T) {
	gate := NewNotifyGate(30*time.Second, 5*time.Minute)
	now := time.Unix(1700000000, 0).UTC()
	gate.clock = func() time.Time { return now }

	if !gate.Allow("CA1", session.StatusRinging) {
		t.Fatalf("first notification must pass")
	}
	now = now.Add(10 * time.Second)
	if gate.Allow("CA1", session.StatusRinging) {
		t.Fatalf("repeat within the window must be suppressed")
	}
	if !gate.Allow("CA1", session.StatusInProgress) {
		t.Fatalf("a different status is a different key")
	}
	if !gate.Allow("CA2", session.StatusRinging) {
		t.Fatalf("a different call is a different key")
	}

	now = now.Add(31 * time.Second)
	if !gate.Allow("CA1", session.StatusRinging) {
		t.Fatalf("repeat after the window must pass")
	}
}

func TestNotifyGate_SweepsExpiredEntries(t *testing.T) {
	gate := NewNotifyGate(30*time.Second, 5*time.Minute)
	now := time.Unix(1700000000, 0).UTC()
	gate.clock = func() time.Time { return now }

	gate.Allow("CA1", session.StatusRinging)
	gate.Allow("CA2", session.StatusRinging)
	if gate.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", gate.Len())
	}

	now = now.Add(6 * time.Minute)
	gate.Allow("CA3", session.StatusRinging)
	if gate.Len() != 1 {
		t.Fatalf("expired entries must be swept, got %d", gate.Len())
	}
}

func TestNotifyGate_EvictCall(t *testing.T) {
	gate := NewNotifyGate(30*time.Second, 5*time.Minute)
	gate.Allow("CA1", session.StatusRinging)
	gate.Allow("CA1", session.StatusInProgress)
	gate.Allow("CA2", session.StatusRinging)

	gate.EvictCall("CA1")
	if gate.Len() != 1 {
		t.Fatalf("expected only CA2's entry to survive, got %d", gate.Len())
	}
	if !gate.Allow("CA1", session.StatusRinging) {
		t.Fatalf("evicted call must notify again")
	}
}
