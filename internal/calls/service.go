// Package calls places outbound verification calls and seeds their sessions.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MillerSebastian/telegram-call/internal/notify"
	"github.com/MillerSebastian/telegram-call/internal/session"
	"github.com/MillerSebastian/telegram-call/internal/telephony"
	"github.com/MillerSebastian/telegram-call/pkg/phone"
)

var ErrInvalidNumber = errors.New("calls: invalid phone number")

// Service is the single path for call placement, whether triggered from the
// operator channel or the admin API.
type Service struct {
	dialer     telephony.Dialer
	store      *session.Store
	dispatcher *notify.Dispatcher
	log        *slog.Logger
	clock      func() time.Time
}

func NewService(dialer telephony.Dialer, store *session.Store, dispatcher *notify.Dispatcher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{dialer: dialer, store: store, dispatcher: dispatcher, log: log, clock: time.Now}
}

// PlaceFromChat places a call at an operator's request and binds the session
// to the requesting chat, so call-specific notifications route back there.
// The gateway's command reply is the placement notice; none is sent here.
func (s *Service) PlaceFromChat(ctx context.Context, chatID int64, to string) (string, error) {
	return s.place(ctx, chatID, to, false)
}

// Place places a call with no chat binding; the placement notice goes to
// the broadcast channel.
func (s *Service) Place(ctx context.Context, to string) (string, error) {
	return s.place(ctx, 0, to, true)
}

// PlaceBound places a call on behalf of the admin surface, bound to an
// operator chat. No gateway reply covers this path, so the placement notice
// goes to the bound chat.
func (s *Service) PlaceBound(ctx context.Context, chatID int64, to string) (string, error) {
	return s.place(ctx, chatID, to, true)
}

func (s *Service) place(ctx context.Context, chatID int64, to string, announce bool) (string, error) {
	to = strings.TrimSpace(to)
	if !validNumberShape(to) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, to)
	}
	dialTo := phone.NormalizeE164(to)

	callID, err := s.dialer.PlaceCall(ctx, dialTo)
	if err != nil {
		return "", err
	}

	now := s.clock().UTC()
	sess := s.store.Update(ctx, callID, func(sx *session.Session) {
		sx.Status = session.StatusInitiated
		sx.LastStatusChangeAt = now
		sx.ToNumber = dialTo
		sx.InitiatedAt = now
		sx.ChatID = chatID
	})

	// Later updates come from the status callback; this is only the
	// placement notice, routed to the bound chat when one exists.
	if announce {
		s.dispatcher.NotifySession(ctx, sess, fmt.Sprintf("🚀 <b>Call started</b>\nSID: %s\nNumber: %s\nStatus: starting...", callID, dialTo))
	}

	s.log.Info("verification call placed", "call_id", callID, "to", dialTo, "chat_id", chatID)
	return callID, nil
}

// validNumberShape is the accept/reject rule for operator-supplied numbers:
// a leading plus and more than 8 characters. E.164 normalization is a
// formatting courtesy applied afterwards, never a reason to refuse.
func validNumberShape(to string) bool {
	return strings.HasPrefix(to, "+") && len(to) > 8
}
