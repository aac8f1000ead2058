// Package notify fans status and flow messages out to the operator channel.
package notify

import (
	"context"
	"log/slog"

	"github.com/MillerSebastian/telegram-call/internal/session"
)

// Sender is the outbound half of the messaging provider.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Dispatcher is stateless formatting-free delivery. Notification is
// best-effort: failures are logged and swallowed, never returned, so a dead
// messaging provider cannot abort a webhook response or the call flow.
type Dispatcher struct {
	sender          Sender
	broadcastChatID int64
	log             *slog.Logger
}

func NewDispatcher(sender Sender, broadcastChatID int64, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{sender: sender, broadcastChatID: broadcastChatID, log: log}
}

// Broadcast sends to the default channel.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) {
	d.send(ctx, d.broadcastChatID, text)
}

// Direct sends to a specific chat.
func (d *Dispatcher) Direct(ctx context.Context, chatID int64, text string) {
	d.send(ctx, chatID, text)
}

// NotifySession routes a call message: the operator chat bound to the call
// when one exists, the broadcast channel otherwise. Never both with the
// same content.
func (d *Dispatcher) NotifySession(ctx context.Context, sess session.Session, text string) {
	if sess.ChatID != 0 {
		d.send(ctx, sess.ChatID, text)
		return
	}
	d.Broadcast(ctx, text)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) {
	if d.sender == nil || chatID == 0 {
		return
	}
	if err := d.sender.SendMessage(ctx, chatID, text); err != nil {
		d.log.Error("notification send failed", "chat_id", chatID, "err", err)
	}
}
