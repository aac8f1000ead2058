package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MillerSebastian/telegram-call/internal/audit"
	"github.com/MillerSebastian/telegram-call/internal/calls"
	"github.com/MillerSebastian/telegram-call/internal/validation"
)

const (
	seenMax  = 100
	seenKeep = 50
)

const (
	replyUnknownCommand = "❌ <b>Unknown command.</b> Use /call +NUMBER or /validate SID 1 1 1"
	replyCallUsage      = "❌ <b>Wrong format.</b> Use: /call +PHONE_NUMBER"
	replyBadNumber      = "❌ <b>Invalid number format.</b> It must start with + and have more than 8 characters."
	replyValidateUsage  = "❌ <b>Wrong format.</b> Use: /validate SID 1 1 1"
)

// CallPlacer triggers outbound call placement bound to the requesting chat.
type CallPlacer interface {
	PlaceFromChat(ctx context.Context, chatID int64, to string) (string, error)
}

// Gateway is the single background consumer of the operator channel. One
// repeating task fetches updates at a fixed cadence, drops redelivered
// messages, and dispatches commands. Start/Stop are idempotent under
// concurrent callers; at most one polling task ever runs.
type Gateway struct {
	client   *Client
	coord    *validation.Coordinator
	placer   CallPlacer
	auditor  *audit.Service
	log      *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}

	// lastUpdateID is written only by the polling goroutine; atomic so
	// Running/LastUpdateID readers never contend with the loop.
	lastUpdateID atomic.Int64

	// seen is owned by the polling goroutine. Safe because Start never
	// launches a loop before the previous one has exited.
	seen *seenSet
}

func NewGateway(client *Client, coord *validation.Coordinator, placer CallPlacer, auditor *audit.Service, interval time.Duration, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Gateway{
		client:   client,
		coord:    coord,
		placer:   placer,
		auditor:  auditor,
		log:      log,
		interval: interval,
		seen:     newSeenSet(seenMax, seenKeep),
	}
}

// Start launches the polling task if it is not already running. Returns
// whether this call started it. A stopped loop may still be finishing its
// in-flight cycle; Start waits for it so two loops never touch the cursor
// or the seen set at once.
func (g *Gateway) Start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	if g.done != nil {
		<-g.done
	}
	g.running = true
	g.quit = make(chan struct{})
	g.done = make(chan struct{})
	go g.loop(g.quit, g.done)
	g.log.Info("telegram polling started", "interval", g.interval)
	return true
}

// Stop signals the polling task to exit. The in-flight fetch/dispatch cycle
// completes normally; the loop checks for the signal between cycles.
// Returns whether a task was running.
func (g *Gateway) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return false
	}
	g.running = false
	close(g.quit)
	g.log.Info("telegram polling stop requested")
	return true
}

// Running reports whether the polling task is active.
func (g *Gateway) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// LastUpdateID returns the highest processed update sequence number.
func (g *Gateway) LastUpdateID() int64 {
	return g.lastUpdateID.Load()
}

func (g *Gateway) loop(quit <-chan struct{}, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	// Dispatch never runs under the stop signal: replies and decisions of a
	// batch already fetched are delivered even while a stop is pending.
	ctx := context.Background()
	for {
		select {
		case <-quit:
			g.log.Info("telegram polling stopped")
			return
		case <-ticker.C:
			g.cycle(ctx)
		}
	}
}

// cycle fetches and dispatches one batch of updates. Errors are logged and
// the next tick tries again; one bad cycle must not kill the loop.
func (g *Gateway) cycle(ctx context.Context) {
	last := g.lastUpdateID.Load()
	offset := last + 1
	if last == 0 {
		offset = 0
	}
	updates, err := g.client.GetUpdates(ctx, offset, 0)
	if err != nil {
		g.log.Error("telegram updates fetch failed", "err", err)
		return
	}
	for _, u := range updates {
		g.handleUpdate(ctx, u)
	}
}

func (g *Gateway) handleUpdate(ctx context.Context, u Update) {
	if u.UpdateID > g.lastUpdateID.Load() {
		g.lastUpdateID.Store(u.UpdateID)
	}
	if u.Message == nil || u.Message.Text == "" {
		return
	}
	msg := *u.Message

	if !g.seen.Mark(msg.MessageID) {
		g.log.Info("duplicate message dropped", "message_id", msg.MessageID)
		return
	}

	g.log.Info("operator message", "chat_id", msg.Chat.ID, "message_id", msg.MessageID)

	parts := strings.Fields(msg.Text)
	if len(parts) == 0 {
		return
	}
	switch strings.TrimPrefix(parts[0], "/") {
	case "call":
		g.handleCall(ctx, msg.Chat.ID, parts)
	case "validate":
		g.handleValidate(ctx, msg.Chat.ID, parts)
	default:
		g.reply(ctx, msg.Chat.ID, replyUnknownCommand)
	}
}

func (g *Gateway) handleCall(ctx context.Context, chatID int64, parts []string) {
	if len(parts) < 2 {
		g.reply(ctx, chatID, replyCallUsage)
		return
	}
	to := parts[1]

	callID, err := g.placer.PlaceFromChat(ctx, chatID, to)
	if err != nil {
		if errors.Is(err, calls.ErrInvalidNumber) {
			g.reply(ctx, chatID, replyBadNumber)
			return
		}
		g.log.Error("call placement failed", "chat_id", chatID, "err", err)
		g.reply(ctx, chatID, fmt.Sprintf("❌ <b>Could not start the call:</b> %v", err))
		return
	}

	g.auditor.LogOperatorCommand(ctx, chatID, callID, "call placed to "+to)
	g.reply(ctx, chatID, fmt.Sprintf("✅ <b>Call started to %s</b>\nSID: %s\nStatus: starting...", to, callID))
}

func (g *Gateway) handleValidate(ctx context.Context, chatID int64, parts []string) {
	// Expect: validate <callID> m1 .. mN
	if len(parts) < 3 {
		g.reply(ctx, chatID, replyValidateUsage)
		return
	}
	callID := parts[1]
	marks := make([]int, 0, len(parts)-2)
	for _, raw := range parts[2:] {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 1 {
			g.reply(ctx, chatID, replyValidateUsage)
			return
		}
		marks = append(marks, n)
	}

	stage, err := g.coord.ApplyByWidth(ctx, callID, marks)
	if err != nil {
		g.reply(ctx, chatID, replyValidateUsage)
		return
	}

	g.auditor.LogOperatorCommand(ctx, chatID, callID, fmt.Sprintf("decision %v for stage %s", marks, stage))
	g.reply(ctx, chatID, fmt.Sprintf("✅ <b>Validation saved for %s:</b> %v", callID, marks))
}

// reply is best-effort; a failed confirmation never affects dispatch.
func (g *Gateway) reply(ctx context.Context, chatID int64, text string) {
	if err := g.client.SendMessage(ctx, chatID, text); err != nil {
		g.log.Error("telegram reply failed", "chat_id", chatID, "err", err)
	}
}
