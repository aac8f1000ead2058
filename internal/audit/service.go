package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Service records internal audit information. Callers treat audit logging
// as best-effort; the convenience loggers below swallow errors.

type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Message == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Recent returns the most recent events, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.Recent(ctx, limit)
}

// LogOperatorCommand records a processed operator-channel command.
func (s *Service) LogOperatorCommand(ctx context.Context, chatID int64, callID, message string) {
	if err := s.Append(ctx, Event{
		Type:    EventTypeOperatorCommand,
		ChatID:  chatID,
		CallID:  callID,
		Message: message,
	}); err != nil {
		s.log.Error("audit append failed", "err", err)
	}
}

// LogAdminAction records an admin-surface action.
func (s *Service) LogAdminAction(ctx context.Context, actor, callID, message string) {
	if err := s.Append(ctx, Event{
		Type:    EventTypeAdminAction,
		Actor:   actor,
		CallID:  callID,
		Message: message,
	}); err != nil {
		s.log.Error("audit append failed", "err", err)
	}
}
