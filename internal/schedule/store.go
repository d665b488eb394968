package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/LeventeLantos/bot-dispatch/internal/clock"
	"github.com/LeventeLantos/bot-dispatch/internal/model"
	"github.com/LeventeLantos/bot-dispatch/internal/repo"
)

type EnqueueRequest struct {
	Body        string
	ScheduledAt time.Time
	Mode        model.DeliveryMode
	// ContactID is required for single delivery and ignored for broadcast,
	// whose recipients are read from the live directory at dispatch time.
	ContactID string
}

type ListFilter = repo.MessageFilter

// Store owns the lifecycle of scheduled messages:
// pending -> (claimed) -> sent | failed, or pending -> cancelled (deleted).
type Store struct {
	repo       repo.MessageRepository
	contacts   repo.ContactDirectory
	clock      clock.Clock
	log        *slog.Logger
	contentMax int
	newID      func() string
}

type Option func(*Store)

func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// WithContentMax caps the body length in runes. Zero disables the check.
func WithContentMax(n int) Option { return func(s *Store) { s.contentMax = n } }

func WithIDFunc(fn func() string) Option { return func(s *Store) { s.newID = fn } }

func NewStore(mr repo.MessageRepository, contacts repo.ContactDirectory, opts ...Option) *Store {
	s := &Store{
		repo:     mr,
		contacts: contacts,
		clock:    clock.Real{},
		log:      slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (model.ScheduledMessage, error) {
	if strings.TrimSpace(req.Body) == "" {
		return model.ScheduledMessage{}, model.NewValidationError("body", "must not be empty")
	}
	if s.contentMax > 0 && utf8.RuneCountInString(req.Body) > s.contentMax {
		return model.ScheduledMessage{}, model.NewValidationError("body", fmt.Sprintf("exceeds %d chars", s.contentMax))
	}
	if req.ScheduledAt.IsZero() {
		return model.ScheduledMessage{}, model.NewValidationError("scheduledAt", "must be a valid instant")
	}
	if !req.Mode.Valid() {
		return model.ScheduledMessage{}, model.NewValidationError("deliveryMode", fmt.Sprintf("unknown mode %q", req.Mode))
	}

	m := model.ScheduledMessage{
		ID:          s.newID(),
		Mode:        req.Mode,
		Body:        req.Body,
		ScheduledAt: req.ScheduledAt.UTC(),
		Status:      model.Pending,
		CreatedAt:   s.clock.Now(),
	}

	if req.Mode == model.Single {
		c, err := s.resolveTarget(ctx, req.ContactID)
		if err != nil {
			return model.ScheduledMessage{}, err
		}
		m.ContactID = c.ID
		m.TargetAddress = c.Address
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		return model.ScheduledMessage{}, fmt.Errorf("insert scheduled message: %w", err)
	}
	s.log.Info("message scheduled", "id", m.ID, "mode", m.Mode, "scheduled_at", m.ScheduledAt)
	return m, nil
}

func (s *Store) resolveTarget(ctx context.Context, contactID string) (model.Contact, error) {
	if contactID == "" {
		return model.Contact{}, model.NewValidationError("contactId", "required for single delivery")
	}
	c, err := s.contacts.GetContact(ctx, contactID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Contact{}, model.NewValidationError("contactId", fmt.Sprintf("contact %s not found", contactID))
	}
	if err != nil {
		return model.Contact{}, fmt.Errorf("lookup contact %s: %w", contactID, err)
	}
	if strings.TrimSpace(c.Address) == "" {
		return model.Contact{}, model.NewValidationError("contactId", fmt.Sprintf("contact %s has no address", contactID))
	}
	return c, nil
}

// Cancel removes a message that has not been claimed for dispatch yet.
func (s *Store) Cancel(ctx context.Context, id string) error {
	if err := s.repo.DeletePending(ctx, id); err != nil {
		return err
	}
	s.log.Info("message cancelled", "id", id)
	return nil
}

// DueMessages lists pending, unclaimed messages with ScheduledAt <= now,
// oldest first.
func (s *Store) DueMessages(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	return s.repo.Due(ctx, now, limit)
}

// Claim marks a message as taken by a dispatcher. Only one caller can claim
// a given message; the rest get model.ErrInvalidState.
func (s *Store) Claim(ctx context.Context, id string, at time.Time) error {
	return s.repo.Claim(ctx, id, at)
}

// Release hands a claimed message back to the queue. It is used when a
// dispatch is abandoned before any delivery attempt was made.
func (s *Store) Release(ctx context.Context, id string) error {
	return s.repo.Release(ctx, id)
}

func (s *Store) MarkSent(ctx context.Context, id string, at time.Time, out model.Outcome) error {
	return s.repo.Finish(ctx, id, model.Sent, at, out)
}

func (s *Store) MarkFailed(ctx context.Context, id string, at time.Time, out model.Outcome) error {
	return s.repo.Finish(ctx, id, model.Failed, at, out)
}

func (s *Store) Get(ctx context.Context, id string) (model.ScheduledMessage, error) {
	return s.repo.Get(ctx, id)
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]model.ScheduledMessage, error) {
	return s.repo.List(ctx, f)
}
