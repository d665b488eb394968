package repo

import (
	"context"
	"time"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

type MessageFilter struct {
	Status model.Status
	Limit  int
	Offset int
}

// MessageRepository persists scheduled messages. Every state change is a
// compare-and-set against status pending, so concurrent callers racing on
// the same row see model.ErrInvalidState rather than a silent overwrite.
type MessageRepository interface {
	Insert(ctx context.Context, m model.ScheduledMessage) error
	Get(ctx context.Context, id string) (model.ScheduledMessage, error)
	// DeletePending removes a message that is pending and not yet claimed.
	DeletePending(ctx context.Context, id string) error
	// Due returns pending, unclaimed messages with scheduled_at <= now,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	Claim(ctx context.Context, id string, at time.Time) error
	// Release clears the claim of a pending message so the next tick can
	// take it again.
	Release(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status model.Status, at time.Time, out model.Outcome) error
	List(ctx context.Context, f MessageFilter) ([]model.ScheduledMessage, error)
}
