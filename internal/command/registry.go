package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/LeventeLantos/bot-dispatch/internal/clock"
	"github.com/LeventeLantos/bot-dispatch/internal/model"
	"github.com/LeventeLantos/bot-dispatch/internal/repo"
)

// Draft is the operator-supplied shape of a command on create and update.
// Triggers is the raw comma-separated list as typed in the dashboard.
type Draft struct {
	Triggers            string
	TextMessage         string
	Attachments         []model.Attachment
	IsActive            *bool
	LinkedSubcategoryID *int64
	LinkedItemID        *int64
}

type Filter = repo.CommandFilter

type Registry struct {
	repo  repo.CommandRepository
	clock clock.Clock
	log   *slog.Logger
	newID func() string
}

type Option func(*Registry)

func WithClock(c clock.Clock) Option { return func(r *Registry) { r.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.log = l } }

func WithIDFunc(fn func() string) Option { return func(r *Registry) { r.newID = fn } }

func NewRegistry(cr repo.CommandRepository, opts ...Option) *Registry {
	r := &Registry{
		repo:  cr,
		clock: clock.Real{},
		log:   slog.Default(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Create(ctx context.Context, d Draft) (model.Command, error) {
	triggers, link, err := validate(d)
	if err != nil {
		return model.Command{}, err
	}

	c := model.Command{
		ID:          r.newID(),
		Triggers:    triggers,
		TextMessage: d.TextMessage,
		Attachments: model.CloneAttachments(d.Attachments),
		IsActive:    true,
		Link:        link,
		CreatedAt:   r.clock.Now(),
	}
	if d.IsActive != nil {
		c.IsActive = *d.IsActive
	}

	if err := r.repo.Insert(ctx, c); err != nil {
		return model.Command{}, fmt.Errorf("insert command: %w", err)
	}
	r.log.Info("command created", "id", c.ID, "triggers", len(c.Triggers), "link", linkLabel(c.Link))
	return c, nil
}

// Update replaces the editable fields of a command. CreatedAt is never
// touched and a nil IsActive keeps the current flag.
func (r *Registry) Update(ctx context.Context, id string, d Draft) (model.Command, error) {
	triggers, link, err := validate(d)
	if err != nil {
		return model.Command{}, err
	}

	next := model.Command{
		ID:          id,
		Triggers:    triggers,
		TextMessage: d.TextMessage,
		Attachments: model.CloneAttachments(d.Attachments),
		Link:        link,
	}
	if d.IsActive != nil {
		next.IsActive = *d.IsActive
	}

	c, err := r.repo.Update(ctx, next, d.IsActive != nil)
	if err != nil {
		return model.Command{}, fmt.Errorf("update command %s: %w", id, err)
	}
	r.log.Info("command updated", "id", id, "link", linkLabel(c.Link))
	return c, nil
}

// Delete is idempotent: deleting an absent command succeeds.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("delete command %s: %w", id, err)
	}
	return nil
}

func (r *Registry) SetActive(ctx context.Context, id string, active bool) (model.Command, error) {
	c, err := r.repo.SetActive(ctx, id, active)
	if err != nil {
		return model.Command{}, err
	}
	r.log.Info("command toggled", "id", id, "active", active)
	return c, nil
}

func (r *Registry) Get(ctx context.Context, id string) (model.Command, error) {
	return r.repo.Get(ctx, id)
}

// List returns commands newest first.
func (r *Registry) List(ctx context.Context, f Filter) ([]model.Command, error) {
	return r.repo.List(ctx, f)
}

func validate(d Draft) ([]string, model.FunnelLink, error) {
	triggers := ParseTriggers(d.Triggers)
	if len(triggers) == 0 {
		return nil, model.FunnelLink{}, model.NewValidationError("triggers", "at least one trigger is required")
	}
	link, err := model.NewFunnelLink(d.LinkedSubcategoryID, d.LinkedItemID)
	if err != nil {
		return nil, model.FunnelLink{}, err
	}
	for i, a := range d.Attachments {
		if a.Name == "" {
			return nil, model.FunnelLink{}, model.NewValidationError("attachments", fmt.Sprintf("attachment %d has no name", i))
		}
	}
	return triggers, link, nil
}

func linkLabel(l model.FunnelLink) string {
	switch l.Kind() {
	case model.LinkSubcategory:
		return fmt.Sprintf("subcategory:%d", l.ID())
	case model.LinkItem:
		return fmt.Sprintf("item:%d", l.ID())
	default:
		return "none"
	}
}
