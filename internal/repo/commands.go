package repo

import (
	"context"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

type CommandFilter struct {
	ActiveOnly bool
	Search     string
}

// CommandRepository stores commands. List returns newest first.
type CommandRepository interface {
	Insert(ctx context.Context, c model.Command) error
	// Update writes the editable fields of c and returns the stored row.
	// IsActive is written only when withActive is set, so a toggle racing
	// with an edit is not undone.
	Update(ctx context.Context, c model.Command, withActive bool) (model.Command, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (model.Command, error)
	Get(ctx context.Context, id string) (model.Command, error)
	List(ctx context.Context, f CommandFilter) ([]model.Command, error)
}
