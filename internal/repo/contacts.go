package repo

import (
	"context"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

type ContactDirectory interface {
	ListContacts(ctx context.Context) ([]model.Contact, error)
	GetContact(ctx context.Context, id string) (model.Contact, error)
}
