package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

// PostgresContactDirectory reads the contacts table owned by the import
// tooling. It is read-only from this service's point of view.
type PostgresContactDirectory struct {
	db *sql.DB
}

func NewPostgresContactDirectory(db *sql.DB) *PostgresContactDirectory {
	return &PostgresContactDirectory{db: db}
}

func (d *PostgresContactDirectory) ListContacts(ctx context.Context) ([]model.Contact, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, address
		FROM contacts
		WHERE address <> ''
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Address); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *PostgresContactDirectory) GetContact(ctx context.Context, id string) (model.Contact, error) {
	var c model.Contact
	err := d.db.QueryRowContext(ctx, `SELECT id, name, address FROM contacts WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, model.ErrNotFound
	}
	return c, err
}
