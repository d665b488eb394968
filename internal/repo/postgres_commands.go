package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

type PostgresCommandRepo struct {
	db *sql.DB
}

func NewPostgresCommandRepo(db *sql.DB) *PostgresCommandRepo {
	return &PostgresCommandRepo{db: db}
}

const commandColumns = `id, triggers, text_message, file_data, is_active, created_at,
	linked_subcategory_id, linked_item_id`

// Triggers never contain commas after normalization, so a comma-joined
// column round-trips exactly. Search splits it back so a pattern never
// spans two triggers.
const triggerSep = ","

func (r *PostgresCommandRepo) Insert(ctx context.Context, c model.Command) error {
	files, err := encodeAttachments(c.Attachments)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO commands (`+commandColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		c.ID,
		strings.Join(c.Triggers, triggerSep),
		c.TextMessage,
		files,
		c.IsActive,
		c.CreatedAt.UTC(),
		nullInt64(c.Link.SubcategoryID()),
		nullInt64(c.Link.ItemID()),
	)
	return err
}

func (r *PostgresCommandRepo) Update(ctx context.Context, c model.Command, withActive bool) (model.Command, error) {
	files, err := encodeAttachments(c.Attachments)
	if err != nil {
		return model.Command{}, err
	}

	// Both link columns are written together so a stale sibling never survives.
	row := r.db.QueryRowContext(ctx, `
		UPDATE commands
		SET triggers = $2,
		    text_message = $3,
		    file_data = $4,
		    is_active = CASE WHEN $8 THEN $5 ELSE is_active END,
		    linked_subcategory_id = $6,
		    linked_item_id = $7
		WHERE id = $1
		RETURNING `+commandColumns,
		c.ID,
		strings.Join(c.Triggers, triggerSep),
		c.TextMessage,
		files,
		c.IsActive,
		nullInt64(c.Link.SubcategoryID()),
		nullInt64(c.Link.ItemID()),
		withActive,
	)
	updated, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Command{}, model.ErrNotFound
	}
	return updated, err
}

func (r *PostgresCommandRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM commands WHERE id = $1`, id)
	return err
}

func (r *PostgresCommandRepo) SetActive(ctx context.Context, id string, active bool) (model.Command, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE commands
		SET is_active = $2
		WHERE id = $1
		RETURNING `+commandColumns, id, active)
	c, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Command{}, model.ErrNotFound
	}
	return c, err
}

func (r *PostgresCommandRepo) Get(ctx context.Context, id string) (model.Command, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = $1`, id)
	c, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Command{}, model.ErrNotFound
	}
	return c, err
}

func (r *PostgresCommandRepo) List(ctx context.Context, f CommandFilter) ([]model.Command, error) {
	pattern := ""
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern = "%" + likeEscaper.Replace(s) + "%"
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+commandColumns+`
		FROM commands
		WHERE (NOT $1 OR is_active)
		  AND ($2 = ''
		       OR text_message ILIKE $2
		       OR EXISTS (
		           SELECT 1 FROM unnest(string_to_array(triggers, '`+triggerSep+`')) AS t(trigger)
		           WHERE t.trigger ILIKE $2))
		ORDER BY created_at DESC, id DESC
	`, f.ActiveOnly, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanCommand(s rowScanner) (model.Command, error) {
	var (
		c        model.Command
		triggers string
		files    []byte
		subID    sql.NullInt64
		itemID   sql.NullInt64
	)
	if err := s.Scan(
		&c.ID,
		&triggers,
		&c.TextMessage,
		&files,
		&c.IsActive,
		&c.CreatedAt,
		&subID,
		&itemID,
	); err != nil {
		return model.Command{}, err
	}

	if triggers != "" {
		c.Triggers = strings.Split(triggers, triggerSep)
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &c.Attachments); err != nil {
			return model.Command{}, err
		}
	}

	var sub, item *int64
	if subID.Valid {
		sub = &subID.Int64
	}
	if itemID.Valid {
		item = &itemID.Int64
	}
	link, err := model.NewFunnelLink(sub, item)
	if err != nil {
		return model.Command{}, err
	}
	c.Link = link
	return c, nil
}

func encodeAttachments(a []model.Attachment) ([]byte, error) {
	if a == nil {
		a = []model.Attachment{}
	}
	return json.Marshal(a)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
