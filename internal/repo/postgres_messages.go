package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

const messageColumns = `id, contact_id, target_address, message, is_broadcast, scheduled_at,
	status, claimed_at, sent_at, last_error, recipients, delivered, created_at`

func (r *PostgresMessageRepo) Insert(ctx context.Context, m model.ScheduledMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_messages
			(id, contact_id, target_address, message, is_broadcast, scheduled_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		m.ID,
		nullString(m.ContactID),
		nullString(m.TargetAddress),
		m.Body,
		m.Mode == model.Broadcast,
		m.ScheduledAt.UTC(),
		string(m.Status),
		m.CreatedAt.UTC(),
	)
	return err
}

func (r *PostgresMessageRepo) Get(ctx context.Context, id string) (model.ScheduledMessage, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM scheduled_messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledMessage{}, model.ErrNotFound
	}
	return m, err
}

func (r *PostgresMessageRepo) DeletePending(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scheduled_messages
		WHERE id = $1 AND status = 'pending' AND claimed_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id, "cancel")
}

func (r *PostgresMessageRepo) Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE status = 'pending'
		  AND claimed_at IS NULL
		  AND scheduled_at <= $1
		ORDER BY scheduled_at ASC, created_at ASC, id ASC
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *PostgresMessageRepo) Claim(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET claimed_at = $2
		WHERE id = $1 AND status = 'pending' AND claimed_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id, "claim")
}

func (r *PostgresMessageRepo) Release(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET claimed_at = NULL
		WHERE id = $1 AND status = 'pending' AND claimed_at IS NOT NULL
	`, id)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id, "release")
}

func (r *PostgresMessageRepo) Finish(ctx context.Context, id string, status model.Status, at time.Time, out model.Outcome) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = $2,
		    sent_at = $3,
		    recipients = $4,
		    delivered = $5,
		    last_error = $6
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), at.UTC(), out.Recipients, out.Delivered, nullString(out.Error))
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id, "mark "+string(status))
}

func (r *PostgresMessageRepo) List(ctx context.Context, f MessageFilter) ([]model.ScheduledMessage, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE ($1 = '' OR status = $1)
		ORDER BY scheduled_at ASC, created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// checkAffected turns a zero-row CAS update into the error that explains it.
func (r *PostgresMessageRepo) checkAffected(ctx context.Context, res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM scheduled_messages WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	return &model.InvalidStateError{ID: id, Op: op, Status: model.Status(status)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (model.ScheduledMessage, error) {
	var (
		m         model.ScheduledMessage
		contactID sql.NullString
		target    sql.NullString
		broadcast bool
		status    string
		claimedAt sql.NullTime
		sentAt    sql.NullTime
		lastErr   sql.NullString
	)
	if err := s.Scan(
		&m.ID,
		&contactID,
		&target,
		&m.Body,
		&broadcast,
		&m.ScheduledAt,
		&status,
		&claimedAt,
		&sentAt,
		&lastErr,
		&m.Recipients,
		&m.Delivered,
		&m.CreatedAt,
	); err != nil {
		return model.ScheduledMessage{}, err
	}

	m.Status = model.Status(status)
	m.Mode = model.Single
	if broadcast {
		m.Mode = model.Broadcast
	}
	m.ContactID = contactID.String
	m.TargetAddress = target.String
	if claimedAt.Valid {
		t := claimedAt.Time
		m.ClaimedAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	if lastErr.Valid {
		s := lastErr.String
		m.LastError = &s
	}
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]model.ScheduledMessage, error) {
	var out []model.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
