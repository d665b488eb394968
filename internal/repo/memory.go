package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

// In-memory repositories. They honour the same contracts as the Postgres
// ones and back the tests and local runs without a database.

type MemoryCommandRepo struct {
	mu   sync.RWMutex
	byID map[string]model.Command
}

func NewMemoryCommandRepo() *MemoryCommandRepo {
	return &MemoryCommandRepo{byID: make(map[string]model.Command)}
}

func (r *MemoryCommandRepo) Insert(ctx context.Context, c model.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c.Clone()
	return nil
}

func (r *MemoryCommandRepo) Update(ctx context.Context, c model.Command, withActive bool) (model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[c.ID]
	if !ok {
		return model.Command{}, model.ErrNotFound
	}
	c = c.Clone()
	c.CreatedAt = cur.CreatedAt
	if !withActive {
		c.IsActive = cur.IsActive
	}
	r.byID[c.ID] = c
	return c.Clone(), nil
}

func (r *MemoryCommandRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *MemoryCommandRepo) SetActive(ctx context.Context, id string, active bool) (model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return model.Command{}, model.ErrNotFound
	}
	c.IsActive = active
	r.byID[id] = c
	return c.Clone(), nil
}

func (r *MemoryCommandRepo) Get(ctx context.Context, id string) (model.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return model.Command{}, model.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryCommandRepo) List(ctx context.Context, f CommandFilter) ([]model.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.Command, 0, len(r.byID))
	for _, c := range r.byID {
		if f.ActiveOnly && !c.IsActive {
			continue
		}
		if search != "" && !commandMatches(c, search) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func commandMatches(c model.Command, search string) bool {
	if strings.Contains(strings.ToLower(c.TextMessage), search) {
		return true
	}
	for _, t := range c.Triggers {
		if strings.Contains(strings.ToLower(t), search) {
			return true
		}
	}
	return false
}

type MemoryMessageRepo struct {
	mu   sync.Mutex
	byID map[string]model.ScheduledMessage
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{byID: make(map[string]model.ScheduledMessage)}
}

func (r *MemoryMessageRepo) Insert(ctx context.Context, m model.ScheduledMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = m
	return nil
}

func (r *MemoryMessageRepo) Get(ctx context.Context, id string) (model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return model.ScheduledMessage{}, model.ErrNotFound
	}
	return m, nil
}

func (r *MemoryMessageRepo) DeletePending(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	if m.Status != model.Pending || m.Claimed() {
		return &model.InvalidStateError{ID: id, Op: "cancel", Status: m.Status}
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryMessageRepo) Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.ScheduledMessage
	for _, m := range r.byID {
		if m.Status != model.Pending || m.Claimed() || m.ScheduledAt.After(now) {
			continue
		}
		out = append(out, m)
	}
	sortByScheduledAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryMessageRepo) Claim(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	if m.Status != model.Pending || m.Claimed() {
		return &model.InvalidStateError{ID: id, Op: "claim", Status: m.Status}
	}
	t := at
	m.ClaimedAt = &t
	r.byID[id] = m
	return nil
}

func (r *MemoryMessageRepo) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	if m.Status != model.Pending || !m.Claimed() {
		return &model.InvalidStateError{ID: id, Op: "release", Status: m.Status}
	}
	m.ClaimedAt = nil
	r.byID[id] = m
	return nil
}

func (r *MemoryMessageRepo) Finish(ctx context.Context, id string, status model.Status, at time.Time, out model.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	if m.Status != model.Pending {
		return &model.InvalidStateError{ID: id, Op: "mark " + string(status), Status: m.Status}
	}
	t := at
	m.Status = status
	m.SentAt = &t
	m.Recipients = out.Recipients
	m.Delivered = out.Delivered
	if out.Error != "" {
		e := out.Error
		m.LastError = &e
	}
	r.byID[id] = m
	return nil
}

func (r *MemoryMessageRepo) List(ctx context.Context, f MessageFilter) ([]model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.ScheduledMessage
	for _, m := range r.byID {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		out = append(out, m)
	}
	sortByScheduledAt(out)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortByScheduledAt(ms []model.ScheduledMessage) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

type MemoryContactDirectory struct {
	mu       sync.RWMutex
	contacts []model.Contact
}

func NewMemoryContactDirectory(contacts ...model.Contact) *MemoryContactDirectory {
	return &MemoryContactDirectory{contacts: append([]model.Contact(nil), contacts...)}
}

func (d *MemoryContactDirectory) Add(c model.Contact) {
	d.mu.Lock()
	d.contacts = append(d.contacts, c)
	d.mu.Unlock()
}

func (d *MemoryContactDirectory) ListContacts(ctx context.Context) ([]model.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.Contact(nil), d.contacts...), nil
}

func (d *MemoryContactDirectory) GetContact(ctx context.Context, id string) (model.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Contact{}, model.ErrNotFound
}
