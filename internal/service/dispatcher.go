package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/LeventeLantos/bot-dispatch/internal/cache"
	"github.com/LeventeLantos/bot-dispatch/internal/clock"
	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

// DeliverySink hands a message to the actual transport.
type DeliverySink interface {
	Send(ctx context.Context, address, body string, attachments []model.Attachment) (remoteMessageID string, err error)
}

type ContactLister interface {
	ListContacts(ctx context.Context) ([]model.Contact, error)
}

// MessageStore is the slice of schedule.Store the dispatcher drives.
type MessageStore interface {
	DueMessages(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	Claim(ctx context.Context, id string, at time.Time) error
	Release(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string, at time.Time, out model.Outcome) error
	MarkFailed(ctx context.Context, id string, at time.Time, out model.Outcome) error
}

type DispatcherConfig struct {
	BatchSize   int
	SendTimeout time.Duration
	Concurrency int
}

type Dispatcher struct {
	store    MessageStore
	contacts ContactLister
	sink     DeliverySink
	receipts cache.DeliveryCache

	batchSize   int
	sendTimeout time.Duration
	// slots bounds messages in flight, sem bounds delivery attempts.
	slots *semaphore.Weighted
	sem   *semaphore.Weighted

	clock clock.Clock
	log   *slog.Logger
}

// TickSummary counts what one tick did.
type TickSummary struct {
	Due      int
	Claimed  int
	Sent     int
	Failed   int
	Released int
}

func NewDispatcher(store MessageStore, contacts ContactLister, sink DeliverySink, cfg DispatcherConfig) (*Dispatcher, error) {
	if store == nil || contacts == nil || sink == nil {
		return nil, errors.New("store, contacts and sink are required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be > 0")
	}
	if cfg.SendTimeout <= 0 {
		return nil, errors.New("send timeout must be > 0")
	}
	if cfg.Concurrency <= 0 {
		return nil, errors.New("concurrency must be > 0")
	}
	return &Dispatcher{
		store:       store,
		contacts:    contacts,
		sink:        sink,
		batchSize:   cfg.BatchSize,
		sendTimeout: cfg.SendTimeout,
		slots:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		sem:         semaphore.NewWeighted(int64(cfg.Concurrency)),
		clock:       clock.Real{},
		log:         slog.Default(),
	}, nil
}

func (d *Dispatcher) WithClock(c clock.Clock) *Dispatcher {
	d.clock = c
	return d
}

func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	d.log = l
	return d
}

// WithReceipts records every successful delivery in c.
func (d *Dispatcher) WithReceipts(c cache.DeliveryCache) *Dispatcher {
	d.receipts = c
	return d
}

// Tick dispatches every message due at the current clock reading, oldest
// first. A message is claimed only once a dispatch slot is free, so under
// backlog the oldest messages start first and a stopped tick leaves the
// rest of the batch pending. A message that cannot be claimed was taken or
// cancelled by someone else and is skipped.
func (d *Dispatcher) Tick(ctx context.Context) (TickSummary, error) {
	now := d.clock.Now()

	due, err := d.store.DueMessages(ctx, now, d.batchSize)
	if err != nil {
		return TickSummary{}, fmt.Errorf("fetch due messages: %w", err)
	}
	sum := TickSummary{Due: len(due)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, m := range due {
		if err := d.slots.Acquire(ctx, 1); err != nil {
			break
		}
		if err := d.store.Claim(ctx, m.ID, now); err != nil {
			d.slots.Release(1)
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, model.ErrInvalidState) || errors.Is(err, model.ErrNotFound) {
				d.log.Debug("message no longer claimable", "id", m.ID, "err", err)
			} else {
				d.log.Error("claim failed", "id", m.ID, "err", err)
			}
			continue
		}

		mu.Lock()
		sum.Claimed++
		mu.Unlock()

		g.Go(func() error {
			defer d.slots.Release(1)

			status := d.dispatch(ctx, m)
			mu.Lock()
			switch status {
			case model.Sent:
				sum.Sent++
			case model.Failed:
				sum.Failed++
			case model.Pending:
				sum.Released++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		d.log.Info("dispatch tick interrupted",
			"due", sum.Due, "claimed", sum.Claimed, "released", sum.Released)
	} else if sum.Due > 0 {
		d.log.Info("dispatch tick",
			"due", sum.Due, "claimed", sum.Claimed, "sent", sum.Sent, "failed", sum.Failed)
	}
	return sum, nil
}

// dispatch delivers one claimed message and records the result. It returns
// the terminal status written, model.Pending when the claim was handed back
// because no attempt was made, or "" when the write itself failed.
func (d *Dispatcher) dispatch(ctx context.Context, m model.ScheduledMessage) model.Status {
	out, attempted := d.deliver(ctx, m)

	// The claim is already held; finish the row even if the tick is being
	// cancelled so it does not stay claimed forever.
	markCtx := context.WithoutCancel(ctx)

	if attempted == 0 && ctx.Err() != nil {
		if err := d.store.Release(markCtx, m.ID); err != nil {
			d.log.Error("release claim failed", "id", m.ID, "err", err)
			return ""
		}
		d.log.Info("dispatch stopped before sending, claim released", "id", m.ID)
		return model.Pending
	}

	at := d.clock.Now()
	status := model.Sent
	mark := d.store.MarkSent
	if out.Delivered == 0 {
		status = model.Failed
		mark = d.store.MarkFailed
	}

	if err := mark(markCtx, m.ID, at, out); err != nil {
		d.log.Error("mark terminal status failed", "id", m.ID, "status", status, "err", err)
		return ""
	}
	if status == model.Failed {
		d.log.Warn("message failed", "id", m.ID, "mode", m.Mode, "recipients", out.Recipients, "reason", out.Error)
	}
	return status
}

// deliver sends m to its recipients and reports how many attempts were
// actually made.
func (d *Dispatcher) deliver(ctx context.Context, m model.ScheduledMessage) (model.Outcome, int) {
	var recipients []model.Contact
	switch m.Mode {
	case model.Single:
		recipients = []model.Contact{{ID: m.ContactID, Address: m.TargetAddress}}
	case model.Broadcast:
		contacts, err := d.contacts.ListContacts(ctx)
		if err != nil {
			return model.Outcome{Error: fmt.Sprintf("list contacts: %v", err)}, 0
		}
		recipients = contacts
	default:
		return model.Outcome{Error: fmt.Sprintf("unknown delivery mode %q", m.Mode)}, 0
	}

	if len(recipients) == 0 {
		return model.Outcome{Error: "no recipients"}, 0
	}

	var (
		mu        sync.Mutex
		delivered int
		attempted int
		errs      []error
		g         errgroup.Group
	)
	for _, c := range recipients {
		g.Go(func() error {
			tried, err := d.sendOne(ctx, m, c)
			mu.Lock()
			defer mu.Unlock()
			if tried {
				attempted++
			}
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			delivered++
			return nil
		})
	}
	_ = g.Wait()

	out := model.Outcome{Recipients: len(recipients), Delivered: delivered}
	if len(errs) > 0 {
		out.Error = fmt.Sprintf("%d of %d deliveries failed: %v", len(errs), len(recipients), errs[0])
	}
	return out, attempted
}

// sendOne makes one delivery attempt. The bool reports whether the attempt
// happened; it is false when the tick was stopped first.
func (d *Dispatcher) sendOne(ctx context.Context, m model.ScheduledMessage, c model.Contact) (bool, error) {
	if c.Address == "" {
		return true, &model.DeliveryError{Address: c.ID, Err: errors.New("contact has no address")}
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return false, &model.DeliveryError{Address: c.Address, Err: err}
	}
	defer d.sem.Release(1)
	if err := ctx.Err(); err != nil {
		return false, &model.DeliveryError{Address: c.Address, Err: err}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	remoteID, err := d.sink.Send(sendCtx, c.Address, m.Body, nil)
	if err != nil {
		d.log.Warn("delivery attempt failed", "id", m.ID, "address", c.Address, "err", err)
		return true, &model.DeliveryError{Address: c.Address, Err: err}
	}

	if d.receipts != nil {
		if err := d.receipts.StoreDelivered(context.WithoutCancel(ctx), m.ID, c.Address, remoteID, d.clock.Now()); err != nil {
			d.log.Warn("store delivery receipt failed", "id", m.ID, "address", c.Address, "err", err)
		}
	}
	return true, nil
}
