package events

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go.uber.org/zap"
)

const (
	pollInterval = 5 * time.Second
	pollBatch    = 100
	maxAttempts  = 10
)

// Poller drains the outbox and hands events to the notifier.
type Poller struct {
	db       *gorm.DB
	log      *zap.Logger
	notifier Notifier

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(db *gorm.DB, log *zap.Logger, notifier Notifier) *Poller {
	return &Poller{
		db:       db,
		log:      log.Named("events.poller"),
		notifier: notifier,
	}
}

func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.log.Warn("events.poller.drain_failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce delivers one batch of pending events. Exported so tests and
// the operator endpoint can pump the outbox without the ticker.
func (p *Poller) DrainOnce(ctx context.Context) error {
	var batch []OutboxEvent
	err := p.db.WithContext(ctx).Raw(
		`SELECT id, topic, dedupe_key, payload, status, attempts, created_at, published_at
		 FROM outbox_events
		 WHERE status = ? AND attempts < ?
		 ORDER BY id
		 LIMIT ?`,
		EventStatusPending,
		maxAttempts,
		pollBatch,
	).Scan(&batch).Error
	if err != nil {
		return err
	}

	var errs []error
	for _, event := range batch {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
			if updateErr := p.db.WithContext(ctx).Exec(
				`UPDATE outbox_events SET attempts = attempts + 1 WHERE id = ?`,
				event.ID,
			).Error; updateErr != nil {
				errs = append(errs, updateErr)
			}
			continue
		}
		if err := p.db.WithContext(ctx).Exec(
			`UPDATE outbox_events SET status = ?, published_at = ? WHERE id = ?`,
			EventStatusPublished,
			time.Now().UTC(),
			event.ID,
		).Error; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier is the default sink. Real deployments swap in email or push
// delivery behind the same interface.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) Notifier {
	return &LogNotifier{log: log.Named("events.notify")}
}

func (n *LogNotifier) Notify(_ context.Context, event OutboxEvent) error {
	n.log.Info("events.delivered",
		zap.String("topic", event.Topic),
		zap.String("dedupe_key", event.DedupeKey),
	)
	return nil
}
