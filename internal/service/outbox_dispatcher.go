package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/domain"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
	"golang.org/x/sync/errgroup"
)

type DispatchReport struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Dead    int `json:"dead"`
}

type OutboxDispatcherOptions struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Lease        time.Duration
}

func OutboxDispatcherOptionsFromConfig(cfg *config.Config) OutboxDispatcherOptions {
	return OutboxDispatcherOptions{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		Concurrency:  cfg.OutboxConcurrency,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		BaseDelay:    cfg.OutboxRetryBaseDelay,
		MaxDelay:     cfg.OutboxRetryMaxDelay,
		Lease:        cfg.OutboxLease,
	}
}

// OutboxDispatcher delivers committed outbox rows through a Mailer.
type OutboxDispatcher struct {
	repo   repository.OutboxRepository
	mailer Mailer
	signal OutboxSignal
	opts   OutboxDispatcherOptions
	logger *slog.Logger
	now    func() time.Time
}

func NewOutboxDispatcher(repo repository.OutboxRepository, mailer Mailer, signal OutboxSignal, opts OutboxDispatcherOptions, logger *slog.Logger) *OutboxDispatcher {
	if signal == nil {
		signal = NoopOutboxSignal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = time.Minute
	}
	return &OutboxDispatcher{
		repo:   repo,
		mailer: mailer,
		signal: signal,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run dispatches until ctx is cancelled. It wakes on the poll interval and on
// every signal from the outbox channel.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	wake := d.signal.Subscribe(ctx)

	d.logger.Info("outbox dispatcher started",
		"poll_interval", d.opts.PollInterval.String(),
		"concurrency", d.opts.Concurrency,
	)
	for {
		if _, err := d.DispatchOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// DispatchOnce claims one batch of due messages and attempts each once.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (DispatchReport, error) {
	now := d.now()
	claimed, err := d.repo.ClaimDue(ctx, now, d.opts.BatchSize, d.opts.Lease)
	if err != nil {
		return DispatchReport{}, err
	}
	observability.RecordOutboxBatch(ctx, len(claimed))
	report := DispatchReport{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return report, nil
	}

	var sent, retried, dead atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i := range claimed {
		msg := claimed[i]
		g.Go(func() error {
			outcome, err := d.deliver(gctx, msg)
			switch outcome {
			case domain.OutboxStatusSent:
				sent.Add(1)
			case domain.OutboxStatusDead:
				dead.Add(1)
			default:
				retried.Add(1)
			}
			return err
		})
	}
	err = g.Wait()
	report.Sent = int(sent.Load())
	report.Retried = int(retried.Load())
	report.Dead = int(dead.Load())
	return report, err
}

// deliver returns the resulting status. Mail failures are recorded on the row
// and are not errors; only bookkeeping failures are.
func (d *OutboxDispatcher) deliver(ctx context.Context, msg domain.OutboxMessage) (string, error) {
	start := time.Now()
	sendErr := d.mailer.Send(ctx, msg.Recipient, msg.Subject, msg.HTMLBody)
	elapsed := time.Since(start)

	if sendErr == nil {
		observability.RecordOutboxDelivery(ctx, msg.Kind, "sent", elapsed)
		if err := d.repo.MarkSent(ctx, msg.ID, d.now()); err != nil {
			d.logger.ErrorContext(ctx, "outbox mark sent failed", "message_id", msg.ID, "error", err)
			return domain.OutboxStatusSent, err
		}
		d.logger.InfoContext(ctx, "outbox message delivered",
			"message_id", msg.ID,
			"kind", msg.Kind,
			"account_id", msg.AccountID,
			"attempt", msg.Attempts+1,
		)
		return domain.OutboxStatusSent, nil
	}

	attempts := msg.Attempts + 1
	isDead := attempts >= d.opts.MaxAttempts
	outcome := "retry"
	status := domain.OutboxStatusPending
	if isDead {
		outcome = "dead"
		status = domain.OutboxStatusDead
	}
	observability.RecordOutboxDelivery(ctx, msg.Kind, outcome, elapsed)
	next := d.now().Add(RetryDelay(attempts, d.opts.BaseDelay, d.opts.MaxDelay))
	d.logger.WarnContext(ctx, "outbox delivery failed",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"attempt", attempts,
		"dead", isDead,
		"next_attempt_at", next,
		"error", sendErr,
	)
	if err := d.repo.MarkFailed(ctx, msg.ID, attempts, next, sendErr.Error(), isDead); err != nil {
		return status, err
	}
	return status, nil
}

func (d *OutboxDispatcher) Stats(ctx context.Context) (domain.OutboxStats, error) {
	return d.repo.Stats(ctx)
}

// DeadLetters lists messages that exhausted their attempt budget.
func (d *OutboxDispatcher) DeadLetters(ctx context.Context, page, pageSize int) (repository.PageResult[domain.OutboxMessage], error) {
	return d.repo.ListByStatus(ctx, domain.OutboxStatusDead, repository.PageRequest{Page: page, PageSize: pageSize})
}

func (d *OutboxDispatcher) Requeue(ctx context.Context, id string) error {
	if err := d.repo.Requeue(ctx, id, d.now()); err != nil {
		return err
	}
	_ = d.signal.Publish(ctx)
	return nil
}

// RetryDelay doubles base for each attempt after the first, capped at maxDelay.
func RetryDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}
