package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/service/transfer"
)

// Retrier re-drives transfers left pending.
type Retrier interface {
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error)
	Retry(ctx context.Context, transferID uuid.UUID, actor string) (*domain.Transfer, error)
}

// Purger removes expired rows, such as stored idempotent responses.
type Purger interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// Jobs adapts the driver, the retry pass and housekeeping to cron's func()
// signature.
type Jobs struct {
	driver      *Driver
	retrier     Retrier
	purger      Purger
	clock       clock.Clock
	logger      *slog.Logger
	retryMinAge time.Duration
	retryBatch  int
}

func NewJobs(driver *Driver, retrier Retrier, clk clock.Clock, logger *slog.Logger, retryMinAge time.Duration, retryBatch int) *Jobs {
	return &Jobs{
		driver:      driver,
		retrier:     retrier,
		clock:       clk,
		logger:      logger,
		retryMinAge: retryMinAge,
		retryBatch:  max(retryBatch, 1),
	}
}

// WithPurger enables PurgeExpired.
func (j *Jobs) WithPurger(p Purger) *Jobs {
	j.purger = p
	return j
}

func (j *Jobs) SweepDueSchedules() {
	if _, err := j.driver.Sweep(context.Background()); err != nil {
		j.logger.Error("schedule sweep failed", "error", err)
	}
}

// RetryPendingTransfers re-executes transfers that have sat pending for at
// least the minimum age: external transfers whose settlement was unavailable
// and transfers that lost the race for their accounts.
func (j *Jobs) RetryPendingTransfers() {
	ctx := context.Background()
	olderThan := j.clock.Now().Add(-j.retryMinAge)

	pending, err := j.retrier.ListPending(ctx, olderThan, j.retryBatch)
	if err != nil {
		j.logger.Error("failed to list pending transfers", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	j.logger.Info("retrying pending transfers", "count", len(pending))

	var completed, stillPending, failed int
	for _, p := range pending {
		t, err := j.retrier.Retry(ctx, p.ID, transfer.ActorRetry)
		switch {
		case err == nil:
			completed++
		case errors.Is(err, domain.ErrTransferNotPending):
			// Cancelled or picked up elsewhere since the listing.
		case domain.IsRetryable(err):
			stillPending++
			j.logger.Info("transfer still pending", "transfer_id", p.ID, "error", err)
		default:
			failed++
			attrs := []any{"transfer_id", p.ID, "error", err}
			if t != nil {
				attrs = append(attrs, "status", t.Status)
			}
			j.logger.Warn("pending transfer retry did not complete", attrs...)
		}
	}

	j.logger.Info("pending transfer retry finished",
		"completed", completed,
		"still_pending", stillPending,
		"failed", failed,
	)
}

func (j *Jobs) PurgeExpired() {
	if j.purger == nil {
		return
	}
	n, err := j.purger.CleanExpired(context.Background())
	if err != nil {
		j.logger.Error("failed to purge expired idempotency keys", "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("purged expired idempotency keys", "count", n)
	}
}
