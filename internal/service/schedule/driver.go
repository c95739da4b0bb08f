package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/recurrence"
	"github.com/josh-kwaku/transfer-engine/internal/service/transfer"
)

type Submitter interface {
	Submit(ctx context.Context, req transfer.Request) (*domain.Transfer, error)
}

// SweepResult counts what one sweep did with the schedules it found due.
type SweepResult struct {
	Due       int
	Succeeded int
	Failed    int
	Skipped   int
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (r *SweepResult) record(o outcome) {
	switch o {
	case outcomeSucceeded:
		r.Succeeded++
	case outcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

type Driver struct {
	store       Store
	transfers   Submitter
	clock       clock.Clock
	logger      *slog.Logger
	batchSize   int
	concurrency int
}

func NewDriver(store Store, transfers Submitter, clk clock.Clock, logger *slog.Logger, batchSize, concurrency int) *Driver {
	return &Driver{
		store:       store,
		transfers:   transfers,
		clock:       clk,
		logger:      logger,
		batchSize:   max(batchSize, 1),
		concurrency: max(concurrency, 1),
	}
}

// Sweep executes every active schedule due at now, up to the batch size.
//
// Each schedule is claimed by advancing it with a version-checked update
// before its transfer is submitted, so two sweeps racing on the same row
// submit it once. The schedule advances whatever the transfer outcome; a
// failed transfer is recorded on the transfer, not on the schedule.
func (d *Driver) Sweep(ctx context.Context) (SweepResult, error) {
	now := d.clock.Now()
	due, err := d.store.ListDueScheduledTransfers(ctx, now, d.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("Sweep: %w", err)
	}

	result := SweepResult{Due: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.concurrency)
	for i := range due {
		st := due[i]
		g.Go(func() error {
			o := d.run(ctx, &st, now)
			mu.Lock()
			result.record(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("schedule sweep finished",
		"due", result.Due,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

func (d *Driver) run(ctx context.Context, st *domain.ScheduledTransfer, now time.Time) outcome {
	log := d.logger.With("schedule_id", st.ID)
	ctx = logging.WithLogger(ctx, log)

	scheduledFor := st.NextExecutionDate
	req := requestFor(st, scheduledFor)

	if err := advance(st, now); err != nil {
		log.Error("cannot compute next execution date", "error", err)
		return outcomeSkipped
	}
	if err := d.store.UpdateScheduledTransfer(ctx, st); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Warn("schedule changed concurrently, skipping", "error", err)
		} else {
			log.Error("failed to advance schedule", "error", err)
		}
		return outcomeSkipped
	}

	t, err := d.transfers.Submit(ctx, req)
	if err != nil {
		attrs := []any{"scheduled_for", scheduledFor, "error", err}
		if t != nil {
			attrs = append(attrs, "transfer_id", t.ID, "transfer_status", t.Status)
		}
		log.Warn("scheduled transfer did not complete", attrs...)
		return outcomeFailed
	}

	log.Info("scheduled transfer executed",
		"transfer_id", t.ID,
		"transfer_status", t.Status,
		"scheduled_for", scheduledFor,
		"next_execution_date", st.NextExecutionDate,
		"schedule_status", st.Status,
	)
	return outcomeSucceeded
}

func requestFor(st *domain.ScheduledTransfer, scheduledFor time.Time) transfer.Request {
	id := st.ID
	return transfer.Request{
		SourceAccountID:     st.SourceAccountID,
		DestAccountID:       st.DestAccountID,
		DestAccountNumber:   st.DestAccountNumber,
		Type:                st.Type,
		Amount:              st.Amount,
		Currency:            st.Currency,
		Description:         st.Description,
		ScheduledTransferID: &id,
		ScheduledFor:        &scheduledFor,
		Actor:               transfer.ActorScheduler,
	}
}

// advance records an execution at now and moves the schedule to its next
// occurrence. The next date is computed from the previous next date, not
// from now, so a late sweep does not shift the cadence.
func advance(st *domain.ScheduledTransfer, now time.Time) error {
	prev := st.NextExecutionDate
	executed := now

	st.LastExecutionDate = &executed
	st.ExecutionCount++
	st.UpdatedAt = now

	if st.RecurrenceType == domain.RecurrenceOneTime {
		st.Status = domain.ScheduleStatusCompleted
		return nil
	}
	if st.MaxExecutions != nil && st.ExecutionCount >= *st.MaxExecutions {
		st.Status = domain.ScheduleStatusCompleted
		return nil
	}

	next, err := recurrence.Next(prev, st.RecurrenceType, st.RecurrenceDay)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	if st.EndDate != nil && next.After(*st.EndDate) {
		st.Status = domain.ScheduleStatusCompleted
		return nil
	}
	st.NextExecutionDate = next
	return nil
}
