package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskClient is the subset of *asynq.Client used by Enqueuer.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules background reconciliations. It satisfies payment.Retrier.
type Enqueuer struct {
	Client   TaskClient
	Queue    string
	Delay    time.Duration
	MaxRetry int
}

// EnqueueReconcile schedules a reconcile for paymentID. A task already queued
// for the same payment is treated as success.
func (e Enqueuer) EnqueueReconcile(ctx context.Context, paymentID string) error {
	if e.Client == nil {
		return errors.New("jobs: task client not configured")
	}
	task, err := NewReconcileTask(paymentID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(TaskID(paymentID))}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(e.Delay))
	}
	_, err = e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jobs: enqueue reconcile: %w", err)
	}
	return nil
}
