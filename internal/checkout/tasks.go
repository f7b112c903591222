package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-pdv/internal/resilience"
)

const (
	// TypeCreditApply retries the second phase of one sale.
	TypeCreditApply = "credit:apply"
	// TypeCreditSweep re-queues adjustments left pending.
	TypeCreditSweep = "credit:sweep"
)

type creditApplyPayload struct {
	AdjustmentID string `json:"adjustmentId"`
}

// NewCreditApplyTask builds the retry task for adjustmentID.
func NewCreditApplyTask(adjustmentID string) (*asynq.Task, error) {
	if adjustmentID == "" {
		return nil, errors.New("adjustment id is required")
	}
	payload, err := json.Marshal(creditApplyPayload{AdjustmentID: adjustmentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCreditApply, payload), nil
}

// NewCreditSweepTask builds the periodic sweep task.
func NewCreditSweepTask() *asynq.Task {
	return asynq.NewTask(TypeCreditSweep, nil)
}

// AsynqScheduler queues credit retries on asynq.
type AsynqScheduler struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
	Delay    time.Duration
	// UniqueFor stops the same adjustment being queued twice while a retry is waiting.
	UniqueFor time.Duration
}

// EnqueueCreditRetry satisfies RetryScheduler. A retry that is already queued counts as success.
func (a AsynqScheduler) EnqueueCreditRetry(ctx context.Context, adjustmentID string) error {
	if a.Client == nil {
		return errors.New("asynq client not configured")
	}
	task, err := NewCreditApplyTask(adjustmentID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(a.maxRetry()), asynq.ProcessIn(a.delay())}
	if a.Queue != "" {
		opts = append(opts, asynq.Queue(a.Queue))
	}
	if a.UniqueFor > 0 {
		opts = append(opts, asynq.Unique(a.UniqueFor))
	}
	_, err = a.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (a AsynqScheduler) maxRetry() int {
	if a.MaxRetry <= 0 {
		return 10
	}
	return a.MaxRetry
}

func (a AsynqScheduler) delay() time.Duration {
	if a.Delay <= 0 {
		return 5 * time.Second
	}
	return a.Delay
}

// TaskHandler runs credit tasks inside the worker.
type TaskHandler struct {
	Svc        *Service
	SweepLimit int
}

// Register mounts the credit handlers on mux.
func (h TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCreditApply, h.HandleCreditApply)
	mux.HandleFunc(TypeCreditSweep, h.HandleCreditSweep)
}

// HandleCreditApply applies a pending adjustment. Malformed payloads are not retried.
func (h TaskHandler) HandleCreditApply(ctx context.Context, t *asynq.Task) error {
	var p creditApplyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.AdjustmentID == "" {
		return fmt.Errorf("decode %s payload: %w", TypeCreditApply, asynq.SkipRetry)
	}
	if err := h.Svc.RetryCredit(ctx, p.AdjustmentID); err != nil {
		if errors.Is(err, ErrAdjustmentNotFound) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// HandleCreditSweep re-queues stale pending adjustments.
func (h TaskHandler) HandleCreditSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := h.Svc.SweepPending(ctx, h.SweepLimit)
	if n > 0 {
		h.Svc.Logger.Info().Int("queued", n).Msg("credit sweep")
	}
	return err
}

// RetryDelay backs credit retries off exponentially from base, capped at max.
// Other task types keep asynq's default schedule.
func RetryDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if t.Type() != TypeCreditApply {
			return asynq.DefaultRetryDelayFunc(n, err, t)
		}
		if n > 16 {
			n = 16
		}
		d := resilience.Backoff(base, n+1, 0.2)
		if max > 0 && d > max {
			d = max
		}
		return d
	}
}
