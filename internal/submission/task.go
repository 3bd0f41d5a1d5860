// Package submission hands computed payloads to the back-office backend
// through an asynq queue so API requests never block on the collaborator.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/noah-isme/backoffice-pricing/internal/obs"
)

// Kind identifies what is being submitted.
type Kind string

const (
	// KindInvoice carries a sales invoice payload.
	KindInvoice Kind = "invoice"
	// KindLiquidation carries a liquidation confirmation payload.
	KindLiquidation Kind = "liquidation"
)

// TaskType returns the asynq task type for kind.
func (k Kind) TaskType() string { return "submission:" + string(k) }

// ErrDuplicate is returned when a submission with the same key is already queued.
var ErrDuplicate = errors.New("submission: already queued")

// Envelope is the queued unit of work.
type Envelope struct {
	Kind           Kind            `json:"kind"`
	Path           string          `json:"path"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ActingUserID   string          `json:"actingUserId"`
	Body           json.RawMessage `json:"body"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
}

// Receipt acknowledges a queued submission.
type Receipt struct {
	TaskID string `json:"taskId"`
	Kind   Kind   `json:"kind"`
	Queue  string `json:"queue"`
}

// NewEnvelope marshals body and fills defaults. An empty idempotency key gets
// a random one.
func NewEnvelope(kind Kind, path, idempotencyKey, actingUserID string, body any) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	return Envelope{
		Kind:           kind,
		Path:           path,
		IdempotencyKey: key,
		ActingUserID:   actingUserID,
		Body:           raw,
		EnqueuedAt:     time.Now().UTC(),
	}, nil
}

// Enqueuer queues envelopes for forwarding.
type Enqueuer interface {
	Enqueue(ctx context.Context, env Envelope) (Receipt, error)
}

// TaskClient is the subset of *asynq.Client used by AsynqEnqueuer.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Canceller withdraws a task that Enqueue accepted.
type Canceller interface {
	Cancel(ctx context.Context, r Receipt) error
}

// TaskInspector is the subset of *asynq.Inspector used by AsynqEnqueuer.
type TaskInspector interface {
	DeleteTask(queue, id string) error
}

// AsynqEnqueuer queues envelopes on Redis via asynq. The idempotency key is
// the task ID, so a replayed submission is rejected while the first one is
// still retained.
type AsynqEnqueuer struct {
	Client    TaskClient
	Inspector TaskInspector
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Enqueue implements Enqueuer.
func (e AsynqEnqueuer) Enqueue(ctx context.Context, env Envelope) (Receipt, error) {
	if e.Client == nil {
		return Receipt{}, errors.New("submission: task client not configured")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal envelope: %w", err)
	}
	queue := e.Queue
	if queue == "" {
		queue = "submissions"
	}
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 10
	}
	retention := e.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	taskID := string(env.Kind) + ":" + env.IdempotencyKey
	info, err := e.Client.EnqueueContext(ctx, asynq.NewTask(env.Kind.TaskType(), payload),
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(taskID),
		asynq.Retention(retention),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			obs.CountSubmission(string(env.Kind), "duplicate")
			return Receipt{}, ErrDuplicate
		}
		obs.CountSubmission(string(env.Kind), "error")
		return Receipt{}, fmt.Errorf("enqueue %s: %w", env.Kind, err)
	}
	obs.CountSubmission(string(env.Kind), "queued")
	return Receipt{TaskID: info.ID, Kind: env.Kind, Queue: info.Queue}, nil
}

// Cancel deletes a queued task. A task that no longer exists is not an error.
func (e AsynqEnqueuer) Cancel(_ context.Context, r Receipt) error {
	if e.Inspector == nil {
		return errors.New("submission: task inspector not configured")
	}
	err := e.Inspector.DeleteTask(r.Queue, r.TaskID)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel %s: %w", r.TaskID, err)
	}
	obs.CountSubmission(string(r.Kind), "cancelled")
	return nil
}
