package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Deliverer hands a rendered message to the author. Email, SMS and in-app
// delivery live behind it.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogDeliverer writes messages to the log. It is the default when no real
// channel is configured.
type LogDeliverer struct {
	Logger zerolog.Logger
}

// Deliver implements Deliverer.
func (d LogDeliverer) Deliver(_ context.Context, msg Message) error {
	d.Logger.Info().Str("user_id", msg.UserID).Str("subject", msg.Subject).Msg("notification delivered")
	return nil
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// Handlers returns the review task handlers delivering through d.
func Handlers(d Deliverer) []TaskHandler {
	return []TaskHandler{
		{Type: TaskReviewApproved, Handler: reviewHandler(d, ApprovalMessage)},
		{Type: TaskReviewRejected, Handler: reviewHandler(d, RejectionMessage)},
	}
}

// Register mounts the review handlers on mux.
func Register(mux *asynq.ServeMux, d Deliverer) {
	for _, h := range Handlers(d) {
		mux.HandleFunc(h.Type, h.Handler)
	}
}

// reviewHandler decodes a ReviewPayload and delivers the rendered message.
// Undecodable payloads are never retried.
func reviewHandler(d Deliverer, render func(ReviewPayload) Message) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReviewPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("notify: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		if payload.AuthorID == "" {
			return fmt.Errorf("notify: %s without author: %w", t.Type(), asynq.SkipRetry)
		}
		return d.Deliver(ctx, render(payload))
	}
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpt    asynq.RedisConnOpt
	Queue       string
	Concurrency int
	Deliverer   Deliverer
	Logger      zerolog.Logger
}

// Worker wraps the asynq server processing notification tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    zerolog.Logger
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.RedisOpt == nil {
		return nil, errors.New("notify: redis connection option required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = QueueNotifications
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	log := cfg.Logger.With().Str("component", "notify-worker").Logger()
	d := cfg.Deliverer
	if d == nil {
		d = LogDeliverer{Logger: log}
	}

	srv := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn().Err(err).Str("task", task.Type()).Msg("notification task failed")
		}),
	})
	mux := asynq.NewServeMux()
	Register(mux, d)

	return &Worker{server: srv, mux: mux, log: log}, nil
}

// Run starts processing tasks and blocks until ctx is cancelled, then
// waits for active tasks to finish.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("notify: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.log.Info().Msg("worker shutting down")
	w.server.Shutdown()
	return nil
}
