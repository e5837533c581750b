package notify

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/fernandezvara/gatekit"
)

// Config controls how tasks are enqueued.
type Config struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// AsynqNotifier implements gatekit.Notifier by enqueueing tasks that the
// worker delivers later. It never talks to the author directly.
type AsynqNotifier struct {
	client *asynq.Client
	shared bool
	opts   []asynq.Option
}

var _ gatekit.Notifier = (*AsynqNotifier)(nil)

// NewAsynqNotifier enqueues through an existing Redis client. The client
// stays owned by the caller.
func NewAsynqNotifier(rdb redis.UniversalClient, cfg Config) *AsynqNotifier {
	return &AsynqNotifier{
		client: asynq.NewClientFromRedisClient(rdb),
		shared: true,
		opts:   taskOptions(cfg),
	}
}

// NewAsynqNotifierFromOpt opens its own Redis connection.
func NewAsynqNotifierFromOpt(opt asynq.RedisConnOpt, cfg Config) *AsynqNotifier {
	return &AsynqNotifier{
		client: asynq.NewClient(opt),
		opts:   taskOptions(cfg),
	}
}

func taskOptions(cfg Config) []asynq.Option {
	queue := cfg.Queue
	if queue == "" {
		queue = QueueNotifications
	}
	opts := []asynq.Option{asynq.Queue(queue)}
	if cfg.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(cfg.MaxRetry))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(cfg.Timeout))
	}
	return opts
}

// NotifyApproval implements gatekit.Notifier.
func (n *AsynqNotifier) NotifyApproval(ctx context.Context, item gatekit.ContentRef, authorID, reviewerName string) error {
	task, err := NewReviewApprovedTask(ReviewPayload{Item: item, AuthorID: authorID, ReviewerName: reviewerName})
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, n.opts...)
	return err
}

// NotifyRejection implements gatekit.Notifier.
func (n *AsynqNotifier) NotifyRejection(ctx context.Context, item gatekit.ContentRef, authorID, reviewerName, feedback string) error {
	task, err := NewReviewRejectedTask(ReviewPayload{
		Item:         item,
		AuthorID:     authorID,
		ReviewerName: reviewerName,
		Feedback:     feedback,
	})
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, n.opts...)
	return err
}

// Close releases the client. A shared Redis client is left open.
func (n *AsynqNotifier) Close() error {
	if n.shared {
		return nil
	}
	return n.client.Close()
}
