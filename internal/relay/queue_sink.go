package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeRelay = "relay:forward"
	QueueRelay    = "relay"
)

// RelayPayload is the asynq task body of a queued relay
type RelayPayload struct {
	Sink string `json:"sink"`
	URL  string `json:"url"`
	Body []byte `json:"body"`
}

// Enqueuer is the subset of *asynq.Client used by QueueSink
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands batches to the relay worker through asynq instead of
// posting them from the request path. Tasks are never retried.
type QueueSink struct {
	client Enqueuer
	sink   string
	url    string
}

func NewQueueSink(client Enqueuer, sink, url string) *QueueSink {
	return &QueueSink{client: client, sink: sink, url: url}
}

func (q *QueueSink) Send(ctx context.Context, body []byte) error {
	task, err := NewRelayTask(RelayPayload{Sink: q.sink, URL: q.url, Body: body})
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueRelay),
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue relay: %w", err)
	}
	return nil
}
