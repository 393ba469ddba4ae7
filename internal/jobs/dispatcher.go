package jobs

import (
	"context"
	"sync"

	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Dispatcher hands a task off for asynchronous execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *Task) error
	Close() error
}

// PubSubDispatcher publishes tasks to a Pub/Sub topic consumed by a
// separate worker process. This keeps memory-heavy report builds out of the
// request-serving process.
type PubSubDispatcher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	log    logger.Logger
}

// NewPubSubDispatcher connects to Pub/Sub. credentialsJSON may be empty to
// use ambient credentials.
func NewPubSubDispatcher(ctx context.Context, projectID, topicID string, credentialsJSON []byte, log logger.Logger) (*PubSubDispatcher, error) {
	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryJob, apperrors.CodeDispatchFailed, "pubsub client")
	}
	return &PubSubDispatcher{
		client: client,
		topic:  client.Topic(topicID),
		log:    log.WithComponent("dispatcher"),
	}, nil
}

// Dispatch publishes the task and waits for the server acknowledgement, so
// a publish failure is visible to the request that created the job.
func (d *PubSubDispatcher) Dispatch(ctx context.Context, task *Task) error {
	data, err := task.Marshal()
	if err != nil {
		return err
	}
	result := d.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return apperrors.JobError(apperrors.CodeDispatchFailed, task.JobID, err)
	}
	d.log.WithField("job_id", task.JobID).Info("task published")
	return nil
}

// Close stops the topic's publish goroutines and the client.
func (d *PubSubDispatcher) Close() error {
	d.topic.Stop()
	return d.client.Close()
}

// LocalDispatcher runs tasks on in-process goroutines. The single-binary
// deployment mode, and the fallback when no Pub/Sub topic is configured.
type LocalDispatcher struct {
	processor *Processor
	log       logger.Logger
	wg        sync.WaitGroup
}

// NewLocalDispatcher creates an in-process dispatcher.
func NewLocalDispatcher(processor *Processor, log logger.Logger) *LocalDispatcher {
	return &LocalDispatcher{processor: processor, log: log.WithComponent("dispatcher")}
}

// Dispatch starts the task on a goroutine. The task's outcome lands on the
// job row, not on this call.
func (d *LocalDispatcher) Dispatch(_ context.Context, task *Task) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Detached from the request context: the job outlives the request.
		if err := d.processor.Process(context.Background(), task); err != nil {
			d.log.WithError(err).WithField("job_id", task.JobID).Error("task failed")
		}
	}()
	return nil
}

// Close waits for in-flight tasks to finish.
func (d *LocalDispatcher) Close() error {
	d.wg.Wait()
	return nil
}
