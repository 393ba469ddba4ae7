package jobs

import (
	"context"

	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Worker consumes report tasks from a Pub/Sub subscription and drives the
// processor. Runs as its own process so a crash mid-report leaves the API
// untouched and the job row queryable.
type Worker struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	processor    *Processor
	log          logger.Logger
}

// NewWorker connects the worker to its subscription.
func NewWorker(ctx context.Context, projectID, subscriptionID string, credentialsJSON []byte, processor *Processor, log logger.Logger) (*Worker, error) {
	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryJob, apperrors.CodeDispatchFailed, "pubsub client")
	}
	sub := client.Subscription(subscriptionID)
	// One report at a time: builds are memory-heavy and the engine holds a
	// run lock anyway.
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	return &Worker{
		client:       client,
		subscription: sub,
		processor:    processor,
		log:          log.WithComponent("worker"),
	}, nil
}

// Run blocks receiving tasks until the context is cancelled. A malformed
// payload is acked and dropped; a processing failure is also acked because
// the failure is already recorded on the job row and a redelivery would
// just fail the same way.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker receiving")
	return w.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		task, err := UnmarshalTask(msg.Data)
		if err != nil {
			w.log.WithError(err).Error("dropping malformed task payload")
			msg.Ack()
			return
		}
		if err := w.processor.Process(ctx, task); err != nil {
			w.log.WithError(err).WithField("job_id", task.JobID).Error("task failed")
		}
		msg.Ack()
	})
}

// Close releases the Pub/Sub client.
func (w *Worker) Close() error {
	return w.client.Close()
}
