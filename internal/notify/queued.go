package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"gradportal/internal/metrics"
	"gradportal/internal/queue"
)

// Queued hands notices to the work queue. Delivery happens in cmd/worker.
type Queued struct {
	q queue.Queue
}

// NewQueued creates a queue-backed notifier.
func NewQueued(q queue.Queue) *Queued {
	return &Queued{q: q}
}

func (n *Queued) Enabled() bool { return n.q != nil }

func (n *Queued) Notify(ctx context.Context, notice Notice) (Delivery, error) {
	msg, err := queue.NewMessage(MessageType, notice)
	if err != nil {
		return "", err
	}
	if err := n.q.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("enqueue notification: %w", err)
	}
	return DeliveryQueued, nil
}

// Worker drains queued notices and sends them, re-enqueueing failures until
// maxAttempts deliveries were tried.
type Worker struct {
	q           queue.Queue
	sender      Sender
	maxAttempts int
	logger      *zap.Logger
}

// NewWorker creates a worker. maxAttempts below 1 means a single try.
func NewWorker(q queue.Queue, sender Sender, maxAttempts int, logger *zap.Logger) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{q: q, sender: sender, maxAttempts: maxAttempts, logger: logger}
}

// Run blocks until ctx is cancelled and the queue channel closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for msg := range messages {
		w.Handle(ctx, msg)
	}
	return nil
}

// Handle processes one message.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	log := w.logger.With(zap.String("message_id", msg.ID), zap.Int("attempt", msg.Attempt+1))
	if msg.Type != MessageType {
		log.Warn("skipping unknown message type", zap.String("type", msg.Type))
		return
	}
	var notice Notice
	if err := json.Unmarshal(msg.Body, &notice); err != nil {
		log.Error("dropping undecodable notification", zap.Error(err))
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return
	}
	log = log.With(zap.String("rollno", notice.RollNo))

	err := w.sender.Send(ctx, notice)
	if err == nil {
		metrics.Notifications.WithLabelValues("sent").Inc()
		log.Info("registration email sent", zap.String("to", notice.To))
		return
	}

	msg.Attempt++
	if msg.Attempt >= w.maxAttempts {
		metrics.Notifications.WithLabelValues("failed").Inc()
		log.Error("registration email failed permanently", zap.Error(err))
		return
	}
	log.Warn("registration email failed, re-enqueueing", zap.Error(err))
	if perr := w.q.Publish(ctx, msg); perr != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		log.Error("re-enqueue failed", zap.Error(perr))
	}
}
