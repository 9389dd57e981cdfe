package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"telehealth/internal/config"
	"telehealth/internal/models"
	"telehealth/internal/services"
	"telehealth/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// CompletionProducer publishes appointment completions that failed inline.
type CompletionProducer struct {
	writer *kafka.Writer
}

func NewCompletionProducer(cfg config.KafkaConfig) *CompletionProducer {
	return &CompletionProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.CompletionTopic,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Enqueue keys by appointment id so retries for one appointment stay ordered.
func (p *CompletionProducer) Enqueue(ctx context.Context, job services.CompletionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.AppointmentID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("%w: completion queue: %v", models.ErrUnavailable, err)
	}

	logger.WithFields(map[string]interface{}{
		"appointment_id": job.AppointmentID,
		"attempt":        job.Attempt,
	}).Info("Appointment completion queued for retry")
	return nil
}

func (p *CompletionProducer) Close() error {
	return p.writer.Close()
}

// Completer is the appointment side of the retry worker.
type Completer interface {
	MarkCompleted(ctx context.Context, id string, at time.Time) error
}

// CompletionWorker drains the retry topic. A job that fails again is
// republished with the attempt count bumped until MaxAttempts is reached.
type CompletionWorker struct {
	reader      *kafka.Reader
	completer   Completer
	requeue     services.CompletionRetryQueue
	maxAttempts int
	backoff     time.Duration
}

func NewCompletionWorker(cfg config.KafkaConfig, completer Completer, requeue services.CompletionRetryQueue) *CompletionWorker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.CompletionTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        500 * time.Millisecond,
	})
	return &CompletionWorker{
		reader:      reader,
		completer:   completer,
		requeue:     requeue,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
	}
}

// Run blocks until ctx is cancelled.
func (w *CompletionWorker) Run(ctx context.Context) {
	defer w.reader.Close()

	for {
		m, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				logger.Info("Completion worker stopped")
				return
			}
			logger.WithError(err).Warn("Error reading completion retry message")
			continue
		}

		var job services.CompletionJob
		if err := json.Unmarshal(m.Value, &job); err != nil {
			logger.WithError(err).Error("Dropping malformed completion job")
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one retry attempt for job.
func (w *CompletionWorker) Process(ctx context.Context, job services.CompletionJob) {
	if w.backoff > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.backoff * time.Duration(job.Attempt)):
		}
	}

	fields := map[string]interface{}{
		"appointment_id": job.AppointmentID,
		"room_id":        job.RoomID,
		"attempt":        job.Attempt,
	}

	err := w.completer.MarkCompleted(ctx, job.AppointmentID, job.EndedAt)
	if err == nil {
		logger.WithFields(fields).Info("Appointment completed on retry")
		return
	}
	if !models.IsRetryable(err) || job.Attempt >= w.maxAttempts {
		logger.LogError(err, "Giving up on appointment completion", fields)
		return
	}

	job.Attempt++
	job.LastError = err.Error()
	if qerr := w.requeue.Enqueue(ctx, job); qerr != nil {
		logger.LogError(qerr, "Failed to requeue appointment completion", fields)
	}
}
