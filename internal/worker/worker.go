package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"codform/internal/config"
	"codform/internal/events"
	"codform/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Processor applies one decoded event.
type Processor interface {
	Process(ctx context.Context, ev events.Event) error
}

// MessageReader is the part of kafka.Reader the worker uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Worker struct {
	logger    *logger.Logger
	reader    MessageReader
	processor Processor
	timeout   time.Duration
}

func New(cfg *config.Config, logger *logger.Logger, processor Processor) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokerList(),
		GroupID:        cfg.KafkaGroupID,
		Topic:          cfg.KafkaTopic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return NewWithReader(reader, logger, processor)
}

func NewWithReader(reader MessageReader, logger *logger.Logger, processor Processor) *Worker {
	return &Worker{
		logger:    logger,
		reader:    reader,
		processor: processor,
		timeout:   time.Minute,
	}
}

// Start consumes events until ctx is cancelled. A message is committed once
// handled, failed or not: order sync failures are recorded on the order.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started, listening for events...")

	for {
		message, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				w.logger.Info("Worker stopped")
				return
			}
			w.logger.Error("Failed to read message: %v", err)
			continue
		}

		w.handle(ctx, message)

		if err := w.reader.CommitMessages(ctx, message); err != nil && ctx.Err() == nil {
			w.logger.Error("Failed to commit offset %d: %v", message.Offset, err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, message kafka.Message) {
	w.logger.Debug("Received message: %s", string(message.Value))

	var event events.Event
	if err := json.Unmarshal(message.Value, &event); err != nil {
		w.logger.Error("Failed to parse event: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.processor.Process(ctx, event); err != nil {
		w.logger.Error("Failed to process %s: %v", event.Type, err)
		return
	}

	w.logger.Debug("Event processed successfully")
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	if err := w.reader.Close(); err != nil {
		w.logger.Error("Failed to close reader: %v", err)
	}
}
