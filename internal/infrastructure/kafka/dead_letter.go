package kafka

import (
	"context"
	"strconv"
	"time"

	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/events"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderDLQReason   = "dlq-reason"
	HeaderDLQAttempts = "dlq-attempts"
	HeaderDLQFailedAt = "dlq-failed-at"
)

// DeadLetterWriter sends exhausted events to "<topic><suffix>" with the failure in headers.
type DeadLetterWriter struct {
	writer Writer
	suffix string
}

var _ domoutbox.DeadLetterSink = (*DeadLetterWriter)(nil)

func NewDeadLetterWriter(w Writer, suffix string) *DeadLetterWriter {
	if suffix == "" {
		suffix = ".dlq"
	}
	return &DeadLetterWriter{writer: w, suffix: suffix}
}

func (d *DeadLetterWriter) DeadLetter(ctx context.Context, dl domoutbox.DeadLetter) error {
	return d.writer.WriteMessages(ctx, kafka.Message{
		Topic: dl.Topic + d.suffix,
		Key:   []byte(dl.Key),
		Value: dl.Payload,
		Headers: []kafka.Header{
			{Key: events.HeaderEventID, Value: []byte(dl.EventID)},
			{Key: events.HeaderTopic, Value: []byte(dl.Topic)},
			{Key: HeaderDLQReason, Value: []byte(dl.Reason)},
			{Key: HeaderDLQAttempts, Value: []byte(strconv.Itoa(dl.Attempts))},
			{Key: HeaderDLQFailedAt, Value: []byte(dl.FailedAt.Format(time.RFC3339Nano))},
		},
	})
}
