package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/events"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

var ErrBusClosed = errors.New("kafka: bus closed")

const componentKafka = "kafka_bus"

// Config for the broker connection shared by writer and readers.
type Config struct {
	Brokers          []string
	GroupID          string
	DeadLetterSuffix string
	WriteTimeout     time.Duration
	MinBytes         int
	MaxBytes         int
	MaxWait          time.Duration
}

func (c Config) withDefaults() Config {
	if c.GroupID == "" {
		c.GroupID = "checkout"
	}
	if c.DeadLetterSuffix == "" {
		c.DeadLetterSuffix = ".dlq"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10e6
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	return c
}

// Reader is the subset of *kafka.Reader the consume loop needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer is the subset of *kafka.Writer used to publish.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory opens a consumer-group reader for topic.
type ReaderFactory func(topic, groupID string) Reader

type subscription struct {
	topic   string
	groupID string
	handler domoutbox.Handler
}

// Bus publishes events to Kafka and consumes them with at-least-once semantics:
// an offset is committed only after the handler succeeded or the message was
// dead-lettered to "<topic><suffix>".
type Bus struct {
	cfg        Config
	writer     Writer
	newReader  ReaderFactory
	dispatcher *events.Dispatcher
	log        observability.Logger

	mu      sync.Mutex
	subs    []subscription
	readers []Reader
	closed  atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

type Option func(*Bus)

// WithWriter replaces the default *kafka.Writer.
func WithWriter(w Writer) Option { return func(b *Bus) { b.writer = w } }

// WithReaderFactory replaces the default *kafka.Reader constructor.
func WithReaderFactory(f ReaderFactory) Option { return func(b *Bus) { b.newReader = f } }

func NewBus(cfg Config, dispatcher *events.Dispatcher, tel observability.Observability, opts ...Option) *Bus {
	cfg = cfg.withDefaults()
	b := &Bus{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        observability.Resolve(tel).Logger().With(observability.F("component", componentKafka)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.writer == nil {
		b.writer = NewWriter(cfg, tel)
	}
	if b.newReader == nil {
		b.newReader = func(topic, groupID string) Reader { return newReader(cfg, topic, groupID, b.log) }
	}
	return b
}

// NewWriter returns a synchronous, all-replica-ack writer that routes by message topic
// and partitions by key, so events of one order or product stay ordered.
func NewWriter(cfg Config, tel observability.Observability) *kafka.Writer {
	cfg = cfg.withDefaults()
	log := observability.Resolve(tel).Logger().With(observability.F("component", componentKafka))
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 10 * time.Millisecond,
		Transport: &kafka.Transport{
			Dial: (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error("kafka_writer_error", observability.F("detail", fmt.Sprintf(msg, args...)))
		}),
	}
}

func newReader(cfg Config, topic, groupID string, log observability.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		CommitInterval: 0, // synchronous commits
		StartOffset:    kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error("kafka_reader_error",
				observability.F("topic", topic),
				observability.F("detail", fmt.Sprintf(msg, args...)),
			)
		}),
	})
}

// Subscribe registers h on topic. Each subscription reads with its own consumer
// group ("<group>.<topic>.<n>") so every handler sees every event.
func (b *Bus) Subscribe(topic string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.topic == topic {
			n++
		}
	}
	b.subs = append(b.subs, subscription{
		topic:   topic,
		groupID: b.cfg.GroupID + "." + topic + "." + strconv.Itoa(n),
		handler: h,
	})
}

// Publish writes e synchronously and returns once the brokers acknowledged it.
func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	if b.closed.Load() {
		return ErrBusClosed
	}
	ctx, span := b.dispatcher.StartPublish(ctx, e.EventName())
	defer span.End()

	env, err := b.dispatcher.Codec().Encode(e)
	if err != nil {
		return err
	}
	events.Inject(ctx, &env)
	if err := b.writer.WriteMessages(ctx, toMessage(env)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		logctx.FromOr(ctx, b.log).Warn("event_publish_failed",
			observability.F("topic", env.Topic),
			observability.F("event_id", env.EventID),
			observability.Err(err),
		)
		return fmt.Errorf("kafka: publish %s: %w", env.Topic, err)
	}
	return nil
}

// Start opens one reader per subscription and consumes until Stop.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	for _, s := range b.subs {
		r := b.newReader(s.topic, s.groupID)
		b.readers = append(b.readers, r)
		b.wg.Add(1)
		go b.consume(bg, r, s)
	}
	logctx.FromOr(ctx, b.log).Info("event_bus_started", observability.F("subscriptions", len(b.subs)))
}

// Stop halts consumption, waits for in-flight deliveries until ctx ends, and closes connections.
func (b *Bus) Stop(ctx context.Context) {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	cancel := b.cancel
	readers := append([]Reader(nil), b.readers...)
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	for _, r := range readers {
		_ = r.Close()
	}
	if err := b.writer.Close(); err != nil {
		b.log.Warn("kafka_writer_close_failed", observability.Err(err))
	}
	logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
}

func (b *Bus) consume(ctx context.Context, r Reader, s subscription) {
	defer b.wg.Done()
	logger := b.log.With(
		observability.F("topic", s.topic),
		observability.F("group_id", s.groupID),
	)
	ctx = logctx.With(ctx, logger)

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka_fetch_failed", observability.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if !b.deliver(ctx, logger, msg, s.handler) {
			return
		}
		if err := r.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			logger.Error("kafka_commit_failed",
				observability.F("offset", msg.Offset),
				observability.Err(err),
			)
		}
	}
}

// deliver retries until the message was handled or dead-lettered, since committing
// a later offset would implicitly acknowledge this one. It reports false when ctx ended.
func (b *Bus) deliver(ctx context.Context, logger observability.Logger, msg kafka.Message, h domoutbox.Handler) bool {
	for {
		err := b.dispatcher.Deliver(ctx, fromMessage(msg), h)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		logger.Error("event_undelivered",
			observability.F("offset", msg.Offset),
			observability.F("partition", msg.Partition),
			observability.Err(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
}

func toMessage(env events.Envelope) kafka.Message {
	headers := []kafka.Header{
		{Key: events.HeaderEventID, Value: []byte(env.EventID)},
		{Key: events.HeaderTopic, Value: []byte(env.Topic)},
		{Key: events.HeaderOccurredAt, Value: []byte(env.OccurredAt.Format(time.RFC3339Nano))},
	}
	for k, v := range env.Trace {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   env.Topic,
		Key:     []byte(env.Key),
		Value:   env.Payload,
		Time:    env.OccurredAt,
		Headers: headers,
	}
}

func fromMessage(msg kafka.Message) events.Envelope {
	env := events.Envelope{
		Topic:      msg.Topic,
		Key:        string(msg.Key),
		Payload:    msg.Value,
		OccurredAt: msg.Time,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case events.HeaderEventID:
			env.EventID = string(h.Value)
		case events.HeaderTopic:
			if env.Topic == "" {
				env.Topic = string(h.Value)
			}
		case events.HeaderOccurredAt:
		default:
			if env.Trace == nil {
				env.Trace = make(map[string]string)
			}
			env.Trace[h.Key] = string(h.Value)
		}
	}
	return env
}
