package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
)

// Policy bounds redelivery of a failing handler.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HandlerTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		HandlerTimeout: 30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.HandlerTimeout <= 0 {
		p.HandlerTimeout = d.HandlerTimeout
	}
	return p
}

// Dispatcher delivers one envelope to one handler: decode, invoke with panic
// recovery and timeout, retry with exponential backoff, then dead-letter.
type Dispatcher struct {
	codec       *Codec
	policy      Policy
	sink        domoutbox.DeadLetterSink
	log         observability.Logger
	tracer      observability.Tracer
	deliveries  observability.Counter
	deadLetters observability.Counter
}

func NewDispatcher(codec *Codec, policy Policy, sink domoutbox.DeadLetterSink, tel observability.Observability) *Dispatcher {
	tel = observability.Resolve(tel)
	return &Dispatcher{
		codec:       codec,
		policy:      policy.normalized(),
		sink:        sink,
		log:         tel.Logger().With(observability.F("component", "event_dispatcher")),
		tracer:      tel.Tracer(),
		deliveries:  tel.Metrics().Counter(observability.MEventDeliveries),
		deadLetters: tel.Metrics().Counter(observability.MEventDeadLetters),
	}
}

func (d *Dispatcher) Codec() *Codec { return d.codec }

// Deliver returns nil once the envelope was handled or dead-lettered. It returns
// an error only when ctx ended first or the dead-letter sink failed, in which case
// the caller must not acknowledge the envelope.
func (d *Dispatcher) Deliver(ctx context.Context, env Envelope, h domoutbox.Handler) (err error) {
	ctx, span := d.tracer.Start(Extract(ctx, env), "event."+env.Topic,
		attribute.String("messaging.destination", env.Topic),
		attribute.String("messaging.message_id", env.EventID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := logctx.FromOr(ctx, d.log).With(
		observability.F("topic", env.Topic),
		observability.F("event_id", env.EventID),
		observability.F("key", env.Key),
	)

	evt, err := d.codec.Decode(env)
	if err != nil {
		return d.deadLetter(ctx, logger, env, 0, domoutbox.Permanent(err))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.policy.InitialBackoff
	bo.MaxInterval = d.policy.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	attempt := 0
	for attempt < d.policy.MaxAttempts {
		attempt++
		lastErr = d.invoke(ctx, logger, h, evt, attempt)
		if lastErr == nil {
			d.count(env.Topic, "success")
			return nil
		}
		if domoutbox.IsPermanent(lastErr) {
			d.count(env.Topic, "permanent_failure")
			break
		}
		d.count(env.Topic, "retry")
		if attempt == d.policy.MaxAttempts {
			break
		}

		wait := bo.NextBackOff()
		logger.Warn("event_handler_retry",
			observability.F("attempt", attempt),
			observability.F("backoff_ms", wait.Milliseconds()),
			observability.Err(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return d.deadLetter(ctx, logger, env, attempt, lastErr)
}

func (d *Dispatcher) invoke(ctx context.Context, logger observability.Logger, h domoutbox.Handler, evt domoutbox.Event, attempt int) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.policy.HandlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event_handler_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("events: handler panic: %v", r)
		}
	}()
	ctx = logctx.With(ctx, logger.With(observability.F("attempt", attempt)))
	return h(ctx, evt)
}

func (d *Dispatcher) deadLetter(ctx context.Context, logger observability.Logger, env Envelope, attempts int, cause error) error {
	dl := domoutbox.DeadLetter{
		Topic:    env.Topic,
		Key:      env.Key,
		EventID:  env.EventID,
		Payload:  env.Payload,
		Attempts: attempts,
		Reason:   cause.Error(),
		FailedAt: time.Now().UTC(),
	}
	logger.Error("event_dead_lettered",
		observability.F("attempts", attempts),
		observability.Err(cause),
	)
	d.deadLetters.Add(1, observability.L("topic", env.Topic))
	trace.SpanFromContext(ctx).AddEvent("dead_lettered", trace.WithAttributes(attribute.Int("attempts", attempts)))
	if d.sink == nil {
		return nil
	}
	if err := d.sink.DeadLetter(context.WithoutCancel(ctx), dl); err != nil {
		return fmt.Errorf("events: dead letter %s: %w", env.Topic, err)
	}
	return nil
}

func (d *Dispatcher) count(topic, outcome string) {
	d.deliveries.Add(1, observability.L("topic", topic), observability.L("outcome", outcome))
}
