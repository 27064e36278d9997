package outbox

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/events"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
)

var ErrBusClosed = errors.New("outbox: bus closed")

const componentOutbox = "outbox"

// Bus is an in-memory event bus. Events are encoded on publish so handlers never
// share memory with the publisher; each subscription gets at-least-once delivery
// with bounded retries before the event is dead-lettered. It is not durable.
//
// Every subscription consumes from its own lanes, so a handler stuck in retries
// only holds back its own subscription. Events are routed to a lane by key,
// which keeps per-key order within a subscription.
type Bus struct {
	mu          sync.RWMutex // guards subs, started, closed and sends on lanes
	subs        map[string][]*subscription
	started     bool
	closed      bool
	runCtx      context.Context
	cancel      context.CancelFunc
	workers     sync.WaitGroup
	stopOnce    sync.Once
	pending     atomic.Int64
	queueSize   int
	concurrency int
	dispatcher  *events.Dispatcher
	log         observability.Logger
}

type subscription struct {
	topic   string
	handler domoutbox.Handler
	lanes   []chan events.Envelope
}

func (s *subscription) lane(key string) chan events.Envelope {
	if len(s.lanes) == 1 {
		return s.lanes[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.lanes[h.Sum32()%uint32(len(s.lanes))]
}

type Option func(*Bus)

// WithQueueSize sets the buffer of each subscription, split across its lanes.
// A full lane blocks Publish until ctx ends.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithConcurrency sets the number of lanes, each with one worker, per subscription.
func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func NewBus(dispatcher *events.Dispatcher, tel observability.Observability, opts ...Option) *Bus {
	b := &Bus{
		subs:        make(map[string][]*subscription),
		queueSize:   1024,
		concurrency: 8,
		dispatcher:  dispatcher,
		log:         observability.Resolve(tel).Logger().With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(topic string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.log.Warn("subscribe_after_stop", observability.F("topic", topic))
		return
	}

	perLane := max(1, b.queueSize/b.concurrency)
	sub := &subscription{topic: topic, handler: h, lanes: make([]chan events.Envelope, b.concurrency)}
	for i := range sub.lanes {
		sub.lanes[i] = make(chan events.Envelope, perLane)
	}
	b.subs[topic] = append(b.subs[topic], sub)
	if b.started {
		b.run(sub)
	}
}

func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	b.runCtx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for _, subs := range b.subs {
		for _, sub := range subs {
			b.run(sub)
		}
	}
	logctx.FromOr(ctx, b.log).Info("event_bus_started")
}

// Stop refuses new events, lets queued ones drain until ctx ends, then halts dispatch.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, subs := range b.subs {
			for _, sub := range subs {
				for _, lane := range sub.lanes {
					close(lane)
				}
			}
		}
		started := b.started
		b.mu.Unlock()

		if started {
			drained := make(chan struct{})
			go func() {
				b.workers.Wait()
				close(drained)
			}()
			select {
			case <-drained:
			case <-ctx.Done():
				b.cancel()
			}
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped",
			observability.F("undelivered", b.pending.Load()),
		)
	})
}

// Publish encodes e and enqueues one delivery per subscription. It fails if
// encoding fails, the bus is closed, or ctx ends while a lane is full; in the
// last case subscriptions enqueued before the full one keep their delivery.
func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	ctx, span := b.dispatcher.StartPublish(ctx, e.EventName())
	defer span.End()

	env, err := b.dispatcher.Codec().Encode(e)
	if err != nil {
		return err
	}
	events.Inject(ctx, &env)
	logger := logctx.FromOr(ctx, b.log).With(
		observability.F("topic", env.Topic),
		observability.F("event_id", env.EventID),
	)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	subs := b.subs[env.Topic]
	if len(subs) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return nil
	}
	for _, sub := range subs {
		b.pending.Add(1)
		select {
		case sub.lane(env.Key) <- env:
		case <-ctx.Done():
			b.pending.Add(-1)
			logger.Warn("event_enqueue_aborted", observability.Err(ctx.Err()))
			return ctx.Err()
		}
	}
	logger.Debug("event_enqueued", observability.F("subscriptions", len(subs)))
	return nil
}

// Flush blocks until every published event has been handled or dead-lettered.
func (b *Bus) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for b.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// run starts one worker per lane of sub. Callers hold b.mu.
func (b *Bus) run(sub *subscription) {
	logger := b.log.With(observability.F("topic", sub.topic))
	ctx := logctx.With(b.runCtx, logger)
	for _, lane := range sub.lanes {
		b.workers.Add(1)
		go b.consume(ctx, logger, lane, sub.handler)
	}
}

func (b *Bus) consume(ctx context.Context, logger observability.Logger, lane <-chan events.Envelope, h domoutbox.Handler) {
	defer b.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-lane:
			if !ok {
				return
			}
			if err := b.dispatcher.Deliver(ctx, env, h); err != nil {
				logger.Error("event_undelivered", observability.Err(err))
			}
			b.pending.Add(-1)
		}
	}
}
