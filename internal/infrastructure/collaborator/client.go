// Package collaborator holds the HTTP clients the order service uses to reach
// the cart and payment services.
package collaborator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const maxBody = 1 << 20

// Config tunes one collaborator client.
type Config struct {
	BaseURL string
	// Timeout bounds each attempt.
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerOpenFor.
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 50 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerOpenFor <= 0 {
		c.BreakerOpenFor = 10 * time.Second
	}
	return c
}

// StatusError is a non-2xx answer the caller did not expect.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type response struct {
	status int
	body   []byte
}

// client sends requests with a per-attempt timeout, retries transport errors and
// 5xx answers with exponential backoff, and trips a circuit breaker on repeated failures.
type client struct {
	name    string
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     observability.Logger
}

func newClient(name string, cfg Config, hc *http.Client, tel observability.Observability) *client {
	cfg = cfg.withDefaults()
	if hc == nil {
		hc = &http.Client{}
	}
	log := observability.Resolve(tel).Logger().With(observability.F("component", "collaborator"), observability.F("peer", name))
	return &client{
		name: name,
		cfg:  cfg,
		http: hc,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit_breaker_state_changed",
					observability.F("from", from.String()),
					observability.F("to", to.String()),
				)
			},
		}),
		log: log,
	}
}

// do returns the first answer below 500. Answers of 500 and above and transport
// errors are retried until MaxRetries is spent.
func (c *client) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (response, error) {
	logger := logctx.FromOr(ctx, c.log)

	var out response
	attempt := 0
	op := func() error {
		attempt++
		v, err := c.breaker.Execute(func() (any, error) {
			return c.once(ctx, build)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%s: %w", c.name, err))
		}
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v.(response)
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialBackoff
	exp.MaxInterval = c.cfg.MaxBackoff
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxRetries)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Debug("collaborator_retry",
			observability.F("peer", c.name),
			observability.F("attempt", attempt),
			observability.F("wait", wait.String()),
			observability.Err(err),
		)
	})
	return out, err
}

// once performs a single attempt. Answers below 500 are returned as successes
// so the breaker only counts unavailability.
func (c *client) once(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := build(ctx)
	if err != nil {
		return response{}, backoff.Permanent(err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return response{}, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return response{}, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return response{status: resp.StatusCode, body: body}, nil
}
