package outbox

import (
	"context"
	"errors"
	"time"
)

// Event is any integration event. EventName is also the topic it travels on.
type Event interface {
	EventName() string
}

// Keyed events expose a partition/ordering key (orderId, productId).
type Keyed interface {
	EventKey() string
}

// Handler processes a delivered event. A non-nil error triggers redelivery.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events synchronously; an error means the event was not accepted.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for a topic. Registration happens at startup before Start.
type Subscriber interface {
	Subscribe(topic string, h Handler)
}

// DeadLetter is an event that exhausted its delivery attempts.
type DeadLetter struct {
	Topic    string
	Key      string
	EventID  string
	Payload  []byte
	Attempts int
	Reason   string
	FailedAt time.Time
}

// DeadLetterSink stores events that could not be handled.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return "permanent: " + p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retryable; the bus dead-letters the event immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Claim is the state of a processed-message ledger key.
type Claim int

const (
	// ClaimAcquired means the caller holds a pending lease on the key until it
	// completes or releases it. An abandoned lease expires and can be taken again.
	ClaimAcquired Claim = iota + 1
	// ClaimDone means the work behind the key was completed earlier.
	ClaimDone
	// ClaimHeld means another delivery holds an unexpired pending lease.
	ClaimHeld
)

func (c Claim) String() string {
	switch c {
	case ClaimAcquired:
		return "acquired"
	case ClaimDone:
		return "done"
	case ClaimHeld:
		return "held"
	default:
		return "unknown"
	}
}

// KeyOf returns the event key when the event provides one.
func KeyOf(e Event) string {
	if k, ok := e.(Keyed); ok {
		return k.EventKey()
	}
	return ""
}
