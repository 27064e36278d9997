package memory

import (
	"context"
	"sync"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
)

// DeadLetterSink keeps dead letters in memory for inspection.
type DeadLetterSink struct {
	mu      sync.Mutex
	letters []outbox.DeadLetter
}

var _ outbox.DeadLetterSink = (*DeadLetterSink)(nil)

func NewDeadLetterSink() *DeadLetterSink { return &DeadLetterSink{} }

func (s *DeadLetterSink) DeadLetter(ctx context.Context, dl outbox.DeadLetter) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	dl.Payload = append([]byte(nil), dl.Payload...)
	s.letters = append(s.letters, dl)
	return nil
}

// Letters returns a copy of everything dead-lettered so far.
func (s *DeadLetterSink) Letters() []outbox.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]outbox.DeadLetter(nil), s.letters...)
}
