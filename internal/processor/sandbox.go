package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process processor for local runs and tests. Every
// submission is acknowledged with a generated reference; outcomes are
// queued by the test or a local driver and drained through PollOutcomes.
type Sandbox struct {
	mu         sync.Mutex
	submitted  map[string]SubmitRequest // by idempotency key
	references map[string]string        // idempotency key -> reference
	queue      []Outcome
	failNext   error
}

// NewSandbox creates a new sandbox processor
func NewSandbox() *Sandbox {
	return &Sandbox{
		submitted:  make(map[string]SubmitRequest),
		references: make(map[string]string),
	}
}

// Submit acknowledges the intent with a stable reference. Re-submission
// with the same idempotency key returns the original reference instead of
// creating a second transfer.
func (s *Sandbox) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	if ref, ok := s.references[req.IdempotencyKey]; ok {
		return SubmitResult{ProcessorReference: ref}, nil
	}

	ref := "sbx_" + uuid.NewString()
	s.submitted[req.IdempotencyKey] = req
	s.references[req.IdempotencyKey] = ref

	return SubmitResult{ProcessorReference: ref}, nil
}

// FailNextSubmit makes the next Submit call fail with the given error
func (s *Sandbox) FailNextSubmit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// QueueOutcome enqueues an asynchronous outcome for polling
func (s *Sandbox) QueueOutcome(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, outcome)
}

// PollOutcomes drains up to limit queued outcomes
func (s *Sandbox) PollOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.queue) {
		limit = len(s.queue)
	}

	out := make([]Outcome, limit)
	copy(out, s.queue[:limit])
	s.queue = s.queue[limit:]

	return out, nil
}

// SubmitCount returns how many distinct intents were accepted
func (s *Sandbox) SubmitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

// ReferenceFor returns the reference assigned to an idempotency key
func (s *Sandbox) ReferenceFor(idempotencyKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.references[idempotencyKey]
	return ref, ok
}
