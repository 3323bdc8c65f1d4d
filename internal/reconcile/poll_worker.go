package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/processor"
)

// PollWorker drains processor outcomes on a fixed interval. It is the
// fallback delivery path for deployments where the processor cannot
// reach the webhook endpoint.
type PollWorker struct {
	listener *Listener
	source   processor.OutcomeSource
	logger   *zap.Logger

	pollInterval time.Duration
	batchSize    int

	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewPollWorker creates a new reconciliation poll worker
func NewPollWorker(listener *Listener, source processor.OutcomeSource, pollInterval time.Duration, logger *zap.Logger) *PollWorker {
	return &PollWorker{
		listener:     listener,
		source:       source,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    50,
	}
}

// Start starts the poll loop
func (p *PollWorker) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("reconciliation poll worker is already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true

	p.logger.Info("ReconciliationPollWorker started",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Int("batch_size", p.batchSize))

	go p.pollLoop()

	return nil
}

// Stop stops the poll loop
func (p *PollWorker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return
	}

	p.isRunning = false
	if p.cancel != nil {
		p.cancel()
	}

	p.logger.Info("ReconciliationPollWorker stopped")
}

// Name returns the worker name for identification
func (p *PollWorker) Name() string {
	return "ReconciliationPollWorker"
}

func (p *PollWorker) pollLoop() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(p.ctx)
		}
	}
}

// RunOnce drains one batch of outcomes and applies each
func (p *PollWorker) RunOnce(ctx context.Context) {
	outcomes, err := p.source.PollOutcomes(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("Failed to poll processor outcomes", zap.Error(err))
		return
	}

	for _, outcome := range outcomes {
		if err := p.listener.Apply(ctx, outcome); err != nil {
			p.logger.Error("Failed to apply processor outcome",
				zap.String("processor_reference", outcome.ProcessorReference),
				zap.Error(err))
		}
	}
}
