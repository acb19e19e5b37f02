package child

import (
	"context"
	"fmt"
	"sync"

	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/records"
)

// ErrUnknownOpening is returned when no opening exists for an id.
var ErrUnknownOpening = fmt.Errorf("child: unknown opening")

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Invoker *invoke.Invoker
	Logger  logging.Logger
}

// Coordinator starts and tracks account openings and fans their status lines
// back to per-session sinks.
type Coordinator struct {
	investments records.InvestmentRepository
	clients     records.ClientRepository
	invoker     *invoke.Invoker
	logger      logging.Logger

	mu       sync.RWMutex
	openings map[string]*Opening
}

// NewCoordinator creates a coordinator over the given repositories.
func NewCoordinator(investments records.InvestmentRepository, clients records.ClientRepository, optFns ...func(o *CoordinatorOptions)) *Coordinator {
	opts := CoordinatorOptions{
		Invoker: invoke.New(),
		Logger:  logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{
		investments: investments,
		clients:     clients,
		invoker:     opts.Invoker,
		logger:      opts.Logger,
		openings:    make(map[string]*Opening),
	}
}

// Start launches a new opening whose status lines flow to sink and returns
// it immediately; the opening advances in the background.
func (c *Coordinator) Start(ctx context.Context, spec Spec, sink StatusSink) *Opening {
	o := StartOpening(ctx, spec, c.investments, c.clients, func(opts *OpeningOptions) {
		opts.Invoker = c.invoker
		opts.Logger = c.logger
		opts.Sink = sink
	})

	c.mu.Lock()
	c.openings[o.ID()] = o
	c.mu.Unlock()

	c.logger.Info("account opening started", "opening_id", o.ID(), "client_id", spec.ClientID)
	return o
}

// Get returns the opening with the given id.
func (c *Coordinator) Get(openingID string) (*Opening, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	o, ok := c.openings[openingID]
	if !ok {
		return nil, fmt.Errorf("opening %q: %w", openingID, ErrUnknownOpening)
	}
	return o, nil
}

// List returns the ids of all tracked openings.
func (c *Coordinator) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.openings))
	for id := range c.openings {
		ids = append(ids, id)
	}
	return ids
}
