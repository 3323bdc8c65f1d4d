package lifecycle

import (
	"context"
	"fmt"

	"github.com/paylane/billflow/internal/models"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// Machine tracks a bill's current status and validates transitions
type Machine interface {
	// State returns the current status
	State() models.BillStatus

	// CanFire returns true if the trigger is permitted in the current status
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, moving to the new status if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers that can fire in the current status
	PermittedTriggers() []Trigger
}

// Builder builds a configured machine
type Builder interface {
	// Configure returns a status configuration for the given status
	Configure(status models.BillStatus) StatusConfiguration

	// Build creates a new machine instance with the given initial status
	Build(initial models.BillStatus) Machine
}

// StatusConfiguration configures transitions out of a specific status
type StatusConfiguration interface {
	// Permit allows a trigger to transition to the target status
	Permit(trigger Trigger, to models.BillStatus) StatusConfiguration

	// PermitIf allows the transition only when the guard passes
	PermitIf(trigger Trigger, to models.BillStatus, guard GuardFunc) StatusConfiguration
}

type transition struct {
	to    models.BillStatus
	guard GuardFunc
}

type statusConfig struct {
	from        models.BillStatus
	transitions map[Trigger][]transition
}

type builder struct {
	configurations map[models.BillStatus]*statusConfig
}

type machine struct {
	current        models.BillStatus
	configurations map[models.BillStatus]*statusConfig
}

// NewBuilder creates a new machine builder
func NewBuilder() Builder {
	return &builder{
		configurations: make(map[models.BillStatus]*statusConfig),
	}
}

// Configure returns a status configuration for the given status
func (b *builder) Configure(status models.BillStatus) StatusConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", status))
	}

	config, exists := b.configurations[status]
	if !exists {
		config = &statusConfig{
			from:        status,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[status] = config
	}

	return config
}

// Build creates a new machine instance with the given initial status
func (b *builder) Build(initial models.BillStatus) Machine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial status: %s", initial))
	}

	// Copy configurations so machines stay independent of the builder
	configsCopy := make(map[models.BillStatus]*statusConfig)
	for status, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition)
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition{}, transitions...)
		}
		configsCopy[status] = &statusConfig{
			from:        status,
			transitions: transitionsCopy,
		}
	}

	return &machine{
		current:        initial,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to transition to the target status
func (c *statusConfig) Permit(trigger Trigger, to models.BillStatus) StatusConfiguration {
	return c.PermitIf(trigger, to, nil)
}

// PermitIf allows the transition only when the guard passes
func (c *statusConfig) PermitIf(trigger Trigger, to models.BillStatus, guard GuardFunc) StatusConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", to))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		to:    to,
		guard: guard,
	})

	return c
}

// State returns the current status
func (m *machine) State() models.BillStatus {
	return m.current
}

// CanFire returns true if the trigger is permitted in the current status
func (m *machine) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.current]
	if !exists {
		return false
	}

	transitions, exists := config.transitions[trigger]
	return exists && len(transitions) > 0
}

// Fire attempts to execute the trigger, moving to the new status if allowed
func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	config, exists := m.configurations[m.current]
	if !exists {
		return fmt.Errorf("%w: cannot fire trigger %s from status %s (no configuration)", ErrInvalidTransition, trigger, m.current)
	}

	transitions, exists := config.transitions[trigger]
	if !exists || len(transitions) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from status %s", ErrInvalidTransition, trigger, m.current)
	}

	// Try each transition in order until one succeeds
	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from status %s", ErrGuardFailed, trigger, m.current)
}

// PermittedTriggers returns all triggers that can fire in the current status
func (m *machine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.current]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}

	return triggers
}
