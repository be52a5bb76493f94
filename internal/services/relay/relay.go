// Package relay applies fixture commands to physical outputs, coalescing
// fixtures that share a relay circuit into a single switched state.
package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Actuator is the hardware boundary for a single switched circuit.
type Actuator interface {
	// Set drives the circuit on or off. Implementations must be safe for
	// repeated calls with the same state.
	Set(ctx context.Context, circuitID string, on bool) error
}

// FixtureCommand is one fixture's desired output after optimization.
type FixtureCommand struct {
	FixtureID    string
	On           bool
	IntensityPct float64
}

// Controller tracks per-fixture desires and resolves them to per-circuit
// relay states. Fixtures mapped to the same circuit are switched together:
// the circuit is on while any member fixture desires on, and turns off only
// when every member desires off.
type Controller struct {
	mu       sync.Mutex
	actuator Actuator
	circuits map[string]string // fixtureID -> circuitID
	desired  map[string]bool   // fixtureID -> wants on
	applied  map[string]bool   // circuitID -> last state driven
}

// NewController wires a controller to an actuator. circuits maps fixture ID
// to relay circuit ID; fixtures absent from the map get a dedicated circuit
// named after the fixture.
func NewController(actuator Actuator, circuits map[string]string) *Controller {
	c := &Controller{
		actuator: actuator,
		circuits: make(map[string]string, len(circuits)),
		desired:  make(map[string]bool),
		applied:  make(map[string]bool),
	}
	for fixtureID, circuitID := range circuits {
		c.circuits[fixtureID] = circuitID
	}
	return c
}

// Apply records the commands' desired states and drives every affected
// circuit to its resolved state. A circuit is only re-driven when its
// resolved state changes.
func (c *Controller) Apply(ctx context.Context, commands []FixtureCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make(map[string]bool)
	for _, cmd := range commands {
		c.desired[cmd.FixtureID] = cmd.On
		touched[c.circuitFor(cmd.FixtureID)] = true
	}

	for circuitID := range touched {
		want := c.resolveLocked(circuitID)
		if prev, ok := c.applied[circuitID]; ok && prev == want {
			continue
		}
		if err := c.actuator.Set(ctx, circuitID, want); err != nil {
			return fmt.Errorf("drive circuit %s: %w", circuitID, err)
		}
		c.applied[circuitID] = want
		log.Printf("Relay circuit %s -> %v", circuitID, want)
	}
	return nil
}

// CircuitState reports the resolved state for a circuit from current
// fixture desires.
func (c *Controller) CircuitState(circuitID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(circuitID)
}

// AllOff drives every known circuit off and clears fixture desires.
func (c *Controller) AllOff(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for fixtureID := range c.desired {
		c.desired[fixtureID] = false
	}
	for circuitID, prev := range c.applied {
		if !prev {
			continue
		}
		if err := c.actuator.Set(ctx, circuitID, false); err != nil {
			return fmt.Errorf("drive circuit %s: %w", circuitID, err)
		}
		c.applied[circuitID] = false
	}
	return nil
}

// resolveLocked computes the OR of member-fixture desires for a circuit.
func (c *Controller) resolveLocked(circuitID string) bool {
	for fixtureID, on := range c.desired {
		if !on {
			continue
		}
		if c.circuitFor(fixtureID) == circuitID {
			return true
		}
	}
	return false
}

func (c *Controller) circuitFor(fixtureID string) string {
	if circuitID, ok := c.circuits[fixtureID]; ok && circuitID != "" {
		return circuitID
	}
	return fixtureID
}
