package relay

import (
	"context"
	"log"
	"sync"
)

// LogActuator records circuit states without driving hardware. Used in
// development and as the default until a hardware driver is configured.
type LogActuator struct {
	mu     sync.Mutex
	states map[string]bool
}

// NewLogActuator creates a LogActuator.
func NewLogActuator() *LogActuator {
	return &LogActuator{states: make(map[string]bool)}
}

// Set records the state and logs the change.
func (a *LogActuator) Set(ctx context.Context, circuitID string, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	a.states[circuitID] = on
	a.mu.Unlock()
	log.Printf("Actuator: circuit %s set to %v", circuitID, on)
	return nil
}

// State returns the last recorded state for a circuit.
func (a *LogActuator) State(circuitID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[circuitID]
}
