package refactor

import (
	"fmt"
	"log/slog"

	"github.com/webspoilt/code-janitor/internal/types"
)

// machine holds the one authoritative state of a unit. Every change except
// abort goes through the transition table in types.CanTransition.
type machine struct {
	unit    string
	state   types.UnitState
	history []types.UnitState
	logger  *slog.Logger
}

func newMachine(unit string, logger *slog.Logger) *machine {
	return &machine{
		unit:    unit,
		state:   types.StateInit,
		history: []types.UnitState{types.StateInit},
		logger:  logger,
	}
}

// to moves the machine to next. An illegal transition is a bug in the
// controller and leaves the state unchanged.
func (m *machine) to(next types.UnitState) error {
	if !types.CanTransition(m.state, next) {
		return fmt.Errorf("illegal state transition for %s: %s -> %s", m.unit, m.state, next)
	}
	m.logger.Debug("unit state transition", "unit", m.unit, "from", m.state, "to", next)
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// must applies a transition the controller has already proven legal
func (m *machine) must(next types.UnitState) {
	if err := m.to(next); err != nil {
		panic(err)
	}
}

// abort forces ABORTED after a panic left the unit mid-flight
func (m *machine) abort() {
	m.logger.Debug("unit aborted", "unit", m.unit, "from", m.state)
	m.state = types.StateAborted
	m.history = append(m.history, types.StateAborted)
}
