// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"fmt"

	"github.com/pybundle/pybundle/internal/config"
)

const (
	StateIdle State = iota
	StateEnvironmentReady
	StateEnvironmentActive
	StateDependenciesInstalled
	StatePackaged
	StateEnvironmentRestored
	StateStaged
	StateDone
	StateFailed
)

// ErrInvalidTransition is returned when the machine is asked to make a move
// that the transition table does not allow. It indicates a programming error.
var ErrInvalidTransition = errors.New("invalid build state transition")

type (
	// State is a position in the build state machine.
	State int

	// Machine tracks the progress of one build.
	Machine struct {
		strictness config.Strictness
		state      State
		history    []State
	}

	transition struct{ from, to State }
)

var stateNames = [...]string{
	StateIdle:                  "Idle",
	StateEnvironmentReady:      "EnvironmentReady",
	StateEnvironmentActive:     "EnvironmentActive",
	StateDependenciesInstalled: "DependenciesInstalled",
	StatePackaged:              "Packaged",
	StateEnvironmentRestored:   "EnvironmentRestored",
	StateStaged:                "Staged",
	StateDone:                  "Done",
	StateFailed:                "Failed",
}

// forward is the happy path plus the two aborts allowed in every mode.
var forward = map[transition]bool{
	{StateIdle, StateEnvironmentReady}:                   true,
	{StateEnvironmentReady, StateEnvironmentActive}:      true,
	{StateEnvironmentActive, StateDependenciesInstalled}: true,
	{StateDependenciesInstalled, StatePackaged}:          true,
	{StatePackaged, StateEnvironmentRestored}:            true,
	{StateEnvironmentRestored, StateStaged}:              true,
	{StateStaged, StateDone}:                             true,
	{StateIdle, StateFailed}:                             true,
	{StateEnvironmentReady, StateFailed}:                 true,
}

// strictAborts exist only in strict mode; lenient builds continue instead.
var strictAborts = map[transition]bool{
	{StateEnvironmentActive, StateFailed}:     true,
	{StateDependenciesInstalled, StateFailed}: true,
	{StateEnvironmentRestored, StateFailed}:   true,
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Allowed reports whether from -> to is in the transition table for the
// given strictness.
func Allowed(from, to State, strictness config.Strictness) bool {
	t := transition{from, to}
	if forward[t] {
		return true
	}
	return strictness == config.StrictnessStrict && strictAborts[t]
}

// NewMachine returns a machine in StateIdle.
func NewMachine(strictness config.Strictness) *Machine {
	return &Machine{strictness: strictness, state: StateIdle, history: []State{StateIdle}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns every state visited, starting with StateIdle.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Advance moves to the next state.
func (m *Machine) Advance(to State) error {
	if !Allowed(m.state, to, m.strictness) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, m.state, to, m.strictness)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

// Fail moves to StateFailed. An interrupted build may fail from any
// non-terminal state; other causes follow the transition table.
func (m *Machine) Fail(cause error) error {
	if interrupted(cause) && !m.state.Terminal() {
		m.state = StateFailed
		m.history = append(m.history, StateFailed)
		return nil
	}
	return m.Advance(StateFailed)
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
