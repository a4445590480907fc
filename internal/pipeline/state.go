package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is a job's position in the pipeline.
type State string

const (
	StateValidating      State = "validating"
	StateSynthesizing    State = "synthesizing"
	StateConcatenating   State = "concatenating"
	StateTempoShifting   State = "tempo_shifting"
	StateVolumeAdjusting State = "volume_adjusting"
	StateLooping         State = "looping"
	StateMixing          State = "mixing"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// ErrInvalidTransition is returned for any move other than advancing to the
// single successor or failing from a non-terminal state.
var ErrInvalidTransition = errors.New("invalid pipeline transition")

var stateOrder = []State{
	StateValidating,
	StateSynthesizing,
	StateConcatenating,
	StateTempoShifting,
	StateVolumeAdjusting,
	StateLooping,
	StateMixing,
	StateCompleted,
}

// States returns the success path in order.
func States() []State {
	return append([]State(nil), stateOrder...)
}

// ParseState converts a persisted value into a State.
func ParseState(value string) (State, bool) {
	candidate := State(strings.ToLower(strings.TrimSpace(value)))
	if candidate == StateFailed {
		return candidate, true
	}
	for _, s := range stateOrder {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Next returns the successor on the success path.
func (s State) Next() (State, bool) {
	for i, candidate := range stateOrder {
		if candidate == s && i+1 < len(stateOrder) {
			return stateOrder[i+1], true
		}
	}
	return "", false
}

// Progress estimates completion percent on entry to s.
func (s State) Progress() float64 {
	switch s {
	case StateValidating:
		return 0
	case StateSynthesizing:
		return 5
	case StateConcatenating:
		return 45
	case StateTempoShifting:
		return 55
	case StateVolumeAdjusting:
		return 65
	case StateLooping:
		return 75
	case StateMixing:
		return 85
	case StateCompleted:
		return 100
	default:
		return 0
	}
}

// Label returns a human readable name.
func (s State) Label() string {
	switch s {
	case StateTempoShifting:
		return "Tempo shifting"
	case StateVolumeAdjusting:
		return "Adjusting volume"
	case "":
		return ""
	}
	text := strings.ReplaceAll(string(s), "_", " ")
	return strings.ToUpper(text[:1]) + text[1:]
}

// Transition describes one state change.
type Transition struct {
	From    State
	To      State
	Err     error
	At      time.Time
	Elapsed time.Duration
}

// Machine tracks a single job's state. It is safe for concurrent reads.
type Machine struct {
	mu        sync.Mutex
	state     State
	failedAt  State
	err       error
	enteredAt time.Time
	listener  func(Transition)
}

// NewMachine returns a machine in StateValidating. listener, when non-nil,
// is called after every successful transition.
func NewMachine(listener func(Transition)) *Machine {
	return &Machine{state: StateValidating, enteredAt: time.Now(), listener: listener}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailedAt returns the state that failed, if any.
func (m *Machine) FailedAt() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failedAt
}

// Err returns the failure cause, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Advance moves to the successor state.
func (m *Machine) Advance() error {
	m.mu.Lock()
	next, ok := m.state.Next()
	if !ok || m.state.IsTerminal() {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: advance from %s", ErrInvalidTransition, from)
	}
	t := m.moveLocked(next, nil)
	m.mu.Unlock()
	m.emit(t)
	return nil
}

// AdvanceTo moves to target, which must be the successor state.
func (m *Machine) AdvanceTo(target State) error {
	m.mu.Lock()
	next, ok := m.state.Next()
	if !ok || next != target {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
	}
	t := m.moveLocked(next, nil)
	m.mu.Unlock()
	m.emit(t)
	return nil
}

// Fail records err against the current state and moves to StateFailed.
func (m *Machine) Fail(err error) error {
	m.mu.Lock()
	if m.state.IsTerminal() {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, from)
	}
	m.failedAt = m.state
	m.err = err
	t := m.moveLocked(StateFailed, err)
	m.mu.Unlock()
	m.emit(t)
	return nil
}

func (m *Machine) moveLocked(to State, err error) Transition {
	now := time.Now()
	t := Transition{From: m.state, To: to, Err: err, At: now, Elapsed: now.Sub(m.enteredAt)}
	m.state = to
	m.enteredAt = now
	return t
}

func (m *Machine) emit(t Transition) {
	if m.listener != nil {
		m.listener(t)
	}
}
