package pipeline

import (
	"errors"
	"testing"
)

func TestMachineFollowsSuccessPath(t *testing.T) {
	var seen []Transition
	m := NewMachine(func(tr Transition) { seen = append(seen, tr) })

	for _, want := range States()[1:] {
		if err := m.Advance(); err != nil {
			t.Fatalf("advance to %s: %v", want, err)
		}
		if m.State() != want {
			t.Fatalf("state = %s, want %s", m.State(), want)
		}
	}
	if err := m.Advance(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance from completed: %v", err)
	}
	if err := m.Fail(errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("fail from completed: %v", err)
	}
	if len(seen) != len(States())-1 {
		t.Fatalf("expected %d transitions, got %d", len(States())-1, len(seen))
	}
	if seen[0].From != StateValidating || seen[0].To != StateSynthesizing {
		t.Fatalf("first transition = %+v", seen[0])
	}
}

func TestMachineRejectsSkippingStates(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{StateSynthesizing, StateConcatenating, StateTempoShifting, StateVolumeAdjusting} {
		if err := m.AdvanceTo(s); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
	if err := m.AdvanceTo(StateMixing); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("mixing before looping should be rejected, got %v", err)
	}
	if m.State() != StateVolumeAdjusting {
		t.Fatalf("rejected transition changed state to %s", m.State())
	}
	if err := m.AdvanceTo(StateValidating); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("moving backwards should be rejected, got %v", err)
	}
}

func TestMachineFailRecordsState(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Advance()
	_ = m.Advance()
	_ = m.Advance()
	cause := errors.New("atempo failed")
	if err := m.Fail(cause); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if m.State() != StateFailed || m.FailedAt() != StateTempoShifting {
		t.Fatalf("state = %s failedAt = %s", m.State(), m.FailedAt())
	}
	if !errors.Is(m.Err(), cause) {
		t.Fatalf("err = %v", m.Err())
	}
	if err := m.Advance(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance from failed: %v", err)
	}
	if err := m.Fail(cause); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("fail twice: %v", err)
	}
}

func TestParseState(t *testing.T) {
	for _, s := range append(States(), StateFailed) {
		got, ok := ParseState(" " + string(s) + " ")
		if !ok || got != s {
			t.Fatalf("ParseState(%q) = %q, %v", s, got, ok)
		}
	}
	if _, ok := ParseState("rendering"); ok {
		t.Fatal("unknown state should not parse")
	}
}

func TestStateProgressIncreases(t *testing.T) {
	previous := -1.0
	for _, s := range States() {
		if p := s.Progress(); p < previous {
			t.Fatalf("progress for %s (%v) below previous (%v)", s, p, previous)
		} else {
			previous = p
		}
	}
	if StateCompleted.Progress() != 100 {
		t.Fatalf("completed progress = %v", StateCompleted.Progress())
	}
}

func TestStateLabel(t *testing.T) {
	cases := map[State]string{
		StateValidating:      "Validating",
		StateTempoShifting:   "Tempo shifting",
		StateVolumeAdjusting: "Adjusting volume",
		StateFailed:          "Failed",
	}
	for state, want := range cases {
		if got := state.Label(); got != want {
			t.Fatalf("%s label = %q, want %q", state, got, want)
		}
	}
}

func TestPipelineStageTransitions(t *testing.T) {
	stage := NewPipelineStage(StateLooping, []string{"in.wav"}, "out.wav")
	if stage.Status != StagePending {
		t.Fatalf("new stage status = %s", stage.Status)
	}
	if err := stage.Succeed(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("succeed from pending: %v", err)
	}
	if err := stage.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := stage.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start twice: %v", err)
	}
	if err := stage.Fail(errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := stage.Succeed(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("succeed after failure: %v", err)
	}
	summary := stage.Summary()
	if summary.Status != StageFailed || summary.Error != "boom" || summary.InputCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}
