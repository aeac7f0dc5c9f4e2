package jump

import (
	"github.com/banshee-data/jump.report/internal/jump/metrics"
)

// Outcome describes what a single step did.
type Outcome struct {
	Phase Phase
	// Created is set when a record was appended (completed, or a rebound
	// placeholder).
	Created bool
	// Completed is set when a record received its flight time.
	Completed bool
	// Bounced is set when the landing was rejected as noise.
	Bounced bool
	// Ignored is set when the event did not apply to the current phase.
	Ignored bool
}

// Step is the pure form of the state machine: it returns the next session
// and leaves s untouched.
func Step(s *Session, ev Event) (*Session, Outcome) {
	next := s.Clone()
	out := next.Apply(ev)
	return next, out
}

// Apply consumes one event in place.
func (s *Session) Apply(ev Event) Outcome {
	s.Bounced = false

	switch ev.Type {
	case EventDeviceError:
		s.DeviceReady = false
		s.open = false
		s.Phase = PhaseDeviceError
		return Outcome{Phase: s.Phase}

	case EventReady:
		s.DeviceReady = true
		if s.Phase == PhaseIdle {
			s.Phase = PhaseReady
			return Outcome{Phase: s.Phase}
		}
		return Outcome{Phase: s.Phase, Ignored: true}

	case EventAirborne:
		if s.Phase != PhaseReady {
			return Outcome{Phase: s.Phase, Ignored: true}
		}
		return s.takeoff(ev)

	case EventContact:
		if s.Phase != PhaseJumping {
			return Outcome{Phase: s.Phase, Ignored: true}
		}
		return s.land(ev)
	}

	return Outcome{Phase: s.Phase, Ignored: true}
}

func (s *Session) takeoff(ev Event) Outcome {
	s.open = true
	s.startedAt = ev.At
	s.Phase = PhaseJumping

	if !s.Rebound() || s.priming {
		return Outcome{Phase: s.Phase}
	}

	floor := metrics.Elapsed(s.reference, ev.At)
	s.Jumps[s.SubTest] = append(s.Jumps[s.SubTest], JumpRecord{FloorS: floatPtr(floor)})
	return Outcome{Phase: s.Phase, Created: true}
}

func (s *Session) land(ev Event) Outcome {
	flight := metrics.Elapsed(s.startedAt, ev.At)
	s.open = false
	s.Phase = PhaseReady
	s.reference = ev.At

	if flight < s.Config.thresholdSeconds() {
		s.Bounced = true
		return Outcome{Phase: s.Phase, Bounced: true}
	}

	if s.Rebound() {
		if s.priming {
			s.priming = false
			return Outcome{Phase: s.Phase}
		}
		jumps := s.Jumps[s.SubTest]
		if len(jumps) == 0 {
			return Outcome{Phase: s.Phase, Ignored: true}
		}
		jumps[len(jumps)-1].complete(flight)
		s.recompute()
		return Outcome{Phase: s.Phase, Completed: true}
	}

	s.Jumps[s.SubTest] = append(s.Jumps[s.SubTest], newCompletedRecord(flight))
	s.recompute()
	return Outcome{Phase: s.Phase, Created: true, Completed: true}
}

// Finish closes the active sub-test. With literally no records it lands in
// PhaseNoJumpsError and the sub-test must be redone; otherwise placeholders
// without a flight are dropped and the sub-test is finished. Finish is a
// no-op in the terminal phases.
func (s *Session) Finish() Outcome {
	if s.Phase.Terminal() {
		return Outcome{Phase: s.Phase, Ignored: true}
	}

	s.open = false
	jumps := s.Jumps[s.SubTest]
	if len(jumps) == 0 {
		s.Phase = PhaseNoJumpsError
		return Outcome{Phase: s.Phase}
	}

	kept := jumps[:0]
	for _, j := range jumps {
		if !j.Pending() {
			kept = append(kept, j)
		}
	}
	s.Jumps[s.SubTest] = kept
	s.Finished[s.SubTest] = true
	s.Phase = PhaseFinished
	s.recompute()
	return Outcome{Phase: s.Phase}
}

// Reinitialise is the explicit recovery from PhaseDeviceError. A sub-test
// that had already finished keeps its data; anything in progress is
// soft-reset. It is a no-op in every other phase.
func (s *Session) Reinitialise() Outcome {
	if s.Phase != PhaseDeviceError {
		return Outcome{Phase: s.Phase, Ignored: true}
	}
	s.Phase = s.restingPhase()
	if s.Finished[s.SubTest] {
		s.Phase = PhaseFinished
		return Outcome{Phase: s.Phase}
	}
	s.ResetSubTest(s.SubTest)
	return Outcome{Phase: s.Phase}
}
