package jump

import (
	"time"
)

// Session is the mutable state of one test run. It is owned by exactly one
// caller and is not safe for concurrent use; adapters serialise access.
type Session struct {
	Config Config

	Phase Phase
	// DeviceReady is the last readiness reported by the sensor.
	DeviceReady bool
	// SubTest is the active sub-test index.
	SubTest int
	// Jumps holds one collection per sub-test.
	Jumps [][]JumpRecord
	// Finished marks sub-tests closed by Finish.
	Finished []bool
	// Averages are the running statistics of the active sub-test.
	Averages Averages
	// Bounced is set when the last event was rejected as contact noise.
	Bounced bool

	open      bool
	startedAt time.Duration
	reference time.Duration
	// priming is set until the first valid flight of a rebound sub-test.
	priming bool
}

// NewSession validates cfg and returns an idle session.
func NewSession(cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.SubTestCount()
	s := &Session{
		Config:   cfg,
		Phase:    PhaseIdle,
		Jumps:    make([][]JumpRecord, n),
		Finished: make([]bool, n),
	}
	s.ResetSubTest(0)
	return s, nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Config.DropHeightsCM = append([]float64(nil), s.Config.DropHeightsCM...)
	c.Jumps = make([][]JumpRecord, len(s.Jumps))
	for i, jumps := range s.Jumps {
		c.Jumps[i] = CloneJumps(jumps)
	}
	c.Finished = append([]bool(nil), s.Finished...)
	return &c
}

// SubTestCount is the number of sub-test slots.
func (s *Session) SubTestCount() int {
	return len(s.Jumps)
}

// ActiveJumps returns the collection of the active sub-test. The slice is
// owned by the session.
func (s *Session) ActiveJumps() []JumpRecord {
	return s.Jumps[s.SubTest]
}

// IntervalOpen reports whether a takeoff is waiting for its landing.
func (s *Session) IntervalOpen() bool {
	return s.open
}

// Rebound reports whether the session runs the continuous rebound protocol.
func (s *Session) Rebound() bool {
	return s.Config.TestType == TestRebound
}

// ResetSubTest is the soft reset of sub-test i: it clears the sub-test's
// jumps, timers and averages and makes it active. Configuration, other
// sub-tests and device readiness are preserved. Resetting twice yields the
// same state as resetting once. Out of range indexes are ignored.
func (s *Session) ResetSubTest(i int) {
	if i < 0 || i >= len(s.Jumps) {
		return
	}
	s.SubTest = i
	s.Jumps[i] = nil
	s.Finished[i] = false
	s.open = false
	s.startedAt = 0
	s.reference = 0
	s.priming = s.Rebound()
	s.Bounced = false
	if s.Phase != PhaseDeviceError {
		s.Phase = s.restingPhase()
	}
	s.recompute()
}

// ResetAll soft-resets every sub-test and activates sub-test 0.
func (s *Session) ResetAll() {
	for i := len(s.Jumps) - 1; i >= 0; i-- {
		s.ResetSubTest(i)
	}
}

// Restore replaces every sub-test collection with a copy of jumps, marks the
// non-empty ones finished and puts the session in PhaseFinished on sub-test
// 0. Used when moving back to an athlete whose result was already taken.
func (s *Session) Restore(jumps [][]JumpRecord) {
	s.ResetAll()
	for i := range s.Jumps {
		if i < len(jumps) && len(jumps[i]) > 0 {
			s.Jumps[i] = CloneJumps(jumps[i])
			s.Finished[i] = true
		}
	}
	if s.Phase != PhaseDeviceError {
		s.Phase = PhaseFinished
	}
	s.recompute()
}

// ToggleExcluded flips the excluded flag of jump i in the active sub-test
// and recomputes the averages. It reports false for an out of range index.
func (s *Session) ToggleExcluded(i int) bool {
	jumps := s.Jumps[s.SubTest]
	if i < 0 || i >= len(jumps) {
		return false
	}
	jumps[i].Excluded = !jumps[i].Excluded
	s.recompute()
	return true
}

func (s *Session) restingPhase() Phase {
	if s.DeviceReady {
		return PhaseReady
	}
	return PhaseIdle
}

// recompute refreshes derived values of the active sub-test.
func (s *Session) recompute() {
	jumps := s.Jumps[s.SubTest]
	if s.Rebound() {
		ScorePerformances(jumps)
	}
	s.Averages = Summarise(jumps)
}
