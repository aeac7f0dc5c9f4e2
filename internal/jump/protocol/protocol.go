// Package protocol sequences sub-tests and athletes around a jump.Session.
//
// The Controller owns one session, the roster and the batch entries. Like
// the session it wraps, it is not safe for concurrent use.
package protocol

import (
	"fmt"

	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/jump/result"
)

// Entry pairs an athlete with the result snapshotted when the operator last
// moved past them. Result is nil until the first snapshot.
type Entry struct {
	AthleteID string         `json:"athlete_id"`
	Result    *result.Result `json:"result,omitempty"`
}

// Controller drives a session through a protocol and a roster.
type Controller struct {
	session *jump.Session
	roster  []string
	athlete int
	entries []Entry
}

// New returns a controller on sub-test 0 of the first athlete. An empty
// roster runs a single anonymous athlete.
func New(cfg jump.Config, roster []string) (*Controller, error) {
	s, err := jump.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		session: s,
		roster:  append([]string(nil), roster...),
		entries: make([]Entry, len(roster)),
	}
	seen := make(map[string]bool, len(roster))
	for i, id := range roster {
		if id == "" {
			return nil, fmt.Errorf("roster entry %d has an empty athlete id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("roster lists athlete %q twice", id)
		}
		seen[id] = true
		c.entries[i].AthleteID = id
	}
	return c, nil
}

// Reconfigure replaces the protocol and roster. Batch entries are dropped;
// sensor readiness carries over.
func (c *Controller) Reconfigure(cfg jump.Config, roster []string) error {
	next, err := New(cfg, roster)
	if err != nil {
		return err
	}
	next.session.DeviceReady = c.session.DeviceReady
	switch {
	case c.session.Phase == jump.PhaseDeviceError:
		next.session.Phase = jump.PhaseDeviceError
	case c.session.DeviceReady:
		next.session.Phase = jump.PhaseReady
	}
	*c = *next
	return nil
}

// Session returns a copy of the session state.
func (c *Controller) Session() *jump.Session {
	return c.session.Clone()
}

// Config returns the active protocol configuration.
func (c *Controller) Config() jump.Config {
	return c.session.Config
}

// AthleteID is the id of the current athlete, empty outside batch mode.
func (c *Controller) AthleteID() string {
	if c.athlete < len(c.roster) {
		return c.roster[c.athlete]
	}
	return ""
}

// Entries returns a copy of the batch entries.
func (c *Controller) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Apply feeds one sensor event to the session.
func (c *Controller) Apply(ev jump.Event) jump.Outcome {
	return c.session.Apply(ev)
}

// SoftReset clears the active sub-test and nothing else.
func (c *Controller) SoftReset() {
	c.session.ResetSubTest(c.session.SubTest)
}

// Retry reopens the active sub-test after a finish or a no-jumps error.
// It is the same operation as SoftReset, named for the operator action.
func (c *Controller) Retry() {
	c.SoftReset()
}

// Reinitialise recovers from a device error.
func (c *Controller) Reinitialise() jump.Outcome {
	return c.session.Reinitialise()
}

// ToggleJump flips the excluded flag of jump i in the active sub-test.
func (c *Controller) ToggleJump(i int) bool {
	return c.session.ToggleExcluded(i)
}

// Finish closes the active sub-test. When it closes the last sub-test of
// the protocol the Completed Result is returned as well.
func (c *Controller) Finish() (jump.Outcome, *result.Result, error) {
	out := c.session.Finish()
	if out.Ignored || out.Phase != jump.PhaseFinished {
		return out, nil, nil
	}
	if c.session.SubTest != c.session.SubTestCount()-1 {
		return out, nil, nil
	}
	r, err := result.Build(c.session, c.AthleteID())
	if err != nil {
		return out, nil, fmt.Errorf("build result: %w", err)
	}
	return out, r, nil
}

// NextSubTest moves to the following sub-test of a composite protocol and
// soft-resets it. It reports false, changing nothing, when there is none.
func (c *Controller) NextSubTest() bool {
	return c.moveSubTest(c.session.SubTest + 1)
}

// PrevSubTest is NextSubTest in the other direction.
func (c *Controller) PrevSubTest() bool {
	return c.moveSubTest(c.session.SubTest - 1)
}

func (c *Controller) moveSubTest(i int) bool {
	if !c.session.Config.Composite() || i < 0 || i >= c.session.SubTestCount() {
		return false
	}
	c.session.ResetSubTest(i)
	return true
}

// NextAthlete snapshots the current athlete into its batch entry and moves
// to the next athlete on sub-test 0. The snapshot is returned for
// persistence. It reports false, taking no snapshot, at the end of the
// roster.
func (c *Controller) NextAthlete() (bool, *result.Result, error) {
	return c.moveAthlete(c.athlete + 1)
}

// PrevAthlete is NextAthlete in the other direction.
func (c *Controller) PrevAthlete() (bool, *result.Result, error) {
	return c.moveAthlete(c.athlete - 1)
}

func (c *Controller) moveAthlete(i int) (bool, *result.Result, error) {
	if i < 0 || i >= len(c.roster) {
		return false, nil, nil
	}

	snap, err := result.Build(c.session, c.AthleteID())
	if err != nil {
		return false, nil, fmt.Errorf("snapshot athlete %q: %w", c.AthleteID(), err)
	}
	c.entries[c.athlete].Result = snap

	c.athlete = i
	if prev := c.entries[i].Result; prev != nil {
		c.session.Restore(prev.SubTests)
	} else {
		c.session.ResetAll()
	}
	return true, snap, nil
}
