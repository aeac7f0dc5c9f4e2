package protocol

import "github.com/banshee-data/jump.report/internal/jump"

// Status is a read-only snapshot of the controller for presentation.
type Status struct {
	Phase        jump.Phase       `json:"phase"`
	DeviceReady  bool             `json:"device_ready"`
	IntervalOpen bool             `json:"interval_open"`
	Bounced      bool             `json:"bounced"`
	TestType     jump.TestType    `json:"test_type"`
	TakeoffFoot  jump.TakeoffFoot `json:"takeoff_foot"`

	SubTest      int           `json:"sub_test"`
	SubTestCount int           `json:"sub_test_count"`
	SubTestKind  jump.JumpKind `json:"sub_test_kind"`
	DropHeightCM float64       `json:"drop_height_cm,omitempty"`
	Finished     []bool        `json:"finished"`

	Jumps    []jump.JumpRecord `json:"jumps"`
	Averages jump.Averages     `json:"averages"`

	AthleteIndex int     `json:"athlete_index"`
	AthleteID    string  `json:"athlete_id,omitempty"`
	Roster       []Entry `json:"roster,omitempty"`
}

// Status captures the current state. Jumps, Finished and the Roster slice are
// copies; the Roster entries' Result pointers are shared with the batch and
// must be treated as read-only.
func (c *Controller) Status() Status {
	s := c.session
	st := Status{
		Phase:        s.Phase,
		DeviceReady:  s.DeviceReady,
		IntervalOpen: s.IntervalOpen(),
		Bounced:      s.Bounced,
		TestType:     s.Config.TestType,
		TakeoffFoot:  s.Config.TakeoffFoot,
		SubTest:      s.SubTest,
		SubTestCount: s.SubTestCount(),
		SubTestKind:  s.Config.SubTestKind(s.SubTest),
		Finished:     append([]bool(nil), s.Finished...),
		Jumps:        jump.CloneJumps(s.ActiveJumps()),
		Averages:     s.Averages,
		AthleteIndex: c.athlete,
		AthleteID:    c.AthleteID(),
		Roster:       c.Entries(),
	}
	if st.Jumps == nil {
		st.Jumps = []jump.JumpRecord{}
	}
	if s.Config.TestType == jump.TestDropJump {
		st.DropHeightCM = s.Config.DropHeightsCM[s.SubTest]
	}
	return st
}
