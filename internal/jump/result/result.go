// Package result assembles the finalized, type-tagged record of a test run.
//
// A Result carries a Type tag and exactly one non-nil variant pointer. The
// stored sub-test collections keep excluded jumps so a result can be audited
// or re-opened; every summary figure ignores them.
package result

import (
	"fmt"

	"github.com/banshee-data/jump.report/internal/jump"
)

// Result is a Completed Result.
type Result struct {
	Type      jump.TestType `json:"type" msgpack:"type"`
	AthleteID string        `json:"athlete_id,omitempty" msgpack:"athlete_id,omitempty"`
	Config    jump.Config   `json:"config" msgpack:"config"`
	// SubTests holds one jump collection per sub-test, excluded jumps
	// included.
	SubTests [][]jump.JumpRecord `json:"sub_tests" msgpack:"sub_tests"`

	Single   *Single   `json:"single,omitempty" msgpack:"single,omitempty"`
	Combined *Combined `json:"combined,omitempty" msgpack:"combined,omitempty"`
	DropJump *DropJump `json:"drop_jump,omitempty" msgpack:"drop_jump,omitempty"`
	Rebound  *Rebound  `json:"rebound,omitempty" msgpack:"rebound,omitempty"`
}

// Part summarises one sub-test.
type Part struct {
	Kind jump.JumpKind `json:"kind" msgpack:"kind"`
	// DropHeightCM is set for drop-jump parts only.
	DropHeightCM float64       `json:"drop_height_cm,omitempty" msgpack:"drop_height_cm,omitempty"`
	Averages     jump.Averages `json:"averages" msgpack:"averages"`
}

// Single is the summary of a one-movement test.
type Single struct {
	Part
}

// Combined is the summary of the squat / countermovement / Abalakov protocol.
type Combined struct {
	Squat           Part `json:"squat" msgpack:"squat"`
	Countermovement Part `json:"countermovement" msgpack:"countermovement"`
	Abalakov        Part `json:"abalakov" msgpack:"abalakov"`
	// ElasticityIndex is (CMJ - SJ) / SJ * 100.
	ElasticityIndex float64 `json:"elasticity_index" msgpack:"elasticity_index"`
	// ArmIndex is (ABK - CMJ) / CMJ * 100.
	ArmIndex float64 `json:"arm_index" msgpack:"arm_index"`
}

// DropJump is the summary of a drop-height sequence.
type DropJump struct {
	Heights []Part `json:"heights" msgpack:"heights"`
	// BestDropHeightCM is the drop height with the highest average jump
	// height. Zero when no height has a counted jump.
	BestDropHeightCM float64 `json:"best_drop_height_cm" msgpack:"best_drop_height_cm"`
}

// ReboundJump is one counted jump of a rebound series.
type ReboundJump struct {
	// Index is the position of the jump in the stored collection.
	Index       int     `json:"index" msgpack:"index"`
	FlightS     float64 `json:"flight_s" msgpack:"flight_s"`
	FloorS      float64 `json:"floor_s" msgpack:"floor_s"`
	HeightCM    float64 `json:"height_cm" msgpack:"height_cm"`
	Stiffness   float64 `json:"stiffness" msgpack:"stiffness"`
	Performance float64 `json:"performance" msgpack:"performance"`
}

// Rebound is the summary of a continuous rebound test.
type Rebound struct {
	Part
	Jumps []ReboundJump `json:"jumps" msgpack:"jumps"`
	// TotalDurationS is the floor plus flight time of every completed jump,
	// excluded ones included, since they still took place.
	TotalDurationS float64 `json:"total_duration_s" msgpack:"total_duration_s"`
}

// Build produces the Completed Result of a session. The session is not
// modified and the result shares no memory with it.
func Build(s *jump.Session, athleteID string) (*Result, error) {
	return FromJumps(s.Config, athleteID, s.Jumps)
}

// FromJumps builds a result from raw sub-test collections. Collections are
// copied and rebound performances are rescored on the copy.
func FromJumps(cfg jump.Config, athleteID string, subTests [][]jump.JumpRecord) (*Result, error) {
	if want := cfg.SubTestCount(); len(subTests) != want {
		return nil, fmt.Errorf("%s result needs %d sub-tests, got %d", cfg.TestType, want, len(subTests))
	}

	r := &Result{
		Type:      cfg.TestType,
		AthleteID: athleteID,
		Config:    cfg,
		SubTests:  make([][]jump.JumpRecord, len(subTests)),
	}
	r.Config.DropHeightsCM = append([]float64(nil), cfg.DropHeightsCM...)
	for i, jumps := range subTests {
		r.SubTests[i] = jump.CloneJumps(jumps)
	}

	switch cfg.TestType {
	case jump.TestSingle:
		r.Single = &Single{Part: r.part(0)}
	case jump.TestCombined:
		r.Combined = buildCombined(r)
	case jump.TestDropJump:
		r.DropJump = buildDropJump(r)
	case jump.TestRebound:
		jump.ScorePerformances(r.SubTests[0])
		r.Rebound = buildRebound(r)
	default:
		return nil, fmt.Errorf("unknown test type %q", cfg.TestType)
	}
	return r, nil
}

func (r *Result) part(i int) Part {
	p := Part{
		Kind:     r.Config.SubTestKind(i),
		Averages: jump.Summarise(r.SubTests[i]),
	}
	if r.Type == jump.TestDropJump {
		p.DropHeightCM = r.Config.DropHeightsCM[i]
	}
	return p
}

func buildCombined(r *Result) *Combined {
	c := &Combined{
		Squat:           r.part(0),
		Countermovement: r.part(1),
		Abalakov:        r.part(2),
	}
	sj := c.Squat.Averages.HeightCM
	cmj := c.Countermovement.Averages.HeightCM
	abk := c.Abalakov.Averages.HeightCM
	c.ElasticityIndex = relativeGain(cmj, sj)
	c.ArmIndex = relativeGain(abk, cmj)
	return c
}

// relativeGain is (v - base) / base * 100, zero when base is zero.
func relativeGain(v, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (v - base) / base * 100
}

func buildDropJump(r *Result) *DropJump {
	d := &DropJump{Heights: make([]Part, len(r.SubTests))}
	bestAvg := 0.0
	for i := range r.SubTests {
		p := r.part(i)
		d.Heights[i] = p
		if p.Averages.Count == 0 {
			continue
		}
		avg := p.Averages.HeightCM
		switch {
		case avg > bestAvg:
			bestAvg, d.BestDropHeightCM = avg, p.DropHeightCM
		case avg == bestAvg && p.DropHeightCM < d.BestDropHeightCM:
			d.BestDropHeightCM = p.DropHeightCM
		}
	}
	return d
}

func buildRebound(r *Result) *Rebound {
	jumps := r.SubTests[0]
	rb := &Rebound{Part: r.part(0), Jumps: []ReboundJump{}}
	for i, j := range jumps {
		if j.Pending() {
			continue
		}
		floor := deref(j.FloorS)
		rb.TotalDurationS += j.FlightS + floor
		if j.Excluded {
			continue
		}
		rb.Jumps = append(rb.Jumps, ReboundJump{
			Index:       i,
			FlightS:     j.FlightS,
			FloorS:      floor,
			HeightCM:    j.HeightCM,
			Stiffness:   deref(j.Stiffness),
			Performance: deref(j.Performance),
		})
	}
	return rb
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// HeadlineCM is the single figure shown in result lists: the average height
// of the protocol's key movement.
func (r *Result) HeadlineCM() float64 {
	switch {
	case r.Single != nil:
		return r.Single.Averages.HeightCM
	case r.Combined != nil:
		return r.Combined.Countermovement.Averages.HeightCM
	case r.DropJump != nil:
		for _, h := range r.DropJump.Heights {
			if h.DropHeightCM == r.DropJump.BestDropHeightCM {
				return h.Averages.HeightCM
			}
		}
		return 0
	case r.Rebound != nil:
		return r.Rebound.Averages.HeightCM
	}
	return 0
}

// JumpCount is the number of stored jumps across all sub-tests, excluded
// ones included.
func (r *Result) JumpCount() int {
	n := 0
	for _, jumps := range r.SubTests {
		n += len(jumps)
	}
	return n
}

// Validate checks the tag and variant pointers agree. Results decoded from
// storage are validated before use.
func (r *Result) Validate() error {
	set := 0
	for _, ok := range []bool{r.Single != nil, r.Combined != nil, r.DropJump != nil, r.Rebound != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("result must carry exactly one variant, has %d", set)
	}
	var ok bool
	switch r.Type {
	case jump.TestSingle:
		ok = r.Single != nil
	case jump.TestCombined:
		ok = r.Combined != nil
	case jump.TestDropJump:
		ok = r.DropJump != nil
	case jump.TestRebound:
		ok = r.Rebound != nil
	}
	if !ok {
		return fmt.Errorf("result tagged %q carries the wrong variant", r.Type)
	}
	return nil
}
