package jump

import (
	"github.com/banshee-data/jump.report/internal/jump/metrics"
)

// JumpRecord is one ground→air→ground cycle.
//
// Records keep their position in the collection for their whole life:
// Excluded is the only way to discard a rep, so index references from the
// UI stay valid and the discarded reps remain auditable.
type JumpRecord struct {
	// FlightS is the airborne time in seconds. Zero marks a rebound
	// placeholder whose landing has not been seen yet.
	FlightS  float64 `json:"flight_s" msgpack:"flight_s"`
	HeightCM float64 `json:"height_cm" msgpack:"height_cm"`
	Excluded bool    `json:"excluded" msgpack:"excluded"`

	// Rebound only.
	FloorS      *float64 `json:"floor_s,omitempty" msgpack:"floor_s,omitempty"`
	Stiffness   *float64 `json:"stiffness,omitempty" msgpack:"stiffness,omitempty"`
	Performance *float64 `json:"performance,omitempty" msgpack:"performance,omitempty"`
}

// Pending reports whether the record is a placeholder with no flight yet.
func (r JumpRecord) Pending() bool {
	return r.FlightS == 0
}

// Counted reports whether the record contributes to summary statistics.
func (r JumpRecord) Counted() bool {
	return !r.Excluded && !r.Pending()
}

func (r JumpRecord) clone() JumpRecord {
	c := r
	c.FloorS = cloneFloat(r.FloorS)
	c.Stiffness = cloneFloat(r.Stiffness)
	c.Performance = cloneFloat(r.Performance)
	return c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func floatPtr(v float64) *float64 { return &v }

// CloneJumps deep-copies a collection so the copy can be mutated freely.
func CloneJumps(jumps []JumpRecord) []JumpRecord {
	if jumps == nil {
		return nil
	}
	out := make([]JumpRecord, len(jumps))
	for i, j := range jumps {
		out[i] = j.clone()
	}
	return out
}

// newCompletedRecord builds the record for a non-rebound landing.
func newCompletedRecord(flight float64) JumpRecord {
	return JumpRecord{
		FlightS:  flight,
		HeightCM: metrics.Height(flight),
	}
}

// complete fills the flight of a rebound placeholder.
func (r *JumpRecord) complete(flight float64) {
	r.FlightS = flight
	r.HeightCM = metrics.Height(flight)
	if r.FloorS != nil && *r.FloorS > 0 {
		r.Stiffness = floatPtr(metrics.Stiffness(flight, *r.FloorS))
	}
}

// Averages are the running statistics of one sub-test over its counted
// records. Rebound-only fields stay zero for the other protocols.
type Averages struct {
	Count        int     `json:"count" msgpack:"count"`
	Excluded     int     `json:"excluded" msgpack:"excluded"`
	FlightS      float64 `json:"flight_s" msgpack:"flight_s"`
	HeightCM     float64 `json:"height_cm" msgpack:"height_cm"`
	HeightSDCM   float64 `json:"height_sd_cm" msgpack:"height_sd_cm"`
	BestHeightCM float64 `json:"best_height_cm" msgpack:"best_height_cm"`

	FloorS          float64 `json:"floor_s,omitempty" msgpack:"floor_s,omitempty"`
	Stiffness       float64 `json:"stiffness,omitempty" msgpack:"stiffness,omitempty"`
	Performance     float64 `json:"performance,omitempty" msgpack:"performance,omitempty"`
	PerformanceDrop float64 `json:"performance_drop,omitempty" msgpack:"performance_drop,omitempty"`
}

// ScorePerformances recomputes the per-jump performance of a rebound series:
// each counted jump's height as a percentage of the best counted height.
// Excluded and pending records carry no performance.
func ScorePerformances(jumps []JumpRecord) {
	var heights []float64
	var idx []int
	for i, j := range jumps {
		if !j.Counted() {
			jumps[i].Performance = nil
			continue
		}
		heights = append(heights, j.HeightCM)
		idx = append(idx, i)
	}
	for k, p := range metrics.Performances(heights) {
		jumps[idx[k]].Performance = floatPtr(p)
	}
}

// Summarise computes the statistics of a collection, ignoring excluded and
// pending records. It never mutates the collection.
func Summarise(jumps []JumpRecord) Averages {
	var flights, heights, floors, stiffness, perf []float64
	excluded := 0
	for _, j := range jumps {
		if j.Excluded {
			excluded++
		}
		if !j.Counted() {
			continue
		}
		flights = append(flights, j.FlightS)
		heights = append(heights, j.HeightCM)
		if j.FloorS != nil {
			floors = append(floors, *j.FloorS)
		}
		if j.Stiffness != nil {
			stiffness = append(stiffness, *j.Stiffness)
		}
		if j.Performance != nil {
			perf = append(perf, *j.Performance)
		}
	}

	return Averages{
		Count:           len(flights),
		Excluded:        excluded,
		FlightS:         metrics.Mean(flights),
		HeightCM:        metrics.Mean(heights),
		HeightSDCM:      metrics.StdDev(heights),
		BestHeightCM:    metrics.Max(heights),
		FloorS:          metrics.Mean(floors),
		Stiffness:       metrics.Mean(stiffness),
		Performance:     metrics.Mean(perf),
		PerformanceDrop: metrics.PerformanceDrop(perf),
	}
}
