package result

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/jump/metrics"
)

func ms(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }

// record plays ground→air→ground cycles through s. Each pair is the ground
// time before takeoff and the flight time, in milliseconds.
func record(t *testing.T, s *jump.Session, cycles ...[2]float64) {
	t.Helper()
	at := 0.0
	for _, c := range cycles {
		at += c[0]
		s.Apply(jump.Event{Type: jump.EventAirborne, At: ms(at)})
		at += c[1]
		s.Apply(jump.Event{Type: jump.EventContact, At: ms(at)})
	}
}

func newSession(t *testing.T, cfg jump.Config) *jump.Session {
	t.Helper()
	s, err := jump.NewSession(cfg)
	require.NoError(t, err)
	s.Apply(jump.Event{Type: jump.EventReady})
	return s
}

func TestBuildSingle(t *testing.T) {
	s := newSession(t, jump.Config{TestType: jump.TestSingle})
	record(t, s, [2]float64{0, 300}, [2]float64{500, 400}, [2]float64{500, 500})
	s.ToggleExcluded(2)
	s.Finish()

	r, err := Build(s, "ath-1")
	require.NoError(t, err)
	require.NoError(t, r.Validate())

	assert.Equal(t, jump.TestSingle, r.Type)
	assert.Equal(t, "ath-1", r.AthleteID)
	require.NotNil(t, r.Single)
	assert.Nil(t, r.Combined)
	assert.Nil(t, r.DropJump)
	assert.Nil(t, r.Rebound)

	assert.Equal(t, jump.KindCountermovement, r.Single.Kind)
	assert.Equal(t, 2, r.Single.Averages.Count)
	assert.Equal(t, 1, r.Single.Averages.Excluded)
	assert.InDelta(t, (metrics.Height(0.3)+metrics.Height(0.4))/2, r.Single.Averages.HeightCM, 1e-9)
	assert.InDelta(t, metrics.Height(0.4), r.Single.Averages.BestHeightCM, 1e-9)
	assert.InDelta(t, 0.35, r.Single.Averages.FlightS, 1e-9)

	// excluded jumps stay in the stored collection
	require.Len(t, r.SubTests[0], 3)
	assert.True(t, r.SubTests[0][2].Excluded)
	assert.Equal(t, 3, r.JumpCount())
	assert.InDelta(t, r.Single.Averages.HeightCM, r.HeadlineCM(), 1e-12)
}

func TestBuildDoesNotAliasSession(t *testing.T) {
	s := newSession(t, jump.Config{TestType: jump.TestSingle})
	record(t, s, [2]float64{0, 300})

	r, err := Build(s, "")
	require.NoError(t, err)
	s.ToggleExcluded(0)
	assert.False(t, r.SubTests[0][0].Excluded)
}

func TestBuildIsDeterministic(t *testing.T) {
	s := newSession(t, jump.Config{TestType: jump.TestRebound})
	record(t, s, [2]float64{0, 300}, [2]float64{200, 450}, [2]float64{180, 420})

	a, err := Build(s, "x")
	require.NoError(t, err)
	b, err := Build(s, "x")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(a, b))
}

func TestBuildCombined(t *testing.T) {
	s := newSession(t, jump.Config{TestType: jump.TestCombined})
	heights := []float64{400, 450, 500} // flight ms per part
	for i, f := range heights {
		s.ResetSubTest(i)
		record(t, s, [2]float64{0, f})
		s.Finish()
	}

	r, err := Build(s, "a")
	require.NoError(t, err)
	require.NotNil(t, r.Combined)

	sj := metrics.Height(0.4)
	cmj := metrics.Height(0.45)
	abk := metrics.Height(0.5)
	assert.Equal(t, jump.KindSquat, r.Combined.Squat.Kind)
	assert.Equal(t, jump.KindCountermovement, r.Combined.Countermovement.Kind)
	assert.Equal(t, jump.KindAbalakov, r.Combined.Abalakov.Kind)
	assert.InDelta(t, (cmj-sj)/sj*100, r.Combined.ElasticityIndex, 1e-9)
	assert.InDelta(t, (abk-cmj)/cmj*100, r.Combined.ArmIndex, 1e-9)
	assert.InDelta(t, cmj, r.HeadlineCM(), 1e-9)
}

func TestBuildCombinedZeroDenominator(t *testing.T) {
	s := newSession(t, jump.Config{TestType: jump.TestCombined})
	s.ResetSubTest(1)
	record(t, s, [2]float64{0, 450})

	r, err := Build(s, "")
	require.NoError(t, err)
	assert.Zero(t, r.Combined.ElasticityIndex, "squat part is empty")
	assert.InDelta(t, -100, r.Combined.ArmIndex, 1e-9, "empty abalakov part is a full loss")
}

func TestBuildDropJump(t *testing.T) {
	tests := []struct {
		name    string
		heights []float64
		flights []float64 // one jump per height, 0 for none
		best    float64
	}{
		{"highest average wins", []float64{20, 40, 60}, []float64{400, 480, 450}, 40},
		{"tie goes to lower height", []float64{20, 40, 60}, []float64{400, 480, 480}, 40},
		{"unordered heights tie", []float64{60, 30}, []float64{450, 450}, 30},
		{"empty heights skipped", []float64{20, 40}, []float64{0, 300}, 40},
		{"nothing recorded", []float64{20, 40}, []float64{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, jump.Config{TestType: jump.TestDropJump, DropHeightsCM: tt.heights})
			for i, f := range tt.flights {
				s.ResetSubTest(i)
				if f > 0 {
					record(t, s, [2]float64{0, f})
				}
			}

			r, err := Build(s, "")
			require.NoError(t, err)
			require.NotNil(t, r.DropJump)
			require.Len(t, r.DropJump.Heights, len(tt.heights))
			for i, h := range tt.heights {
				assert.Equal(t, h, r.DropJump.Heights[i].DropHeightCM)
				assert.Equal(t, jump.KindDrop, r.DropJump.Heights[i].Kind)
			}
			assert.Equal(t, tt.best, r.DropJump.BestDropHeightCM)
		})
	}
}

func TestBuildRebound(t *testing.T) {
	s := newSession(t, jump.Config{TestType: jump.TestRebound, SensitivityMS: 50})
	// priming, then three rebounds
	record(t, s, [2]float64{0, 300}, [2]float64{200, 500}, [2]float64{250, 400}, [2]float64{200, 300})
	s.ToggleExcluded(1)
	s.Finish()

	r, err := Build(s, "r")
	require.NoError(t, err)
	require.NotNil(t, r.Rebound)
	assert.Equal(t, jump.KindRebound, r.Rebound.Kind)

	require.Len(t, r.Rebound.Jumps, 2)
	assert.Equal(t, 0, r.Rebound.Jumps[0].Index)
	assert.Equal(t, 2, r.Rebound.Jumps[1].Index)
	assert.InDelta(t, 0.2, r.Rebound.Jumps[0].FloorS, 1e-9)
	assert.InDelta(t, metrics.Stiffness(0.5, 0.2), r.Rebound.Jumps[0].Stiffness, 1e-9)
	assert.InDelta(t, 100, r.Rebound.Jumps[0].Performance, 1e-9)
	assert.InDelta(t, 100*0.36, r.Rebound.Jumps[1].Performance, 1e-9)

	assert.Equal(t, 2, r.Rebound.Averages.Count)
	assert.InDelta(t, 0.2, r.Rebound.Averages.FloorS, 1e-9)
	assert.InDelta(t, 68, r.Rebound.Averages.Performance, 1e-9)
	assert.InDelta(t, 0.2+0.5+0.25+0.4+0.2+0.3, r.Rebound.TotalDurationS, 1e-9)
}

func TestFromJumpsRejectsShape(t *testing.T) {
	_, err := FromJumps(jump.Config{TestType: jump.TestCombined}, "", make([][]jump.JumpRecord, 1))
	assert.Error(t, err)

	_, err = FromJumps(jump.Config{TestType: "bogus"}, "", make([][]jump.JumpRecord, 1))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	single := &Result{Type: jump.TestSingle, Single: &Single{}}
	assert.NoError(t, single.Validate())

	assert.Error(t, (&Result{Type: jump.TestSingle}).Validate())
	assert.Error(t, (&Result{Type: jump.TestSingle, Rebound: &Rebound{}}).Validate())
	assert.Error(t, (&Result{Type: jump.TestSingle, Single: &Single{}, Rebound: &Rebound{}}).Validate())
}
