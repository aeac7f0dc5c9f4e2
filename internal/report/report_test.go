package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/jump/metrics"
	"github.com/banshee-data/jump.report/internal/jump/result"
)

func rec(flight float64) jump.JumpRecord {
	return jump.JumpRecord{FlightS: flight, HeightCM: metrics.Height(flight)}
}

func floor(v float64) *float64 { return &v }

func dropResult(t *testing.T) *result.Result {
	t.Helper()
	excluded := rec(0.7)
	excluded.Excluded = true
	r, err := result.FromJumps(
		jump.Config{TestType: jump.TestDropJump, SensitivityMS: 100, DropHeightsCM: []float64{20, 40}},
		"anna",
		[][]jump.JumpRecord{{rec(0.50), excluded, rec(0.52)}, {rec(0.55)}},
	)
	require.NoError(t, err)
	return r
}

func reboundResult(t *testing.T) *result.Result {
	t.Helper()
	r, err := result.FromJumps(
		jump.Config{TestType: jump.TestRebound, SensitivityMS: 100},
		"",
		[][]jump.JumpRecord{{
			{FlightS: 0.5, HeightCM: metrics.Height(0.5), FloorS: floor(0.2)},
			{FlightS: 0.45, HeightCM: metrics.Height(0.45), FloorS: floor(0.22)},
			{FlightS: 0.4, HeightCM: metrics.Height(0.4), FloorS: floor(0.25)},
		}},
	)
	require.NoError(t, err)
	return r
}

func TestSeriesOf(t *testing.T) {
	series := SeriesOf(dropResult(t))
	require.Len(t, series, 2)

	assert.Equal(t, "drop 20 cm", series[0].Name)
	assert.Equal(t, "drop 40 cm", series[1].Name)
	assert.Equal(t, 2, series[0].Counted)
	require.Len(t, series[0].HeightsCM, 3)
	assert.True(t, math.IsNaN(series[0].HeightsCM[1]), "excluded jump keeps its slot")
	assert.InDelta(t, metrics.Height(0.52), series[0].HeightsCM[2], 1e-9)

	single, err := result.FromJumps(jump.Config{TestType: jump.TestSingle}.WithDefaults(), "", [][]jump.JumpRecord{{rec(0.4)}})
	require.NoError(t, err)
	assert.Equal(t, string(jump.KindCountermovement), SeriesOf(single)[0].Name)
}

func TestRenderHTML(t *testing.T) {
	tests := []struct {
		name string
		r    *result.Result
		want []string
	}{
		{"drop jump", dropResult(t), []string{"anna - drop_jump", "drop 20 cm", "Average height by drop height"}},
		{"rebound", reboundResult(t), []string{"Rebound fatigue", "performance %"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderHTML(&buf, tt.r))
			out := buf.String()
			assert.Contains(t, out, "<html")
			assert.Contains(t, out, "echarts")
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.png")
	require.NoError(t, SavePNG(path, dropResult(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestPlotSkipsEmptySubTests(t *testing.T) {
	r, err := result.FromJumps(jump.Config{TestType: jump.TestCombined, SensitivityMS: 100}, "", [][]jump.JumpRecord{{rec(0.4)}, nil, nil})
	require.NoError(t, err)
	p, err := Plot(r)
	require.NoError(t, err)
	assert.Equal(t, "combined", p.Title.Text)
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, reboundResult(t)))
	require.Greater(t, buf.Len(), 8)
	assert.Equal(t, []byte("\x89PNG"), buf.Bytes()[:4])
}
