package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/station"
	"github.com/banshee-data/jump.report/internal/timeutil"
	"github.com/banshee-data/jump.report/internal/version"
)

type harness struct {
	srv *Server
	st  *station.Station
	db  *db.DB
}

func newHarness(t *testing.T, cfg jump.Config, roster ...string) *harness {
	t.Helper()
	nop := zerolog.Nop()

	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	st, err := station.New(station.Options{
		Config: cfg,
		Roster: roster,
		Store:  store,
		Clock:  timeutil.NewMockClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)),
		Logger: &nop,
	})
	require.NoError(t, err)

	srv := NewServer(Config{Station: st, Results: store, Log: &nop})
	return &harness{srv: srv, st: st, db: store}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

// feed plays a ready signal and valid jumps of the given flight times.
func (h *harness) feed(t *testing.T, flightsMS ...int) {
	t.Helper()
	_, err := h.st.HandleLine("READY")
	require.NoError(t, err)
	at := 0
	for _, f := range flightsMS {
		at += 250
		_, err = h.st.HandleLine("1," + strconv.Itoa(at))
		require.NoError(t, err)
		at += f
		_, err = h.st.HandleLine("0," + strconv.Itoa(at))
		require.NoError(t, err)
	}
}

func single() jump.Config {
	return jump.Config{TestType: jump.TestSingle, SensitivityMS: 100}
}

func TestVersion(t *testing.T) {
	h := newHarness(t, single())
	w := h.do(t, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[version.Info](t, w)
	assert.Equal(t, version.Version, info.Version)
}

func TestSessionStatus(t *testing.T) {
	h := newHarness(t, single())
	h.feed(t, 300)

	w := h.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[station.Status](t, w)
	assert.Equal(t, jump.PhaseReady, st.Phase)
	require.Len(t, st.Jumps, 1)
	assert.InDelta(t, 11.036, st.Jumps[0].HeightCM, 0.01)
}

func TestFinishAndFetchResult(t *testing.T) {
	h := newHarness(t, single())
	h.feed(t, 400, 450)

	w := h.do(t, http.MethodPost, "/api/session/finish", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[station.Status](t, w)
	assert.Equal(t, jump.PhaseFinished, st.Phase)
	require.NotEmpty(t, st.LastResultID)

	w = h.do(t, http.MethodGet, "/api/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]db.ResultSummary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, st.LastResultID, list[0].ID)
	assert.Equal(t, 2, list[0].JumpCount)

	w = h.do(t, http.MethodGet, "/api/results/"+st.LastResultID, "")
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[db.StoredResult](t, w)
	require.NotNil(t, stored.Result.Single)
	assert.Equal(t, 2, stored.Result.Single.Averages.Count)

	w = h.do(t, http.MethodGet, "/api/results/"+st.LastResultID+"/chart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "echarts")

	w = h.do(t, http.MethodGet, "/api/results/"+st.LastResultID+"/chart?format=png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "single-"+st.LastResultID+".png")

	w = h.do(t, http.MethodGet, "/api/results/"+st.LastResultID+"/chart?format=gif", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodDelete, "/api/results/"+st.LastResultID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(t, http.MethodDelete, "/api/results/"+st.LastResultID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodGet, "/api/results/"+st.LastResultID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListResultsQuery(t *testing.T) {
	h := newHarness(t, single(), "anna", "ben")
	h.feed(t, 400)
	w := h.do(t, http.MethodPost, "/api/session/athlete/next", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/results?athlete_id=anna&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]db.ResultSummary](t, w), 1)

	w = h.do(t, http.MethodGet, "/api/results?athlete_id=ben", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]db.ResultSummary](t, w))

	w = h.do(t, http.MethodGet, "/api/athletes/anna/jumps", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]db.JumpRow](t, w)
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.4, rows[0].FlightS, 1e-9)

	for _, bad := range []string{"0", "-1", "many"} {
		w = h.do(t, http.MethodGet, "/api/results?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestFinishNoJumps(t *testing.T) {
	h := newHarness(t, single())
	h.feed(t)

	w := h.do(t, http.MethodPost, "/api/session/finish", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jump.PhaseNoJumpsError, decode[station.Status](t, w).Phase)

	w = h.do(t, http.MethodPost, "/api/session/retry", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jump.PhaseReady, decode[station.Status](t, w).Phase)
}

func TestSubTestAndAthleteNavigation(t *testing.T) {
	h := newHarness(t, jump.Config{TestType: jump.TestCombined}, "anna", "ben")

	tests := []struct {
		path     string
		advanced bool
	}{
		{"/api/session/subtest/next", true},
		{"/api/session/subtest/next", true},
		{"/api/session/subtest/next", false},
		{"/api/session/subtest/prev", true},
		{"/api/session/athlete/prev", false},
		{"/api/session/athlete/next", true},
		{"/api/session/athlete/next", false},
	}
	for _, tt := range tests {
		w := h.do(t, http.MethodPost, tt.path, "")
		require.Equal(t, http.StatusOK, w.Code, tt.path)
		resp := decode[moveResponse](t, w)
		assert.Equal(t, tt.advanced, resp.Advanced, tt.path)
	}
	assert.Equal(t, "ben", h.st.Status().AthleteID)
	assert.Equal(t, 0, h.st.Status().SubTest)

	w := h.do(t, http.MethodPost, "/api/session/subtest/sideways", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggle(t *testing.T) {
	h := newHarness(t, single())
	h.feed(t, 400, 500)

	w := h.do(t, http.MethodPost, "/api/session/jumps/1/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[toggleResponse](t, w)
	assert.True(t, resp.Toggled)
	assert.True(t, resp.Status.Jumps[1].Excluded)
	assert.Equal(t, 1, resp.Status.Averages.Count)

	w = h.do(t, http.MethodPost, "/api/session/jumps/9/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[toggleResponse](t, w).Toggled)

	w = h.do(t, http.MethodPost, "/api/session/jumps/x/toggle", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigure(t *testing.T) {
	h := newHarness(t, single())

	w := h.do(t, http.MethodPost, "/api/session/configure", `{"test_type":"drop_jump","drop_heights_cm":[20,40,60],"roster":["anna"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[station.Status](t, w)
	assert.Equal(t, jump.TestDropJump, st.TestType)
	assert.Equal(t, 3, st.SubTestCount)
	assert.Equal(t, 20.0, st.DropHeightCM)

	for _, body := range []string{
		``,
		`{"test_type":"triple"}`,
		`{"test_type":"drop_jump"}`,
		`{"test_type":"single","sensitivity_ms":-5}`,
		`{"test_type":"single","colour":"red"}`,
		`{"test_type":"single","roster":["a","a"]}`,
	} {
		w = h.do(t, http.MethodPost, "/api/session/configure", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestConfigureConflictWhileAirborne(t *testing.T) {
	h := newHarness(t, single())
	h.feed(t)
	_, err := h.st.HandleLine("1,100")
	require.NoError(t, err)

	w := h.do(t, http.MethodPost, "/api/session/configure", `{"test_type":"rebound"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReinitialise(t *testing.T) {
	h := newHarness(t, single())
	h.feed(t, 400)
	_, err := h.st.HandleLine("ERROR lost sync")
	require.NoError(t, err)

	w := h.do(t, http.MethodPost, "/api/session/reinitialise", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jump.PhaseIdle, decode[station.Status](t, w).Phase)
}

func TestCORS(t *testing.T) {
	h := newHarness(t, single())
	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLive(t *testing.T) {
	h := newHarness(t, single())
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/live", nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var first station.Status
	require.NoError(t, wsjson.Read(ctx, c, &first))
	assert.Equal(t, jump.PhaseIdle, first.Phase)

	_, err = h.st.HandleLine("READY")
	require.NoError(t, err)

	var next station.Status
	require.NoError(t, wsjson.Read(ctx, c, &next))
	assert.Equal(t, jump.PhaseReady, next.Phase)
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t, []string{"localhost:5173", "example.com"}, originHosts([]string{"http://localhost:5173", "example.com"}))
}
