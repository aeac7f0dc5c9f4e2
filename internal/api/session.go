package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/banshee-data/jump.report/internal/httputil"
	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/station"
	"github.com/banshee-data/jump.report/internal/version"
)

// configureRequest is the body of POST /api/session/configure.
type configureRequest struct {
	TestType      string    `json:"test_type"`
	SensitivityMS float64   `json:"sensitivity_ms,omitempty"`
	DropHeightsCM []float64 `json:"drop_heights_cm,omitempty"`
	TakeoffFoot   string    `json:"takeoff_foot,omitempty"`
	Kind          string    `json:"kind,omitempty"`
	Roster        []string  `json:"roster,omitempty"`
}

func (c configureRequest) config() (jump.Config, error) {
	tt, err := jump.ParseTestType(c.TestType)
	if err != nil {
		return jump.Config{}, err
	}
	if c.SensitivityMS < 0 {
		return jump.Config{}, jump.ErrSensitivity
	}
	return jump.Config{
		TestType:      tt,
		SensitivityMS: c.SensitivityMS,
		DropHeightsCM: c.DropHeightsCM,
		TakeoffFoot:   jump.TakeoffFoot(c.TakeoffFoot),
		Kind:          jump.JumpKind(c.Kind),
	}, nil
}

// moveResponse answers the navigation and toggle actions, which are no-ops
// out of bounds.
type moveResponse struct {
	Advanced bool           `json:"advanced"`
	Status   station.Status `json:"status"`
}

type toggleResponse struct {
	Toggled bool           `json:"toggled"`
	Status  station.Status `json:"status"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.station.Status())
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cfg, err := req.config()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	st, err := s.station.Configure(cfg, req.Roster)
	switch {
	case errors.Is(err, station.ErrIntervalOpen):
		httputil.Conflict(w, err.Error())
	case err != nil:
		httputil.BadRequest(w, err.Error())
	default:
		httputil.WriteJSONOK(w, st)
	}
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	st, err := s.station.Finish(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("finish")
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.station.Retry())
}

func (s *Server) handleReinitialise(w http.ResponseWriter, r *http.Request) {
	st, err := s.station.Reinitialise()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) handleSubTest(w http.ResponseWriter, r *http.Request) {
	var moved bool
	var st station.Status
	switch chi.URLParam(r, "direction") {
	case "next":
		moved, st = s.station.NextSubTest()
	case "prev":
		moved, st = s.station.PrevSubTest()
	default:
		httputil.NotFound(w, "direction must be next or prev")
		return
	}
	httputil.WriteJSONOK(w, moveResponse{Advanced: moved, Status: st})
}

func (s *Server) handleAthlete(w http.ResponseWriter, r *http.Request) {
	var (
		moved bool
		st    station.Status
		err   error
	)
	switch chi.URLParam(r, "direction") {
	case "next":
		moved, st, err = s.station.NextAthlete(r.Context())
	case "prev":
		moved, st, err = s.station.PrevAthlete(r.Context())
	default:
		httputil.NotFound(w, "direction must be next or prev")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("athlete move")
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, moveResponse{Advanced: moved, Status: st})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httputil.BadRequest(w, "jump index must be an integer")
		return
	}
	ok, st := s.station.ToggleJump(i)
	httputil.WriteJSONOK(w, toggleResponse{Toggled: ok, Status: st})
}
