package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/httputil"
	"github.com/banshee-data/jump.report/internal/report"
	"github.com/banshee-data/jump.report/internal/security"
)

const maxListLimit = 500

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := s.results.ListResults(r.Context(), r.URL.Query().Get("athlete_id"), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, list)
}

// loadResult writes the error response itself and returns nil when the
// result cannot be served.
func (s *Server) loadResult(w http.ResponseWriter, r *http.Request) *db.StoredResult {
	id := chi.URLParam(r, "id")
	stored, err := s.results.GetResult(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return nil
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return nil
	}
	return stored
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if stored := s.loadResult(w, r); stored != nil {
		httputil.WriteJSONOK(w, stored)
	}
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.results.DeleteResult(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	s.log.Info().Str("result_id", id).Msg("result deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleChart renders a stored result as an echarts page, or as a PNG
// download with ?format=png.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	stored := s.loadResult(w, r)
	if stored == nil {
		return
	}

	var buf bytes.Buffer
	switch format := r.URL.Query().Get("format"); format {
	case "", "html":
		if err := report.RenderHTML(&buf, stored.Result); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case "png":
		if err := report.WritePNG(&buf, stored.Result); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
			return
		}
		name := security.SanitizeFilename(stored.AthleteID + "-" + string(stored.Result.Type) + "-" + stored.ID)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.png", name))
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown chart format %q", format))
		return
	}
	_, _ = w.Write(buf.Bytes())
}

// handleAthleteJumps lists every stored jump of one athlete, oldest result
// first.
func (s *Server) handleAthleteJumps(w http.ResponseWriter, r *http.Request) {
	rows, err := s.results.AthleteJumps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, rows)
}
