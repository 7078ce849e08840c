package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/controller"
	"github.com/v0xg/formcheck/internal/discovery"
	"github.com/v0xg/formcheck/internal/executor"
	"github.com/v0xg/formcheck/internal/form"
	"github.com/v0xg/formcheck/internal/job"
	"github.com/v0xg/formcheck/internal/store"
	"github.com/v0xg/formcheck/internal/templates"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return s.validate.Struct(v)
}

func formIndex(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("form_index must be an integer")
	}
	return max(n, 0), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRunAsync(w http.ResponseWriter, r *http.Request) {
	idx, err := formIndex(r.URL.Query().Get("form_index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.deps.Jobs.Start(r.URL.Query().Get("url"), idx)
	if err != nil {
		if errors.Is(err, controller.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("Failed to start job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Jobs.Status(r.URL.Query().Get("job_id"))
	if err != nil {
		if errors.Is(err, controller.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleJobs lists the jobs of this process, newest first, optionally
// narrowed to one result.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	want := job.State(strings.ToUpper(r.URL.Query().Get("result")))
	snaps := s.deps.Jobs.List()
	if want != "" {
		kept := snaps[:0]
		for _, snap := range snaps {
			if snap.State == want {
				kept = append(kept, snap)
			}
		}
		snaps = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": snaps})
}

type discoverRequest struct {
	URL       string `json:"url" validate:"required,http_url"`
	Save      bool   `json:"save"`
	FormIndex int    `json:"form_index" validate:"gte=0"`
}

type discoverResponse struct {
	Forms    []form.Form       `json:"forms"`
	Skipped  []discovery.Skip  `json:"skipped,omitempty"`
	Template *executor.Learned `json:"template,omitempty"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.deps.Explorer.Discover(r.Context(), req.URL, s.opts.DiscoverWait)
	if err != nil {
		s.log.Warn("Discovery failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := discoverResponse{Forms: res.Forms, Skipped: res.Skips}
	if req.Save {
		f, ok := executor.PickForm(res.Forms, req.FormIndex)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "no forms found to save")
			return
		}
		learned, err := executor.Learn(r.Context(), s.deps.Templates, s.deps.Table, s.deps.Suggester, req.URL, f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Template = &learned
	}
	writeJSON(w, http.StatusOK, resp)
}

type saveTemplateRequest struct {
	URL          string        `json:"url" validate:"required,http_url"`
	FormSelector string        `json:"form_selector" validate:"required"`
	FormIndex    int           `json:"form_index" validate:"gte=0"`
	Mapping      *form.Mapping `json:"mapping" validate:"required"`
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := s.deps.Templates.Save(req.URL, req.FormSelector, req.FormIndex, req.Mapping)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": path})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok, err := s.deps.Templates.Load(r.URL.Query().Get("url"))
	switch {
	case errors.Is(err, templates.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case !ok:
		writeError(w, http.StatusNotFound, "no template for host")
	default:
		writeJSON(w, http.StatusOK, tmpl)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	recs, err := s.deps.History.History(r.Context(), r.URL.Query().Get("search"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": recs})
}

type scheduleRequest struct {
	URL       string `json:"url" validate:"required,http_url"`
	FormIndex int    `json:"form_index" validate:"gte=0"`
	Cron      string `json:"cron" validate:"required"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	scheds, err := s.deps.Schedules.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": scheds})
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc, err := s.deps.Schedules.Add(r.Context(), req.URL, req.FormIndex, req.Cron)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Schedules.Remove(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "schedule not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
