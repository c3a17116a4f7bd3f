package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/compile"
	"github.com/lendscope-labs/lendscope/internal/pipeline"
	"github.com/lendscope-labs/lendscope/internal/plan"
	"github.com/lendscope-labs/lendscope/internal/validate"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error       string   `json:"error"`
	Dimension   string   `json:"dimension,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// intentDescriptor describes one intent for catalog discovery.
type intentDescriptor struct {
	Intent         string   `json:"intent"`
	Description    string   `json:"description"`
	Dimensions     []string `json:"dimensions,omitempty"`
	DefaultGroupBy string   `json:"default_group_by,omitempty"`
}

// catalogResponse is the full vocabulary a plan producer can draw from.
type catalogResponse struct {
	Intents    []intentDescriptor `json:"intents"`
	Metrics    []string           `json:"metrics"`
	Dimensions []string           `json:"dimensions"`
	Windows    []string           `json:"windows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPlanBytes)

	var p plan.Plan
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, r, &pipeline.PlanError{Err: fmt.Errorf("decode plan: %w", err)})
		return
	}

	res, err := s.pipeline.Get(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = pipeline.FormatCSV
	}

	payload, contentType, err := s.pipeline.Export(r.Context(), hash, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(hash, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	templates := s.catalog.Templates()
	out := catalogResponse{
		Intents:    make([]intentDescriptor, 0, len(templates)),
		Metrics:    catalog.MetricNames(),
		Dimensions: catalog.Dimensions(),
		Windows:    catalog.Windows(),
	}
	for _, tpl := range templates {
		out.Intents = append(out.Intents, intentDescriptor{
			Intent:         string(tpl.Intent),
			Description:    tpl.Description,
			Dimensions:     tpl.Dimensions,
			DefaultGroupBy: tpl.DefaultGroupBy,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Write already committed the status; encoding errors here are wire
	// errors we cannot report to the client anymore.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps pipeline failures onto HTTP statuses. Unsafe-query and
// execution errors stay generic on the wire; their details live in the
// security and server logs only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unsafeErr *validate.UnsafeQueryError
		segErr    *validate.InvalidSegmentValueError
		winErr    *compile.WindowTooLargeError
		planErr   *pipeline.PlanError
		execErr   *pipeline.ExecutionFailedError
	)

	switch {
	case errors.As(err, &unsafeErr):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: unsafeErr.Error()})

	case errors.As(err, &segErr):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:       segErr.Error(),
			Dimension:   segErr.Dimension,
			Suggestions: segErr.Nearest,
		})

	case errors.As(err, &winErr):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: winErr.Error()})

	case errors.As(err, &planErr):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: planErr.Error()})

	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case errors.Is(err, pipeline.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{
			Error: "result not cached; run the query again",
		})

	case errors.As(err, &execErr):
		s.logger.Error("query execution failed",
			"attempts", execErr.Attempts,
			"error", execErr.Unwrap(),
			"request_id", requestIDFrom(r.Context()),
		)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: execErr.Error()})

	default:
		s.logger.Error("request failed",
			"error", err,
			"request_id", requestIDFrom(r.Context()),
		)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func exportFilename(hash, format string) string {
	short := hash
	if len(short) > 12 {
		short = short[:12]
	}
	return "lendscope-" + short + "." + format
}
