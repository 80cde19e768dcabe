package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/llm/budget"
	"github.com/vietddude/gramo/internal/infra/storage"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 20
	maxListLimit     = 100
)

// analyzeRequest is the JSON body of POST /api/v1/text/analyze.
// A missing focus_areas selects every stage; an empty list selects none.
type analyzeRequest struct {
	Text       string    `json:"text"`
	Style      string    `json:"style"`
	Goal       string    `json:"goal"`
	FocusAreas *[]string `json:"focus_areas"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (req analyzeRequest) toDomain() (domain.PipelineRequest, error) {
	out := domain.PipelineRequest{Text: req.Text, Style: req.Style, Goal: req.Goal}
	if req.FocusAreas == nil {
		out.FocusAreas = append([]domain.StageName(nil), domain.CanonicalStages...)
		return out, nil
	}
	out.FocusAreas = make([]domain.StageName, 0, len(*req.FocusAreas))
	for _, f := range *req.FocusAreas {
		name, err := domain.ParseStageName(f)
		if err != nil {
			return out, err
		}
		out.FocusAreas = append(out.FocusAreas, name)
	}
	return out, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	req, err := body.toDomain()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	var rl *budget.RateLimitError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Detail: err.Error()})
	case errors.Is(err, domain.ErrRateLimitExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Detail: err.Error()})
	default:
		s.log.Error("Text analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: fmt.Sprintf("failed to analyze text: %v", err)})
	}
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "analysis history is disabled"})
		return
	}
	rec, err := s.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrAnalysisNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: err.Error()})
		return
	}
	if err != nil {
		s.log.Error("Failed to load analysis", "id", r.PathValue("id"), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "failed to load analysis"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []*domain.AnalysisRecord{})
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	recs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.log.Error("Failed to list analyses", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "failed to list analyses"})
		return
	}
	if recs == nil {
		recs = []*domain.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
