package estd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tacrodose/pkengine/internal/metrics"
	"github.com/tacrodose/pkengine/pkg/logger"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	mux      *http.ServeMux
	service  *Service
	recorder *metrics.Recorder
}

// NewHTTPServer routes the REST API to service. /metrics is served when
// recorder is non-nil.
func NewHTTPServer(service *Service, recorder *metrics.Recorder) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		service:  service,
		recorder: recorder,
	}

	s.mux.HandleFunc("/healthz", s.instrument("/healthz", s.handleHealthz))
	s.mux.HandleFunc("/v1/estimates", s.instrument("/v1/estimates", s.handleEstimates))
	s.mux.HandleFunc("/v1/estimates/", s.instrument("/v1/estimates/{id}", s.handleEstimateByID))
	s.mux.HandleFunc("/v1/predict", s.instrument("/v1/predict", s.handlePredict))
	if recorder != nil {
		s.mux.Handle("/metrics", recorder.Handler())
	}

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if s.recorder == nil {
		return next
	}
	return s.recorder.Instrument(route, next)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"estimates": s.service.Store().Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleEstimates handles /v1/estimates endpoint
func (s *HTTPServer) handleEstimates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateEstimate(w, r)
	case http.MethodGet:
		s.handleListEstimates(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleEstimateByID handles /v1/estimates/{id} and /v1/estimates/{id}/curve
func (s *HTTPServer) handleEstimateByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/estimates/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "estimate ID is required")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if strings.HasSuffix(path, "/curve") {
		s.handleCurve(w, r, strings.TrimSuffix(path, "/curve"))
		return
	}

	rec, err := s.service.Get(path)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"estimate": rec})
}

// handleCreateEstimate handles POST /v1/estimates
func (s *HTTPServer) handleCreateEstimate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	id, c, err := DecodeEstimateRequest(body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	rec, err := s.service.Estimate(r.Context(), id, c)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{"estimate": rec})
}

// handleListEstimates handles GET /v1/estimates with pagination
func (s *HTTPServer) handleListEstimates(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			// Cap at reasonable maximum
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	recs := s.service.Store().List(limit, offset)
	summaries := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		summaries = append(summaries, convertEstimateSummary(rec))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"estimates": summaries,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(recs),
		},
	})
}

// handleCurve handles GET /v1/estimates/{id}/curve?horizon=&points=
func (s *HTTPServer) handleCurve(w http.ResponseWriter, r *http.Request, id string) {
	settings := s.service.pipeline.Settings()
	horizon := settings.HorizonHours
	points := settings.Points

	if v := r.URL.Query().Get("horizon"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid horizon: "+err.Error())
			return
		}
		horizon = parsed
	}
	if v := r.URL.Query().Get("points"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid points: "+err.Error())
			return
		}
		points = parsed
	}

	curve, err := s.service.Curve(id, horizon, points)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"estimate_id": id,
		"horizon":     horizon,
		"curve":       curve,
	})
}

// handlePredict handles POST /v1/predict
func (s *HTTPServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.service.Predict(&req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Helper functions

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEstimateNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEstimateExists):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("estimate request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func convertEstimateSummary(rec *EstimateRecord) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
		"patient_id": rec.Case.PatientID,
		"updated":    rec.Report.Updated,
		"eta":        rec.Report.Eta,
		"dose_mg":    rec.Report.DoseMg,
	}
}
