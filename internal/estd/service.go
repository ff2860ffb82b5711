// Package estd serves Bayesian dose estimation over HTTP and gRPC.
package estd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tacrodose/pkengine/internal/estimation"
	"github.com/tacrodose/pkengine/internal/metrics"
	"github.com/tacrodose/pkengine/internal/pk"
	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/logger"
	"github.com/tacrodose/pkengine/pkg/models"
	"github.com/tacrodose/pkengine/pkg/utils"
)

const maxCurvePoints = 10000

// EstimateRequest is the body of an estimate call
type EstimateRequest struct {
	EstimateID string          `json:"estimate_id,omitempty"`
	Case       json.RawMessage `json:"case"`
}

// PredictRequest asks for concentrations under explicit dosing events
type PredictRequest struct {
	Age   float64              `json:"age"`
	Eta   models.Eta           `json:"eta"`
	Doses []models.DosingEvent `json:"doses"`
	Times []float64            `json:"times"`
}

// PredictResponse carries one concentration per requested time, null where
// the model is undefined
type PredictResponse struct {
	Times          []float64  `json:"times"`
	Concentrations []*float64 `json:"concentrations"`
}

// Service runs cases through the pipeline and keeps the results
type Service struct {
	pipeline *estimation.Pipeline
	store    *EstimateStore
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewService creates a service. recorder may be nil.
func NewService(pipeline *estimation.Pipeline, store *EstimateStore, recorder *metrics.Recorder) *Service {
	return &Service{
		pipeline: pipeline,
		store:    store,
		recorder: recorder,
		logger:   logger.Component("estd"),
	}
}

// Store returns the backing store
func (s *Service) Store() *EstimateStore {
	return s.store
}

// DecodeEstimateRequest parses and validates an estimate request body
func DecodeEstimateRequest(data []byte) (string, *config.Case, error) {
	var req EstimateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(req.Case) == 0 || string(req.Case) == "null" {
		return "", nil, fmt.Errorf("%w: case is required", ErrInvalidRequest)
	}
	c, err := config.ParseCaseJSON(req.Case)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req.EstimateID, c, nil
}

// Estimate runs c through the pipeline and stores the report under id
func (s *Service) Estimate(ctx context.Context, id string, c *config.Case) (*EstimateRecord, error) {
	if id != "" && !utils.ValidateID(id) {
		s.record(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: estimate id %q cannot contain '/', ':' or whitespace", ErrInvalidRequest, id)
	}
	if id != "" && s.store.Exists(id) {
		s.record(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %s", ErrEstimateExists, id)
	}

	report, err := s.pipeline.Run(ctx, c)
	if errors.Is(err, estimation.ErrTooManyDoses) {
		s.record(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err != nil {
		s.record(metrics.OutcomeFailed)
		return nil, err
	}

	rec, err := s.store.Create(id, c, report)
	if err != nil {
		s.record(metrics.OutcomeInvalid)
		return nil, err
	}

	if report.Optimization != nil && s.recorder != nil {
		s.recorder.RecordOptimization(report.Optimization.Evaluations, report.Optimization.Halvings)
	}
	if report.DoseUg == nil {
		s.record(metrics.OutcomeUnavailable)
	} else {
		s.record(metrics.OutcomeDosed)
	}

	s.logger.Info("estimate created",
		"estimate_id", rec.ID,
		"patient_id", c.PatientID,
		"updated", report.Updated)
	return rec, nil
}

// Get returns a stored estimate
func (s *Service) Get(id string) (*EstimateRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: estimate_id is required", ErrInvalidRequest)
	}
	rec, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEstimateNotFound, id)
	}
	return rec, nil
}

// Curve resamples a stored estimate's predicted curve
func (s *Service) Curve(id string, horizon float64, points int) ([]estimation.CurvePoint, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !(horizon > 0) {
		return nil, fmt.Errorf("%w: horizon must be positive", ErrInvalidRequest)
	}
	if points <= 0 || points > maxCurvePoints {
		return nil, fmt.Errorf("%w: points must be in 1..%d", ErrInvalidRequest, maxCurvePoints)
	}
	return s.pipeline.Curve(rec.Report, rec.Case, horizon, points), nil
}

// Predict evaluates the model at the requested times for explicit events
func (s *Service) Predict(req *PredictRequest) (*PredictResponse, error) {
	if len(req.Times) == 0 {
		return nil, fmt.Errorf("%w: times are required", ErrInvalidRequest)
	}
	if !utils.IsSortedAscending(req.Times) {
		return nil, fmt.Errorf("%w: times must be ascending", ErrInvalidRequest)
	}
	eventTimes := make([]float64, len(req.Doses))
	for i, d := range req.Doses {
		if d.HasDose() && !d.Route.Valid() {
			return nil, fmt.Errorf("%w: dose %d has invalid route %q", ErrInvalidRequest, i, d.Route)
		}
		eventTimes[i] = d.Time
	}
	if !utils.IsSortedAscending(eventTimes) {
		return nil, fmt.Errorf("%w: doses must be in time order", ErrInvalidRequest)
	}

	p := s.pipeline.Params()
	p.Age = req.Age
	events := pk.Synced(req.Doses, p, req.Eta)
	return &PredictResponse{
		Times:          req.Times,
		Concentrations: utils.FiniteSlice(pk.Predict(req.Times, events, p)),
	}, nil
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordEstimate(outcome)
	}
}
