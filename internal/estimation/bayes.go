package estimation

import (
	"errors"
	"log/slog"
	"math"

	"github.com/tacrodose/pkengine/internal/pk"
	"github.com/tacrodose/pkengine/pkg/logger"
	"github.com/tacrodose/pkengine/pkg/models"
)

var (
	ErrNoObservations = errors.New("at least one concentration observation is required")
	ErrNoDoses        = errors.New("at least one dosing event is required")
)

// Problem is one patient's data for a Bayesian update
type Problem struct {
	Doses        []models.DosingEvent
	Observations []models.ConcentrationEvent
	Params       models.ModelParameters
}

// UpdateResult is the optimization outcome plus the dosing events
// synchronized to the returned eta.
type UpdateResult struct {
	*OptimizationResult
	Doses []models.DosingEvent `json:"doses"`
}

// Estimator binds an objective to an optimizer and runs MAP updates
type Estimator struct {
	objective ObjectiveFunction
	optimizer *Optimizer
	logger    *slog.Logger
}

// NewEstimator creates an estimator. A nil optimizer uses the defaults.
func NewEstimator(objective ObjectiveFunction, optimizer *Optimizer) *Estimator {
	if optimizer == nil {
		optimizer = NewOptimizer(DefaultStepSize, DefaultMaxHalvings)
	}
	return &Estimator{
		objective: objective,
		optimizer: optimizer,
		logger:    logger.Component("estimation"),
	}
}

// Objective returns the objective in use
func (e *Estimator) Objective() ObjectiveFunction {
	return e.objective
}

// Update searches for the eta minimizing the objective over prob.
//
// The estimator works on its own copy of prob.Doses, re-synchronized before
// every evaluation; the returned Doses reflect the returned eta and the
// caller's slice is never written.
func (e *Estimator) Update(prob Problem, initial models.Eta) (*UpdateResult, error) {
	if len(prob.Doses) == 0 {
		return nil, ErrNoDoses
	}
	if len(prob.Observations) == 0 {
		return nil, ErrNoObservations
	}

	doses := models.CloneDosingEvents(prob.Doses)
	times := make([]float64, len(prob.Observations))
	for i, obs := range prob.Observations {
		times[i] = obs.Time
	}

	evaluate := func(eta models.Eta) float64 {
		pk.Sync(doses, prob.Params, eta)
		predicted := pk.Predict(times, doses, prob.Params)
		score, err := e.objective.Evaluate(predicted, prob.Observations, eta)
		if err != nil {
			e.logger.Warn("objective evaluation failed", "error", err)
			return math.Inf(1)
		}
		return score
	}

	e.logger.Debug("bayesian update started",
		"objective", e.objective.Name(),
		"doses", len(doses),
		"observations", len(prob.Observations),
		"step_size", e.optimizer.StepSize(),
		"max_halvings", e.optimizer.MaxHalvings())

	res, err := e.optimizer.Optimize(initial, evaluate)
	if err != nil {
		return nil, err
	}
	pk.Sync(doses, prob.Params, res.Eta)

	e.logger.Info("bayesian update finished",
		"eta_k", res.Eta.K,
		"eta_v", res.Eta.V,
		"score", res.Score,
		"initial_score", res.InitialScore,
		"evaluations", res.Evaluations)

	return &UpdateResult{OptimizationResult: res, Doses: doses}, nil
}

// BayesianUpdate runs a MAP pattern search with the given step size and
// halving limit.
func BayesianUpdate(doses []models.DosingEvent, observations []models.ConcentrationEvent, p models.ModelParameters, initial models.Eta, stepSize float64, maxHalvings int) (*UpdateResult, error) {
	est := NewEstimator(NewMAPObjective(p), NewOptimizer(stepSize, maxHalvings))
	return est.Update(Problem{Doses: doses, Observations: observations, Params: p}, initial)
}

// PredictObservations predicts concentrations at the observation times
func PredictObservations(observations []models.ConcentrationEvent, doses []models.DosingEvent, p models.ModelParameters) []float64 {
	times := make([]float64, len(observations))
	for i, obs := range observations {
		times[i] = obs.Time
	}
	return pk.Predict(times, doses, p)
}
