package estimation

import (
	"fmt"
	"math"

	"github.com/tacrodose/pkengine/pkg/models"
)

// ObjectiveFunction scores a candidate eta from its predicted concentrations.
// Lower scores are better.
type ObjectiveFunction interface {
	// Evaluate computes the objective from predictions aligned index by index
	// with the observations.
	Evaluate(predicted []float64, observed []models.ConcentrationEvent, eta models.Eta) (float64, error)

	// Name returns the name of the objective function.
	Name() string
}

// ObjectiveType represents the type of objective function
type ObjectiveType string

const (
	// ObjectiveMAP is extended least squares plus the normal prior on eta
	ObjectiveMAP ObjectiveType = "map"
	// ObjectiveELS is extended least squares alone (no prior)
	ObjectiveELS ObjectiveType = "els"
)

// NewObjectiveFunction creates an objective function from a type string.
// An empty string selects the MAP objective.
func NewObjectiveFunction(objType string, p models.ModelParameters) (ObjectiveFunction, error) {
	switch ObjectiveType(objType) {
	case ObjectiveMAP, "":
		return NewMAPObjective(p), nil
	case ObjectiveELS:
		return &ELSObjective{Sigma: p.Sigma}, nil
	default:
		return nil, &UnknownObjectiveError{ObjectiveType: objType}
	}
}

// MAPObjective is the penalized objective: for every observation
// log(sigma) + (obs-pred)^2/sigma, plus eta_k^2/omega_k + eta_v^2/omega_v.
type MAPObjective struct {
	Sigma     float64
	InvOmegaK float64
	InvOmegaV float64
}

// NewMAPObjective takes the variance terms from the model parameters
func NewMAPObjective(p models.ModelParameters) *MAPObjective {
	return &MAPObjective{
		Sigma:     p.Sigma,
		InvOmegaK: p.InvOmegaK,
		InvOmegaV: p.InvOmegaV,
	}
}

func (o *MAPObjective) Name() string {
	return string(ObjectiveMAP)
}

func (o *MAPObjective) Evaluate(predicted []float64, observed []models.ConcentrationEvent, eta models.Eta) (float64, error) {
	fit, err := extendedLeastSquares(predicted, observed, o.Sigma)
	if err != nil {
		return 0, err
	}
	return fit + eta.K*eta.K*o.InvOmegaK + eta.V*eta.V*o.InvOmegaV, nil
}

// ELSObjective ignores the prior and scores the data fit only
type ELSObjective struct {
	Sigma float64
}

func (o *ELSObjective) Name() string {
	return string(ObjectiveELS)
}

func (o *ELSObjective) Evaluate(predicted []float64, observed []models.ConcentrationEvent, _ models.Eta) (float64, error) {
	return extendedLeastSquares(predicted, observed, o.Sigma)
}

func extendedLeastSquares(predicted []float64, observed []models.ConcentrationEvent, sigma float64) (float64, error) {
	if len(predicted) != len(observed) {
		return 0, &InvalidPredictionError{
			Reason: fmt.Sprintf("%d predictions for %d observations", len(predicted), len(observed)),
		}
	}
	logSigma := math.Log(sigma)
	total := 0.0
	for i, obs := range observed {
		r := obs.Concentration - predicted[i]
		total += logSigma + r*r/sigma
	}
	return total, nil
}

// UnknownObjectiveError indicates an unknown objective type
type UnknownObjectiveError struct {
	ObjectiveType string
}

func (e *UnknownObjectiveError) Error() string {
	return "unknown objective type: " + e.ObjectiveType
}

// InvalidPredictionError indicates predictions that cannot be scored
type InvalidPredictionError struct {
	Reason string
}

func (e *InvalidPredictionError) Error() string {
	return "invalid predictions: " + e.Reason
}
