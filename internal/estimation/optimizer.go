package estimation

import (
	"fmt"
	"log/slog"

	"github.com/tacrodose/pkengine/pkg/logger"
	"github.com/tacrodose/pkengine/pkg/models"
)

const (
	// DefaultStepSize is the initial step in eta units
	DefaultStepSize = 0.1
	// DefaultMaxHalvings bounds the number of step size reductions
	DefaultMaxHalvings = 10
	// DefaultMaxLineSteps caps consecutive improving steps in one line phase
	DefaultMaxLineSteps = 1000
)

// EvaluateFunc returns the objective value of a candidate eta. Non-finite
// values are never treated as improvements.
type EvaluateFunc func(eta models.Eta) float64

// ProgressReporter receives the running evaluation count and current best score
type ProgressReporter func(evaluations int, score float64)

// Phase is the state of the pattern search
type Phase string

const (
	// PhaseCoordinate tries every direction at the current step size
	PhaseCoordinate Phase = "coordinate"
	// PhaseLine repeats the last committed direction
	PhaseLine Phase = "line"
)

// OptimizationStep records one committed move or step size halving
type OptimizationStep struct {
	Evaluation int        `json:"evaluation"`
	Phase      Phase      `json:"phase"`
	Direction  int        `json:"direction"` // -1 for a halving
	Eta        models.Eta `json:"eta"`
	Score      float64    `json:"score"`
	StepSize   float64    `json:"step_size"`
	Halvings   int        `json:"halvings"`
}

// OptimizationResult contains the final optimization result
type OptimizationResult struct {
	Eta               models.Eta         `json:"eta"`
	Score             float64            `json:"score"`
	InitialScore      float64            `json:"initial_score"`
	StepSize          float64            `json:"step_size"`
	Halvings          int                `json:"halvings"`
	Evaluations       int                `json:"evaluations"`
	Moves             int                `json:"moves"`
	History           []OptimizationStep `json:"history,omitempty"`
	ConvergenceReason string             `json:"convergence_reason"`
}

// Optimizer is a derivative-free coordinate/line pattern search over
// (eta_k, eta_v).
//
// The coordinate phase probes the eight fixed directions around the current
// point and commits the strictly best one; if none improves, the step is
// halved until MaxHalvings is reached. After a committed move the line phase
// keeps stepping the same way while that strictly improves.
type Optimizer struct {
	stepSize     float64
	maxHalvings  int
	maxLineSteps int
	progress     ProgressReporter
	logger       *slog.Logger
}

// NewOptimizer creates a pattern search optimizer. A non-positive stepSize
// selects DefaultStepSize and a negative maxHalvings selects
// DefaultMaxHalvings.
func NewOptimizer(stepSize float64, maxHalvings int) *Optimizer {
	if stepSize <= 0 {
		stepSize = DefaultStepSize
	}
	if maxHalvings < 0 {
		maxHalvings = DefaultMaxHalvings
	}
	return &Optimizer{
		stepSize:     stepSize,
		maxHalvings:  maxHalvings,
		maxLineSteps: DefaultMaxLineSteps,
		logger:       logger.Default,
	}
}

// WithMaxLineSteps caps consecutive line phase moves. Zero removes the cap.
func (o *Optimizer) WithMaxLineSteps(n int) *Optimizer {
	if n >= 0 {
		o.maxLineSteps = n
	}
	return o
}

// WithProgressReporter sets a callback invoked after every committed move
func (o *Optimizer) WithProgressReporter(fn ProgressReporter) *Optimizer {
	o.progress = fn
	return o
}

// WithLogger sets the optimizer's logger
func (o *Optimizer) WithLogger(l *slog.Logger) *Optimizer {
	if l != nil {
		o.logger = l
	}
	return o
}

// StepSize returns the initial step size
func (o *Optimizer) StepSize() float64 {
	return o.stepSize
}

// MaxHalvings returns the configured halving limit
func (o *Optimizer) MaxHalvings() int {
	return o.maxHalvings
}

// Optimize runs the pattern search from initial and returns the local minimum
// it settles on. It never fails once evaluate is provided; if no direction
// ever improves it returns initial.
func (o *Optimizer) Optimize(initial models.Eta, evaluate EvaluateFunc) (*OptimizationResult, error) {
	if evaluate == nil {
		return nil, fmt.Errorf("evaluation function is required")
	}

	res := &OptimizationResult{History: make([]OptimizationStep, 0)}
	eval := func(eta models.Eta) float64 {
		res.Evaluations++
		return evaluate(eta)
	}

	cur := initial
	curScore := eval(cur)
	res.InitialScore = curScore

	step := o.stepSize
	halvings := 0
	phase := PhaseCoordinate
	dir := -1
	lineSteps := 0

	record := func(direction int) {
		res.History = append(res.History, OptimizationStep{
			Evaluation: res.Evaluations,
			Phase:      phase,
			Direction:  direction,
			Eta:        cur,
			Score:      curScore,
			StepSize:   step,
			Halvings:   halvings,
		})
		if direction >= 0 {
			res.Moves++
			if o.progress != nil {
				o.progress(res.Evaluations, curScore)
			}
		}
	}

	for {
		switch phase {
		case PhaseCoordinate:
			best, bestScore := -1, curScore
			for i, d := range directions {
				if s := eval(cur.Add(d, step)); s < bestScore {
					best, bestScore = i, s
				}
			}

			if best < 0 {
				if halvings >= o.maxHalvings {
					res.ConvergenceReason = fmt.Sprintf("no improving direction after %d halvings", halvings)
					return o.finish(res, cur, curScore, step, halvings), nil
				}
				step /= 2
				halvings++
				record(-1)
				o.logger.Debug("pattern search halved step",
					"step_size", step,
					"halvings", halvings,
					"score", curScore)
				continue
			}

			cur, curScore, dir = cur.Add(directions[best], step), bestScore, best
			record(best)
			phase, lineSteps = PhaseLine, 0

		case PhaseLine:
			if o.maxLineSteps > 0 && lineSteps >= o.maxLineSteps {
				o.logger.Warn("line search step cap reached",
					"direction", dir,
					"max_line_steps", o.maxLineSteps,
					"eta_k", cur.K,
					"eta_v", cur.V)
				phase = PhaseCoordinate
				continue
			}
			next := cur.Add(directions[dir], step)
			if s := eval(next); s < curScore {
				cur, curScore = next, s
				lineSteps++
				record(dir)
				continue
			}
			phase = PhaseCoordinate
		}
	}
}

func (o *Optimizer) finish(res *OptimizationResult, eta models.Eta, score, step float64, halvings int) *OptimizationResult {
	res.Eta = eta
	res.Score = score
	res.StepSize = step
	res.Halvings = halvings
	o.logger.Debug("pattern search finished",
		"eta_k", eta.K,
		"eta_v", eta.V,
		"score", score,
		"evaluations", res.Evaluations,
		"halvings", halvings,
		"reason", res.ConvergenceReason)
	return res
}
