package estimation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tacrodose/pkengine/internal/dosing"
	"github.com/tacrodose/pkengine/internal/pk"
	"github.com/tacrodose/pkengine/internal/timeline"
	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/logger"
	"github.com/tacrodose/pkengine/pkg/models"
	"github.com/tacrodose/pkengine/pkg/utils"
)

// Settings controls one pipeline: objective, pattern search and curve sampling
type Settings struct {
	Objective    string
	StepSize     float64
	MaxHalvings  int
	MaxLineSteps int
	HorizonHours float64
	Points       int
}

// SettingsFromConfig extracts pipeline settings from the service configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Objective:    cfg.Optimizer.Objective,
		StepSize:     cfg.Optimizer.StepSize,
		MaxHalvings:  cfg.Optimizer.MaxHalvings,
		MaxLineSteps: cfg.Optimizer.MaxLineSteps,
		HorizonHours: cfg.Chart.HorizonHours,
		Points:       cfg.Chart.Points,
	}
}

// CurvePoint is one sample of the predicted concentration curve. A nil
// concentration marks a value that could not be computed.
type CurvePoint struct {
	Time          float64  `json:"time"`
	Concentration *float64 `json:"concentration"`
}

// Report is the outcome of running a case through the pipeline
type Report struct {
	PatientID      string                      `json:"patient_id,omitempty"`
	Eta            models.Eta                  `json:"eta"`
	Updated        bool                        `json:"updated"`
	Optimization   *OptimizationResult         `json:"optimization,omitempty"`
	Target         float64                     `json:"target"`
	FrequencyHours float64                     `json:"frequency_hours"`
	Route          models.Route                `json:"route"`
	DoseUg         *float64                    `json:"dose_ug"`
	DoseMg         *float64                    `json:"dose_mg"`
	DoseError      string                      `json:"dose_error,omitempty"`
	Timeline       timeline.Timeline           `json:"timeline"`
	Doses          []models.DosingEvent        `json:"doses"`
	Observations   []models.ConcentrationEvent `json:"observations"`
	Fitted         []*float64                  `json:"fitted"`
	Curve          []CurvePoint                `json:"curve,omitempty"`
}

// MaxExtensionDoses bounds the future doses a run may add to the timeline
const MaxExtensionDoses = 1000

// ErrTooManyDoses is returned when the horizon spans more than
// MaxExtensionDoses dosing intervals.
var ErrTooManyDoses = errors.New("too many future doses")

// Pipeline turns a patient case into an updated eta, a dose recommendation
// and a predicted concentration curve.
type Pipeline struct {
	params    models.ModelParameters
	settings  Settings
	estimator *Estimator
	logger    *slog.Logger
}

// NewPipeline creates a pipeline for the population parameters p
func NewPipeline(p models.ModelParameters, s Settings) (*Pipeline, error) {
	objective, err := NewObjectiveFunction(s.Objective, p)
	if err != nil {
		return nil, err
	}
	if s.HorizonHours <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %f", s.HorizonHours)
	}
	if s.Points <= 0 {
		return nil, fmt.Errorf("points must be positive, got %d", s.Points)
	}

	log := logger.Component("pipeline")
	opt := NewOptimizer(s.StepSize, s.MaxHalvings).
		WithMaxLineSteps(s.MaxLineSteps).
		WithLogger(log)

	return &Pipeline{
		params:    p,
		settings:  s,
		estimator: NewEstimator(objective, opt),
		logger:    log,
	}, nil
}

// Params returns the population parameters of the pipeline
func (pl *Pipeline) Params() models.ModelParameters {
	return pl.params
}

// Settings returns the pipeline settings
func (pl *Pipeline) Settings() Settings {
	return pl.settings
}

// CaseParams returns the population parameters with the case's covariates set
func (pl *Pipeline) CaseParams(c *config.Case) models.ModelParameters {
	p := pl.params
	p.Age = c.Age
	p.Route = c.Route
	return p
}

// Run processes a validated case. The update only runs when the case has at
// least one dose and one level; otherwise the initial eta is kept. An
// unavailable dose is reported on the Report, not returned as an error.
func (pl *Pipeline) Run(ctx context.Context, c *config.Case) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := timeline.ExtensionDoses(pl.settings.HorizonHours, c.FrequencyHours); n > MaxExtensionDoses {
		return nil, fmt.Errorf("%w: %d doses every %g h over %g h (max %d)",
			ErrTooManyDoses, n, c.FrequencyHours, pl.settings.HorizonHours, MaxExtensionDoses)
	}

	p := pl.CaseParams(c)
	tl := timeline.Build(c)
	eta := c.InitialEta
	de := tl.DosingEvents(p, eta)
	ce := tl.ConcentrationEvents()

	report := &Report{
		PatientID:      c.PatientID,
		Target:         c.Target(),
		FrequencyHours: c.FrequencyHours,
		Route:          c.Route,
		Timeline:       tl,
		Observations:   ce,
	}

	if len(de) > 0 && len(ce) > 0 {
		res, err := pl.estimator.Update(Problem{Doses: de, Observations: ce, Params: p}, eta)
		if err != nil {
			return nil, fmt.Errorf("bayesian update failed: %w", err)
		}
		eta = res.Eta
		de = res.Doses
		report.Updated = true
		report.Optimization = res.OptimizationResult
	}
	report.Eta = eta
	report.Fitted = utils.FiniteSlice(PredictObservations(ce, de, p))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dose, err := dosing.Estimate(dosing.Request{
		TargetLow:   c.TargetLow,
		TargetHigh:  c.TargetHigh,
		Frequency:   c.FrequencyHours,
		CrCl:        c.LatestCreatinine(),
		Fluconazole: c.FluconazoleNextDose,
		Route:       c.Route,
	}, p, eta)
	if err != nil {
		if !errors.Is(err, dosing.ErrDoseUnavailable) {
			return nil, err
		}
		pl.logger.Warn("dose unavailable",
			"patient_id", c.PatientID,
			"error", err)
		report.DoseError = err.Error()
		report.Doses = de
		return report, nil
	}

	report.DoseUg = utils.FiniteOrNil(dose)
	report.DoseMg = utils.FiniteOrNil(utils.Round(dose/1000, 3))

	extended := tl.Extend(dose, pl.settings.HorizonHours, c.FrequencyHours, c.Route)
	report.Timeline = extended
	report.Doses = extended.DosingEvents(p, eta)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Curve = curvePoints(pk.Curve(report.Doses, p, pl.settings.HorizonHours, pl.settings.Points))

	pl.logger.Info("case processed",
		"patient_id", c.PatientID,
		"updated", report.Updated,
		"eta_k", eta.K,
		"eta_v", eta.V,
		"dose_mg", *report.DoseMg)

	return report, nil
}

// Curve resamples the report's dosing events on a different grid
func (pl *Pipeline) Curve(report *Report, c *config.Case, horizon float64, points int) []CurvePoint {
	return curvePoints(pk.Curve(report.Doses, pl.CaseParams(c), horizon, points))
}

func curvePoints(times, conc []float64) []CurvePoint {
	out := make([]CurvePoint, len(times))
	for i := range times {
		out[i] = CurvePoint{Time: times[i], Concentration: utils.FiniteOrNil(conc[i])}
	}
	return out
}
