package models

import "math"

// Route is the administration route of a dose
type Route string

const (
	// RouteIV is an intravenous bolus entering circulation instantly
	RouteIV Route = "iv"
	// RouteOral is an oral dose absorbed from a depot at first order
	RouteOral Route = "oral"
)

// Valid reports whether the route is one the predictor understands
func (r Route) Valid() bool {
	return r == RouteIV || r == RouteOral
}

// DosingEvent is a dose or a covariate change on the dosing timeline.
// Time is in hours relative to the next scheduled dose (negative = past).
// K and V always hold the values derived for the most recently synced eta.
type DosingEvent struct {
	Time        float64  `json:"time" yaml:"time"`
	Dose        *float64 `json:"dose,omitempty" yaml:"dose,omitempty"` // ug; nil for a pure covariate change
	Route       Route    `json:"route,omitempty" yaml:"route,omitempty"`
	CrCl        *float64 `json:"crcl,omitempty" yaml:"crcl,omitempty"` // nil when no clearance is known yet
	Fluconazole bool     `json:"fluconazole" yaml:"fluconazole"`
	K           float64  `json:"k" yaml:"k"`
	V           float64  `json:"v" yaml:"v"`
}

// HasDose reports whether the event administers drug
func (e DosingEvent) HasDose() bool {
	return e.Dose != nil && !math.IsNaN(*e.Dose)
}

// ConcentrationEvent is an observed drug level
type ConcentrationEvent struct {
	Time          float64 `json:"time" yaml:"time"`
	Concentration float64 `json:"concentration" yaml:"concentration"` // ug/L
}

// Eta holds the log-scale random effects on elimination rate and volume
type Eta struct {
	K float64 `json:"k" yaml:"k"`
	V float64 `json:"v" yaml:"v"`
}

// Add returns the eta displaced by step along direction d
func (e Eta) Add(d Direction, step float64) Eta {
	return Eta{K: e.K + d.K*step, V: e.V + d.V*step}
}

// Direction is a step vector in the (eta k, eta v) plane
type Direction struct {
	K float64 `json:"k"`
	V float64 `json:"v"`
}

// ModelParameters holds the population constants and per-run covariates of the
// one-compartment tacrolimus model.
type ModelParameters struct {
	TVK          float64 `json:"tvk" yaml:"tvk"`                     // typical elimination rate (1/h)
	TVKFluc      float64 `json:"tvkf" yaml:"tvkf"`                   // typical elimination rate with fluconazole
	TVV          float64 `json:"tvv" yaml:"tvv"`                     // typical volume (L)
	Ka           float64 `json:"ka" yaml:"ka"`                       // absorption rate (1/h)
	AgeExponent  float64 `json:"eagey" yaml:"eagey"`                 // exponent on age for volume
	CrClExponent float64 `json:"egfr" yaml:"egfr"`                   // exponent on creatinine clearance for k
	FlucFactor   float64 `json:"dfluc" yaml:"dfluc"`                 // multiplicative effect of fluconazole on k
	Frac         float64 `json:"frac" yaml:"frac"`                   // oral fraction absorbed
	InvOmegaK    float64 `json:"invomgk" yaml:"invomgk"`             // inverse between-subject variance of eta k
	InvOmegaV    float64 `json:"invomgv" yaml:"invomgv"`             // inverse between-subject variance of eta v
	Sigma        float64 `json:"sigma" yaml:"sigma"`                 // residual error variance
	RefAge       float64 `json:"ref_age" yaml:"ref_age"`             // age normalizing the volume power law
	RefCrCl      float64 `json:"ref_crcl" yaml:"ref_crcl"`           // clearance normalizing the rate power law
	Age          float64 `json:"age,omitempty" yaml:"age,omitempty"` // years; 0 means unknown
	Route        Route   `json:"route,omitempty" yaml:"route,omitempty"`
}

// DefaultModelParameters returns the published population constants.
// Age and route are left unset.
func DefaultModelParameters() ModelParameters {
	return ModelParameters{
		TVK:          0.0408,
		TVKFluc:      0.0268,
		TVV:          233,
		Ka:           3.43,
		AgeExponent:  0.775,
		CrClExponent: 0.85,
		FlucFactor:   0.657,
		Frac:         1,
		InvOmegaK:    3.817,
		InvOmegaV:    3.040,
		Sigma:        13.6,
		RefAge:       5.7,
		RefCrCl:      122.43,
	}
}

// CloneDosingEvents copies the event list. Dose and CrCl pointers are shared;
// they are never written after construction.
func CloneDosingEvents(events []DosingEvent) []DosingEvent {
	if events == nil {
		return nil
	}
	out := make([]DosingEvent, len(events))
	copy(out, events)
	return out
}

// Float returns a pointer to v, for optional fields
func Float(v float64) *float64 {
	return &v
}
