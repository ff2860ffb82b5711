// Package dosing computes the maintenance dose that brings the steady-state
// trough to a target concentration.
package dosing

import (
	"errors"
	"fmt"
	"math"

	"github.com/tacrodose/pkengine/internal/pk"
	"github.com/tacrodose/pkengine/pkg/models"
)

// ErrDoseUnavailable is returned when no finite positive dose exists for the
// request, typically because the volume is unknown.
var ErrDoseUnavailable = errors.New("dose unavailable")

// Request describes the desired regimen
type Request struct {
	TargetLow   float64      // ug/L
	TargetHigh  float64      // ug/L
	Frequency   float64      // dosing interval in hours
	CrCl        *float64     // latest creatinine clearance, nil if unknown
	Fluconazole bool         // fluconazole during the regimen
	Route       models.Route
}

// Target returns the midpoint of the target range
func (r Request) Target() float64 {
	return (r.TargetLow + r.TargetHigh) / 2
}

// Estimate returns the dose in ug that gives a steady-state trough equal to
// the target, for the individual parameters implied by eta.
func Estimate(req Request, p models.ModelParameters, eta models.Eta) (float64, error) {
	if !(req.Frequency > 0) {
		return 0, fmt.Errorf("%w: frequency must be positive, got %f", ErrDoseUnavailable, req.Frequency)
	}

	k := pk.ElimRate(p, eta, req.CrCl, req.Fluconazole)
	v := pk.Volume(p, eta)
	if math.IsNaN(v) || v <= 0 {
		return 0, fmt.Errorf("%w: volume is undefined (age %f)", ErrDoseUnavailable, p.Age)
	}

	target := req.Target()
	tau := req.Frequency
	ek := math.Exp(-k * tau)

	var dose float64
	switch req.Route {
	case models.RouteIV:
		dose = target * v * (1 - ek) / ek
	case models.RouteOral:
		dose = target * v / p.Frac * oralAccumulation(p.Ka, k, tau)
	default:
		return 0, fmt.Errorf("%w: unknown route %q", ErrDoseUnavailable, req.Route)
	}

	if math.IsNaN(dose) || math.IsInf(dose, 0) || dose <= 0 {
		return 0, fmt.Errorf("%w: computed dose %f", ErrDoseUnavailable, dose)
	}
	return dose, nil
}

// oralAccumulation is the inverse of the steady-state trough per unit of
// bioavailable dose and volume for first-order absorption.
func oralAccumulation(ka, k, tau float64) float64 {
	ek := math.Exp(-k * tau)
	if math.Abs(ka-k) <= 1e-9*math.Max(ka, k) {
		return (1 - ek) * (1 - ek) / (k * tau * ek)
	}
	eka := math.Exp(-ka * tau)
	return (ka - k) / ka * ((1 - ek) * (1 - eka)) / (ek - eka)
}
