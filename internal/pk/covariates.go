package pk

import (
	"math"

	"github.com/tacrodose/pkengine/pkg/models"
)

// ElimRate returns the individual elimination rate constant (1/h).
// With a known creatinine clearance the typical rate is scaled by a power law
// of clearance and by the fluconazole factor; otherwise it falls back to the
// typical rate with or without fluconazole.
func ElimRate(p models.ModelParameters, eta models.Eta, crcl *float64, fluconazole bool) float64 {
	if crcl != nil && !math.IsNaN(*crcl) {
		k := p.TVK * math.Pow(*crcl/p.RefCrCl, p.CrClExponent)
		if fluconazole {
			k *= p.FlucFactor
		}
		return k * math.Exp(eta.K)
	}
	if fluconazole {
		return p.TVKFluc * math.Exp(eta.K)
	}
	return p.TVK * math.Exp(eta.K)
}

// Volume returns the individual volume of distribution (L). It is NaN when
// the age covariate is unknown.
func Volume(p models.ModelParameters, eta models.Eta) float64 {
	if p.Age <= 0 {
		return math.NaN()
	}
	return p.TVV * math.Pow(p.Age/p.RefAge, p.AgeExponent) * math.Exp(eta.V)
}

// Sync rewrites K and V of every event for eta, using the covariates recorded
// on each event. The caller must own events for the duration of the call.
func Sync(events []models.DosingEvent, p models.ModelParameters, eta models.Eta) {
	v := Volume(p, eta)
	for i := range events {
		events[i].K = ElimRate(p, eta, events[i].CrCl, events[i].Fluconazole)
		events[i].V = v
	}
}

// Synced returns a copy of events synchronized to eta, leaving events untouched.
func Synced(events []models.DosingEvent, p models.ModelParameters, eta models.Eta) []models.DosingEvent {
	out := models.CloneDosingEvents(events)
	Sync(out, p, eta)
	return out
}
