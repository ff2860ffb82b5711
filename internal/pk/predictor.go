package pk

import (
	"math"

	"github.com/tacrodose/pkengine/pkg/models"
)

// singularTolerance is the relative gap between ka and k below which the
// absorption term switches to its ka == k limit.
const singularTolerance = 1e-9

// Predict returns the predicted concentration at each query time.
//
// Both events and times must be sorted ascending. Between two events the rate
// and volume stored on the earlier event are in effect. Query times before the
// first event yield 0. Only events at or before the last query time are
// consumed.
func Predict(times []float64, events []models.DosingEvent, p models.ModelParameters) []float64 {
	out := make([]float64, len(times))
	if len(times) == 0 || len(events) == 0 {
		return out
	}

	idx := 0
	for idx < len(times) && times[idx] < events[0].Time {
		idx++
	}

	var central, depot float64
	k, v := events[0].K, events[0].V
	t0 := events[0].Time
	last := times[len(times)-1]

	for i := 0; i < len(events) && events[i].Time <= last; i++ {
		ev := events[i]

		// carry both compartments forward to this event
		dt := ev.Time - t0
		central *= math.Exp(-k * dt)
		if depot != 0 {
			central += absorbed(depot, p.Ka, k, v, dt)
			depot *= math.Exp(-p.Ka * dt)
		}

		t0, k, v = ev.Time, ev.K, ev.V
		if ev.HasDose() {
			switch ev.Route {
			case models.RouteIV:
				if v > 0 {
					central += *ev.Dose / v
				} else {
					central = math.NaN()
				}
			case models.RouteOral:
				depot += *ev.Dose * p.Frac
			}
		}

		for idx < len(times) && (i == len(events)-1 || times[idx] < events[i+1].Time) {
			dt := times[idx] - t0
			c := central * math.Exp(-k*dt)
			if depot != 0 {
				c += absorbed(depot, p.Ka, k, v, dt)
			}
			out[idx] = c
			idx++
		}
	}
	return out
}

// absorbed is the concentration contributed over dt by an oral depot holding
// amount, under first-order absorption ka and elimination k.
func absorbed(amount, ka, k, v, dt float64) float64 {
	if !(v > 0) {
		return math.NaN()
	}
	if math.Abs(ka-k) <= singularTolerance*math.Max(math.Abs(ka), math.Abs(k)) {
		return amount * ka / v * dt * math.Exp(-k*dt)
	}
	return amount * ka / (v * (ka - k)) * (math.Exp(-k*dt) - math.Exp(-ka*dt))
}

// Curve samples the predicted concentration on an even grid of points times
// starting at the first event and stepping toward horizon.
func Curve(events []models.DosingEvent, p models.ModelParameters, horizon float64, points int) (times, concentrations []float64) {
	if len(events) == 0 || points <= 0 {
		return nil, nil
	}
	start := events[0].Time
	step := (horizon - start) / float64(points)
	times = make([]float64, points)
	for i := range times {
		times[i] = start + float64(i)*step
	}
	return times, Predict(times, events, p)
}
