// Package timeline merges a patient's dated doses, drug levels, fluconazole
// courses and creatinine labs into one ordered list of events in hours
// relative to the next scheduled dose, and derives model events from it.
package timeline

import (
	"math"

	"github.com/tacrodose/pkengine/internal/pk"
	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/models"
)

// Entry is every change that happens at one instant. Nil fields did not
// change at Time.
type Entry struct {
	Time          float64      `json:"time"`
	Dose          *float64     `json:"dose,omitempty"` // ug
	Route         models.Route `json:"route,omitempty"`
	Concentration *float64     `json:"concentration,omitempty"`
	Fluconazole   *bool        `json:"fluconazole,omitempty"` // true at a start, false at a stop
	CrCl          *float64     `json:"crcl,omitempty"`
}

// Timeline is ordered by strictly increasing Time
type Timeline []Entry

// at returns the entry for time t, inserting an empty one in order if needed
func (tl *Timeline) at(t float64) *Entry {
	entries := *tl
	for i := range entries {
		if t == entries[i].Time {
			return &entries[i]
		}
		if t < entries[i].Time {
			entries = append(entries, Entry{})
			copy(entries[i+1:], entries[i:])
			entries[i] = Entry{Time: t}
			*tl = entries
			return &entries[i]
		}
	}
	*tl = append(entries, Entry{Time: t})
	return &(*tl)[len(*tl)-1]
}

// AddDose records a dose in ug. A dose at an existing time replaces it.
func (tl *Timeline) AddDose(t, ug float64, route models.Route) {
	e := tl.at(t)
	e.Dose = &ug
	e.Route = route
}

// AddConcentration records a measured level in ug/L
func (tl *Timeline) AddConcentration(t, value float64) {
	e := tl.at(t)
	e.Concentration = &value
}

// AddFluconazole records the start (on) or stop (!on) of fluconazole
func (tl *Timeline) AddFluconazole(t float64, on bool) {
	e := tl.at(t)
	e.Fluconazole = &on
}

// AddCrCl records a change of creatinine clearance
func (tl *Timeline) AddCrCl(t, value float64) {
	e := tl.at(t)
	e.CrCl = &value
}

// Build converts a case to a timeline. Dose amounts are converted from mg to
// ug. The first creatinine value applies from the earliest event (or its own
// time if that is earlier); each later value takes over halfway between its
// lab time and the previous one. Creatinine entries must already be sorted,
// which config.ValidateCase guarantees.
func Build(c *config.Case) Timeline {
	var tl Timeline

	for _, d := range c.Doses {
		tl.AddDose(c.RelativeHours(d.At), d.AmountMg*1000, d.Route)
	}
	for _, lvl := range c.Concentrations {
		tl.AddConcentration(c.RelativeHours(lvl.At), lvl.Value)
	}
	for _, iv := range c.Fluconazole {
		tl.AddFluconazole(c.RelativeHours(iv.Start), true)
		tl.AddFluconazole(c.RelativeHours(iv.End), false)
	}

	if len(c.Creatinine) > 0 {
		first := c.RelativeHours(c.Creatinine[0].At)
		if len(tl) > 0 && tl[0].Time < first {
			first = tl[0].Time
		}
		tl.AddCrCl(first, c.Creatinine[0].Value)
		for i := 1; i < len(c.Creatinine); i++ {
			prev := c.RelativeHours(c.Creatinine[i-1].At)
			cur := c.RelativeHours(c.Creatinine[i].At)
			tl.AddCrCl((prev+cur)/2, c.Creatinine[i].Value)
		}
	}

	return tl
}

// DosingEvents derives the model's dosing events, starting at the first dose.
// Fluconazole status and creatinine clearance are carried forward so every
// event holds the covariates in force at its time. K and V are synchronized
// to eta.
func (tl Timeline) DosingEvents(p models.ModelParameters, eta models.Eta) []models.DosingEvent {
	var (
		events      []models.DosingEvent
		fluconazole bool
		crcl        *float64
		dosed       bool
	)
	for _, e := range tl {
		if e.CrCl != nil {
			crcl = e.CrCl
		}
		if e.Fluconazole != nil {
			fluconazole = *e.Fluconazole
		}
		if e.Dose != nil {
			dosed = true
		}
		if !dosed || (e.Dose == nil && e.CrCl == nil && e.Fluconazole == nil) {
			continue
		}
		ev := models.DosingEvent{
			Time:        e.Time,
			CrCl:        crcl,
			Fluconazole: fluconazole,
		}
		if e.Dose != nil {
			ev.Dose = e.Dose
			ev.Route = e.Route
		}
		events = append(events, ev)
	}
	pk.Sync(events, p, eta)
	return events
}

// ConcentrationEvents returns the measured levels in time order
func (tl Timeline) ConcentrationEvents() []models.ConcentrationEvent {
	var out []models.ConcentrationEvent
	for _, e := range tl {
		if e.Concentration != nil {
			out = append(out, models.ConcentrationEvent{Time: e.Time, Concentration: *e.Concentration})
		}
	}
	return out
}

// Extend returns a copy of tl with the regimen dose (ug) given every freq
// hours from time zero up to horizon. Existing doses at those times are
// replaced. An unusable dose or frequency returns an unchanged copy.
// Callers bound the work with ExtensionDoses.
func (tl Timeline) Extend(dose, horizon, freq float64, route models.Route) Timeline {
	if !(dose > 0) || math.IsInf(dose, 0) || !(freq > 0) {
		out := make(Timeline, len(tl))
		copy(out, tl)
		return out
	}

	out := make(Timeline, 0, len(tl)+ExtensionDoses(horizon, freq))
	j := 0
	for i := 0; float64(i) < horizon/freq; i++ {
		t := float64(i) * freq
		for j < len(tl) && tl[j].Time < t {
			out = append(out, tl[j])
			j++
		}
		e := Entry{Time: t}
		if j < len(tl) && tl[j].Time == t {
			e = tl[j]
			j++
		}
		ug := dose
		e.Dose = &ug
		e.Route = route
		out = append(out, e)
	}
	return append(out, tl[j:]...)
}

// ExtensionDoses is the number of doses Extend inserts for horizon and freq
func ExtensionDoses(horizon, freq float64) int {
	if !(freq > 0) || !(horizon > 0) {
		return 0
	}
	n := math.Ceil(horizon / freq)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
