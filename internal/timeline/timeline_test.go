package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/tacrodose/pkengine/internal/pk"
	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/models"
)

var nextDose = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func hoursFromNext(h float64) time.Time {
	return nextDose.Add(time.Duration(h * float64(time.Hour)))
}

func testCase() *config.Case {
	return &config.Case{
		NextDoseAt:     nextDose,
		Age:            5.7,
		Route:          models.RouteIV,
		TargetLow:      8,
		TargetHigh:     10,
		FrequencyHours: 12,
		Doses: []config.DoseEntry{
			{At: hoursFromNext(-24), AmountMg: 1, Route: models.RouteIV},
			{At: hoursFromNext(-12), AmountMg: 1.5, Route: models.RouteOral},
		},
		Concentrations: []config.LabEntry{
			{At: hoursFromNext(-13), Value: 6},
			{At: hoursFromNext(-1), Value: 8},
		},
	}
}

func TestInsertKeepsOrderAndMerges(t *testing.T) {
	var tl Timeline
	tl.AddConcentration(5, 1)
	tl.AddDose(1, 100, models.RouteIV)
	tl.AddFluconazole(3, true)
	tl.AddCrCl(5, 90)
	tl.AddDose(1, 200, models.RouteOral)

	if len(tl) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(tl))
	}
	for i, want := range []float64{1, 3, 5} {
		if tl[i].Time != want {
			t.Fatalf("entry %d: expected time %f, got %f", i, want, tl[i].Time)
		}
	}
	if *tl[0].Dose != 200 || tl[0].Route != models.RouteOral {
		t.Fatalf("expected later dose to replace earlier one, got %+v", tl[0])
	}
	if tl[2].Concentration == nil || tl[2].CrCl == nil {
		t.Fatalf("expected concentration and crcl merged at t=5")
	}
}

func TestBuildConvertsUnits(t *testing.T) {
	tl := Build(testCase())
	if len(tl) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(tl))
	}
	if tl[0].Time != -24 || *tl[0].Dose != 1000 {
		t.Fatalf("expected 1000 ug at -24h, got %+v", tl[0])
	}
	if tl[2].Time != -12 || *tl[2].Dose != 1500 || tl[2].Route != models.RouteOral {
		t.Fatalf("expected oral 1500 ug at -12h, got %+v", tl[2])
	}
	if tl[1].Concentration == nil || *tl[1].Concentration != 6 {
		t.Fatalf("expected level at -13h, got %+v", tl[1])
	}
}

func TestBuildCreatinineBreakpoints(t *testing.T) {
	c := testCase()
	c.Creatinine = []config.LabEntry{
		{At: hoursFromNext(-10), Value: 100},
		{At: hoursFromNext(-2), Value: 60},
	}
	tl := Build(c)

	// first value back-dated to the earliest event, second at the midpoint
	if tl[0].CrCl == nil || *tl[0].CrCl != 100 || tl[0].Time != -24 {
		t.Fatalf("expected first crcl at -24h, got %+v", tl[0])
	}
	var found bool
	for _, e := range tl {
		if e.Time == -6 {
			found = e.CrCl != nil && *e.CrCl == 60
		}
	}
	if !found {
		t.Fatalf("expected crcl 60 at -6h, got %+v", tl)
	}
}

func TestBuildCreatinineBeforeEverything(t *testing.T) {
	c := testCase()
	c.Creatinine = []config.LabEntry{{At: hoursFromNext(-48), Value: 100}}
	tl := Build(c)
	if tl[0].Time != -48 || tl[0].CrCl == nil {
		t.Fatalf("expected crcl at its own time, got %+v", tl[0])
	}

	empty := &config.Case{NextDoseAt: nextDose, Creatinine: c.Creatinine}
	if got := Build(empty); len(got) != 1 || got[0].Time != -48 {
		t.Fatalf("expected single crcl entry, got %+v", got)
	}
}

func TestDosingEventsCarryCovariates(t *testing.T) {
	c := testCase()
	c.Fluconazole = []config.Interval{{Start: hoursFromNext(-30), End: hoursFromNext(-18)}}
	c.Creatinine = []config.LabEntry{{At: hoursFromNext(-20), Value: 90}}
	tl := Build(c)

	p := models.DefaultModelParameters()
	p.Age = 5.7
	eta := models.Eta{K: 0.2, V: -0.1}
	events := tl.DosingEvents(p, eta)

	// fluconazole start at -30 and crcl at -30 precede the first dose
	if events[0].Time != -24 || !events[0].HasDose() {
		t.Fatalf("expected first event to be the first dose, got %+v", events[0])
	}
	if !events[0].Fluconazole || events[0].CrCl == nil || *events[0].CrCl != 90 {
		t.Fatalf("expected covariates carried onto first dose, got %+v", events[0])
	}
	if len(events) != 3 {
		t.Fatalf("expected dose, fluconazole stop, dose; got %+v", events)
	}
	if events[1].Time != -18 || events[1].HasDose() || events[1].Fluconazole {
		t.Fatalf("expected covariate-only stop event at -18h, got %+v", events[1])
	}
	if events[2].Fluconazole {
		t.Fatalf("expected fluconazole off at the second dose")
	}
	for i, ev := range events {
		wantK := pk.ElimRate(p, eta, ev.CrCl, ev.Fluconazole)
		if ev.K != wantK || ev.V != pk.Volume(p, eta) {
			t.Fatalf("event %d not synchronized: %+v", i, ev)
		}
	}
}

func TestConcentrationEvents(t *testing.T) {
	ce := Build(testCase()).ConcentrationEvents()
	if len(ce) != 2 || ce[0].Time != -13 || ce[1].Concentration != 8 {
		t.Fatalf("unexpected concentration events %+v", ce)
	}
}

func TestExtend(t *testing.T) {
	tl := Build(testCase())
	ext := tl.Extend(2000, 48, 12, models.RouteOral)

	if len(tl) != 4 {
		t.Fatalf("expected original timeline untouched, got %d entries", len(tl))
	}
	var future []float64
	for _, e := range ext {
		if e.Time >= 0 && e.Dose != nil {
			future = append(future, e.Time)
			if *e.Dose != 2000 || e.Route != models.RouteOral {
				t.Fatalf("unexpected future dose %+v", e)
			}
		}
	}
	want := []float64{0, 12, 24, 36}
	if len(future) != len(want) {
		t.Fatalf("expected future doses at %v, got %v", want, future)
	}
	for i := range want {
		if future[i] != want[i] {
			t.Fatalf("expected future doses at %v, got %v", want, future)
		}
	}

	if got := tl.Extend(2000, 48, 0, models.RouteIV); len(got) != len(tl) {
		t.Fatalf("expected zero frequency to leave timeline unchanged")
	}
	if got := tl.Extend(0, 48, 12, models.RouteIV); len(got) != len(tl) {
		t.Fatalf("expected zero dose to leave timeline unchanged")
	}
}

func TestExtendMergesExistingEntries(t *testing.T) {
	var tl Timeline
	tl.AddDose(-12, 1000, models.RouteIV)
	tl.AddConcentration(6, 7.5)
	tl.AddDose(12, 500, models.RouteIV)
	tl.AddCrCl(12, 90)
	tl.AddFluconazole(40, true)

	ext := tl.Extend(2000, 36, 12, models.RouteOral)

	want := []float64{-12, 0, 6, 12, 24, 40}
	if len(ext) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), ext)
	}
	for i := range want {
		if ext[i].Time != want[i] {
			t.Fatalf("entry %d: expected time %v, got %v", i, want[i], ext[i].Time)
		}
	}
	if ext[3].CrCl == nil || *ext[3].CrCl != 90 {
		t.Fatalf("expected crcl kept on the replaced dose entry, got %+v", ext[3])
	}
	if *ext[3].Dose != 2000 || ext[3].Route != models.RouteOral {
		t.Fatalf("expected dose at 12 replaced, got %+v", ext[3])
	}
	if *tl[2].Dose != 500 || tl[2].Route != models.RouteIV {
		t.Fatalf("original timeline modified: %+v", tl[2])
	}
	if ext[2].Dose != nil || ext[5].Dose != nil {
		t.Fatalf("unexpected doses on non-regimen entries")
	}
}

func TestExtensionDoses(t *testing.T) {
	tests := []struct {
		horizon, freq float64
		want          int
	}{
		{48, 12, 4},
		{50, 12, 5},
		{120, 24, 5},
		{0, 12, 0},
		{48, 0, 0},
		{1e12, 1e-3, math.MaxInt32},
	}
	for _, tt := range tests {
		if got := ExtensionDoses(tt.horizon, tt.freq); got != tt.want {
			t.Errorf("ExtensionDoses(%v, %v) = %d, want %d", tt.horizon, tt.freq, got, tt.want)
		}
		if tt.want > 1000 {
			continue
		}
		n := 0
		for _, e := range (Timeline{}).Extend(1000, tt.horizon, tt.freq, models.RouteIV) {
			if e.Dose != nil {
				n++
			}
		}
		if n != tt.want {
			t.Errorf("Extend(%v, %v) inserted %d doses, want %d", tt.horizon, tt.freq, n, tt.want)
		}
	}
}
