package estimation

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/models"
)

func testSettings() Settings {
	return SettingsFromConfig(config.DefaultConfig())
}

func pipelineCase() *config.Case {
	next := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	at := func(h float64) time.Time { return next.Add(time.Duration(h * float64(time.Hour))) }
	return &config.Case{
		PatientID:      "p-1",
		NextDoseAt:     next,
		Age:            6,
		Route:          models.RouteOral,
		TargetLow:      8,
		TargetHigh:     10,
		FrequencyHours: 12,
		Doses: []config.DoseEntry{
			{At: at(-36), AmountMg: 1.5, Route: models.RouteOral},
			{At: at(-24), AmountMg: 1.5, Route: models.RouteOral},
			{At: at(-12), AmountMg: 1.5, Route: models.RouteOral},
		},
		Concentrations: []config.LabEntry{
			{At: at(-25), Value: 7},
			{At: at(-1), Value: 9},
		},
		Creatinine: []config.LabEntry{{At: at(-40), Value: 100}},
	}
}

func TestNewPipelineValidation(t *testing.T) {
	p := models.DefaultModelParameters()

	s := testSettings()
	s.Objective = "nope"
	if _, err := NewPipeline(p, s); err == nil {
		t.Fatalf("expected unknown objective error")
	}

	s = testSettings()
	s.Points = 0
	if _, err := NewPipeline(p, s); err == nil {
		t.Fatalf("expected points error")
	}
}

func TestPipelineRun(t *testing.T) {
	pl, err := NewPipeline(models.DefaultModelParameters(), testSettings())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	report, err := pl.Run(context.Background(), pipelineCase())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.Updated || report.Optimization == nil {
		t.Fatalf("expected a bayesian update")
	}
	if report.Optimization.Score > report.Optimization.InitialScore {
		t.Fatalf("score increased during update")
	}
	if report.DoseUg == nil || report.DoseMg == nil {
		t.Fatalf("expected a dose, got error %q", report.DoseError)
	}
	if math.Abs(*report.DoseMg-math.Round(*report.DoseUg)/1000) > 1e-3 {
		t.Fatalf("mg and ug disagree: %f vs %f", *report.DoseMg, *report.DoseUg)
	}
	if len(report.Curve) != 500 {
		t.Fatalf("expected 500 curve points, got %d", len(report.Curve))
	}
	if report.Curve[0].Time != -36 {
		t.Fatalf("expected curve to start at the first dose, got %f", report.Curve[0].Time)
	}
	if len(report.Fitted) != len(report.Observations) {
		t.Fatalf("expected fitted value per observation")
	}

	var future int
	for _, d := range report.Doses {
		if d.HasDose() && d.Time >= 0 {
			future++
			if d.CrCl == nil || *d.CrCl != 100 {
				t.Fatalf("expected crcl carried onto future dose %+v", d)
			}
		}
	}
	if future != 10 {
		t.Fatalf("expected 10 future doses over 120h at q12h, got %d", future)
	}
}

func TestPipelineWithoutLevelsSkipsUpdate(t *testing.T) {
	c := pipelineCase()
	c.Concentrations = nil
	c.InitialEta = models.Eta{K: 0.1, V: 0.2}

	pl, err := NewPipeline(models.DefaultModelParameters(), testSettings())
	if err != nil {
		t.Fatal(err)
	}
	report, err := pl.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Updated || report.Optimization != nil {
		t.Fatalf("expected no update without levels")
	}
	if report.Eta != c.InitialEta {
		t.Fatalf("expected initial eta kept, got %+v", report.Eta)
	}
	if report.DoseUg == nil {
		t.Fatalf("expected dose from the prior")
	}
}

func TestPipelineCurveResample(t *testing.T) {
	pl, err := NewPipeline(models.DefaultModelParameters(), testSettings())
	if err != nil {
		t.Fatal(err)
	}
	c := pipelineCase()
	report, err := pl.Run(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	curve := pl.Curve(report, c, 48, 20)
	if len(curve) != 20 {
		t.Fatalf("expected 20 points, got %d", len(curve))
	}
	for i, pt := range curve {
		if pt.Concentration == nil || *pt.Concentration < 0 {
			t.Fatalf("point %d: unexpected concentration %v", i, pt.Concentration)
		}
	}
}

func TestPipelineCanceled(t *testing.T) {
	pl, err := NewPipeline(models.DefaultModelParameters(), testSettings())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pl.Run(ctx, pipelineCase()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPipelineRejectsTooManyFutureDoses(t *testing.T) {
	s := testSettings()
	s.HorizonHours = 1e7
	pl, err := NewPipeline(models.DefaultModelParameters(), s)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		freq float64
	}{
		{"long horizon", 12},
		{"tiny interval", 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := pipelineCase()
			c.FrequencyHours = tt.freq
			start := time.Now()
			if _, err := pl.Run(context.Background(), c); !errors.Is(err, ErrTooManyDoses) {
				t.Fatalf("expected ErrTooManyDoses, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Fatalf("rejection took %v", elapsed)
			}
		})
	}
}

func TestPipelineDeadlineExceeded(t *testing.T) {
	pl, err := NewPipeline(models.DefaultModelParameters(), testSettings())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()
	if _, err := pl.Run(ctx, pipelineCase()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestPipelineOnExampleCase(t *testing.T) {
	c, err := config.LoadCase(filepath.Join("..", "..", "config", "case.example.yaml"))
	if err != nil {
		t.Fatalf("LoadCase: %v", err)
	}
	pl, err := NewPipeline(models.DefaultModelParameters(), testSettings())
	if err != nil {
		t.Fatal(err)
	}
	report, err := pl.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.DoseMg == nil || *report.DoseMg <= 0 {
		t.Fatalf("expected positive dose, got %v (%s)", report.DoseMg, report.DoseError)
	}
}
