//go:build integration
// +build integration

package integration_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tacrodose/pkengine/internal/estimation"
	"github.com/tacrodose/pkengine/internal/timeline"
	"github.com/tacrodose/pkengine/pkg/config"
)

func TestIntegration_ConfigAndCaseLoadSmoke(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "config", "pkengine.yaml")
	casePath := filepath.Join("..", "..", "config", "case.example.yaml")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig(%s) failed: %v", cfgPath, err)
	}
	c, err := config.LoadCase(casePath)
	if err != nil {
		t.Fatalf("LoadCase(%s) failed: %v", casePath, err)
	}

	tl := timeline.Build(c)
	if len(tl) == 0 {
		t.Fatalf("expected a non-empty timeline")
	}

	pipeline, err := estimation.NewPipeline(cfg.Model, estimation.SettingsFromConfig(cfg))
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	report, err := pipeline.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Updated {
		t.Fatalf("expected the example case to update eta")
	}
	if report.DoseMg == nil {
		t.Fatalf("expected a dose, got %q", report.DoseError)
	}
	if len(report.Curve) != cfg.Chart.Points {
		t.Fatalf("expected %d curve points, got %d", cfg.Chart.Points, len(report.Curve))
	}
}
