package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tacrodose/pkengine/pkg/models"
	"github.com/tacrodose/pkengine/pkg/utils"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadCase loads a patient case. Files ending in .json are read as JSON,
// everything else as YAML.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file %s: %w", path, err)
	}
	var c *Case
	if strings.EqualFold(filepath.Ext(path), ".json") {
		c, err = ParseCaseJSON(data)
	} else {
		c, err = ParseCaseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse case file %s: %w", path, err)
	}
	return c, nil
}

// ValidateConfig checks a configuration, including overrides applied after loading
func ValidateConfig(cfg *Config) error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if err := ValidateModel(&cfg.Model); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}

	if err := validateOptimizer(&cfg.Optimizer); err != nil {
		return fmt.Errorf("optimizer validation failed: %w", err)
	}

	if cfg.Chart.HorizonHours <= 0 {
		return fmt.Errorf("chart horizon_hours must be positive, got %f", cfg.Chart.HorizonHours)
	}
	if cfg.Chart.Points <= 0 {
		return fmt.Errorf("chart points must be positive, got %d", cfg.Chart.Points)
	}

	return nil
}

// ValidateModel checks the population constants. Age and route are per-case
// covariates and are not checked here.
func ValidateModel(m *models.ModelParameters) error {
	positive := []struct {
		name  string
		value float64
	}{
		{"tvk", m.TVK},
		{"tvkf", m.TVKFluc},
		{"tvv", m.TVV},
		{"ka", m.Ka},
		{"dfluc", m.FlucFactor},
		{"sigma", m.Sigma},
		{"ref_age", m.RefAge},
		{"ref_crcl", m.RefCrCl},
	}
	for _, p := range positive {
		if !(p.value > 0) {
			return fmt.Errorf("%s must be positive, got %f", p.name, p.value)
		}
	}
	if !(m.Frac > 0 && m.Frac <= 1) {
		return fmt.Errorf("frac must be in (0, 1], got %f", m.Frac)
	}
	if m.InvOmegaK < 0 || m.InvOmegaV < 0 {
		return fmt.Errorf("invomgk and invomgv cannot be negative")
	}
	return nil
}

// validateOptimizer validates the optimizer configuration
func validateOptimizer(o *Optimizer) error {
	validObjectives := map[string]bool{
		"map": true,
		"els": true,
	}
	if !validObjectives[o.Objective] {
		return fmt.Errorf("invalid objective: %s (must be map or els)", o.Objective)
	}
	if o.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive, got %f", o.StepSize)
	}
	if o.MaxHalvings < 0 {
		return fmt.Errorf("max_halvings cannot be negative, got %d", o.MaxHalvings)
	}
	if o.MaxLineSteps < 0 {
		return fmt.Errorf("max_line_steps cannot be negative, got %d", o.MaxLineSteps)
	}
	return nil
}

// MinFrequencyHours is the shortest dosing interval a case may request
const MinFrequencyHours = 1.0

// ValidateCase checks a patient case and sorts its creatinine clearance
// entries by time.
func ValidateCase(c *Case) error {
	if c.NextDoseAt.IsZero() {
		return fmt.Errorf("next_dose_at is required")
	}
	if c.Age <= 0 {
		return fmt.Errorf("age must be positive, got %f", c.Age)
	}
	if !c.Route.Valid() {
		return fmt.Errorf("invalid route: %q (must be iv or oral)", c.Route)
	}
	if c.TargetLow <= 0 {
		return fmt.Errorf("target_low must be positive, got %f", c.TargetLow)
	}
	if c.TargetHigh < c.TargetLow {
		return fmt.Errorf("target_high (%f) cannot be below target_low (%f)", c.TargetHigh, c.TargetLow)
	}
	if !(c.FrequencyHours >= MinFrequencyHours) || math.IsInf(c.FrequencyHours, 0) {
		return fmt.Errorf("frequency_hours must be at least %g, got %f", MinFrequencyHours, c.FrequencyHours)
	}

	for i, d := range c.Doses {
		if d.At.IsZero() {
			return fmt.Errorf("dose %d: at is required", i)
		}
		if d.AmountMg <= 0 {
			return fmt.Errorf("dose %d: amount_mg must be positive, got %f", i, d.AmountMg)
		}
		if !d.Route.Valid() {
			return fmt.Errorf("dose %d: invalid route %q", i, d.Route)
		}
	}
	for i, lvl := range c.Concentrations {
		if lvl.At.IsZero() {
			return fmt.Errorf("concentration %d: at is required", i)
		}
		if lvl.Value < 0 {
			return fmt.Errorf("concentration %d: value cannot be negative, got %f", i, lvl.Value)
		}
	}
	for i, lab := range c.Creatinine {
		if lab.At.IsZero() {
			return fmt.Errorf("creatinine clearance %d: at is required", i)
		}
		if lab.Value <= 0 {
			return fmt.Errorf("creatinine clearance %d: value must be positive, got %f", i, lab.Value)
		}
	}
	for i, iv := range c.Fluconazole {
		if iv.Start.IsZero() || iv.End.IsZero() {
			return fmt.Errorf("fluconazole interval %d: start and end are required", i)
		}
		if iv.End.Before(iv.Start) {
			return fmt.Errorf("fluconazole interval %d: end is before start", i)
		}
	}

	sort.SliceStable(c.Creatinine, func(i, j int) bool {
		return c.Creatinine[i].At.Before(c.Creatinine[j].At)
	})
	return nil
}

// LatestCreatinine returns the most recent creatinine clearance, or nil
func (c *Case) LatestCreatinine() *float64 {
	var latest *LabEntry
	for i := range c.Creatinine {
		if latest == nil || !c.Creatinine[i].At.Before(latest.At) {
			latest = &c.Creatinine[i]
		}
	}
	if latest == nil {
		return nil
	}
	v := latest.Value
	return &v
}

// Target returns the midpoint of the trough target range
func (c *Case) Target() float64 {
	return (c.TargetLow + c.TargetHigh) / 2
}

// RelativeHours converts an absolute time to hours relative to NextDoseAt,
// negative for the past
func (c *Case) RelativeHours(t time.Time) float64 {
	return utils.HoursBetween(c.NextDoseAt, t)
}
