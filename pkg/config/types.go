package config

import (
	"time"

	"github.com/tacrodose/pkengine/pkg/models"
)

// Config represents the estimation service configuration
type Config struct {
	LogLevel  string                 `yaml:"log_level"`
	HTTPAddr  string                 `yaml:"http_addr"`
	GRPCAddr  string                 `yaml:"grpc_addr"`
	Model     models.ModelParameters `yaml:"model"`
	Optimizer Optimizer              `yaml:"optimizer"`
	Chart     Chart                  `yaml:"chart"`
}

// Optimizer represents the pattern search settings
type Optimizer struct {
	Objective    string  `yaml:"objective"` // map or els
	StepSize     float64 `yaml:"step_size"`
	MaxHalvings  int     `yaml:"max_halvings"`
	MaxLineSteps int     `yaml:"max_line_steps"` // 0 = uncapped
}

// Chart represents the predicted curve sampling settings
type Chart struct {
	HorizonHours float64 `yaml:"horizon_hours"` // how far past the next dose to predict
	Points       int     `yaml:"points"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Model:    models.DefaultModelParameters(),
		Optimizer: Optimizer{
			Objective:    "map",
			StepSize:     0.1,
			MaxHalvings:  10,
			MaxLineSteps: 1000,
		},
		Chart: Chart{
			HorizonHours: 120,
			Points:       500,
		},
	}
}

// Case is one patient's raw dosing record and dosing goal. Times are absolute;
// the timeline converts them to hours relative to NextDoseAt.
type Case struct {
	PatientID           string       `yaml:"patient_id,omitempty" json:"patient_id,omitempty"`
	NextDoseAt          time.Time    `yaml:"next_dose_at" json:"next_dose_at"`
	Age                 float64      `yaml:"age" json:"age"`
	Route               models.Route `yaml:"route" json:"route"`
	TargetLow           float64      `yaml:"target_low" json:"target_low"`
	TargetHigh          float64      `yaml:"target_high" json:"target_high"`
	FrequencyHours      float64      `yaml:"frequency_hours" json:"frequency_hours"`
	FluconazoleNextDose bool         `yaml:"fluconazole_next_dose" json:"fluconazole_next_dose"`
	Doses               []DoseEntry  `yaml:"doses" json:"doses"`
	Concentrations      []LabEntry   `yaml:"concentrations" json:"concentrations"`
	Creatinine          []LabEntry   `yaml:"creatinine_clearance" json:"creatinine_clearance"`
	Fluconazole         []Interval   `yaml:"fluconazole" json:"fluconazole"`
	InitialEta          models.Eta   `yaml:"initial_eta" json:"initial_eta"`
}

// DoseEntry is an administered dose
type DoseEntry struct {
	At       time.Time    `yaml:"at" json:"at"`
	AmountMg float64      `yaml:"amount_mg" json:"amount_mg"`
	Route    models.Route `yaml:"route" json:"route"`
}

// LabEntry is a timestamped measurement (drug level in ug/L or creatinine
// clearance in mL/min/1.73m2)
type LabEntry struct {
	At    time.Time `yaml:"at" json:"at"`
	Value float64   `yaml:"value" json:"value"`
}

// Interval is a span of concomitant fluconazole use
type Interval struct {
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
}
