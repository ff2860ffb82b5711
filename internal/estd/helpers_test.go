package estd

import (
	"testing"

	"github.com/tacrodose/pkengine/internal/estimation"
	"github.com/tacrodose/pkengine/internal/metrics"
	"github.com/tacrodose/pkengine/pkg/config"
)

const validCaseJSON = `{
	"patient_id": "p-42",
	"next_dose_at": "2024-03-04T08:00:00Z",
	"age": 6,
	"route": "oral",
	"target_low": 8,
	"target_high": 10,
	"frequency_hours": 12,
	"doses": [
		{"at": "2024-03-02T20:00:00Z", "amount_mg": 1.5, "route": "oral"},
		{"at": "2024-03-03T08:00:00Z", "amount_mg": 1.5, "route": "oral"},
		{"at": "2024-03-03T20:00:00Z", "amount_mg": 1.5, "route": "oral"}
	],
	"concentrations": [
		{"at": "2024-03-03T07:30:00Z", "value": 6.5},
		{"at": "2024-03-04T07:30:00Z", "value": 8.2}
	],
	"creatinine_clearance": [{"at": "2024-03-02T09:00:00Z", "value": 105}]
}`

func newTestService(t *testing.T) (*Service, *metrics.Recorder) {
	t.Helper()
	cfg := config.DefaultConfig()
	pipeline, err := estimation.NewPipeline(cfg.Model, estimation.SettingsFromConfig(cfg))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	recorder := metrics.NewRecorder()
	return NewService(pipeline, NewEstimateStore(), recorder), recorder
}

func estimateBody(id string) string {
	if id == "" {
		return `{"case": ` + validCaseJSON + `}`
	}
	return `{"estimate_id": "` + id + `", "case": ` + validCaseJSON + `}`
}
