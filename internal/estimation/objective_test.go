package estimation

import (
	"errors"
	"math"
	"testing"

	"github.com/tacrodose/pkengine/pkg/models"
)

func TestMAPObjectiveValue(t *testing.T) {
	obj := &MAPObjective{Sigma: 13.6, InvOmegaK: 3.817, InvOmegaV: 3.040}
	observed := []models.ConcentrationEvent{{Time: 1, Concentration: 10}, {Time: 2, Concentration: 5}}
	eta := models.Eta{K: 0.5, V: -0.2}

	got, err := obj.Evaluate([]float64{8, 5}, observed, eta)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := 2*math.Log(13.6) + 4/13.6 + 0.25*3.817 + 0.04*3.040
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestELSObjectiveIgnoresPrior(t *testing.T) {
	obj := &ELSObjective{Sigma: 13.6}
	observed := []models.ConcentrationEvent{{Time: 1, Concentration: 10}}

	a, _ := obj.Evaluate([]float64{9}, observed, models.Eta{})
	b, _ := obj.Evaluate([]float64{9}, observed, models.Eta{K: 3, V: -3})
	if a != b {
		t.Fatalf("expected eta not to matter, got %f and %f", a, b)
	}
}

func TestObjectiveNaNPropagates(t *testing.T) {
	obj := NewMAPObjective(models.DefaultModelParameters())
	got, err := obj.Evaluate([]float64{math.NaN()}, []models.ConcentrationEvent{{Concentration: 1}}, models.Eta{})
	if err != nil {
		t.Fatalf("expected NaN score rather than an error, got %v", err)
	}
	if !math.IsNaN(got) {
		t.Fatalf("expected NaN, got %f", got)
	}
}

func TestObjectiveLengthMismatch(t *testing.T) {
	obj := NewMAPObjective(models.DefaultModelParameters())
	_, err := obj.Evaluate([]float64{1, 2}, []models.ConcentrationEvent{{Concentration: 1}}, models.Eta{})
	var invalid *InvalidPredictionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPredictionError, got %v", err)
	}
}

func TestNewObjectiveFunction(t *testing.T) {
	p := models.DefaultModelParameters()
	tests := []struct {
		objType string
		want    string
		wantErr bool
	}{
		{"", "map", false},
		{"map", "map", false},
		{"els", "els", false},
		{"ols", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.objType, func(t *testing.T) {
			obj, err := NewObjectiveFunction(tt.objType, p)
			if tt.wantErr {
				var unknown *UnknownObjectiveError
				if !errors.As(err, &unknown) {
					t.Fatalf("expected UnknownObjectiveError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewObjectiveFunction: %v", err)
			}
			if obj.Name() != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, obj.Name())
			}
		})
	}
}
