package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tacrodose/pkengine/internal/pk"
	"github.com/tacrodose/pkengine/internal/timeline"
	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/models"
	"github.com/tacrodose/pkengine/pkg/utils"
)

func newPredictCmd(root *rootOptions) *cobra.Command {
	var (
		casePath string
		times    string
		etaK     float64
		etaV     float64
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict concentrations for a case's recorded doses",
		Long: `Predict concentrations at the given times (hours relative to the next dose)
from the doses recorded in a case, for a fixed eta.

Example:
  pkengine predict --case config/case.example.yaml --times -24,-12,-1 --eta-k 0.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			c, err := config.LoadCase(casePath)
			if err != nil {
				return err
			}
			at, err := parseTimes(times)
			if err != nil {
				return err
			}

			p := cfg.Model
			p.Age = c.Age
			p.Route = c.Route
			eta := models.Eta{K: etaK, V: etaV}
			events := timeline.Build(c).DosingEvents(p, eta)
			conc := pk.Predict(at, events, p)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME (h)\tCONCENTRATION (ug/L)")
			for i := range at {
				value := "-"
				if utils.IsFinite(conc[i]) {
					value = fmt.Sprintf("%.3f", conc[i])
				}
				fmt.Fprintf(w, "%.2f\t%s\n", at[i], value)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&casePath, "case", "", "Path to a case file (.yaml or .json)")
	cmd.Flags().StringVar(&times, "times", "", "Comma separated query times in hours, ascending")
	cmd.Flags().Float64Var(&etaK, "eta-k", 0, "Eta for the elimination rate")
	cmd.Flags().Float64Var(&etaV, "eta-v", 0, "Eta for the volume")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("times")
	return cmd
}

func parseTimes(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one time is required")
	}
	if !utils.IsSortedAscending(out) {
		return nil, fmt.Errorf("times must be ascending")
	}
	return out, nil
}
