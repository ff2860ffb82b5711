package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tacrodose/pkengine/internal/estd"
	"github.com/tacrodose/pkengine/internal/estimation"
	"github.com/tacrodose/pkengine/pkg/config"
)

func newEstimateCmd(root *rootOptions) *cobra.Command {
	var (
		casePath string
		remote   string
		id       string
		asJSON   bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate eta and the next dose for a case file",
		Long: `Run a case through the Bayesian update and dose calculation.

Examples:
  pkengine estimate --case config/case.example.yaml
  pkengine estimate --case case.json --json
  pkengine estimate --case case.yaml --remote localhost:50051`,
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

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var report *estimation.Report
			if remote != "" {
				report, err = estimateRemote(ctx, remote, id, c)
			} else {
				report, err = estimateLocal(ctx, cfg, c)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&casePath, "case", "", "Path to a case file (.yaml or .json)")
	cmd.Flags().StringVar(&remote, "remote", "", "gRPC address of a running service; estimates locally when empty")
	cmd.Flags().StringVar(&id, "id", "", "Estimate ID to store the result under (remote only)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func estimateLocal(ctx context.Context, cfg *config.Config, c *config.Case) (*estimation.Report, error) {
	pipeline, err := estimation.NewPipeline(cfg.Model, estimation.SettingsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, c)
}

func estimateRemote(ctx context.Context, addr, id string, c *config.Case) (*estimation.Report, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	var resp struct {
		Estimate estd.EstimateRecord `json:"estimate"`
	}
	if err := estd.NewClient(conn).Estimate(ctx, id, c, &resp); err != nil {
		return nil, fmt.Errorf("remote estimate: %w", err)
	}
	if resp.Estimate.Report == nil {
		return nil, fmt.Errorf("remote estimate: empty report")
	}
	return resp.Estimate.Report, nil
}

func printReport(out io.Writer, r *estimation.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if r.PatientID != "" {
		fmt.Fprintf(w, "Patient:\t%s\n", r.PatientID)
	}
	fmt.Fprintf(w, "Eta k:\t%.4f\n", r.Eta.K)
	fmt.Fprintf(w, "Eta v:\t%.4f\n", r.Eta.V)
	if r.Optimization != nil {
		fmt.Fprintf(w, "Objective:\t%.4f (from %.4f, %d evaluations)\n",
			r.Optimization.Score, r.Optimization.InitialScore, r.Optimization.Evaluations)
	} else {
		fmt.Fprintf(w, "Objective:\tnot updated (needs at least one dose and one level)\n")
	}
	fmt.Fprintf(w, "Target trough:\t%.2f ug/L\n", r.Target)
	if r.DoseMg != nil {
		fmt.Fprintf(w, "Next dose:\t%.3f mg %s every %gh\n", *r.DoseMg, r.Route, r.FrequencyHours)
	} else {
		fmt.Fprintf(w, "Next dose:\tunavailable (%s)\n", r.DoseError)
	}
	if len(r.Observations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "TIME (h)\tOBSERVED\tFITTED")
		for i, obs := range r.Observations {
			fitted := "-"
			if i < len(r.Fitted) && r.Fitted[i] != nil {
				fitted = fmt.Sprintf("%.2f", *r.Fitted[i])
			}
			fmt.Fprintf(w, "%.2f\t%.2f\t%s\n", obs.Time, obs.Concentration, fitted)
		}
	}
	return w.Flush()
}
