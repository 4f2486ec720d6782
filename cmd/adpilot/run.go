package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/workflow"
)

var (
	runBusiness string
	runUser     string
	runTrigger  string
	runMetrics  string

	approveToken string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create an optimization run for a business",
	Long: `Creates a run from the business's recorded metric cycles, or from a JSON
file holding {"current_metrics": [...], "previous_metrics": [...]}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		req := workflow.CreateRunRequest{
			BusinessID: runBusiness,
			UserID:     runUser,
			Trigger:    domain.TriggerType(runTrigger),
		}
		if runMetrics != "" {
			if err := readMetrics(runMetrics, &req); err != nil {
				return err
			}
		}

		run, err := a.pipeline.CreateRun(cmd.Context(), req)
		if run != nil {
			if perr := printJSON(cmd.OutOrStdout(), run); perr != nil {
				return perr
			}
		}
		return err
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <run-id> <approve|dismiss>",
	Short: "Approve or dismiss a run awaiting approval",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		token := approveToken
		if token == "" {
			token = os.Getenv("ADPILOT_TOKEN")
		}
		res, err := a.approvals.Decide(cmd.Context(), workflow.DecideRequest{
			RunID:  args[0],
			Action: domain.ApprovalDecision(args[1]),
			Token:  token,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	runCmd.Flags().StringVar(&runBusiness, "business", "", "Business id (required)")
	runCmd.Flags().StringVar(&runUser, "user", "", "User id recorded as the trigger (required)")
	runCmd.Flags().StringVar(&runTrigger, "trigger", string(domain.TriggerManual), "Trigger type: manual, scheduled or event")
	runCmd.Flags().StringVar(&runMetrics, "metrics", "", "JSON file with current and previous metrics")
	runCmd.MarkFlagRequired("business")
	runCmd.MarkFlagRequired("user")

	approveCmd.Flags().StringVar(&approveToken, "token", "", "API token of the business owner (or set ADPILOT_TOKEN)")
}

func readMetrics(path string, req *workflow.CreateRunRequest) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read metrics file: %w", err)
	}
	var body struct {
		Current  []domain.MetricsSnapshot `json:"current_metrics"`
		Previous []domain.MetricsSnapshot `json:"previous_metrics"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("parse metrics file: %w", err)
	}
	req.Current = body.Current
	req.Previous = body.Previous
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
