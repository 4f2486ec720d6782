package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/adpilot/engine/internal/domain"
)

var (
	auditRun      string
	auditBusiness string
	auditLimit    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show a run's approval trail or a business's rejected approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (auditRun == "") == (auditBusiness == "") {
			return errors.New("exactly one of --run or --business is required")
		}
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var records []domain.AuditRecord
		if auditRun != "" {
			records, err = a.store.Audit.ListByRun(cmd.Context(), a.db, auditRun)
		} else {
			records, err = a.store.Audit.ListRejected(cmd.Context(), a.db, auditBusiness, auditLimit)
		}
		if err != nil {
			return err
		}
		if records == nil {
			records = []domain.AuditRecord{}
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditRun, "run", "", "Run id")
	auditCmd.Flags().StringVar(&auditBusiness, "business", "", "Business id (lists rejected approvals)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum rejected approvals to list")
}
