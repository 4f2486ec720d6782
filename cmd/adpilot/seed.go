package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load businesses, campaigns, metric cycles and users from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		tokens, err := seed.Apply(cmd.Context(), a.store, a.auth, f)
		if err != nil {
			return err
		}
		logger.Info("seeded",
			zap.Int("businesses", len(f.Businesses)),
			zap.Int("campaigns", len(f.Campaigns)),
			zap.Int("cycles", len(f.Cycles)),
		)

		users := make([]string, 0, len(tokens))
		for u := range tokens {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u, tokens[u])
		}
		return nil
	},
}
