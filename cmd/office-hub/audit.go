package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/office-hub/internal/ledger"
)

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Recompute every collection total from its payments once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			corrections, err := ledger.NewAuditor(repo, 0).RunOnce(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range corrections {
				fmt.Fprintf(out, "%s: %s -> %s\n", c.CollectionID, c.Before, c.After)
			}
			fmt.Fprintf(out, "%d collection(s) corrected\n", len(corrections))
			return nil
		},
	}
}
