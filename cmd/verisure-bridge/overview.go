package main

import (
	"encoding/json"
	"os"

	"verisurebridge/internal/verisure"

	"github.com/spf13/cobra"
)

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Fetch the installation overview once and print it as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		client := verisure.NewClient(cfg.Verisure.BaseURL, cfg.Timeout(), logger)
		ctx := cmd.Context()

		var overview *verisure.Overview
		err = verisure.WithSession(ctx, client, cfg.Verisure.Username, cfg.Verisure.Password, func(s verisure.Session) error {
			var err error
			overview, err = s.GetOverview(ctx)
			return err
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(overview)
	},
}
