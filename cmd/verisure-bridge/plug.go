package main

import (
	"fmt"
	"strings"

	"verisurebridge/internal/verisure"

	"github.com/spf13/cobra"
)

var plugCmd = &cobra.Command{
	Use:   "plug <device-label> on|off",
	Short: "Switch a smart plug once",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]
		on, err := parseSwitchState(args[1])
		if err != nil {
			return err
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		client := verisure.NewClient(cfg.Verisure.BaseURL, cfg.Timeout(), logger)
		ctx := cmd.Context()

		err = verisure.WithSession(ctx, client, cfg.Verisure.Username, cfg.Verisure.Password, func(s verisure.Session) error {
			return s.SetSmartPlugState(ctx, label, on)
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s switched %s\n", label, strings.ToLower(args[1]))
		return nil
	},
}

func parseSwitchState(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state %q: want on or off", value)
	}
}
