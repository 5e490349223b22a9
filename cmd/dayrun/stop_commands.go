package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dayrun/internal/services"
)

func newHaltCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "halt",
		Short: "Ask the active run to stop after its current day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			guard := ctx.guard(cfg)
			if err := guard.RaiseStop(); err != nil {
				if errors.Is(err, services.ErrHaltUnsupported) {
					return errors.New("halt is unavailable: set run.stop_file in the configuration")
				}
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stop requested (%s)\n", guard.StopPath())
			fmt.Fprintln(out, "Runs stop after their current day until `dayrun restart` clears the marker.")
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Clear the stop marker so runs can proceed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			guard := ctx.guard(cfg)
			existed, err := guard.ClearStop()
			if err != nil {
				if errors.Is(err, services.ErrHaltUnsupported) {
					return errors.New("restart is unavailable: set run.stop_file in the configuration")
				}
				return err
			}
			if existed {
				fmt.Fprintf(cmd.OutOrStdout(), "Stop marker removed (%s)\n", guard.StopPath())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No stop marker present")
			}
			return nil
		},
	}
}
