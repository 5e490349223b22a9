package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dayrun/internal/day"
	"dayrun/internal/state"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset DAY...",
		Short: "Return days to pending so the next run processes them",
		Long: `Return days to pending so the next run processes them.

This is the only way to reprocess a day that already succeeded. Attempt
counts are kept.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			days := make([]day.Day, 0, len(args))
			for _, arg := range args {
				d, err := ctx.parseDay(arg)
				if err != nil {
					return err
				}
				if d == nil {
					return errors.New("empty day argument")
				}
				days = append(days, *d)
			}

			if !force {
				st, err := ctx.guard(cfg).Inspect()
				if err != nil {
					return err
				}
				if st.Locked {
					return errors.New("a run is active; wait for it to finish or pass --force")
				}
			}

			store, err := state.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			for _, d := range days {
				rec, ok, err := store.Get(cmd.Context(), d)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "%s: no record\n", d)
					continue
				}
				if err := store.Reset(cmd.Context(), d); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s -> %s\n", d, rec.Status, state.StatusPending)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reset even while a run holds the lock")
	return cmd
}
