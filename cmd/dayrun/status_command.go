package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dayrun/internal/preflight"
	"dayrun/internal/state"
)

type statusFlags struct {
	checks   bool
	days     int
	statuses []string
	json     bool
}

type statusReport struct {
	Lock struct {
		Path        string `json:"path"`
		Locked      bool   `json:"locked"`
		Owner       string `json:"owner,omitempty"`
		Stale       bool   `json:"stale"`
		StaleReason string `json:"stale_reason,omitempty"`
	} `json:"lock"`
	Stop struct {
		Path      string `json:"path,omitempty"`
		Requested bool   `json:"requested"`
	} `json:"stop"`
	Days   []dayRow          `json:"days"`
	Checks []preflight.Result `json:"checks,omitempty"`
}

type dayRow struct {
	Day         string `json:"day"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	LastAttempt string `json:"last_attempt,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Relocated   bool   `json:"relocated"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var flags statusFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the run lock, stop marker and recent day records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter := state.Filter{}
			if flags.days > 0 {
				filter.From = ctx.today().AddDays(-flags.days)
			}
			for _, raw := range flags.statuses {
				st, ok := state.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, st)
			}

			guardStatus, err := ctx.guard(cfg).Inspect()
			if err != nil {
				return err
			}
			store, err := state.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			var checks []preflight.Result
			if flags.checks {
				checks = preflight.RunAll(cmd.Context(), cfg)
			}

			if flags.json {
				report := statusReport{Days: make([]dayRow, 0, len(records)), Checks: checks}
				report.Lock.Path = guardStatus.LockPath
				report.Lock.Locked = guardStatus.Locked
				report.Lock.Stale = guardStatus.Stale
				report.Lock.StaleReason = guardStatus.StaleReason
				if guardStatus.HasOwner {
					report.Lock.Owner = guardStatus.Owner.String()
				}
				report.Stop.Path = guardStatus.StopPath
				report.Stop.Requested = guardStatus.StopRequested
				for _, rec := range records {
					row := dayRow{
						Day:       rec.Day.String(),
						Date:      rec.Day.ISO(),
						Status:    string(rec.Status),
						Attempts:  rec.Attempts,
						LastError: rec.LastError,
						ErrorKind: rec.ErrorKind,
						Relocated: rec.Relocated,
					}
					if !rec.LastAttempt.IsZero() {
						row.LastAttempt = rec.LastAttempt.UTC().Format(time.RFC3339)
					}
					report.Days = append(report.Days, row)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Run", colorize)
			lines = append(lines, guardLines(guardStatus, colorize)...)
			if flags.checks {
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Checks", colorize)...)
				lines = append(lines, checkLines(checks, colorize)...)
			}
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Days", colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if len(records) == 0 {
				fmt.Fprintln(out, "No day records")
				return nil
			}
			fmt.Fprintln(out, recordTable(records, colorize))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.checks, "checks", false, "Run preflight checks")
	cmd.Flags().IntVar(&flags.days, "days", 30, "Show records from the last N days (0 = all)")
	names := make([]string, 0, 4)
	for _, st := range state.AllStatuses() {
		names = append(names, string(st))
	}
	cmd.Flags().StringSliceVar(&flags.statuses, "status", nil, "Only show records with these statuses ("+strings.Join(names, ", ")+")")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the report as JSON")
	return cmd
}
