package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dayrun/internal/preflight"
	"dayrun/internal/runguard"
	"dayrun/internal/state"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
	errorColumnWidth = 60
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// guardLines renders the run lock and stop marker state.
func guardLines(st runguard.Status, colorize bool) []string {
	var lines []string
	switch {
	case !st.Locked:
		lines = append(lines, renderStatusLine("Run lock", statusOK, "Idle", colorize))
	case st.Stale:
		lines = append(lines, renderStatusLine("Run lock", statusWarn, "Held, owner looks stale: "+st.StaleReason, colorize))
	case st.HasOwner:
		lines = append(lines, renderStatusLine("Run lock", statusInfo, "Running", colorize))
	default:
		lines = append(lines, renderStatusLine("Run lock", statusInfo, "Held (no owner record)", colorize))
	}
	if st.HasOwner {
		lines = append(lines, renderStatusLine("Owner", statusInfo, st.Owner.String(), colorize))
	}
	switch {
	case st.StopPath == "":
		lines = append(lines, renderStatusLine("Stop marker", statusInfo, "Not configured (halt unavailable)", colorize))
	case st.StopRequested:
		lines = append(lines, renderStatusLine("Stop marker", statusWarn, "Present; runs stop after the current day", colorize))
	default:
		lines = append(lines, renderStatusLine("Stop marker", statusOK, "Absent", colorize))
	}
	return lines
}

// checkLines renders preflight results; failed warnings render as WARN.
func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		switch {
		case r.Passed:
		case r.Warning:
			kind = statusWarn
		default:
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

// statusLabel title-cases a record status and colours it on terminals.
func statusLabel(s state.Status, colorize bool) string {
	label := cases.Title(language.English).String(string(s))
	if !colorize {
		return label
	}
	color := ""
	switch s {
	case state.StatusSuccess:
		color = ansiGreen
	case state.StatusFailed:
		color = ansiRed
	case state.StatusRunning:
		color = ansiYellow
	}
	if color == "" {
		return label
	}
	return color + label + ansiReset
}

func recordTable(records []state.Record, colorize bool) string {
	headers := []string{"Day", "Date", "Status", "Attempts", "Last Attempt", "Relocated", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Day.String(),
			rec.Day.ISO(),
			statusLabel(rec.Status, colorize),
			strconv.Itoa(rec.Attempts),
			formatTime(rec.LastAttempt),
			yesNo(rec.Relocated),
			truncate(rec.LastError, errorColumnWidth),
		})
	}
	return renderTable(headers, rows, aligns)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04Z")
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}
