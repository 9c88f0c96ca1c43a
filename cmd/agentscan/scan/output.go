package scan

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"agentscan/pkg/engine"
	"agentscan/pkg/workflow"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
)

func PrintBanner(w io.Writer) {
	banner := figure.NewFigure("agentscan", "small", true)
	fmt.Fprintln(w, banner.String())
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
}

func statusColor(status engine.TargetStatus) *color.Color {
	switch status {
	case engine.StatusDone:
		return green
	case engine.StatusSkipped:
		return yellow
	default:
		return red
	}
}

// PrintSummary renders one line per target followed by the totals.
func PrintSummary(w io.Writer, summary engine.RunSummary) {
	fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, "Run summary")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tSTATUS\tIP\tDETAIL")
	for _, r := range summary.Results {
		detail := r.ReportPath
		if r.Err != nil {
			detail = r.Err.Error()
		} else if detail == "" {
			detail = r.FindingsPath
		}
		ip := r.TargetIP
		if ip == "" {
			ip = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Site.Domain, statusColor(r.Status).Sprint(string(r.Status)), ip, detail)
	}
	_ = tw.Flush()

	done, skipped, failed := summary.Counts()
	elapsed := summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second)
	fmt.Fprintf(w, "\n%s  %s  %s  in %s\n",
		green.Sprintf("%d done", done),
		yellow.Sprintf("%d skipped", skipped),
		red.Sprintf("%d failed", failed),
		elapsed)
}

func PrintSites(w io.Writer, sites []workflow.SiteConfig) {
	_, _ = cyan.Fprintf(w, "Configured sites (%d)\n", len(sites))
	fmt.Fprintln(w, strings.Repeat("=", 20))
	for _, s := range sites {
		fmt.Fprintf(w, "\n• %s\n", s.Domain)
		if s.Description != "" {
			fmt.Fprintf(w, "  Description: %s\n", s.Description)
		}
	}
}
