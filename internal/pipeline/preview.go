package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/backmassage/vidrelay/internal/delivery"
	"github.com/backmassage/vidrelay/internal/display"
	"github.com/backmassage/vidrelay/internal/planner"
	"github.com/backmassage/vidrelay/internal/term"
)

// previewRow holds one asset's planned handling for the preview table.
type previewRow struct {
	Name       string
	SizeBytes  int64
	Duration   float64
	Route      delivery.Kind
	Parts      int
	Resolution string
	Problem    string // Non-empty when the asset cannot be planned.
}

// Preview probes every path and prints the route, segment count, and target
// resolution each asset would get. Nothing is transcoded or uploaded and no
// channel is contacted; routing uses the configured caps only.
func (r *Runner) Preview(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		r.log.Warn("No media files found in %s", r.cfg.InputDir)
		return
	}

	total := len(paths)
	r.log.Info("Planning %d files in %s …", total, r.cfg.InputDir)
	fmt.Println()

	isTTY := term.IsTerminal(os.Stdout)
	rows := make([]previewRow, 0, total)
	var problems int

	for i, path := range paths {
		if ctx.Err() != nil {
			if isTTY {
				clearProgress()
			}
			r.log.Warn("Interrupted")
			return
		}
		printProgress(isTTY, i+1, total, problems, filepath.Base(path))

		row := r.previewAsset(ctx, path)
		if row.Problem != "" {
			problems++
		}
		rows = append(rows, row)
	}
	if isTTY {
		clearProgress()
	}

	printPreviewTable(rows)
	r.printPreviewSummary(rows)
}

func (r *Runner) previewAsset(ctx context.Context, path string) previewRow {
	row := previewRow{Name: filepath.Base(path)}

	fi, err := os.Stat(path)
	if err != nil {
		row.Problem = "not found"
		return row
	}
	row.SizeBytes = fi.Size()

	md := r.prober.Inspect(ctx, path)
	row.Duration = md.DurationOrZero()

	sizeMB := delivery.SizeMB(fi.Size())
	row.Route = delivery.RouteWith(sizeMB, r.cfg.BotMaxMB)
	if sizeMB > r.cfg.UserMaxMB {
		row.Problem = "over the user cap"
		return row
	}
	plan, err := planner.Build(sizeMB, row.Duration, row.Route, r.cfg)
	if err != nil {
		row.Problem = err.Error()
		return row
	}
	row.Parts = len(plan.Segments)
	row.Resolution = plan.Target.String()
	return row
}

func printPreviewTable(rows []previewRow) {
	nameW := len("File")
	sizeW := len("Size")
	durW := len("Duration")
	routeW := len("Route")
	partsW := len("Parts")
	resW := len("Resolution")

	for _, r := range rows {
		nameW = max(nameW, len(r.Name))
		sizeW = max(sizeW, len(display.FormatMB(r.SizeBytes)))
		durW = max(durW, len(fmtDuration(r.Duration)))
		resW = max(resW, len(r.Resolution))
	}
	if nameW > 50 {
		nameW = 50
	}

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %-*s  %-*s  %-*s",
		nameW, "File",
		sizeW, "Size",
		durW, "Duration",
		routeW, "Route",
		partsW, "Parts",
		resW, "Resolution",
	)
	fmt.Println(header)
	fmt.Println("  " + strings.Repeat("─", len(header)-2))

	for _, r := range rows {
		name := r.Name
		if len(name) > nameW {
			name = name[:nameW-1] + "…"
		}
		parts := ""
		if r.Parts > 0 {
			parts = strconv.Itoa(r.Parts)
		}

		// Pad the plain text first, then wrap in ANSI color so escape bytes
		// don't count toward the column width.
		routeCell := colorPad(string(r.Route), routeW, routeColor(r.Route))
		partsCell := colorPad(parts, partsW, partsColor(r.Parts))

		fmt.Printf("  %-*s  %-*s  %-*s  %s  %s  %-*s  %s\n",
			nameW, name,
			sizeW, display.FormatMB(r.SizeBytes),
			durW, fmtDuration(r.Duration),
			routeCell,
			partsCell,
			resW, r.Resolution,
			formatProblem(r.Problem),
		)
	}
	fmt.Println()
}

func (r *Runner) printPreviewSummary(rows []previewRow) {
	var bot, user, split, segments, problems int
	for _, row := range rows {
		if row.Problem != "" {
			problems++
			continue
		}
		segments += row.Parts
		if row.Parts > 1 {
			split++
		}
		if row.Route == delivery.User {
			user++
		} else {
			bot++
		}
	}

	r.log.Info("Planned %d files: %d via bot (%d split), %d via user", len(rows), bot, split, user)
	r.log.Info("  Artifacts to produce: %d", segments)
	if problems > 0 {
		r.log.Error("  %d file(s) cannot be planned [!]", problems)
	} else {
		r.log.Success("  Every file can be planned")
	}
}

func fmtDuration(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}
	return display.FormatDuration(seconds)
}

func routeColor(kind delivery.Kind) string {
	if kind == delivery.User {
		return term.Cyan
	}
	return ""
}

func partsColor(parts int) string {
	if parts > 1 {
		return term.Yellow
	}
	return ""
}

func formatProblem(problem string) string {
	if problem == "" {
		return ""
	}
	return term.Paint(term.Red, "[!] "+problem)
}

// colorPad pads a plain string to width, then wraps it in color.
func colorPad(s string, width int, color string) string {
	return term.Paint(color, fmt.Sprintf("%-*s", width, s))
}

// printProgress shows a live probe counter. On a TTY it writes an
// inline \r-overwritten line; otherwise it is a no-op.
func printProgress(isTTY bool, current, total, problems int, name string) {
	if !isTTY {
		return
	}
	pct := current * 100 / total
	status := fmt.Sprintf("  Probing [%d/%d] %d%% ", current, total, pct)
	if problems > 0 {
		status += fmt.Sprintf("(%d with problems) ", problems)
	}

	maxName := 40
	if len(name) > maxName {
		name = name[:maxName-1] + "…"
	}
	status += name

	// Pad to 80 chars to overwrite previous longer lines, then \r.
	if len(status) < 80 {
		status += strings.Repeat(" ", 80-len(status))
	}
	fmt.Fprintf(os.Stdout, "\r%s", status)
}

// clearProgress erases the inline progress line on a TTY.
func clearProgress() {
	fmt.Fprintf(os.Stdout, "\r%s\r", strings.Repeat(" ", 80))
}
