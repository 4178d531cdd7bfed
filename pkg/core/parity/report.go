package parity

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// BuildMarkdown renders the report as reviewer-facing Markdown. Flags come
// first because a reviewer reads the anomalies before the cell grid.
func (r *Report) BuildMarkdown() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Parity Report: %s\n\n", r.DealID))
	b.WriteString(fmt.Sprintf("- Verdict: `%s` (pass=%v)\n", r.Verdict, r.Pass))
	b.WriteString(fmt.Sprintf("- Sides: `%s` vs `%s`\n", r.LeftName, r.RightName))
	b.WriteString(fmt.Sprintf("- Generated at (UTC): `%s`\n", r.GeneratedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("- Periods compared `%d`, cells `%d`, material diffs `%d`\n",
		r.Summary.PeriodsCompared, r.Summary.CellsCompared, r.Summary.MaterialDiffs))
	b.WriteString(fmt.Sprintf("- Warnings `%d`, blocks `%d`, error flags `%d`, warning flags `%d`\n\n",
		r.Summary.Warnings, r.Summary.Blocks, r.Summary.ErrorFlags, r.Summary.WarningFlags))

	if len(r.Flags) > 0 {
		b.WriteString("## Flags\n\n")
		for _, f := range r.Flags {
			b.WriteString(fmt.Sprintf("- **%s** (%s): %s\n", f.Kind, f.Severity, f.Detail))
		}
		b.WriteString("\n")
	}

	for _, pc := range r.Periods {
		b.WriteString(fmt.Sprintf("## Period %s\n\n", pc.End.Format("2006-01-02")))
		if len(pc.Diffs) == 0 {
			b.WriteString("No comparable values.\n\n")
			continue
		}
		b.WriteString(fmt.Sprintf("| Key | %s | %s | Delta | Pct | Level |\n", r.LeftName, r.RightName))
		b.WriteString("|---|---:|---:|---:|---:|---|\n")
		for _, d := range pc.Diffs {
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				d.Key, fmtAmount(d.Left), fmtAmount(d.Right),
				fmtDelta(d.Delta), fmtPct(d.PctDelta), fmtLevel(d)))
		}
		b.WriteString("\n")
	}

	if len(r.Notes) > 0 {
		b.WriteString("## Notes\n\n")
		for _, n := range r.Notes {
			b.WriteString(fmt.Sprintf("- %s\n", n))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHTML converts the Markdown report to HTML for the review UI.
func (r *Report) RenderHTML() (string, error) {
	var buf bytes.Buffer
	if err := htmlRenderer.Convert([]byte(r.BuildMarkdown()), &buf); err != nil {
		return "", fmt.Errorf("failed to render parity report: %w", err)
	}
	return buf.String(), nil
}

func fmtAmount(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", *v)
}

func fmtDelta(delta float64) string {
	return fmt.Sprintf("%+.2f", delta)
}

func fmtPct(pct float64) string {
	if math.IsInf(pct, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", pct*100)
}

func fmtLevel(d Diff) string {
	switch {
	case d.Level != "":
		return d.Level
	case d.Material:
		return "material"
	default:
		return "ok"
	}
}
