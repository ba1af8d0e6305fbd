package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JonMunkholm/transitwatch/internal/core"
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")) // cyan
	styleLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))           // gray
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))           // yellow
	styleBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	probabilityStyles = map[core.AnomalyProbability]lipgloss.Style{
		core.ProbabilityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true), // red
		core.ProbabilityElevated: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),            // orange
		core.ProbabilityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),            // yellow
		core.ProbabilityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),             // green
	}
)

func styleProbability(p core.AnomalyProbability) string {
	if s, ok := probabilityStyles[p]; ok {
		return s.Render(string(p))
	}
	return string(p)
}

// renderStats draws the four probability counters in one box.
func renderStats(s core.AnomalyStats) string {
	cell := func(p core.AnomalyProbability, n int) string {
		return lipgloss.JoinVertical(lipgloss.Center,
			styleProbability(p),
			fmt.Sprintf("%d", n),
		)
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top,
		cell(core.ProbabilityHigh, s.High), "   ",
		cell(core.ProbabilityElevated, s.Elevated), "   ",
		cell(core.ProbabilityMedium, s.Medium), "   ",
		cell(core.ProbabilityLow, s.Low),
	)
	title := styleTitle.Render(fmt.Sprintf("%d records", s.Total))
	return styleBox.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", row))
}

func renderSummary(s *core.ImportSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", styleTitle.Render("imported"), s.FileName, s.Mode)
	fmt.Fprintf(&b, "  %s %d  %s %d  %s %d  %s %d  %s %d\n",
		styleLabel.Render("rows"), s.TotalRows,
		styleLabel.Render("valid"), s.ValidRows,
		styleLabel.Render("added"), s.Added,
		styleLabel.Render("duplicates"), s.Duplicates,
		styleLabel.Render("errors"), s.ErrorCount,
	)
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "  %s %s\n", styleWarn.Render("!"), e)
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "  %s %s\n", styleWarn.Render("warning:"), w)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPreview(p core.PreviewResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", styleLabel.Render("mapped:"), strings.Join(p.Mapped, ", "))
	if len(p.Unmapped) > 0 {
		fmt.Fprintf(&b, "%s %s\n", styleWarn.Render("unmapped:"), strings.Join(p.Unmapped, ", "))
	}
	b.WriteString(renderTable(p.Headers, p.Rows))
	return b.String()
}

// recordColumns are shown by the query command.
var recordColumns = []core.Column{
	core.ColMessageCode,
	core.ColTransmissionDate,
	core.ColWagonContainerNumber,
	core.ColCargoName,
	core.ColTotalWeight,
}

func renderRecords(res core.QueryResult) string {
	headers := []string{"id", "probability", "risk"}
	for _, c := range recordColumns {
		headers = append(headers, c.Name())
	}

	rows := make([][]string, 0, len(res.Records))
	for _, r := range res.Records {
		row := []string{r.ID, styleProbability(r.AnomalyProbability), string(r.Risk())}
		for _, c := range recordColumns {
			row = append(row, r.Text(c))
		}
		rows = append(rows, row)
	}

	footer := styleLabel.Render(fmt.Sprintf("page %d/%d, %d matching records",
		res.Page, max(res.TotalPages, 1), res.Total))
	return renderTable(headers, rows) + footer
}

func renderInfo(r infoReport) string {
	lines := []string{
		styleTitle.Render("storage"),
		fmt.Sprintf("%s %s (key %s)", styleLabel.Render("backend:"), r.Backend, r.Key),
		fmt.Sprintf("%s %d in memory, %s snapshot", styleLabel.Render("records:"), r.Records, r.Storage.DataType),
		fmt.Sprintf("%s %d of %d bytes (%.2f%%)", styleLabel.Render("size:"), r.Storage.Size, r.Storage.MaxSize, r.Storage.Usage),
	}
	if !r.Storage.CanStoreFull {
		lines = append(lines, styleWarn.Render("the collection no longer fits a full snapshot"))
	}
	if r.LastImport != nil {
		lines = append(lines, fmt.Sprintf("%s %d records at %s", styleLabel.Render("last import:"), r.LastImport.Count, r.LastImport.Timestamp))
	}
	return styleBox.Render(strings.Join(lines, "\n"))
}

// renderTable pads cells to column width. Widths are measured with
// lipgloss so styled cells and Cyrillic headers line up.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	cell := func(s string, w int) string {
		return lipgloss.NewStyle().Width(w).Render(s)
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(styleTitle.Render(cell(h, widths[i])))
		b.WriteString("  ")
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i := range widths {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			b.WriteString(cell(v, widths[i]))
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}
