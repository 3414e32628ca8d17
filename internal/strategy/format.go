package strategy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/tree"
)

// Format names a render strategy.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatTree     Format = "tree"
	FormatCompact  Format = "compact"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatTable, FormatJSON, FormatTree, FormatCompact, FormatMarkdown:
		return Format(name), nil
	}
	return "", domain.Validation("unknown format " + name)
}

// RenderOptions carry the output configuration into a formatter. They are a
// parameter, never ambient state, so renders are deterministic in tests.
type RenderOptions struct {
	Color      bool
	Unicode    bool
	DateFormat string
}

// RenderOptionsFrom extracts render options from the workspace config.
func RenderOptionsFrom(cfg *config.Config) RenderOptions {
	if cfg == nil {
		cfg = config.Default()
	}
	return RenderOptions{
		Color:      cfg.Output.Color,
		Unicode:    cfg.Output.Unicode,
		DateFormat: cfg.Output.DateFormat,
	}
}

// Render produces the user-facing string for tasks in the given format.
// Tree format reconstructs the forest from the (already filtered and
// sorted) rows.
func Render(f Format, opts RenderOptions, tasks []domain.Task) (string, error) {
	switch f {
	case FormatTable:
		return renderTable(opts, tasks), nil
	case FormatJSON:
		return renderJSON(tasks)
	case FormatTree:
		return renderTree(opts, tasks)
	case FormatCompact:
		return renderCompact(opts, tasks), nil
	case FormatMarkdown:
		return renderMarkdown(opts, tasks), nil
	}
	return "", domain.Validation("unknown format " + string(f))
}

func renderTable(opts RenderOptions, tasks []domain.Task) string {
	tw := table.NewWriter()
	if opts.Unicode {
		tw.SetStyle(table.StyleLight)
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Project", "Due"})
	for _, t := range tasks {
		status := t.Status
		priority := t.Priority
		if opts.Color {
			status = statusColors(t.Status).Sprint(t.Status)
			priority = priorityColors(t.Priority).Sprint(t.Priority)
		}
		project := ""
		if t.ProjectID != nil {
			project = fmt.Sprintf("%d", *t.ProjectID)
		}
		tw.AppendRow(table.Row{t.ID, t.Title, status, priority, project, formatDue(opts, t)})
	}
	return tw.Render() + "\n"
}

func priorityColors(p string) text.Colors {
	switch p {
	case domain.PriorityUrgent:
		return text.Colors{text.FgHiRed, text.Bold}
	case domain.PriorityHigh:
		return text.Colors{text.FgRed}
	case domain.PriorityMedium:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgWhite}
	}
}

func statusColors(s string) text.Colors {
	switch s {
	case domain.StatusDone:
		return text.Colors{text.FgGreen}
	case domain.StatusInProgress:
		return text.Colors{text.FgCyan}
	case domain.StatusCancelled:
		return text.Colors{text.Faint}
	default:
		return text.Colors{text.FgWhite}
	}
}

// renderJSON emits the stable interchange shape: an array of task objects
// with every field present, null for absent optionals. Parsing the output
// yields the structured input field-for-field.
func renderJSON(tasks []domain.Task) (string, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	b, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func renderTree(opts RenderOptions, tasks []domain.Task) (string, error) {
	f := tree.Build(tasks)
	rows, err := f.Flatten()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	marker := "- "
	if opts.Unicode {
		marker = "• "
	}
	for _, row := range rows {
		p, err := tree.Progress(row.Node)
		if err != nil {
			return "", err
		}
		t := row.Node.Task
		title := t.Title
		if opts.Color && t.Status == domain.StatusDone {
			title = text.Colors{text.FgGreen}.Sprint(title)
		}
		fmt.Fprintf(&b, "%s%s%s [%s] %d%%\n", strings.Repeat("  ", row.Depth), marker, title, t.Status, int(p*100))
	}
	return b.String(), nil
}

func renderCompact(opts RenderOptions, tasks []domain.Task) string {
	var b strings.Builder
	for _, t := range tasks {
		line := fmt.Sprintf("#%d [%s/%s] %s", t.ID, t.Status, t.Priority, t.Title)
		if due := formatDue(opts, t); due != "" {
			line += " (due " + due + ")"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func renderMarkdown(opts RenderOptions, tasks []domain.Task) string {
	var b strings.Builder
	for _, t := range tasks {
		box := "[ ]"
		if t.Status == domain.StatusDone {
			box = "[x]"
		}
		line := fmt.Sprintf("- %s **%s** (%s", box, t.Title, t.Priority)
		if due := formatDue(opts, t); due != "" {
			line += ", due " + due
		}
		line += ") " + t.Status
		b.WriteString(line + "\n")
	}
	return b.String()
}

func formatDue(opts RenderOptions, t domain.Task) string {
	due, ok := dueTime(t)
	if !ok {
		return ""
	}
	layout := opts.DateFormat
	if layout == "" {
		layout = domain.DateLayout
	}
	return due.Format(layout)
}
