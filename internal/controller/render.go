package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	m "runnel.dev/pkg/runnel/internal/model"
)

// Format selects how runnables are printed.
type Format string

// Available Format values.
const (
	FormatTree  Format = "tree"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTree:
		return FormatTree, nil
	case FormatTable, FormatYAML, FormatJSON:
		return f, nil
	}

	return "", fmt.Errorf("unknown format %q (want tree, table, yaml or json)", s)
}

const shortIDLen = 8

// ShortID abbreviates id for display. Any unique prefix is accepted back
// wherever an id is expected.
func ShortID(id m.ID) string {
	if len(id) <= shortIDLen {
		return string(id)
	}

	return string(id[:shortIDLen])
}

// RenderTree draws root as an indented outline, one node per line.
func RenderTree(root m.AppendItem) string {
	var b strings.Builder

	switch {
	case root.Session != nil:
		for _, c := range root.Session.Crates {
			renderCrate(&b, c)
		}
	case root.Crate != nil:
		renderCrate(&b, *root.Crate)
	case root.Module != nil:
		renderContent(&b, m.ModuleContent(*root.Module), 0)
	case root.MacroCall != nil:
		renderContent(&b, m.MacroCallContent(*root.MacroCall), 0)
	case root.Runnable != nil:
		renderContent(&b, m.RunnableContent(*root.Runnable), 0)
	}

	return b.String()
}

func renderCrate(b *strings.Builder, c m.Crate) {
	fmt.Fprintf(b, "crate %s\n", c.Name)

	for _, mod := range c.Modules {
		renderContent(b, m.ModuleContent(mod), 1)
	}
}

func renderContent(b *strings.Builder, c m.Content, depth int) {
	indent := strings.Repeat("  ", depth)

	switch {
	case c.Module != nil:
		fmt.Fprintf(b, "%smod %s (%s)\n", indent, c.Module.Name, targetLabel(c.Module.Location.Target))

		for _, child := range c.Module.Content {
			renderContent(b, child, depth+1)
		}
	case c.MacroCall != nil:
		fmt.Fprintf(b, "%s%s!\n", indent, c.MacroCall.Name)

		for _, child := range c.MacroCall.Content {
			renderContent(b, child, depth+1)
		}
	case c.Runnable != nil:
		fmt.Fprintf(b, "%s%s [%s]\n", indent, runnableLabel(*c.Runnable), ShortID(c.Runnable.ID))
	}
}

func targetLabel(t m.Target) string {
	if t.Kind == "" {
		return "?"
	}

	return string(t.Kind) + " " + t.Name
}

func runnableLabel(r m.Runnable) string {
	if r.IsFunction() {
		return string(r.FuncKind) + " " + r.Name
	}

	return "doctest " + r.Location.Path
}

func location(loc m.Location) string {
	if loc.File == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", loc.File, loc.Line)
}

// RenderRunnablesTable lists runnables with their ids, one per row.
func RenderRunnablesTable(runnables []m.Runnable) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"ID", "Kind", "Path", "Crate", "Location"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, r := range runnables {
		kind := string(r.FuncKind)
		if !r.IsFunction() {
			kind = string(r.Kind)
		}

		table.Append([]string{ShortID(r.ID), kind, r.Location.Path, r.Location.Crate, location(r.Location)})
	}

	table.SetFooter([]string{fmt.Sprintf("Total %d", len(runnables)), "", "", "", ""})
	table.Render()

	return buf.String()
}

// RenderResultsTable lists run results with the name of their runnable.
func RenderResultsTable(report m.Report) string {
	names := make(map[m.ID]string, len(report.Runnable))
	for _, r := range report.Runnable {
		names[r.ID] = runnableLabel(r)
	}

	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"ID", "Runnable", "State", "Duration", "Message"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, st := range report.Results {
		table.Append([]string{ShortID(st.ID), names[st.ID], string(st.State), formatDuration(st.Duration), firstLine(st.Message)})
	}

	s := m.Summarize(report.Results)
	table.SetFooter([]string{
		fmt.Sprintf("Total %d", s.Total()),
		"",
		fmt.Sprintf("%d passed", s.Passed),
		fmt.Sprintf("%d failed", s.Failed),
		fmt.Sprintf("%d errored", s.Errored),
	})
	table.Render()

	return buf.String()
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}

	return d.Round(time.Millisecond).String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// EncodeTree serializes root in a machine-readable format.
func EncodeTree(root m.AppendItem, format Format) (string, error) {
	switch format {
	case FormatYAML:
		out, err := yaml.Marshal(root)
		if err != nil {
			return "", fmt.Errorf("encode yaml: %w", err)
		}

		return string(out), nil
	case FormatJSON:
		out, err := json.MarshalIndent(root, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}

		return string(out) + "\n", nil
	}

	return "", fmt.Errorf("format %q is not machine-readable", format)
}

// RenderPatch describes patch as an edit count line followed by a unified
// diff between the outlines of the trees before and after it.
func RenderPatch(before, after m.AppendItem, patch m.Patch) (string, error) {
	header := fmt.Sprintf("patch v%d: %d appended, %d deleted, %d updated\n",
		patch.Version, len(patch.Appended), len(patch.Deleted), len(patch.Updated))

	if patch.IsEmpty() {
		return header, nil
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(RenderTree(before)),
		B:        difflib.SplitLines(RenderTree(after)),
		FromFile: fmt.Sprintf("v%d", patch.Version),
		ToFile:   fmt.Sprintf("v%d", patch.Version+1),
		Context:  2,
	})
	if err != nil {
		return "", fmt.Errorf("render patch diff: %w", err)
	}

	return header + diff, nil
}
