package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// writeJSON prints v as indented JSON on the command's stdout. Affirmation
// text is emitted verbatim, so HTML escaping is disabled.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable lays rows out under headers. Short rows are padded with empty
// cells; extra cells are dropped.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) && aligns[i] == alignRight {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const statusLabelWidth = 20

var statusStyles = map[statusKind]struct {
	label  string
	colors text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

// renderStatusLine formats one "label: [KIND] message" row of murmur status.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles[statusInfo]
	}
	badge := "[" + style.label + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", badge)
	if colorize {
		return style.colors.Sprint(line)
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(heading))
	if colorize {
		blue := text.Colors{text.FgBlue, text.Bold}
		return []string{blue.Sprint(heading), blue.Sprint(rule)}
	}
	return []string{heading, rule}
}

// shouldColorize reports whether w is an interactive terminal.
func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
