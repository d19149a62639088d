package ui

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/profile"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/status"
)

var ErrUnknownFormat = errors.New("unknown table format")

// Format selects how a Table is written.
type Format string

const (
	FormatStyled   Format = "styled"
	FormatPlain    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatStyled, nil
	case FormatStyled, FormatPlain, FormatMarkdown, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (want styled, table, markdown or csv)", ErrUnknownFormat, s)
}

// Table is a header plus rows, rendered either with lipgloss for the
// terminal or with go-pretty for piping elsewhere.
type Table struct {
	Headers []string
	Rows    [][]string
}

// View renders the table with the terminal styles.
func (t Table) View() string {
	if len(t.Rows) == 0 {
		return MutedStyle.Render("Nothing to show")
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// Write renders the table to w in the given format.
func (t Table) Write(w io.Writer, format Format) error {
	if format == FormatStyled || format == "" {
		_, err := fmt.Fprintln(w, t.View())
		return err
	}

	pt := prettytable.NewWriter()
	header := make(prettytable.Row, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	pt.AppendHeader(header)
	for _, r := range t.Rows {
		row := make(prettytable.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		pt.AppendRow(row)
	}

	var out string
	switch format {
	case FormatPlain:
		pt.SetStyle(prettytable.StyleLight)
		out = pt.Render()
	case FormatMarkdown:
		out = pt.RenderMarkdown()
	case FormatCSV:
		out = pt.RenderCSV()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

func StatsTable(s status.Stats, server string) Table {
	return Table{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Server", server},
			{"Online", strconv.Itoa(s.ActiveUsers)},
			{"Uptime", FormatTimeDuration(s.UptimeDuration())},
			{"Version", orDash(s.Version)},
		},
	}
}

func ProfileTable(p profile.Profile, path string) Table {
	premium := "no"
	if p.Premium {
		premium = "yes " + IconPremium
	}
	return Table{
		Headers: []string{"Field", "Value"},
		Rows: [][]string{
			{"ID", p.ID},
			{"Gender", orDash(string(p.Gender))},
			{"Preference", string(p.Preference)},
			{"Matching", string(p.EffectivePreference())},
			{"Credits", strconv.Itoa(p.Credits)},
			{"Premium", premium},
			{"Stored at", path},
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
