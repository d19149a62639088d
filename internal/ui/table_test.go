package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/profile"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/status"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatStyled, f)

	f, err = ParseFormat(" Markdown ")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("yaml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestStatsTableFormats(t *testing.T) {
	tbl := StatsTable(status.Stats{ActiveUsers: 42, Uptime: 3725, Version: "1.2.0"}, "https://example.test")

	var csv bytes.Buffer
	require.NoError(t, tbl.Write(&csv, FormatCSV))
	assert.Contains(t, csv.String(), "Metric,Value")
	assert.Contains(t, csv.String(), "Online,42")
	assert.Contains(t, csv.String(), "Uptime,1h 2m 5s")

	var md bytes.Buffer
	require.NoError(t, tbl.Write(&md, FormatMarkdown))
	assert.Contains(t, md.String(), "| Online | 42 |")

	var plain bytes.Buffer
	require.NoError(t, tbl.Write(&plain, FormatPlain))
	assert.Contains(t, plain.String(), "1.2.0")

	var styled bytes.Buffer
	require.NoError(t, tbl.Write(&styled, FormatStyled))
	assert.Contains(t, styled.String(), "example.test")

	assert.ErrorIs(t, tbl.Write(&plain, Format("xml")), ErrUnknownFormat)
}

func TestProfileTable(t *testing.T) {
	p := profile.Profile{ID: "abc", Preference: profile.PreferFemale, Credits: 3}
	tbl := ProfileTable(p, "/tmp/p")

	var out bytes.Buffer
	require.NoError(t, tbl.Write(&out, FormatCSV))
	assert.Contains(t, out.String(), "Gender,-")
	assert.Contains(t, out.String(), "Preference,female")
	assert.Contains(t, out.String(), "Matching,any")
	assert.Contains(t, out.String(), "Premium,no")
}

func TestEmptyTable(t *testing.T) {
	assert.Contains(t, Table{Headers: []string{"a"}}.View(), "Nothing to show")
}

func TestFormatTimeDuration(t *testing.T) {
	assert.Equal(t, "5s", FormatTimeDuration(5_000_000_000))
	assert.Equal(t, "2m 0s", FormatTimeDuration(120_000_000_000))
}
