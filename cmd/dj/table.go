package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// pathWidth sizes path columns to the terminal, leaving room for the others
func pathWidth() int {
	w := util.GetTerminalWidth() - 70
	if w < 30 {
		return 30
	}
	if w > 120 {
		return 120
	}
	return w
}

// groupRows flattens groups into one row per member
func groupRows(groups []cluster.Group) [][]string {
	width := pathWidth()
	var rows [][]string
	for _, g := range groups {
		for i, f := range g.Files {
			group := ""
			if i == 0 {
				group = fmt.Sprintf("%d", g.ID)
			}
			rows = append(rows, []string{
				group,
				fmt.Sprintf("%d", f.ID),
				describeFile(f),
				formatBitrate(f.BitrateKbps),
				humanize.IBytes(uint64(f.SizeBytes)),
				shortenPath(f.Path, width),
			})
		}
	}
	return rows
}

func describeFile(f *store.FileRecord) string {
	parts := []string{}
	if f.Artist != "" {
		parts = append(parts, f.Artist)
	}
	if f.Title != "" {
		parts = append(parts, f.Title)
	}
	if len(parts) == 0 {
		return filepath.Base(f.Path)
	}
	return strings.Join(parts, " - ")
}

func formatBitrate(kbps int) string {
	if kbps <= 0 {
		return "?"
	}
	return fmt.Sprintf("%d kbps", kbps)
}

// shortenPath truncates from the middle, keeping start and end
func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
