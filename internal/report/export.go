package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/resume-agent/internal/store"
)

const (
	sheetSummary = "Summary"
	sheetScores  = "Scores"
	sheetUsers   = "Users"
)

// ExportXLSX writes snap and users as a workbook with Summary, Scores and
// Users sheets.
func ExportXLSX(w io.Writer, snap Snapshot, users []store.User) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Generated at", snap.GeneratedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Uptime (s)", snap.UptimeSeconds},
	}
	for _, k := range sortedKeys(snap.Counters) {
		rows = append(rows, []any{k, snap.Counters[k]})
	}
	for _, k := range sortedKeys(snap.Failures) {
		rows = append(rows, []any{"failure: " + k, snap.Failures[k]})
	}
	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetScores); err != nil {
		return fmt.Errorf("create %s sheet: %w", sheetScores, err)
	}
	rows = [][]any{{"Operation", "Count", "Mean", "Median", "P90", "StdDev", "Min", "Max"}}
	for _, s := range snap.Scores {
		rows = append(rows, []any{s.Operation, s.Count, s.Mean, s.Median, s.P90, s.StdDev, s.Min, s.Max})
	}
	if err := writeRows(f, sheetScores, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetUsers); err != nil {
		return fmt.Errorf("create %s sheet: %w", sheetUsers, err)
	}
	rows = [][]any{{"ID", "Email", "Full name", "Plan", "Active", "Admin", "Created at"}}
	for _, u := range users {
		rows = append(rows, []any{u.ID, u.Email, u.FullName, u.Plan, u.IsActive, u.IsAdmin, u.CreatedAt.UTC().Format("2006-01-02 15:04:05")})
	}
	if err := writeRows(f, sheetUsers, rows); err != nil {
		return err
	}

	if err := f.SetColWidth(sheetUsers, "B", "C", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
