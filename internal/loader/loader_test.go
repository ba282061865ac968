package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
	"github.com/xuri/excelize/v2"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeXLSX(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestLoadReport_CSV(t *testing.T) {
	path := writeCSV(t, "report.csv", "account,period,actual,budget\nRevenue,2024-01,1000,800\nCOGS,2024-01,400,500\nRent,2024-01,1000,1000\n")
	rows, err := LoadReport(context.Background(), path, FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, variance.Record{Account: "Revenue", Period: "2024-01", Actual: 1000, Budget: 800}, rows[0])
	require.False(t, rows[0].HasVariance())
}

func TestLoadReport_EndToEndFilter(t *testing.T) {
	path := writeCSV(t, "report.csv", "account,period,actual,budget\nRevenue,2024-01,1000,800\nCOGS,2024-01,400,500")
	rows, err := LoadReport(context.Background(), path, FormatCSV)
	require.NoError(t, err)

	variance.ComputeVariance(rows)
	params, err := variance.NewAnalysisParams(150, 0, nil, nil)
	require.NoError(t, err)
	out := variance.ApplyFilters(rows, params)
	require.Len(t, out, 1)
	require.Equal(t, "Revenue", out[0].Account)
	require.Equal(t, 200.0, *out[0].AbsoluteVariance)
}

func TestLoadReport_NotFound(t *testing.T) {
	_, err := LoadReport(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), FormatCSV)
	require.ErrorIs(t, err, variance.ErrNotFound)
}

func TestLoadReport_MissingColumns(t *testing.T) {
	path := writeCSV(t, "invalid.csv", "name,date,value\nRevenue,2024-01,1000\n")
	_, err := LoadReport(context.Background(), path, FormatCSV)
	require.ErrorIs(t, err, variance.ErrSchema)

	var se *variance.SchemaError
	require.ErrorAs(t, err, &se)
	require.Equal(t, variance.MandatoryColumns, se.Missing)
}

func TestLoadReport_ExtraColumnsPolicy(t *testing.T) {
	path := writeCSV(t, "extra.csv", "account,period,actual,budget,comment\nRevenue,2024-01,1000,800,ok\n")

	rows, err := LoadReport(context.Background(), path, FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = LoadReport(context.Background(), path, FormatCSV, WithStrictColumns(true))
	var se *variance.SchemaError
	require.ErrorAs(t, err, &se)
	require.Equal(t, []string{"comment"}, se.Extra)
}

func TestLoadReport_DropsNullsAndDuplicates(t *testing.T) {
	path := writeCSV(t, "dirty.csv", strings.Join([]string{
		"account,period,actual,budget",
		"Revenue,2024-01,1000,800",
		"Revenue,2024-01,1200,800",
		"COGS,2024-01,,500",
		"Rent,2024-01,1000,",
		",2024-01,10,10",
		"Payroll,2024-01,300,250",
	}, "\n"))
	rows, err := LoadReport(context.Background(), path, FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 1000.0, rows[0].Actual, "first duplicate wins")
	require.Equal(t, "Payroll", rows[1].Account)
}

func TestLoadReport_NonNumericIsTypeError(t *testing.T) {
	path := writeCSV(t, "bad.csv", "account,period,actual,budget\nRevenue,2024-01,lots,800\n")
	_, err := LoadReport(context.Background(), path, FormatCSV)
	require.ErrorIs(t, err, variance.ErrType)

	var te *variance.TypeError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "actual", te.Column)
	require.Equal(t, "lots", te.Value)
}

func TestLoadReport_UnsupportedFormat(t *testing.T) {
	path := writeCSV(t, "report.json", "{}")
	_, err := LoadReport(context.Background(), path, Format("json"))
	require.ErrorIs(t, err, variance.ErrUnsupportedFormat)

	_, err = FormatFromPath("report.txt")
	require.ErrorIs(t, err, variance.ErrUnsupportedFormat)

	f, err := FormatFromPath("Report.XLSM")
	require.NoError(t, err)
	require.Equal(t, FormatXLSX, f)

	// csv bytes behind a workbook extension
	_, err = ReadTable(context.Background(), strings.NewReader("account,period,actual,budget\n"), FormatXLSX)
	require.ErrorIs(t, err, variance.ErrUnsupportedFormat)
}

func TestLoadReport_SizeLimit(t *testing.T) {
	path := writeCSV(t, "report.csv", "account,period,actual,budget\nRevenue,2024-01,1000,800\n")
	_, err := LoadReport(context.Background(), path, FormatCSV, WithMaxBytes(10))
	require.ErrorIs(t, err, variance.ErrTooLarge)

	_, err = ReadTable(context.Background(), strings.NewReader("account,period,actual,budget\n"), FormatCSV, WithMaxBytes(5))
	require.ErrorIs(t, err, variance.ErrTooLarge)
}

func TestLoadReport_XLSX(t *testing.T) {
	path := writeXLSX(t, "Budget", [][]any{
		{"account", "period", "actual", "budget"},
		{"Revenue", "2024-01", 1000, 800},
		{"COGS", "2024-01", 400, 500},
	})

	rows, err := LoadReport(context.Background(), path, FormatXLSX, WithSheet("Budget"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 400.0, rows[1].Actual)

	_, err = LoadReport(context.Background(), path, FormatXLSX)
	require.ErrorIs(t, err, variance.ErrNotFound, "default sheet is absent")
}

func TestRecordsTableRoundTrip(t *testing.T) {
	in := []variance.Record{
		{Account: "Revenue", Period: "2024-01", Actual: 1000.25, Budget: 800},
		{Account: "COGS", Period: "Q1 2024", Actual: -0.1, Budget: 0},
	}
	out, err := TableToRecords(RecordsToTable(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestNormalize_NeverGrows(t *testing.T) {
	tbl := table.FromRows(variance.MandatoryColumns, [][]string{
		{"A", "p", "1", "2"},
		{"A", "p", "1", "2"},
		{"B", "p", "", "2"},
	})
	norm, err := Normalize(tbl, false)
	require.NoError(t, err)
	require.LessOrEqual(t, norm.Len(), tbl.Len())
	require.Equal(t, 1, norm.Len())
}

func TestLoadReport_XLSXFormattedAmounts(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"account", "period", "actual", "budget"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Revenue", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1000.5, -800}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"COGS", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 1234567.25, 0}))

	dollars := `"$"#,##0.00_);("$"#,##0.00)`
	currency, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dollars})
	require.NoError(t, err)
	accounting, err := f.NewStyle(&excelize.Style{NumFmt: 44})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "C2", "C3", currency))
	require.NoError(t, f.SetCellStyle("Sheet1", "D2", "D3", accounting))

	path := filepath.Join(t.TempDir(), "formatted.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	rows, err := LoadReport(context.Background(), path, FormatXLSX)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 1000.5, rows[0].Actual)
	require.Equal(t, -800.0, rows[0].Budget)
	require.Equal(t, "2024-01-01", rows[0].Period)
	require.Equal(t, 1234567.25, rows[1].Actual)
	require.Equal(t, "2024-02-01", rows[1].Period)

	tbl, err := LoadTable(context.Background(), path, FormatXLSX)
	require.NoError(t, err)
	actual, _ := tbl.Column("actual")
	require.Equal(t, table.KindNumber, actual.Kind)
	period, _ := tbl.Column("period")
	require.Equal(t, table.KindDate, period.Kind)
}
