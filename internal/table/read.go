package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrNoHeader indicates a source without a header row.
var ErrNoHeader = errors.New("table: source has no header row")

// ErrSheetNotFound indicates the requested sheet is absent from a workbook.
var ErrSheetNotFound = errors.New("table: sheet not found")

// ErrNotWorkbook indicates bytes that excelize cannot open as a workbook.
var ErrNotWorkbook = errors.New("table: not a workbook")

// ReadCSV reads a comma-delimited source whose first record is the header.
// Ragged rows are tolerated; missing trailing cells are nulls.
func ReadCSV(ctx context.Context, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("table: read csv header: %w", err)
	}
	header = append([]string(nil), header...)

	var rows [][]string
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("table: read csv line %d: %w", line, err)
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return FromRows(header, rows), nil
}

// ReadSheet reads the named sheet of an xlsx workbook. The first row is the
// header. Numbers are read as stored, ignoring display formats; cells with a
// date format become ISO dates.
func ReadSheet(ctx context.Context, r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWorkbook, err)
	}
	defer func() { _ = f.Close() }()
	return SheetTable(ctx, f, sheet)
}

// SheetTable reads the named sheet from an already open workbook.
func SheetTable(ctx context.Context, f *excelize.File, sheet string) (*Table, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}
	it, err := f.Rows(sheet)
	if err != nil {
		if isSheetMissing(err) {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
		}
		return nil, fmt.Errorf("table: rows %q: %w", sheet, err)
	}
	defer func() { _ = it.Close() }()

	var raw [][]string
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vals, err := it.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("table: read sheet %q: %w", sheet, err)
		}
		raw = append(raw, vals)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("table: read sheet %q: %w", sheet, err)
	}
	_ = it.Close()
	if len(raw) == 0 || isBlank(raw[0]) {
		return nil, ErrNoHeader
	}

	dates := newDateCells(f, sheet)
	rows := make([][]string, 0, len(raw)-1)
	for i, vals := range raw[1:] {
		if isBlank(vals) {
			continue
		}
		// row 1 is the header
		dates.render(i+2, vals)
		rows = append(rows, vals)
	}
	return FromRows(raw[0], rows), nil
}

// dateCells rewrites date-formatted serial numbers as ISO text. Raw reads
// return the serial, which would otherwise pass for an amount.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	isDate   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, isDate: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateCells) render(row int, vals []string) {
	for i, v := range vals {
		serial, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			continue
		}
		if typ, err := d.f.GetCellType(d.sheet, cell); err != nil || (typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber) {
			continue
		}
		style, err := d.f.GetCellStyle(d.sheet, cell)
		if err != nil || style == 0 || !d.styleIsDate(style) {
			continue
		}
		tm, err := excelize.ExcelDateToTime(serial, d.date1904)
		if err != nil {
			continue
		}
		vals[i] = formatDate(tm, serial)
	}
}

func (d *dateCells) styleIsDate(idx int) bool {
	if v, ok := d.isDate[idx]; ok {
		return v
	}
	v := false
	if st, err := d.f.GetStyle(idx); err == nil && st != nil {
		v = isDateNumFmt(st.NumFmt, st.CustomNumFmt)
	}
	d.isDate[idx] = v
	return v
}

func formatDate(tm time.Time, serial float64) string {
	switch {
	case serial < 1:
		return tm.Format("15:04:05")
	case tm.Hour() == 0 && tm.Minute() == 0 && tm.Second() == 0:
		return tm.Format("2006-01-02")
	default:
		return tm.Format("2006-01-02 15:04:05")
	}
}

// isDateNumFmt reports whether a built-in format ID or custom format code
// renders dates or times.
func isDateNumFmt(id int, custom *string) bool {
	if custom != nil {
		return isDateFormatCode(*custom)
	}
	switch {
	case id >= 14 && id <= 22, id >= 45 && id <= 47:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		// localized date formats
		return true
	}
	return false
}

// isDateFormatCode looks for date or time tokens outside quoted literals,
// escapes and bracketed sections. Elapsed-time brackets like [h] count.
func isDateFormatCode(code string) bool {
	low := strings.ToLower(code)
	if low == "general" || low == "@" {
		return false
	}
	// only the positive section decides
	if i := strings.IndexByte(low, ';'); i >= 0 {
		low = low[:i]
	}
	inQuote, inBracket := false, false
	var bracket strings.Builder
	for i := 0; i < len(low); i++ {
		c := low[i]
		switch {
		case inQuote:
			if c == '"' {
				inQuote = false
			}
		case inBracket:
			if c == ']' {
				inBracket = false
				if b := bracket.String(); b == "h" || b == "hh" || b == "m" || b == "mm" || b == "s" || b == "ss" {
					return true
				}
				bracket.Reset()
				continue
			}
			bracket.WriteByte(c)
		case c == '"':
			inQuote = true
		case c == '[':
			inBracket = true
		case c == '\\' || c == '_' || c == '*':
			i++
		case strings.IndexByte("ymdhs", c) >= 0:
			return true
		}
	}
	return false
}

func isSheetMissing(err error) bool {
	var sne excelize.ErrSheetNotExist
	if errors.As(err, &sne) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "doesn't exist") || strings.Contains(low, "does not exist")
}

func isBlank(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
