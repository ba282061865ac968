// Package loader reads report sources into canonical variance records.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/mcpvariance/config"
	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// Format tags a source encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" and the spreadsheet tags ("xlsx", "xlsm", ...),
// case-insensitively, with or without a leading dot.
func ParseFormat(tag string) (Format, error) {
	t := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tag)), ".")
	switch {
	case t == "csv":
		return FormatCSV, nil
	case strings.HasPrefix(t, "xls"):
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q (use csv or xlsx)", variance.ErrUnsupportedFormat, tag)
	}
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

type options struct {
	sheet    string
	maxBytes int64
	strict   bool
}

// Option customizes a load.
type Option func(*options)

// WithSheet selects the worksheet for spreadsheet sources.
func WithSheet(name string) Option {
	return func(o *options) {
		if strings.TrimSpace(name) != "" {
			o.sheet = name
		}
	}
}

// WithMaxBytes rejects sources larger than n bytes. Zero disables the check.
func WithMaxBytes(n int64) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithStrictColumns requires the source columns to be exactly the four
// canonical ones instead of a superset.
func WithStrictColumns(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

func buildOptions(opts []Option) options {
	o := options{sheet: config.DefaultSheetName}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// LoadReport loads the file at path, normalizes it and returns records with
// variance unset.
func LoadReport(ctx context.Context, path string, format Format, opts ...Option) ([]variance.Record, error) {
	t, err := LoadTable(ctx, path, format, opts...)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	norm, err := Normalize(t, o.strict)
	if err != nil {
		return nil, err
	}
	return TableToRecords(norm)
}

// LoadTable reads the raw table at path without normalizing it.
func LoadTable(ctx context.Context, path string, format Format, opts ...Option) (*table.Table, error) {
	o := buildOptions(opts)
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", variance.ErrNotFound, path)
		}
		return nil, fmt.Errorf("loader: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", variance.ErrNotFound, path)
	}
	if o.maxBytes > 0 && info.Size() > o.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", variance.ErrTooLarge, info.Size(), o.maxBytes)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadTable(ctx, f, format, opts...)
}

// ReadTable reads a raw table from r. When a size limit is set, reading
// stops with ErrTooLarge once the limit is passed.
func ReadTable(ctx context.Context, r io.Reader, format Format, opts ...Option) (*table.Table, error) {
	o := buildOptions(opts)
	f, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.maxBytes > 0 {
		data, err := io.ReadAll(io.LimitReader(r, o.maxBytes+1))
		if err != nil {
			return nil, fmt.Errorf("loader: read source: %w", err)
		}
		if int64(len(data)) > o.maxBytes {
			return nil, fmt.Errorf("%w: more than %d bytes", variance.ErrTooLarge, o.maxBytes)
		}
		r = bytes.NewReader(data)
	}

	var t *table.Table
	switch f {
	case FormatCSV:
		t, err = table.ReadCSV(ctx, r)
	case FormatXLSX:
		t, err = table.ReadSheet(ctx, r, o.sheet)
	}
	switch {
	case errors.Is(err, table.ErrSheetNotFound):
		return nil, fmt.Errorf("%w: sheet %q", variance.ErrNotFound, o.sheet)
	case errors.Is(err, table.ErrNotWorkbook):
		return nil, fmt.Errorf("%w: %v", variance.ErrUnsupportedFormat, err)
	case errors.Is(err, table.ErrNoHeader):
		return nil, &variance.SchemaError{Expected: variance.MandatoryColumns, Missing: variance.MandatoryColumns}
	case err != nil:
		return nil, err
	}
	return t, nil
}
