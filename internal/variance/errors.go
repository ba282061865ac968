package variance

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the analysis core. Detailed errors wrap one of these so
// callers can classify failures with errors.Is.
var (
	ErrNotFound            = errors.New("variance: source not found")
	ErrSchema              = errors.New("variance: schema mismatch")
	ErrType                = errors.New("variance: non-numeric value")
	ErrUnsupportedFormat   = errors.New("variance: unsupported format")
	ErrMappingUndetermined = errors.New("variance: could not determine columns")
	ErrMappingInvalid      = errors.New("variance: invalid column mapping")
	ErrInvalidParameter    = errors.New("variance: invalid parameter")
	ErrTooLarge            = errors.New("variance: source exceeds size limit")
)

// SchemaError reports mandatory columns that are missing, or unexpected
// columns when the strict column policy is in effect.
type SchemaError struct {
	Expected []string
	Missing  []string
	Extra    []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(e.Extra, ", "))
	}
	return fmt.Sprintf("%s: %s (expected %s)", ErrSchema, strings.Join(parts, "; "), strings.Join(e.Expected, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// TypeError reports a value that could not be coerced to a number. Row is
// the 1-based position of the record among the rows that survived null
// elimination and deduplication.
type TypeError struct {
	Column string
	Row    int
	Value  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: column %q row %d: %q", ErrType, e.Column, e.Row, e.Value)
}

func (e *TypeError) Unwrap() error { return ErrType }

// UndeterminedError names the mapping slots that no rule could fill.
type UndeterminedError struct {
	Slots []string
}

func (e *UndeterminedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMappingUndetermined, strings.Join(e.Slots, ", "))
}

func (e *UndeterminedError) Unwrap() error { return ErrMappingUndetermined }
