package mcperr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/vinodismyname/mcpvariance/internal/security"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation        Code = "VALIDATION"
	InvalidWorkspace  Code = "INVALID_WORKSPACE"
	InvalidSheet      Code = "INVALID_SHEET"
	CursorInvalid     Code = "CURSOR_INVALID"
	CursorBuildFailed Code = "CURSOR_BUILD_FAILED"

	// Resource & Limits
	BusyResource  Code = "BUSY_RESOURCE"
	Timeout       Code = "TIMEOUT"
	LimitExceeded Code = "LIMIT_EXCEEDED"
	FileTooLarge  Code = "FILE_TOO_LARGE"

	// Sources
	NotFound          Code = "NOT_FOUND"
	LoadFailed        Code = "LOAD_FAILED"
	SchemaMismatch    Code = "SCHEMA_MISMATCH"
	TypeMismatch      Code = "TYPE_MISMATCH"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"

	// Mapping & Analysis
	MappingUndetermined Code = "MAPPING_UNDETERMINED"
	MappingInvalid      Code = "MAPPING_INVALID"
	AnalysisFailed      Code = "ANALYSIS_FAILED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:        {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	InvalidWorkspace:  {Code: InvalidWorkspace, Message: "workspace not found or expired", Retryable: true, NextSteps: []string{"Call load_report or analyze_columns again and use the new workspace_id"}},
	InvalidSheet:      {Code: InvalidSheet, Message: "sheet not found", Retryable: true, NextSteps: []string{"Check the sheet name, case and spacing", "Omit sheet to read Sheet1"}},
	CursorInvalid:     {Code: CursorInvalid, Message: "cursor is invalid for current context", Retryable: true, NextSteps: []string{"Restart pagination from the first page", "Keep filters unchanged between pages"}},
	CursorBuildFailed: {Code: CursorBuildFailed, Message: "failed to encode next page cursor", Retryable: true, NextSteps: []string{"Retry or lower page_size"}},

	BusyResource:  {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:       {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Use a smaller report or narrower filters", "Prefer cursor pagination"}},
	LimitExceeded: {Code: LimitExceeded, Message: "operation exceeded configured limits", Retryable: true, NextSteps: []string{"Close unused workspaces or lower page_size"}},
	FileTooLarge:  {Code: FileTooLarge, Message: "file exceeds configured size", Retryable: false, NextSteps: []string{"Use a smaller report or increase the limit"}},

	NotFound:          {Code: NotFound, Message: "source not found", Retryable: true, NextSteps: []string{"Verify the path and sheet name"}},
	LoadFailed:        {Code: LoadFailed, Message: "failed to load report", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	SchemaMismatch:    {Code: SchemaMismatch, Message: "report columns do not match", Retryable: true, NextSteps: []string{"Provide columns account, period, actual, budget", "Or use analyze_columns and apply_mapping"}},
	TypeMismatch:      {Code: TypeMismatch, Message: "non-numeric actual or budget value", Retryable: false, NextSteps: []string{"Fix the reported cell and reload"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported report format", Retryable: false, NextSteps: []string{"Use .csv or .xlsx"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "insufficient permissions to access path", Retryable: false, NextSteps: []string{"Choose a file inside an allowed directory"}},

	MappingUndetermined: {Code: MappingUndetermined, Message: "could not determine columns", Retryable: true, NextSteps: []string{"Inspect analyze_columns output and call apply_mapping with explicit columns"}},
	MappingInvalid:      {Code: MappingInvalid, Message: "invalid column mapping", Retryable: true, NextSteps: []string{"Use column names exactly as reported by analyze_columns"}},
	AnalysisFailed:      {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Verify thresholds and filters"}},
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	code, msg, _ := strings.Cut(t, ":")
	return mcp.NewToolResultError(normalize(Code(strings.TrimSpace(code)), strings.TrimSpace(msg)))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// CodeFor classifies an error from the analysis core, the security layer or
// the context into a canonical code. Unknown errors map to fallback.
func CodeFor(err error, fallback Code) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, variance.ErrTooLarge), errors.Is(err, security.ErrTooLarge):
		return FileTooLarge
	case errors.Is(err, variance.ErrNotFound), errors.Is(err, security.ErrNotFound):
		return NotFound
	case errors.Is(err, variance.ErrSchema):
		return SchemaMismatch
	case errors.Is(err, variance.ErrType):
		return TypeMismatch
	case errors.Is(err, variance.ErrUnsupportedFormat), errors.Is(err, security.ErrUnsupportedExtension):
		return UnsupportedFormat
	case errors.Is(err, security.ErrNotAllowed):
		return PermissionDenied
	case errors.Is(err, variance.ErrMappingUndetermined):
		return MappingUndetermined
	case errors.Is(err, variance.ErrMappingInvalid):
		return MappingInvalid
	case errors.Is(err, variance.ErrInvalidParameter):
		return Validation
	default:
		return fallback
	}
}

// FromError renders err as a tool error result using CodeFor.
func FromError(err error, fallback Code) *mcp.CallToolResult {
	return New(CodeFor(err, fallback), err.Error())
}
