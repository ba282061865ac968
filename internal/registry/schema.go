package registry

import (
	"github.com/vinodismyname/mcpvariance/internal/insights"
	"github.com/vinodismyname/mcpvariance/internal/mapper"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// --- Input / Output Schemas (typed for discovery) ---

// LoadReportInput defines parameters for loading a canonical report.
type LoadReportInput struct {
	Path          string `json:"path" validate:"required,source_ext" jsonschema_description:"Allowed path to a .csv or .xlsx report with columns account, period, actual, budget"`
	Sheet         string `json:"sheet,omitempty" jsonschema_description:"Worksheet for spreadsheet sources (default Sheet1)"`
	StrictColumns *bool  `json:"strict_columns,omitempty" jsonschema_description:"Reject columns beyond the four canonical ones"`
}

// LoadReportOutput summarizes a loaded report.
type LoadReportOutput struct {
	WorkspaceID string                `json:"workspace_id" jsonschema_description:"Workspace handle for follow-up calls"`
	Rows        int                   `json:"rows" jsonschema_description:"Records after dropping empty and duplicate rows"`
	Periods     []string              `json:"periods"`
	Accounts    []string              `json:"accounts"`
	Metadata    variance.FileMetadata `json:"metadata"`
	SizeKB      float64               `json:"size_kb"`
}

// AnalyzeColumnsInput defines parameters for column inspection.
type AnalyzeColumnsInput struct {
	Path  string `json:"path" validate:"required,source_ext" jsonschema_description:"Allowed path to a .csv or .xlsx file with arbitrary headers"`
	Sheet string `json:"sheet,omitempty" jsonschema_description:"Worksheet for spreadsheet sources (default Sheet1)"`
}

// AnalyzeColumnsOutput reports column profiles and a suggested mapping.
type AnalyzeColumnsOutput struct {
	WorkspaceID     string                  `json:"workspace_id" jsonschema_description:"Workspace holding the raw table; pass it to apply_mapping"`
	Columns         []mapper.ColumnInfo     `json:"columns"`
	Suggested       *variance.ColumnMapping `json:"suggested,omitempty" jsonschema_description:"Heuristic mapping when every slot could be filled"`
	SuggestionError string                  `json:"suggestion_error,omitempty" jsonschema_description:"Why no complete mapping could be suggested"`
	Metadata        variance.FileMetadata   `json:"metadata"`
}

// ApplyMappingInput assigns source columns to the canonical fields.
type ApplyMappingInput struct {
	WorkspaceID string `json:"workspace_id" validate:"required" jsonschema_description:"Workspace from analyze_columns"`
	Account     string `json:"account" validate:"required" jsonschema_description:"Source column holding the account"`
	Period      string `json:"period" validate:"required" jsonschema_description:"Source column holding the period label"`
	Actual      string `json:"actual" validate:"required" jsonschema_description:"Source column holding actual amounts"`
	Budget      string `json:"budget" validate:"required" jsonschema_description:"Source column holding budget amounts"`
}

// ApplyMappingOutput summarizes the mapped records.
type ApplyMappingOutput struct {
	WorkspaceID string                 `json:"workspace_id"`
	Rows        int                    `json:"rows"`
	Mapping     variance.ColumnMapping `json:"mapping"`
	Periods     []string               `json:"periods"`
	Accounts    []string               `json:"accounts"`
}

// SourceRef names the records to analyze: an existing workspace or a path
// to load on the fly.
type SourceRef struct {
	WorkspaceID string `json:"workspace_id,omitempty" validate:"required_without=Path" jsonschema_description:"Workspace handle from load_report or apply_mapping"`
	Path        string `json:"path,omitempty" validate:"omitempty,source_ext" jsonschema_description:"Report path to load when no workspace_id is given"`
	Sheet       string `json:"sheet,omitempty" jsonschema_description:"Worksheet when loading from path"`
}

// GetVarianceDataInput defines filter and paging parameters.
type GetVarianceDataInput struct {
	SourceRef
	MinAbsolute   float64  `json:"min_absolute,omitempty" validate:"gte=0" jsonschema_description:"Keep rows with |absolute variance| >= this value"`
	MinPercentage float64  `json:"min_percentage,omitempty" validate:"gte=0,lte=100" jsonschema_description:"Keep rows with |percentage variance| >= this value; rows with zero budget are dropped"`
	Periods       []string `json:"periods,omitempty" jsonschema_description:"Restrict to these period labels"`
	Accounts      []string `json:"accounts,omitempty" jsonschema_description:"Restrict to these accounts"`
	PageSize      int      `json:"page_size,omitempty" validate:"gte=0" jsonschema_description:"Rows per page (bounded)"`
	Cursor        string   `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page; filters must be unchanged"`
}

// StageCount is the number of rows left after one filter stage.
type StageCount struct {
	Stage string `json:"stage"`
	Rows  int    `json:"rows"`
}

// PageMeta captures paging/truncation metadata.
type PageMeta struct {
	Total      int    `json:"total"`
	Returned   int    `json:"returned"`
	Offset     int    `json:"offset"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// GetVarianceDataOutput holds one page of filtered rows.
type GetVarianceDataOutput struct {
	WorkspaceID  string            `json:"workspace_id"`
	Rows         []variance.Record `json:"rows"`
	TotalRows    int               `json:"total_rows"`
	FilteredRows int               `json:"filtered_rows"`
	Stages       []StageCount      `json:"stages"`
	Meta         PageMeta          `json:"meta"`
}

// GetTopVariancesInput defines ranking parameters.
type GetTopVariancesInput struct {
	SourceRef
	N  *int   `json:"n,omitempty" validate:"omitempty,gte=0,lte=1000" jsonschema_description:"Number of rows to return (default 5)"`
	By string `json:"by,omitempty" validate:"omitempty,metric" jsonschema_description:"absolute (default) or percentage"`
}

// GetTopVariancesOutput holds the ranked rows.
type GetTopVariancesOutput struct {
	WorkspaceID string            `json:"workspace_id"`
	By          string            `json:"by"`
	N           int               `json:"n"`
	Rows        []variance.Record `json:"rows"`
}

// GetSummaryStatsInput selects the records to summarize.
type GetSummaryStatsInput struct {
	SourceRef
}

// GetSummaryStatsOutput carries summary statistics.
type GetSummaryStatsOutput struct {
	WorkspaceID string `json:"workspace_id"`
	variance.Summary
}

// GetVarianceConcentrationInput selects records and grouping.
type GetVarianceConcentrationInput struct {
	SourceRef
	By   string `json:"by,omitempty" validate:"omitempty,oneof=account period" jsonschema_description:"Group by account (default) or period"`
	TopN int    `json:"top_n,omitempty" validate:"omitempty,min=1,max=10" jsonschema_description:"Groups to report (default 5)"`
}

// GetVarianceConcentrationOutput carries shares and the HHI band.
type GetVarianceConcentrationOutput struct {
	WorkspaceID string `json:"workspace_id"`
	insights.Concentration
}

// CloseWorkspaceInput defines parameters for closing a workspace.
type CloseWorkspaceInput struct {
	WorkspaceID string `json:"workspace_id" validate:"required" jsonschema_description:"Workspace handle ID to close"`
}

// CloseWorkspaceOutput reports the outcome.
type CloseWorkspaceOutput struct {
	Success bool `json:"success" jsonschema_description:"True when the workspace was closed"`
}
