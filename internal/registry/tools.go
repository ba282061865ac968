package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/vinodismyname/mcpvariance/config"
	"github.com/vinodismyname/mcpvariance/internal/insights"
	"github.com/vinodismyname/mcpvariance/internal/loader"
	"github.com/vinodismyname/mcpvariance/internal/mapper"
	"github.com/vinodismyname/mcpvariance/internal/runtime"
	"github.com/vinodismyname/mcpvariance/internal/variance"
	"github.com/vinodismyname/mcpvariance/internal/workspace"
	"github.com/vinodismyname/mcpvariance/pkg/mcperr"
	"github.com/vinodismyname/mcpvariance/pkg/pagination"
	"github.com/vinodismyname/mcpvariance/pkg/validation"
)

// Tools implements the variance tool handlers over a workspace manager.
type Tools struct {
	Limits        runtime.Limits
	Mgr           *workspace.Manager
	DefaultSheet  string
	StrictColumns bool
}

// RegisterVarianceTools defines the variance tools on s and records them in reg.
// Tools rejected by filter are not registered at all.
func RegisterVarianceTools(s *server.MCPServer, reg *Registry, filter *ToolFilter, t *Tools) {
	add := func(tool mcp.Tool, h server.ToolHandlerFunc) {
		if filter != nil && !filter.Enabled(tool.Name) {
			return
		}
		s.AddTool(tool, h)
		reg.Register(tool)
	}

	add(mcp.NewTool(
		"load_report",
		mcp.WithDescription("Load a budget-vs-actual report (.csv or .xlsx) whose columns are account, period, actual and budget. Rows with an empty value are dropped, the first row per (account, period) is kept, and variance is computed. Returns a workspace_id for follow-up calls plus the periods and accounts present. Errors include SCHEMA_MISMATCH (use analyze_columns instead), TYPE_MISMATCH, NOT_FOUND and PERMISSION_DENIED."),
		mcp.WithInputSchema[LoadReportInput](),
		mcp.WithOutputSchema[LoadReportOutput](),
	), mcp.NewTypedToolHandler(t.LoadReport))

	add(mcp.NewTool(
		"analyze_columns",
		mcp.WithDescription("Inspect a file with arbitrary headers: per-column type (number, date, string), the first sample values, null and unique counts, and a suggested mapping onto account/period/actual/budget found from English or Russian keywords and column types. Review the suggestion, then call apply_mapping with the returned workspace_id."),
		mcp.WithInputSchema[AnalyzeColumnsInput](),
		mcp.WithOutputSchema[AnalyzeColumnsOutput](),
	), mcp.NewTypedToolHandler(t.AnalyzeColumns))

	add(mcp.NewTool(
		"apply_mapping",
		mcp.WithDescription("Map source columns of a workspace onto account, period, actual and budget, drop rows with empty mapped values and compute variance. Fails with MAPPING_INVALID when a column is missing or no complete row remains, and TYPE_MISMATCH for a non-numeric amount."),
		mcp.WithInputSchema[ApplyMappingInput](),
		mcp.WithOutputSchema[ApplyMappingOutput](),
	), mcp.NewTypedToolHandler(t.ApplyMapping))

	add(mcp.NewTool(
		"get_variance_data",
		mcp.WithDescription("Filter computed variance rows by periods, accounts, minimum |absolute variance| and minimum |percentage variance| (applied in that order; zero-budget rows never pass a percentage filter). Returns a page of rows, counts after each stage, and nextCursor when more rows remain. Keep filters unchanged when passing cursor."),
		mcp.WithInputSchema[GetVarianceDataInput](),
		mcp.WithOutputSchema[GetVarianceDataOutput](),
	), mcp.NewTypedToolHandler(t.GetVarianceData))

	add(mcp.NewTool(
		"get_top_variances",
		mcp.WithDescription("Return the n rows (default 5) with the largest |absolute| or |percentage| variance. Ties keep file order; rows without a percentage rank as zero."),
		mcp.WithInputSchema[GetTopVariancesInput](),
		mcp.WithOutputSchema[GetTopVariancesOutput](),
	), mcp.NewTypedToolHandler(t.GetTopVariances))

	add(mcp.NewTool(
		"get_summary_stats",
		mcp.WithDescription("Summarize computed rows: row count, sorted periods and accounts, total |absolute variance| and mean percentage variance over rows with a nonzero budget."),
		mcp.WithInputSchema[GetSummaryStatsInput](),
		mcp.WithOutputSchema[GetSummaryStatsOutput](),
	), mcp.NewTypedToolHandler(t.GetSummaryStats))

	add(mcp.NewTool(
		"get_variance_concentration",
		mcp.WithDescription("Show which accounts (or periods) drive the deviation: share of total |absolute variance| for the top groups and the Herfindahl-Hirschman index banded as unconcentrated, moderately_concentrated or highly_concentrated."),
		mcp.WithInputSchema[GetVarianceConcentrationInput](),
		mcp.WithOutputSchema[GetVarianceConcentrationOutput](),
	), mcp.NewTypedToolHandler(t.GetVarianceConcentration))

	add(mcp.NewTool(
		"close_workspace",
		mcp.WithDescription("Release a workspace and its data"),
		mcp.WithInputSchema[CloseWorkspaceInput](),
		mcp.WithOutputSchema[CloseWorkspaceOutput](),
	), mcp.NewTypedToolHandler(t.CloseWorkspace))
}

// LoadReport handles load_report.
func (t *Tools) LoadReport(ctx context.Context, req mcp.CallToolRequest, in LoadReportInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	strict := t.StrictColumns
	if in.StrictColumns != nil {
		strict = *in.StrictColumns
	}
	id, err := t.openRecords(ctx, in.Path, in.Sheet, strict)
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}

	var out LoadReportOutput
	err = t.Mgr.WithRead(id, func(ws *workspace.Workspace) error {
		out = LoadReportOutput{
			WorkspaceID: id,
			Rows:        len(ws.Records),
			Metadata:    ws.Metadata,
			SizeKB:      ws.Metadata.SizeKB(),
		}
		out.Periods, out.Accounts = variance.Labels(ws.Records)
		return nil
	})
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}
	zerolog.Ctx(ctx).Info().Str("workspace_id", id).Int("rows", out.Rows).Msg("report loaded")
	summary := fmt.Sprintf("workspace=%s rows=%d periods=%d accounts=%d", id, out.Rows, len(out.Periods), len(out.Accounts))
	return structured(out, summary), nil
}

// AnalyzeColumns handles analyze_columns.
func (t *Tools) AnalyzeColumns(ctx context.Context, req mcp.CallToolRequest, in AnalyzeColumnsInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	id, err := t.Mgr.Open(ctx, in.Path, t.loadOptions(in.Sheet)...)
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}

	out, err := t.describeColumns(id)
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}
	if m, err := mapper.SuggestMapping(out.Columns); err != nil {
		out.SuggestionError = err.Error()
	} else {
		out.Suggested = &m
	}

	lines := []string{fmt.Sprintf("workspace=%s columns=%d rows=%d", id, len(out.Columns), out.Metadata.Rows)}
	for _, c := range out.Columns {
		lines = append(lines, fmt.Sprintf("- %q type=%s nulls=%d unique=%d", c.Name, c.DType, c.NullCount, c.UniqueCount))
	}
	if out.Suggested != nil {
		lines = append(lines, fmt.Sprintf("suggested account=%q period=%q actual=%q budget=%q confidence=%.2f",
			out.Suggested.Account, out.Suggested.Period, out.Suggested.Actual, out.Suggested.Budget, out.Suggested.Confidence))
	} else {
		lines = append(lines, "no suggestion: "+out.SuggestionError)
	}
	return structuredText(out, lines[0], strings.Join(lines, "\n")), nil
}

// describeColumns profiles the raw table of workspace id. The workspace may
// have been evicted since it was opened.
func (t *Tools) describeColumns(id string) (AnalyzeColumnsOutput, error) {
	var out AnalyzeColumnsOutput
	err := t.Mgr.WithRead(id, func(ws *workspace.Workspace) error {
		if ws.Table == nil {
			return workspace.ErrWorkspaceNotFound
		}
		out = AnalyzeColumnsOutput{WorkspaceID: id, Columns: mapper.AnalyzeColumns(ws.Table), Metadata: ws.Metadata}
		return nil
	})
	return out, err
}

// ApplyMapping handles apply_mapping.
func (t *Tools) ApplyMapping(ctx context.Context, req mcp.CallToolRequest, in ApplyMappingInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	m := variance.ColumnMapping{Account: in.Account, Period: in.Period, Actual: in.Actual, Budget: in.Budget, Confidence: 1}

	var out ApplyMappingOutput
	err := t.Mgr.WithWrite(in.WorkspaceID, func(ws *workspace.Workspace) error {
		m.ExtraColumns = mapper.UnmappedColumns(ws.Table.Columns(), m)
		if err := ws.ApplyMapping(m); err != nil {
			return err
		}
		out = ApplyMappingOutput{WorkspaceID: ws.ID, Rows: len(ws.Records), Mapping: m}
		out.Periods, out.Accounts = variance.Labels(ws.Records)
		return nil
	})
	if err != nil {
		return t.fail(ctx, err, mcperr.MappingInvalid), nil
	}
	summary := fmt.Sprintf("workspace=%s rows=%d periods=%d accounts=%d", out.WorkspaceID, out.Rows, len(out.Periods), len(out.Accounts))
	return structured(out, summary), nil
}

// GetVarianceData handles get_variance_data.
func (t *Tools) GetVarianceData(ctx context.Context, req mcp.CallToolRequest, in GetVarianceDataInput) (*mcp.CallToolResult, error) {
	var cur *pagination.Cursor
	if strings.TrimSpace(in.Cursor) != "" {
		c, err := pagination.DecodeCursor(in.Cursor)
		if err != nil {
			return mcperr.New(mcperr.CursorInvalid, ""), nil
		}
		cur = c
		// cursor takes precedence over path
		in.WorkspaceID, in.Path = c.Wid, ""
	}
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	params, err := variance.NewAnalysisParams(in.MinAbsolute, in.MinPercentage, nilIfEmpty(in.Periods), nilIfEmpty(in.Accounts))
	if err != nil {
		return t.fail(ctx, err, mcperr.Validation), nil
	}
	id, err := t.resolve(ctx, in.SourceRef)
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}

	fh := pagination.Fingerprint(params)
	out := GetVarianceDataOutput{WorkspaceID: id}
	var pageErr error
	err = t.Mgr.WithRead(id, func(ws *workspace.Workspace) error {
		rows, err := ws.RequireRecords()
		if err != nil {
			return err
		}
		off, ps := 0, t.Limits.ClampPageSize(in.PageSize)
		if cur != nil {
			if err := cur.Check(id, ws.Version, fh); err != nil {
				pageErr = err
				return nil
			}
			off, ps = cur.Off, t.Limits.ClampPageSize(cur.Ps)
		}

		filtered := variance.ApplyFiltersTraced(rows, params, func(stage string, remaining int) {
			out.Stages = append(out.Stages, StageCount{Stage: stage, Rows: remaining})
		})
		start, end, more := pagination.Window(len(filtered), off, ps)
		out.TotalRows, out.FilteredRows = len(rows), len(filtered)
		out.Rows = filtered[start:end]
		out.Meta = PageMeta{Total: len(filtered), Returned: end - start, Offset: start, Truncated: more}
		if more {
			next, err := pagination.EncodeCursor(pagination.Cursor{Wid: id, Off: pagination.NextOffset(start, end-start), Ps: ps, Wsv: ws.Version, Fh: fh})
			if err != nil {
				pageErr = err
				return nil
			}
			out.Meta.NextCursor = next
		}
		return nil
	})
	if err != nil {
		return t.fail(ctx, err, mcperr.AnalysisFailed), nil
	}
	switch {
	case errors.Is(pageErr, pagination.ErrStale):
		return mcperr.New(mcperr.CursorInvalid, pageErr.Error()), nil
	case pageErr != nil:
		return mcperr.New(mcperr.CursorBuildFailed, pageErr.Error()), nil
	}

	summary := fmt.Sprintf("workspace=%s total=%d filtered=%d returned=%d offset=%d truncated=%v", id, out.TotalRows, out.FilteredRows, out.Meta.Returned, out.Meta.Offset, out.Meta.Truncated)
	return structured(out, summary), nil
}

// GetTopVariances handles get_top_variances.
func (t *Tools) GetTopVariances(ctx context.Context, req mcp.CallToolRequest, in GetTopVariancesInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	n := config.DefaultTopN
	if in.N != nil {
		n = *in.N
	}
	by := variance.MetricAbsolute
	if in.By != "" {
		m, err := variance.ParseMetric(in.By)
		if err != nil {
			return t.fail(ctx, err, mcperr.Validation), nil
		}
		by = m
	}
	id, err := t.resolve(ctx, in.SourceRef)
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}

	out := GetTopVariancesOutput{WorkspaceID: id, By: string(by), N: n}
	err = t.Mgr.WithRead(id, func(ws *workspace.Workspace) error {
		rows, err := ws.RequireRecords()
		if err != nil {
			return err
		}
		out.Rows, err = variance.Rank(rows, n, by)
		return err
	})
	if err != nil {
		return t.fail(ctx, err, mcperr.AnalysisFailed), nil
	}

	lines := []string{fmt.Sprintf("workspace=%s by=%s returned=%d", id, by, len(out.Rows))}
	for _, r := range out.Rows {
		lines = append(lines, fmt.Sprintf("- %s %s actual=%g budget=%g abs=%s pct=%s", r.Account, r.Period, r.Actual, r.Budget, fmtOpt(r.AbsoluteVariance), fmtOpt(r.PercentageVariance)))
	}
	return structuredText(out, lines[0], strings.Join(lines, "\n")), nil
}

// GetSummaryStats handles get_summary_stats.
func (t *Tools) GetSummaryStats(ctx context.Context, req mcp.CallToolRequest, in GetSummaryStatsInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	id, err := t.resolve(ctx, in.SourceRef)
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}
	out := GetSummaryStatsOutput{WorkspaceID: id}
	err = t.Mgr.WithRead(id, func(ws *workspace.Workspace) error {
		rows, err := ws.RequireRecords()
		if err != nil {
			return err
		}
		out.Summary = variance.Summarize(rows)
		return nil
	})
	if err != nil {
		return t.fail(ctx, err, mcperr.AnalysisFailed), nil
	}
	summary := fmt.Sprintf("rows=%d periods=%d accounts=%d total_variance_abs=%g avg_variance_pct=%s",
		out.TotalRows, len(out.Periods), len(out.Accounts), out.TotalVarianceAbs, fmtOpt(out.AvgVariancePct))
	return structured(out, summary), nil
}

// GetVarianceConcentration handles get_variance_concentration.
func (t *Tools) GetVarianceConcentration(ctx context.Context, req mcp.CallToolRequest, in GetVarianceConcentrationInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	by, err := insights.ParseDimension(in.By)
	if err != nil {
		return t.fail(ctx, err, mcperr.Validation), nil
	}
	id, err := t.resolve(ctx, in.SourceRef)
	if err != nil {
		return t.fail(ctx, err, mcperr.LoadFailed), nil
	}
	out := GetVarianceConcentrationOutput{WorkspaceID: id}
	err = t.Mgr.WithRead(id, func(ws *workspace.Workspace) error {
		rows, err := ws.RequireRecords()
		if err != nil {
			return err
		}
		out.Concentration, err = insights.VarianceConcentration(rows, by, in.TopN)
		return err
	})
	if err != nil {
		return t.fail(ctx, err, mcperr.AnalysisFailed), nil
	}

	lines := []string{fmt.Sprintf("workspace=%s by=%s hhi=%.3f band=%s", id, out.By, out.HHI, out.Band)}
	for _, g := range out.Groups {
		lines = append(lines, fmt.Sprintf("- %s share=%.3f total=%g", g.Name, g.Share, g.Total))
	}
	return structuredText(out, lines[0], strings.Join(lines, "\n")), nil
}

// CloseWorkspace handles close_workspace.
func (t *Tools) CloseWorkspace(ctx context.Context, req mcp.CallToolRequest, in CloseWorkspaceInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	if err := t.Mgr.CloseWorkspace(in.WorkspaceID); err != nil {
		return t.fail(ctx, err, mcperr.InvalidWorkspace), nil
	}
	return structured(CloseWorkspaceOutput{Success: true}, "closed "+in.WorkspaceID), nil
}

func (t *Tools) loadOptions(sheet string) []loader.Option {
	if sheet == "" {
		sheet = t.DefaultSheet
	}
	return []loader.Option{loader.WithSheet(sheet), loader.WithMaxBytes(t.Limits.MaxFileBytes)}
}

// openRecords opens path into a new workspace and normalizes it. The
// workspace is closed again when normalization fails.
func (t *Tools) openRecords(ctx context.Context, path, sheet string, strict bool) (string, error) {
	id, err := t.Mgr.Open(ctx, path, t.loadOptions(sheet)...)
	if err != nil {
		return "", err
	}
	if err := t.Mgr.WithWrite(id, func(ws *workspace.Workspace) error { return ws.Normalize(strict) }); err != nil {
		_ = t.Mgr.CloseWorkspace(id)
		return "", err
	}
	return id, nil
}

func (t *Tools) resolve(ctx context.Context, ref SourceRef) (string, error) {
	if ref.WorkspaceID != "" {
		return ref.WorkspaceID, nil
	}
	return t.openRecords(ctx, ref.Path, ref.Sheet, t.StrictColumns)
}

// fail logs err and renders it as a tool error.
func (t *Tools) fail(ctx context.Context, err error, fallback mcperr.Code) *mcp.CallToolResult {
	code := codeFor(err, fallback)
	zerolog.Ctx(ctx).Warn().Err(err).Str("code", string(code)).Msg("tool call failed")
	return mcperr.FromError(err, code)
}

func codeFor(err error, fallback mcperr.Code) mcperr.Code {
	switch {
	case errors.Is(err, workspace.ErrWorkspaceNotFound):
		return mcperr.InvalidWorkspace
	case errors.Is(err, workspace.ErrNoRecords):
		return mcperr.MappingInvalid
	case errors.Is(err, runtime.ErrWorkspaceLimit):
		return mcperr.LimitExceeded
	default:
		return mcperr.CodeFor(err, fallback)
	}
}

func structured(out any, summary string) *mcp.CallToolResult {
	return structuredText(out, summary, summary)
}

// structuredText attaches a text rendering for clients ignoring structured output.
func structuredText(out any, summary, text string) *mcp.CallToolResult {
	res := mcp.NewToolResultStructured(out, summary)
	res.Content = []mcp.Content{mcp.NewTextContent(text)}
	return res
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func fmtOpt(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *p)
}
