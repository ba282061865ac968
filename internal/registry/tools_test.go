package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/mcpvariance/internal/runtime"
	"github.com/vinodismyname/mcpvariance/internal/security"
	"github.com/vinodismyname/mcpvariance/internal/workspace"
)

const canonicalCSV = `account,period,actual,budget
Revenue,2024-01,1000,800
COGS,2024-01,400,500
Rent,2024-01,1000,1000
Grants,2024-02,300,0
Revenue,2024-02,900,1000
`

func newTools(t *testing.T) (*Tools, string) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	sec, err := security.NewManager([]string{dir}, nil)
	require.NoError(t, err)

	limits := runtime.NewLimits(4, 4)
	ctrl := runtime.NewController(limits)
	mgr := workspace.NewManager(time.Minute, time.Minute, ctrl, nil).WithValidator(sec)
	return &Tools{Limits: limits, Mgr: mgr, DefaultSheet: "Sheet1"}, dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func decode[T any](t *testing.T, res *mcp.CallToolResult, err error) T {
	t.Helper()
	require.NoError(t, err)
	require.False(t, res.IsError, "unexpected tool error: %s", text(t, res))
	out, isT := res.StructuredContent.(T)
	require.True(t, isT)
	return out
}

func toolErr(t *testing.T, res *mcp.CallToolResult, err error, code string) {
	t.Helper()
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(text(t, res), code+":"), text(t, res))
}

func TestLoadReport(t *testing.T) {
	tools, dir := newTools(t)
	path := writeFile(t, dir, "report.csv", canonicalCSV)

	res, err := tools.LoadReport(context.Background(), mcp.CallToolRequest{}, LoadReportInput{Path: path})
	out := decode[LoadReportOutput](t, res, err)
	require.NotEmpty(t, out.WorkspaceID)
	require.Equal(t, 5, out.Rows)
	require.Equal(t, []string{"2024-01", "2024-02"}, out.Periods)
	require.Equal(t, []string{"COGS", "Grants", "Rent", "Revenue"}, out.Accounts)
	require.Equal(t, "report.csv", out.Metadata.Filename)
	require.Equal(t, int64(len(canonicalCSV)), out.Metadata.SizeBytes)
}

func TestLoadReport_Errors(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()

	res, err := tools.LoadReport(ctx, mcp.CallToolRequest{}, LoadReportInput{})
	toolErr(t, res, err, "VALIDATION")

	res, err = tools.LoadReport(ctx, mcp.CallToolRequest{}, LoadReportInput{Path: writeFile(t, dir, "odd.csv", "name,date,value\nA,2024-01,1\n")})
	toolErr(t, res, err, "SCHEMA_MISMATCH")
	require.Equal(t, 0, tools.Mgr.Count(), "failed loads release their workspace")

	res, err = tools.LoadReport(ctx, mcp.CallToolRequest{}, LoadReportInput{Path: writeFile(t, dir, "bad.csv", "account,period,actual,budget\nA,2024-01,lots,1\n")})
	toolErr(t, res, err, "TYPE_MISMATCH")

	res, err = tools.LoadReport(ctx, mcp.CallToolRequest{}, LoadReportInput{Path: filepath.Join(dir, "missing.csv")})
	toolErr(t, res, err, "NOT_FOUND")

	outside := filepath.Join(t.TempDir(), "outside.csv")
	require.NoError(t, os.WriteFile(outside, []byte(canonicalCSV), 0o644))
	res, err = tools.LoadReport(ctx, mcp.CallToolRequest{}, LoadReportInput{Path: outside})
	toolErr(t, res, err, "PERMISSION_DENIED")

	strict := true
	res, err = tools.LoadReport(ctx, mcp.CallToolRequest{}, LoadReportInput{
		Path:          writeFile(t, dir, "extra.csv", "account,period,actual,budget,note\nA,2024-01,1,1,x\n"),
		StrictColumns: &strict,
	})
	toolErr(t, res, err, "SCHEMA_MISMATCH")
}

func TestAnalyzeColumnsThenApplyMapping(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()
	path := writeFile(t, dir, "ru.csv", "Статья,Месяц,Факт,План,Комментарий\nВыручка,2024-01,1200,1000,ok\nАренда,2024-01,500,500,\n")

	res, err := tools.AnalyzeColumns(ctx, mcp.CallToolRequest{}, AnalyzeColumnsInput{Path: path})
	info := decode[AnalyzeColumnsOutput](t, res, err)
	require.Len(t, info.Columns, 5)
	require.NotNil(t, info.Suggested)
	require.Equal(t, "Факт", info.Suggested.Actual)
	require.Equal(t, []string{"Комментарий"}, info.Suggested.ExtraColumns)

	// raw workspaces hold no records yet
	res, err = tools.GetSummaryStats(ctx, mcp.CallToolRequest{}, GetSummaryStatsInput{SourceRef{WorkspaceID: info.WorkspaceID}})
	toolErr(t, res, err, "MAPPING_INVALID")

	res, err = tools.ApplyMapping(ctx, mcp.CallToolRequest{}, ApplyMappingInput{
		WorkspaceID: info.WorkspaceID,
		Account:     info.Suggested.Account,
		Period:      info.Suggested.Period,
		Actual:      info.Suggested.Actual,
		Budget:      "Nope",
	})
	toolErr(t, res, err, "MAPPING_INVALID")

	res, err = tools.ApplyMapping(ctx, mcp.CallToolRequest{}, ApplyMappingInput{
		WorkspaceID: info.WorkspaceID,
		Account:     info.Suggested.Account,
		Period:      info.Suggested.Period,
		Actual:      info.Suggested.Actual,
		Budget:      info.Suggested.Budget,
	})
	applied := decode[ApplyMappingOutput](t, res, err)
	require.Equal(t, 2, applied.Rows)
	require.Equal(t, []string{"Комментарий"}, applied.Mapping.ExtraColumns)

	res, err = tools.GetTopVariances(ctx, mcp.CallToolRequest{}, GetTopVariancesInput{SourceRef: SourceRef{WorkspaceID: info.WorkspaceID}})
	top := decode[GetTopVariancesOutput](t, res, err)
	require.Equal(t, "Выручка", top.Rows[0].Account)
	require.Equal(t, 200.0, *top.Rows[0].AbsoluteVariance)
}

func TestAnalyzeColumns_NoSuggestion(t *testing.T) {
	tools, dir := newTools(t)
	path := writeFile(t, dir, "one.csv", "col1\n1\n2\n")
	res, err := tools.AnalyzeColumns(context.Background(), mcp.CallToolRequest{}, AnalyzeColumnsInput{Path: path})
	out := decode[AnalyzeColumnsOutput](t, res, err)
	require.Nil(t, out.Suggested)
	require.Contains(t, out.SuggestionError, "account, period, budget")
}

func TestDescribeColumns_EvictedWorkspace(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()
	path := writeFile(t, dir, "raw.csv", "Статья,Месяц,Факт,План\nВыручка,2024-01,90,100\n")

	res, err := tools.AnalyzeColumns(ctx, mcp.CallToolRequest{}, AnalyzeColumnsInput{Path: path})
	out := decode[AnalyzeColumnsOutput](t, res, err)

	// closed while a reader still held the workspace
	require.NoError(t, tools.Mgr.WithWrite(out.WorkspaceID, func(ws *workspace.Workspace) error {
		ws.Table = nil
		return nil
	}))
	_, err = tools.describeColumns(out.WorkspaceID)
	require.ErrorIs(t, err, workspace.ErrWorkspaceNotFound)

	require.NoError(t, tools.Mgr.CloseWorkspace(out.WorkspaceID))
	_, err = tools.describeColumns(out.WorkspaceID)
	require.ErrorIs(t, err, workspace.ErrWorkspaceNotFound)
	require.Equal(t, "INVALID_WORKSPACE", string(codeFor(err, "LOAD_FAILED")))
}

func TestGetVarianceData_FiltersAndStages(t *testing.T) {
	tools, dir := newTools(t)
	path := writeFile(t, dir, "report.csv", canonicalCSV)

	res, err := tools.GetVarianceData(context.Background(), mcp.CallToolRequest{}, GetVarianceDataInput{
		SourceRef:   SourceRef{Path: path},
		MinAbsolute: 150,
		Accounts:    []string{"Revenue", "COGS", "Rent", "Grants"},
	})
	out := decode[GetVarianceDataOutput](t, res, err)
	require.Equal(t, 5, out.TotalRows)
	// Grants has no budget so the percentage stage always drops it
	require.Equal(t, 1, out.FilteredRows)
	require.Equal(t, []StageCount{
		{Stage: "accounts", Rows: 5},
		{Stage: "absolute_threshold", Rows: 2},
		{Stage: "percentage_threshold", Rows: 1},
	}, out.Stages)
	require.Equal(t, "Revenue", out.Rows[0].Account)
	require.False(t, out.Meta.Truncated)
}

func TestGetVarianceData_CursorPaging(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()
	path := writeFile(t, dir, "report.csv", canonicalCSV)

	res, err := tools.LoadReport(ctx, mcp.CallToolRequest{}, LoadReportInput{Path: path})
	loaded := decode[LoadReportOutput](t, res, err)
	ref := SourceRef{WorkspaceID: loaded.WorkspaceID}

	var accounts []string
	in := GetVarianceDataInput{SourceRef: ref, PageSize: 2}
	for page := 0; ; page++ {
		require.Less(t, page, 5)
		res, err := tools.GetVarianceData(ctx, mcp.CallToolRequest{}, in)
		out := decode[GetVarianceDataOutput](t, res, err)
		for _, r := range out.Rows {
			accounts = append(accounts, r.Account)
		}
		if !out.Meta.Truncated {
			require.Empty(t, out.Meta.NextCursor)
			break
		}
		in.Cursor = out.Meta.NextCursor
	}
	require.Equal(t, []string{"Revenue", "COGS", "Rent", "Revenue"}, accounts)

	// a cursor is bound to its filters
	res, err = tools.GetVarianceData(ctx, mcp.CallToolRequest{}, GetVarianceDataInput{SourceRef: ref, PageSize: 2})
	first := decode[GetVarianceDataOutput](t, res, err)
	res, err = tools.GetVarianceData(ctx, mcp.CallToolRequest{}, GetVarianceDataInput{SourceRef: ref, MinAbsolute: 10, Cursor: first.Meta.NextCursor})
	toolErr(t, res, err, "CURSOR_INVALID")

	res, err = tools.GetVarianceData(ctx, mcp.CallToolRequest{}, GetVarianceDataInput{SourceRef: ref, Cursor: "garbage!"})
	toolErr(t, res, err, "CURSOR_INVALID")
}

func TestGetTopVariances(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()
	path := writeFile(t, dir, "report.csv", canonicalCSV)

	res, err := tools.GetTopVariances(ctx, mcp.CallToolRequest{}, GetTopVariancesInput{SourceRef: SourceRef{Path: path}})
	out := decode[GetTopVariancesOutput](t, res, err)
	require.Equal(t, 5, out.N)
	require.Equal(t, "absolute", out.By)
	require.Len(t, out.Rows, 5)
	require.Equal(t, "Grants", out.Rows[0].Account)

	two := 2
	res, err = tools.GetTopVariances(ctx, mcp.CallToolRequest{}, GetTopVariancesInput{SourceRef: SourceRef{WorkspaceID: out.WorkspaceID}, N: &two, By: "percentage"})
	pct := decode[GetTopVariancesOutput](t, res, err)
	require.Len(t, pct.Rows, 2)
	require.Equal(t, "Revenue", pct.Rows[0].Account)
	require.Equal(t, "2024-01", pct.Rows[0].Period)

	res, err = tools.GetTopVariances(ctx, mcp.CallToolRequest{}, GetTopVariancesInput{SourceRef: SourceRef{WorkspaceID: out.WorkspaceID}, By: "absolue"})
	toolErr(t, res, err, "VALIDATION")
}

func TestGetSummaryStatsAndClose(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()
	path := writeFile(t, dir, "report.csv", canonicalCSV)

	res, err := tools.GetSummaryStats(ctx, mcp.CallToolRequest{}, GetSummaryStatsInput{SourceRef{Path: path}})
	out := decode[GetSummaryStatsOutput](t, res, err)
	require.Equal(t, 5, out.TotalRows)
	require.Equal(t, 200.0+100+0+300+100, out.TotalVarianceAbs)
	require.NotNil(t, out.AvgVariancePct)
	require.InDelta(t, (25.0-20+0-10)/4, *out.AvgVariancePct, 1e-9)

	res, err = tools.CloseWorkspace(ctx, mcp.CallToolRequest{}, CloseWorkspaceInput{WorkspaceID: out.WorkspaceID})
	closed := decode[CloseWorkspaceOutput](t, res, err)
	require.True(t, closed.Success)

	res, err = tools.GetSummaryStats(ctx, mcp.CallToolRequest{}, GetSummaryStatsInput{SourceRef{WorkspaceID: out.WorkspaceID}})
	toolErr(t, res, err, "INVALID_WORKSPACE")
}

func TestPathCallsBeyondWorkspaceLimit(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()
	path := writeFile(t, dir, "report.csv", canonicalCSV)

	var ids []string
	for i := 0; i < 6; i++ {
		res, err := tools.GetSummaryStats(ctx, mcp.CallToolRequest{}, GetSummaryStatsInput{SourceRef{Path: path}})
		out := decode[GetSummaryStatsOutput](t, res, err)
		require.Equal(t, 5, out.TotalRows)
		ids = append(ids, out.WorkspaceID)
	}
	require.Equal(t, 4, tools.Mgr.Count())

	// the oldest workspaces made room for the newest
	res, err := tools.GetSummaryStats(ctx, mcp.CallToolRequest{}, GetSummaryStatsInput{SourceRef{WorkspaceID: ids[0]}})
	toolErr(t, res, err, "INVALID_WORKSPACE")
	res, err = tools.GetSummaryStats(ctx, mcp.CallToolRequest{}, GetSummaryStatsInput{SourceRef{WorkspaceID: ids[5]}})
	decode[GetSummaryStatsOutput](t, res, err)
}

func TestGetVarianceConcentration(t *testing.T) {
	tools, dir := newTools(t)
	ctx := context.Background()
	path := writeFile(t, dir, "report.csv", canonicalCSV)

	res, err := tools.GetVarianceConcentration(ctx, mcp.CallToolRequest{}, GetVarianceConcentrationInput{SourceRef: SourceRef{Path: path}, TopN: 2})
	out := decode[GetVarianceConcentrationOutput](t, res, err)
	require.Equal(t, 700.0, out.Total)
	require.Len(t, out.Groups, 2)
	require.Equal(t, "Revenue", out.Groups[0].Name)
	require.Equal(t, "Grants", out.Groups[1].Name)
	require.InDelta(t, 0.143, out.OtherShare, 1e-9)

	res, err = tools.GetVarianceConcentration(ctx, mcp.CallToolRequest{}, GetVarianceConcentrationInput{SourceRef: SourceRef{WorkspaceID: out.WorkspaceID}, By: "region"})
	toolErr(t, res, err, "VALIDATION")
}

func TestRegisterVarianceTools(t *testing.T) {
	tools, _ := newTools(t)
	s := server.NewMCPServer("test", "0.0.0", server.WithToolCapabilities(true))
	reg := New()
	RegisterVarianceTools(s, reg, NewToolFilter([]string{"CLOSE_WORKSPACE"}), tools)

	require.Equal(t, []string{
		"analyze_columns",
		"apply_mapping",
		"get_summary_stats",
		"get_top_variances",
		"get_variance_concentration",
		"get_variance_data",
		"load_report",
	}, reg.Names())
	_, found := reg.Get("close_workspace")
	require.False(t, found)
	require.Positive(t, reg.ModelContextSize("gpt-4o"))
}

func TestToolFilter(t *testing.T) {
	f := NewToolFilter([]string{" get_variance_data ", ""})
	in := []mcp.Tool{{Name: "load_report"}, {Name: "get_variance_data"}}
	out := f.FilterTools(context.Background(), in)
	require.Len(t, out, 1)
	require.Equal(t, "load_report", out[0].Name)
	require.Len(t, NewToolFilter(nil).FilterTools(context.Background(), in), 2)
}
