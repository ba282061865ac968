// Package httpapi serves the variance analysis over a JSON/multipart REST
// interface.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/mcpvariance/config"
	"github.com/vinodismyname/mcpvariance/internal/loader"
	"github.com/vinodismyname/mcpvariance/internal/mapper"
	"github.com/vinodismyname/mcpvariance/internal/runtime"
	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
	"github.com/vinodismyname/mcpvariance/internal/workspace"
	"github.com/vinodismyname/mcpvariance/pkg/validation"
	"github.com/vinodismyname/mcpvariance/pkg/version"
)

// Options configures the REST handler.
type Options struct {
	Logger        zerolog.Logger
	Limits        runtime.Limits
	DefaultSheet  string
	StrictColumns bool
	// Workspaces, when set, keeps uploads so MCP tools can reach them by id.
	Workspaces *workspace.Manager
}

type handler struct {
	log        zerolog.Logger
	maxUpload  int64
	sheet      string
	strict     bool
	workspaces *workspace.Manager
}

// NewHandler builds the /api routes wrapped in recovery and request logging.
func NewHandler(opts Options) http.Handler {
	h := &handler{
		log:        opts.Logger,
		maxUpload:  opts.Limits.MaxUploadBytes,
		sheet:      opts.DefaultSheet,
		strict:     opts.StrictColumns,
		workspaces: opts.Workspaces,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = config.DefaultMaxUploadBytes
	}
	if h.sheet == "" {
		h.sheet = config.DefaultSheetName
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/version", h.handleVersion)
	mux.HandleFunc("POST /api/upload", h.handleUpload)
	mux.HandleFunc("POST /api/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /api/top", h.handleTop)
	mux.HandleFunc("POST /api/summary", h.handleSummary)
	mux.HandleFunc("POST /api/columns", h.handleColumns)
	mux.HandleFunc("POST /api/mapping/apply", h.handleApplyMapping)

	return recovery(h.log)(requestLogger(h.log)(mux))
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version()})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version()})
}

type uploadResponse struct {
	WorkspaceID string   `json:"workspace_id,omitempty"`
	Filename    string   `json:"filename"`
	RowsCount   int      `json:"rows_count"`
	Periods     []string `json:"periods"`
	Accounts    []string `json:"accounts"`
}

func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ws := &workspace.Workspace{Source: up.filename, Table: up.table, Metadata: up.metadata()}
	if err := ws.Normalize(h.strictFor(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := uploadResponse{Filename: up.filename, RowsCount: len(ws.Records)}
	resp.Periods, resp.Accounts = variance.Labels(ws.Records)

	if h.workspaces != nil {
		id, err := h.workspaces.Adopt(r.Context(), ws)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		resp.WorkspaceID = id
	}
	zerolog.Ctx(r.Context()).Info().Str("filename", up.filename).Int("rows", resp.RowsCount).Msg("report uploaded")
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	params, err := analysisParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows, err := h.records(up, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, variance.Analyze(rows, params))
}

type topForm struct {
	N  int    `validate:"gte=0,lte=1000"`
	By string `validate:"omitempty,metric"`
}

type topResponse struct {
	By   string            `json:"by"`
	N    int               `json:"n"`
	Rows []variance.Record `json:"rows"`
}

func (h *handler) handleTop(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	form := topForm{N: config.DefaultTopN, By: r.FormValue("by")}
	if s := strings.TrimSpace(r.FormValue("n")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: n must be an integer", variance.ErrInvalidParameter))
			return
		}
		form.N = n
	}
	if msg := validation.ValidateStruct(form); msg != "" {
		h.respondError(w, r, fmt.Errorf("%w: %s", variance.ErrInvalidParameter, strings.TrimPrefix(msg, "VALIDATION: ")))
		return
	}
	if form.By == "" {
		form.By = string(variance.MetricAbsolute)
	}

	rows, err := h.records(up, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	variance.ComputeVariance(rows)
	top, err := variance.RankBy(rows, form.N, form.By)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topResponse{By: form.By, N: form.N, Rows: top})
}

func (h *handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows, err := h.records(up, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	variance.ComputeVariance(rows)
	writeJSON(w, http.StatusOK, variance.Summarize(rows))
}

type columnsResponse struct {
	Metadata         variance.FileMetadata   `json:"metadata"`
	Columns          []mapper.ColumnInfo     `json:"columns"`
	SuggestedMapping *variance.ColumnMapping `json:"suggested_mapping"`
	SuggestionError  string                  `json:"suggestion_error,omitempty"`
}

func (h *handler) handleColumns(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := columnsResponse{Metadata: up.metadata(), Columns: mapper.AnalyzeColumns(up.table)}
	if m, err := mapper.SuggestMapping(resp.Columns); err != nil {
		resp.SuggestionError = err.Error()
	} else {
		resp.SuggestedMapping = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

type mappingForm struct {
	Account string `validate:"required"`
	Period  string `validate:"required"`
	Actual  string `validate:"required"`
	Budget  string `validate:"required"`
}

func (h *handler) handleApplyMapping(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	form := mappingForm{
		Account: r.FormValue("account"),
		Period:  r.FormValue("period"),
		Actual:  r.FormValue("actual"),
		Budget:  r.FormValue("budget"),
	}
	if msg := validation.ValidateStruct(form); msg != "" {
		h.respondError(w, r, fmt.Errorf("%w: %s", variance.ErrInvalidParameter, strings.TrimPrefix(msg, "VALIDATION: ")))
		return
	}
	params, err := analysisParams(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	m := variance.ColumnMapping{Account: form.Account, Period: form.Period, Actual: form.Actual, Budget: form.Budget, Confidence: 1}
	m.ExtraColumns = mapper.UnmappedColumns(up.table.Columns(), m)
	rows, err := mapper.ApplyMapping(up.table, m)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Mapping variance.ColumnMapping `json:"mapping"`
		variance.Report
	}{m, variance.Analyze(rows, params)})
}

// upload is a parsed multipart source.
type upload struct {
	filename string
	format   loader.Format
	size     int64
	table    *table.Table
}

func (u upload) metadata() variance.FileMetadata {
	return mapper.CreateFileMetadata(u.filename, u.table, string(u.format), u.size)
}

// readUpload parses the multipart body and reads the "file" part into a raw
// table. The whole body is capped at the upload limit.
func (h *handler) readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return upload{}, fmt.Errorf("%w: upload exceeds limit of %d bytes", variance.ErrTooLarge, h.maxUpload)
		}
		return upload{}, fmt.Errorf("%w: failed to parse upload: %v", errBadRequest, err)
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return upload{}, fmt.Errorf("%w: missing file", errBadRequest)
	}
	defer func() { _ = file.Close() }()

	up := upload{filename: filepath.Base(hdr.Filename), size: hdr.Size}
	if up.format, err = loader.FormatFromPath(up.filename); err != nil {
		return upload{}, err
	}
	up.table, err = loader.ReadTable(r.Context(), file, up.format, loader.WithSheet(h.sheetFor(r)), loader.WithMaxBytes(h.maxUpload))
	return up, err
}

// records normalizes a canonical upload into records without variance.
func (h *handler) records(up upload, r *http.Request) ([]variance.Record, error) {
	norm, err := loader.Normalize(up.table, h.strictFor(r))
	if err != nil {
		return nil, err
	}
	return loader.TableToRecords(norm)
}

func (h *handler) sheetFor(r *http.Request) string {
	if s := strings.TrimSpace(r.FormValue("sheet")); s != "" {
		return s
	}
	return h.sheet
}

func (h *handler) strictFor(r *http.Request) bool {
	if b, err := strconv.ParseBool(r.FormValue("strict_columns")); err == nil {
		return b
	}
	return h.strict
}

// analysisParams reads thresholds and the JSON label lists from the form.
// Missing values and the literal "null" mean no restriction.
func analysisParams(r *http.Request) (variance.AnalysisParams, error) {
	minAbs, err := formFloat(r, "min_absolute_threshold")
	if err != nil {
		return variance.AnalysisParams{}, err
	}
	minPct, err := formFloat(r, "min_percentage_threshold")
	if err != nil {
		return variance.AnalysisParams{}, err
	}
	periods, err := formList(r, "periods")
	if err != nil {
		return variance.AnalysisParams{}, err
	}
	accounts, err := formList(r, "accounts")
	if err != nil {
		return variance.AnalysisParams{}, err
	}
	return variance.NewAnalysisParams(minAbs, minPct, periods, accounts)
}

func formFloat(r *http.Request, key string) (float64, error) {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", variance.ErrInvalidParameter, key, s)
	}
	return f, nil
}

func formList(r *http.Request, key string) ([]string, error) {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" || s == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("%w: %s must be a JSON array of strings", variance.ErrInvalidParameter, key)
	}
	return out, nil
}
