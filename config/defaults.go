package config

import "time"

// Default runtime limits and guardrails for the variance analysis server.
// They are referenced by internal/runtime and internal/workspace and can be
// overridden through Load.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenWorkspaces     = 8

	// Source and page bounds
	DefaultMaxFileBytes   = 32 * 1024 * 1024 // 32MB
	DefaultMaxUploadBytes = 10 * 1024 * 1024 // 10MB, REST uploads
	DefaultPageSize       = 100
	DefaultMaxPageSize    = 1000
	DefaultTopN           = 5
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second
	DefaultShutdownTimeout       = 5 * time.Second

	// Workspace cache
	DefaultWorkspaceIdleTTL       = 30 * time.Minute
	DefaultWorkspaceCleanupPeriod = time.Minute
)

const (
	// DefaultSheetName is the worksheet read from spreadsheet sources when
	// none is named.
	DefaultSheetName = "Sheet1"

	DefaultHTTPAddr = ":8080"
	DefaultLogLevel = "info"

	// EnvPrefix scopes environment overrides, e.g. MCPVARIANCE_ALLOWED_DIRS.
	EnvPrefix = "MCPVARIANCE"
)
