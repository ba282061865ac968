package runtime

import (
	"context"
	"time"

	"github.com/vinodismyname/mcpvariance/config"
	"golang.org/x/sync/semaphore"
)

// Limits captures the concurrency, size and paging guardrails configured for the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int
	MaxOpenWorkspaces     int

	// Source and page bounds
	MaxFileBytes    int64
	MaxUploadBytes  int64
	DefaultPageSize int
	MaxPageSize     int

	// Timeouts
	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
}

// NewLimits initializes Limits with sensible fallbacks when values are unset.
func NewLimits(maxConcurrentRequests, maxOpenWorkspaces int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxOpenWorkspaces <= 0 {
		maxOpenWorkspaces = config.DefaultMaxOpenWorkspaces
	}

	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxOpenWorkspaces:     maxOpenWorkspaces,
		MaxFileBytes:          config.DefaultMaxFileBytes,
		MaxUploadBytes:        config.DefaultMaxUploadBytes,
		DefaultPageSize:       config.DefaultPageSize,
		MaxPageSize:           config.DefaultMaxPageSize,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
	}
}

// LimitsFromConfig applies loaded configuration over the defaults.
func LimitsFromConfig(cfg *config.Config) Limits {
	l := NewLimits(cfg.MaxConcurrentRequests, cfg.MaxOpenWorkspaces)
	if cfg.MaxFileBytes > 0 {
		l.MaxFileBytes = cfg.MaxFileBytes
	}
	if cfg.MaxUploadBytes > 0 {
		l.MaxUploadBytes = cfg.MaxUploadBytes
	}
	if cfg.MaxPageSize > 0 {
		l.MaxPageSize = cfg.MaxPageSize
		l.DefaultPageSize = min(l.DefaultPageSize, l.MaxPageSize)
	}
	if cfg.OperationTimeout > 0 {
		l.OperationTimeout = cfg.OperationTimeout
	}
	if cfg.AcquireRequestTimeout > 0 {
		l.AcquireRequestTimeout = cfg.AcquireRequestTimeout
	}
	return l
}

// ClampPageSize bounds a requested page size to [1, MaxPageSize], using the
// default for non-positive requests.
func (l Limits) ClampPageSize(requested int) int {
	if requested <= 0 {
		return l.DefaultPageSize
	}
	return min(requested, l.MaxPageSize)
}

// Controller coordinates runtime semaphores for request and workspace guardrails.
type Controller struct {
	limits             Limits
	requestSemaphore   *semaphore.Weighted
	workspaceSemaphore *semaphore.Weighted
}

// NewController constructs a Controller backed by weighted semaphores.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:             limits,
		requestSemaphore:   semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workspaceSemaphore: semaphore.NewWeighted(int64(limits.MaxOpenWorkspaces)),
	}
}

// AcquireRequest reserves capacity for an incoming request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// AcquireWorkspace reserves an open workspace slot. It fails fast instead of
// waiting; workspace.Manager answers ErrWorkspaceLimit by evicting its least
// recently used workspace.
func (c *Controller) AcquireWorkspace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.workspaceSemaphore.TryAcquire(1) {
		return ErrWorkspaceLimit
	}
	return nil
}

// ReleaseWorkspace frees an open workspace slot.
func (c *Controller) ReleaseWorkspace() {
	c.workspaceSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
