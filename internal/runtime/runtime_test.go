package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/mcpvariance/config"
)

func TestControllerAcquireRelease(t *testing.T) {
	limits := NewLimits(1, 1)
	controller := NewController(limits)

	require.Equal(t, limits, controller.LimitsSnapshot())

	require.NoError(t, controller.AcquireRequest(context.Background()))
	controller.ReleaseRequest()

	require.NoError(t, controller.AcquireWorkspace(context.Background()))
	require.ErrorIs(t, controller.AcquireWorkspace(context.Background()), ErrWorkspaceLimit)
	controller.ReleaseWorkspace()
	require.NoError(t, controller.AcquireWorkspace(context.Background()))
}

func TestNewLimits_Defaults(t *testing.T) {
	l := NewLimits(0, -1)
	require.Equal(t, config.DefaultMaxConcurrentRequests, l.MaxConcurrentRequests)
	require.Equal(t, config.DefaultMaxOpenWorkspaces, l.MaxOpenWorkspaces)
	require.Equal(t, config.DefaultPageSize, l.ClampPageSize(0))
	require.Equal(t, config.DefaultMaxPageSize, l.ClampPageSize(1_000_000))
	require.Equal(t, 7, l.ClampPageSize(7))
}

func TestLimitsFromConfig(t *testing.T) {
	cfg := &config.Config{
		MaxConcurrentRequests: 3,
		MaxOpenWorkspaces:     2,
		MaxUploadBytes:        1024,
		MaxPageSize:           50,
		OperationTimeout:      time.Second,
	}
	l := LimitsFromConfig(cfg)
	require.Equal(t, 3, l.MaxConcurrentRequests)
	require.Equal(t, 2, l.MaxOpenWorkspaces)
	require.Equal(t, int64(1024), l.MaxUploadBytes)
	require.Equal(t, int64(config.DefaultMaxFileBytes), l.MaxFileBytes)
	require.Equal(t, 50, l.MaxPageSize)
	require.Equal(t, 50, l.DefaultPageSize)
	require.Equal(t, time.Second, l.OperationTimeout)
	require.Equal(t, config.DefaultAcquireRequestTimeout, l.AcquireRequestTimeout)
}
