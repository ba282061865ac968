package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	require.NotEmpty(t, Version())

	prev := version
	t.Cleanup(func() { version = prev })
	Set("")
	require.Equal(t, prev, version)
	Set("v1.2.3")
	require.Equal(t, "v1.2.3", Version())
}
