// Package version reports the server build version.
package version

import "runtime/debug"

// version is overridden with -ldflags "-X github.com/vinodismyname/mcpvariance/pkg/version.version=v1.2.3".
var version = "dev"

// Version returns the ldflags version, else the module version recorded in
// the build info, else "dev".
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// Set overrides the reported version. Empty values are ignored.
func Set(v string) {
	if v != "" {
		version = v
	}
}
