package version

import (
	"runtime"
	"strings"
	"sync"
)

// set via ldflags:
//
//	-X github.com/BeaudanBrown/GlobalProtect-openconnect/version.version=2.4.1
//	-X github.com/BeaudanBrown/GlobalProtect-openconnect/version.production=true
//	-X github.com/BeaudanBrown/GlobalProtect-openconnect/version.snapshot=false
var (
	version    = "development"
	production = "false"
	snapshot   = "false"
)

var (
	current     Build
	currentOnce sync.Once
)

// Build holds the build variant values of the running binary.
type Build struct {
	Version    string
	Production bool
	Snapshot   bool
	Arch       string
}

// Current returns the build values of the running process. They are resolved once.
func Current() Build {
	currentOnce.Do(func() {
		current = Build{
			Version:    version,
			Production: isTrue(production),
			Snapshot:   isTrue(snapshot),
			Arch:       ArchLabel(runtime.GOARCH),
		}
	})
	return current
}

// IsSnapshot reports whether the build follows snapshot releases: every
// non-production build does, and production builds opt in with the snapshot flag.
func (b Build) IsSnapshot() bool {
	return !b.Production || b.Snapshot
}

// HelperVersion returns the version of the running helper binary
func HelperVersion() string {
	return version
}

// ArchLabel converts a GOARCH value to the architecture label used in release artifact names.
func ArchLabel(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	case "arm":
		return "armv7"
	default:
		return goarch
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
