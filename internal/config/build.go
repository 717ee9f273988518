package config

// Build metadata, stamped by the linker:
//
//	go build -ldflags "-X pawdesk/internal/config.version=1.2.3 \
//	    -X pawdesk/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X pawdesk/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// The fallbacks below show up in unstamped local builds.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the linker-stamped variables. The loader calls it
// once and hangs the result off Config.Build; nothing else should read the
// package globals directly.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
