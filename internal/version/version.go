package version

// Version is the current version of TunnelDrop.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/jogusuryateja567-glitch/TunnelDrop/internal/version.Version=v1.0.0'"
var Version = "dev"
