// Package version carries build metadata, set with -ldflags at link time.
package version

import "runtime"

const (
	AppName        = "warden"
	AppDescription = "Command dispatch and message governance for OneBot chat bots"
)

var (
	BuildDate = ""
	GoVersion = runtime.Version()
)
