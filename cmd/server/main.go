package main

import (
	"github.com/quickutil/toolstats/internal/buildinfo"
	"github.com/quickutil/toolstats/internal/cli"
	"github.com/quickutil/toolstats/internal/logging"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	cli.Execute()
}
