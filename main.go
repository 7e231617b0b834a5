package main

import (
	"os"

	"github.com/tabladeV/manager.tabla-sub002/cmd"
	"github.com/tabladeV/manager.tabla-sub002/internal/buildinfo"
)

// Set at build time with
//
//	-ldflags "-X main.version=$(git describe --tags) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   string
	buildDate string
)

func main() {
	build := &buildinfo.Context{
		Version:   version,
		BuildDate: buildDate,
	}

	rootCmd := cmd.RootCommand(build)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
