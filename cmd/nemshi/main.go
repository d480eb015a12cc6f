// Package main is the single-binary entrypoint for nemshi.
package main

import (
	"github.com/yalla-nemshi/nemshi/internal/api"
	"github.com/yalla-nemshi/nemshi/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	api.Version = version
	cli.Execute(version)
}
