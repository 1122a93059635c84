package main

import (
	"context"

	"github.com/adamwoolhether/courier/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, buildTime)
	cli.Execute(context.Background())
}
