package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/rcliao/casefile/internal/cli"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cli.RootCmd.Version = version
	if err := fang.Execute(context.Background(), cli.RootCmd); err != nil {
		os.Exit(1)
	}
}
