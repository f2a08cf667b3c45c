// Package main is the entry point for the govconsole binary.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pitabwire/govconsole/internal/cli"
	"github.com/pitabwire/govconsole/internal/observability"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	observability.Version = version
	observability.Commit = commit

	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "govconsole: %v\n", err)
		os.Exit(1)
	}
}
