// Command complyref keeps law and product-feature corpora side by side and
// checks each against the other for compliance gaps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/complyref/internal/adapters/driving/cli"
	"github.com/custodia-labs/complyref/internal/logger"
)

// Set by the release build.
var version = "dev"

func main() {
	// API keys may live in a local .env file; a missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("loading .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	code := cli.Execute(ctx, bootstrap, os.Args[1:])
	stop()
	os.Exit(code)
}
