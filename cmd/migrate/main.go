// migrate applies one SQL migration script to the database named by DATABASE_URL.
// Use go run ./cmd/migrate [file] or the built binary; configuration comes from .env and the environment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"soc-website/backend/internal/migrate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(migrate.ExitCode(err))
}
