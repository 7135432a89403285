// Command contacts-smoke exercises a running contacts API end to end.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/contacts/internal/smoke"
	"github.com/okian/contacts/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := smoke.Main(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, smoke.ErrHelp) {
			return
		}
		logger.Get().Error(ctx, "smoke run failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
