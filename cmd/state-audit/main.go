package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"ftops/internal/logging"
	"ftops/internal/stateaudit"
)

// state-audit runs terraform workspace show, state list and providers in the working
// directory and exits with the last failing command's code.
func main() {
	level := os.Getenv("STATE_AUDIT_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := stateaudit.Audit(ctx, stateaudit.NewExecRunner(), stateaudit.Commands, logger.Named("state-audit"))
	stop()
	_ = logger.Sync()
	os.Exit(code)
}
