// Command tribunal scores documents with a multi-judge panel and refines
// them toward a target score.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(engineDeps{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
