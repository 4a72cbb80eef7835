// Command mindseye turns dream descriptions into images and videos from the
// terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mindseye/internal/forms"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, forms.ErrorMessage(err, "command failed"))
		os.Exit(1)
	}
}
