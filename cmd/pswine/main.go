// Command pswine installs and runs Adobe Photoshop CC 2019 under Wine.
//
// Invoked through the photoshop symlink it behaves like "pswine launch".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackwell-systems/pswine/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app.RootCmd.SetArgs(app.ArgsFor(os.Args[0], os.Args[1:]))
	err := app.Execute(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(app.ExitCode(err))
}
