package desktop

import (
	"context"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/logging"
)

// Notify shows a desktop notification with notify-send when it is
// installed. It never fails.
func Notify(ctx context.Context, runner command.Runner, title, body string) {
	if _, err := runner.LookPath("notify-send"); err != nil {
		return
	}
	c := command.Command{
		Name: "notify-send",
		Args: []string{"--app-name=pswine", "--icon=" + IconName, title, body},
	}
	if _, err := runner.Run(ctx, c); err != nil {
		logger := logging.Get("desktop")
		logger.Debug().Err(err).Msg("notify-send failed")
	}
}
