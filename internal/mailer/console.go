package mailer

import (
	"context"
	"log/slog"
)

// Console writes verification links to the log instead of delivering them.
// Used for the local environment, where no broker is running.
type Console struct {
	log *slog.Logger
}

func NewConsole(log *slog.Logger) *Console {
	return &Console{log: log}
}

func (c *Console) SendVerificationEmail(_ context.Context, to, link string) error {
	c.log.Info("VERIFICATION EMAIL",
		slog.String("to", to),
		slog.String("link", link),
	)

	return nil
}
