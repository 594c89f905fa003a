package daemonrun

import (
	"context"
	"log/slog"

	"quire/internal/convert"
	"quire/internal/logging"
	"quire/internal/notifications"
)

// alertingRestarter publishes the outcome of every backend restart.
type alertingRestarter struct {
	inner    convert.Restarter
	notifier notifications.Service
	address  string
	command  string
	logger   *slog.Logger
}

func (a *alertingRestarter) Restart(ctx context.Context) bool {
	ok := a.inner.Restart(ctx)

	event := notifications.EventBackendRestarted
	payload := notifications.Payload{"address": a.address, "reason": "a conversion timeout"}
	if !ok {
		event = notifications.EventBackendRestartFailed
		payload = notifications.Payload{"address": a.address, "command": a.command}
	}
	// The call's own context may already be past its deadline.
	if err := a.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		a.logger.Warn("restart notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
	return ok
}
