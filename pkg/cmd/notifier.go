package cmd

import (
	"log/slog"

	"github.com/dukex/portalflow/pkg/notification"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/dukex/portalflow/pkg/services"
)

// NewNotifier posts to Slack when a webhook is set and logs the messages otherwise.
func NewNotifier(p persistence.Persistence, slackWebhook, slackChannel string, logger *slog.Logger) *notification.Notifier {
	var sink notification.Sink = notification.NewLogSink(logger)
	if slackWebhook != "" {
		sink = notification.NewSlackSink(slackWebhook, slackChannel, logger)
	}

	return notification.NewNotifier(sink, services.NewWorkflow(p), services.NewBatch(p), services.NewSequenceRun(p), logger)
}
