package notify

import (
	"context"
	"log/slog"
)

// Log writes each alert as a structured log line. It never fails.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Notify(ctx context.Context, batch Batch) error {
	for _, a := range batch.Alerts {
		slog.InfoContext(ctx, "notify: alert",
			"cycle_id", batch.CycleID,
			"kind", a.Kind,
			"key", a.Key(),
			"title", a.Title,
			"severity", a.Severity,
		)
	}
	return nil
}
