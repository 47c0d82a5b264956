// Package logger is a small factory for configured *slog.Logger instances:
// JSON or text output, level selection, and static attributes stamped on
// every record.
//
//	log := logger.New(
//		logger.WithAttrs(slog.String("service", "webhook-dispatcher")),
//	)
package logger
