package events

import "log/slog"

// LogEmitter writes each recordable event as a structured log line.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(evt Event) {
	rec, ok := evt.(Recordable)
	if !ok || l.Logger == nil {
		return
	}
	record := rec.Record()
	if record == nil {
		return
	}
	args := make([]any, 0, len(record.Attributes)+1)
	args = append(args, slog.String("type", record.Type))
	for k, v := range record.Attributes {
		args = append(args, slog.String(k, v))
	}
	l.Logger.Info("event", args...)
}
