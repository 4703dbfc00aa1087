package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LogSink writes events as JSON lines through slog.
type LogSink struct {
	logger *slog.Logger
	closer io.Closer
}

// NewLogSink writes to w.
func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

// OpenLogFile appends to the file at path, creating parent directories.
func OpenLogFile(path string) (*LogSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audit: open log file: %w", err)
	}
	sink := NewLogSink(f)
	sink.closer = f
	return sink, nil
}

// Write implements Sink.
func (s *LogSink) Write(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("action", string(event.Action)),
		slog.String("resource", event.Resource),
		slog.Any("details", event.Details),
		slog.String("ip_address", event.IPAddress),
		slog.String("user_agent", event.UserAgent),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.UserID != nil {
		attrs = append(attrs, slog.Int64("user_id", *event.UserID))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit event", attrs...)
	return nil
}

// Close releases the underlying file, if any.
func (s *LogSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
