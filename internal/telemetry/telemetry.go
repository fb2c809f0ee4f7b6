package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Emission is the per-task record handed to external collectors once a
// completed task has been measured. It is observability data only; nothing
// in it feeds back into the history store.
type Emission struct {
	SearchKey      string        `json:"data_search_key"` // "<task_id> | <library_id> | <source path>"
	SourceAbspath  string        `json:"source_abspath"`
	DestAbspath    string        `json:"dest_abspath"`
	SourceSize     int64         `json:"source_size"`
	DestSize       int64         `json:"dest_size"`
	SizeDifference int64         `json:"size_difference"`
	StartTime      time.Time     `json:"start_time"`
	FinishTime     time.Time     `json:"finish_time"`
	Duration       time.Duration `json:"processing_duration"`
}

// Sink is a destination for emissions (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Emission) error
	Close() error
}

// Config selects the telemetry destination.
type Config struct {
	Type  string `toml:"type" mapstructure:"type"` // "log" (default) or "clickhouse"
	DSN   string `toml:"dsn,omitempty" mapstructure:"dsn"`
	Table string `toml:"table,omitempty" mapstructure:"table"`
}

// New builds a sink from config. An empty type means the structured log
// sink.
func New(cfg Config, log *slog.Logger) (Sink, error) {
	switch cfg.Type {
	case "", "log":
		return NewLogSink(log), nil
	case "clickhouse":
		return NewClickHouse(cfg.DSN, cfg.Table)
	default:
		return nil, fmt.Errorf("unsupported telemetry sink type %q", cfg.Type)
	}
}

// LogSink writes emissions as structured slog records, one per completed
// task.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, e Emission) error {
	s.log.Info("file_size_metrics",
		"data_search_key", e.SearchKey,
		"source_abspath", e.SourceAbspath,
		"dest_abspath", e.DestAbspath,
		"source_size", e.SourceSize,
		"dest_size", e.DestSize,
		"size_difference", e.SizeDifference,
		"start_time", e.StartTime,
		"finish_time", e.FinishTime,
		"processing_duration", e.Duration.Seconds(),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
