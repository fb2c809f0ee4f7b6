package telemetry

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const defaultTable = "file_size_metrics"

// ClickHouseSink sends emissions to ClickHouse using the official client.
// Meant for installations that aggregate metrics across many workers.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

func NewClickHouse(dsn, table string) (*ClickHouseSink, error) {
	if table == "" {
		table = defaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &ClickHouseSink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseSink) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		data_search_key String,
		source_abspath String,
		dest_abspath String,
		source_size Int64,
		dest_size Int64,
		size_difference Int64,
		start_time DateTime,
		finish_time DateTime,
		processing_duration Float64
	) ENGINE = MergeTree ORDER BY (finish_time)`, s.table)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Send(ctx context.Context, e Emission) error {
	query := fmt.Sprintf(`INSERT INTO %s (data_search_key, source_abspath, dest_abspath, source_size, dest_size, size_difference, start_time, finish_time, processing_duration) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.SearchKey,
		e.SourceAbspath,
		e.DestAbspath,
		e.SourceSize,
		e.DestSize,
		e.SizeDifference,
		e.StartTime,
		e.FinishTime,
		e.Duration.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert emission into ClickHouse: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
