package filemetrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/loykin/filemetrics/internal/bridge"
	"github.com/loykin/filemetrics/internal/config"
	"github.com/loykin/filemetrics/internal/logger"
	"github.com/loykin/filemetrics/internal/query"
	"github.com/loykin/filemetrics/internal/server"
	"github.com/loykin/filemetrics/internal/store"
	"github.com/loykin/filemetrics/internal/telemetry"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Task = store.Task

type Probe = store.Probe

type SourceData = bridge.SourceData

type ScheduledEvent = bridge.ScheduledEvent

type CompletedEvent = bridge.CompletedEvent

type ListRequest = query.ListRequest

type ListResponse = query.ListResponse

type DetailRow = query.DetailRow

type Totals = query.Totals

type TelemetrySink = telemetry.Sink

// Service bundles the store, query engine and event bridge behind a stable
// API for embedding.
type Service struct {
	cfg    config.Config
	log    *slog.Logger
	store  store.Store
	engine *query.Engine
	bridge *bridge.Bridge
	sink   telemetry.Sink
}

// New opens the configured store, ensures its schema and wires the service
// together. LoadConfig or a zero Config (ApplyDefaults is called here) both
// work.
func New(cfg Config) (*Service, error) {
	cfg.ApplyDefaults()
	log := logger.New(cfg.Log)

	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	sink, err := telemetry.New(cfg.Telemetry, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	eng := query.New(st)
	return &Service{
		cfg:    cfg,
		log:    log,
		store:  st,
		engine: eng,
		bridge: bridge.New(st, sink, log),
		sink:   sink,
	}, nil
}

// LoadConfig reads a TOML config file; an empty path yields defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Logger returns the service logger for embedders that want to share it.
func (s *Service) Logger() *slog.Logger { return s.log }

// OnScheduled is the pipeline callback for a task entering a worker.
func (s *Service) OnScheduled(ctx context.Context, ev ScheduledEvent) {
	s.bridge.OnScheduled(ctx, ev)
}

// OnCompleted is the pipeline callback for a task whose output files are
// finalized.
func (s *Service) OnCompleted(ctx context.Context, ev CompletedEvent) {
	s.bridge.OnCompleted(ctx, ev)
}

// List serves the paginated history table.
func (s *Service) List(ctx context.Context, req ListRequest) (ListResponse, error) {
	return s.engine.List(ctx, req)
}

// ConversionDetails serves the per-probe detail view.
func (s *Service) ConversionDetails(ctx context.Context, probeID int64) ([]DetailRow, error) {
	return s.engine.Detail(ctx, probeID)
}

// TotalSizeChange serves the aggregate view.
func (s *Service) TotalSizeChange(ctx context.Context) (Totals, error) {
	return s.engine.TotalSizeChange(ctx)
}

// TaskCount reports the total number of recorded tasks.
func (s *Service) TaskCount(ctx context.Context) (int64, error) {
	return s.store.TaskCount(ctx)
}

// Handler returns the panel HTTP handler for mounting into any server/mux.
func (s *Service) Handler() http.Handler {
	r := server.NewRouter(s.engine, s.cfg.Server.BasePath, s.log)
	if s.cfg.Server.Metrics {
		r.WithMetrics()
	}
	return r.Handler()
}

// Close releases the store and telemetry sink.
func (s *Service) Close() error {
	var first error
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			first = err
		}
	}
	if err := s.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
