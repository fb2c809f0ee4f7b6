package server

import (
	_ "embed"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/filemetrics/internal/metrics"
	"github.com/loykin/filemetrics/internal/query"
)

//go:embed static/index.html
var panelHTML string

// Router provides embeddable HTTP handlers for the history panel.
// Endpoints:
//
//	POST {basePath}/list               body: data-grid request JSON
//	GET  {basePath}/conversionDetails  query: task_id=<probe id>
//	GET  {basePath}/totalSizeChange
//	GET  {basePath}/metrics            (when enabled)
//
// Any other path serves the static panel document. Responses are always a
// well-formed JSON envelope; internal errors are logged, never surfaced.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	engine   *query.Engine
	basePath string
	log      *slog.Logger
	metrics  bool
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/history" results in /history/list etc.
func NewRouter(engine *query.Engine, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{engine: engine, basePath: sanitizeBase(basePath), log: log}
}

// WithMetrics exposes the Prometheus endpoint under the base path.
func (r *Router) WithMetrics() *Router {
	r.metrics = true
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/list", r.handleList)
	group.GET("/conversionDetails", r.handleConversionDetails)
	group.GET("/totalSizeChange", r.handleTotalSizeChange)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	g.NoRoute(r.handlePanel)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, engine *query.Engine, log *slog.Logger) (*http.Server, error) {
	r := NewRouter(engine, basePath, log)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

func (r *Router) handleList(c *gin.Context) {
	metrics.IncPanelRequest("list")
	var req query.ListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.log.Warn("malformed list request", "error", err)
		writeJSON(c, http.StatusOK, query.Empty(req.Draw))
		return
	}
	resp, err := r.engine.List(c.Request.Context(), req)
	if err != nil {
		r.log.Error("list query failed", "error", err)
		writeJSON(c, http.StatusOK, query.Empty(req.Draw))
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleConversionDetails(c *gin.Context) {
	metrics.IncPanelRequest("conversionDetails")
	probeID, err := strconv.ParseInt(c.Query("task_id"), 10, 64)
	if err != nil {
		writeJSON(c, http.StatusOK, []query.DetailRow{})
		return
	}
	rows, err := r.engine.Detail(c.Request.Context(), probeID)
	if err != nil {
		r.log.Error("conversion details query failed", "probe_id", probeID, "error", err)
		writeJSON(c, http.StatusOK, []query.DetailRow{})
		return
	}
	writeJSON(c, http.StatusOK, rows)
}

func (r *Router) handleTotalSizeChange(c *gin.Context) {
	metrics.IncPanelRequest("totalSizeChange")
	totals, err := r.engine.TotalSizeChange(c.Request.Context())
	if err != nil {
		r.log.Error("total size change query failed", "error", err)
		writeJSON(c, http.StatusOK, query.Totals{})
		return
	}
	writeJSON(c, http.StatusOK, totals)
}

func (r *Router) handlePanel(c *gin.Context) {
	metrics.IncPanelRequest("panel")
	content := strings.ReplaceAll(panelHTML, "{cache_buster}", uuid.NewString())
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(content))
}
