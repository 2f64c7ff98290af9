// Package api serves the prediction query engine over HTTP: the list,
// summary, and performance operations the presentation layer consumes, a
// health probe, and an ops surface of recent metrics, logs, and host
// resource samples.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"propflow/config"
	"propflow/engine"
	"propflow/logger"
	"propflow/store"
)

// Server hosts the Gin-powered prediction API.
type Server struct {
	cfg             *config.Config
	log             *logger.Log
	service         *engine.Service
	store           *store.Store
	metricStore     *metricStore
	logStore        *logStore
	resourceSampler *resourceSampler
	components      map[string]func() interface{}
	httpServer      *http.Server
	startedAt       time.Time
}

// NewServer constructs the API server when the server feature is enabled.
// When the server is disabled the returned server will be nil.
func NewServer(cfg *config.Config, service *engine.Service, st *store.Store, log *logger.Log) (*Server, error) {
	if !cfg.Server.Enabled {
		return nil, nil
	}

	cfg.Server.Address = normalizeAddress(cfg.Server.Address)

	metricStore := newMetricStore(cfg.Ops.MetricsLimit)
	log.AddHook(metricStore)

	opsLevel := logrus.InfoLevel
	if lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Ops.LogLevel)); err == nil && cfg.Ops.LogLevel != "" {
		opsLevel = lvl
	}
	logStore := newLogStore(cfg.Ops.LogsLimit, opsLevel)
	log.AddHook(logStore)

	var sampler *resourceSampler
	if cfg.Ops.Resources.Enabled {
		// Disk pressure matters where the parquet lake lands, so the local
		// archive directory is the default sampling path.
		diskPath := cfg.Ops.Resources.DiskPath
		if diskPath == "" {
			diskPath = cfg.Archive.LocalDir
		}
		sampler = newResourceSampler(
			cfg.Ops.Resources.Limit,
			cfg.Ops.Resources.Interval,
			diskPath,
			log,
		)
	}

	server := &Server{
		cfg:             cfg,
		log:             log,
		service:         service,
		store:           st,
		metricStore:     metricStore,
		logStore:        logStore,
		resourceSampler: sampler,
		components:      make(map[string]func() interface{}),
	}

	log.WithComponent("api").WithFields(logger.Fields{
		"address": cfg.Server.Address,
	}).Info("api server initialized")

	return server, nil
}

// Run starts the API server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	if s.resourceSampler != nil {
		s.resourceSampler.start(ctx)
	}

	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	if s.metricStore != nil {
		s.metricStore.close()
	}
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.resourceSampler != nil {
		s.resourceSampler.stop()
	}
}

// RegisterComponent exposes a pipeline component's live counters on the
// health endpoint. Must be called during wiring, before Run.
func (s *Server) RegisterComponent(name string, stats func() interface{}) {
	if s == nil || stats == nil {
		return
	}
	s.components[name] = stats
}

// Address reports the network address the API server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Server.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// Allow running behind load balancers by trusting all proxies by
	// default. Users can override Gin's trusted proxy list via the
	// GIN_TRUSTED_PROXIES environment variable if needed.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.Use(s.requestMetrics())

	router.GET("/api/predictions", s.handleList)
	router.GET("/api/predictions/summary", s.handleSummary)
	router.GET("/api/predictions/performance", s.handlePerformance)
	router.GET("/api/health", s.handleHealth)

	router.GET("/api/ops/metrics", s.handleOpsMetrics)
	router.GET("/api/ops/logs", s.handleOpsLogs)
	router.GET("/api/ops/resources", s.handleOpsResources)

	// An unrecognised operation selector is a structured client error, not
	// a bare 404 page.
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("invalid_request", "unknown operation: "+c.Request.URL.Path))
	})

	return router, nil
}

// requestMetrics records one metric point per served request so the ops
// surface can show query traffic without scraping logs.
func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metricStore.record(metricPoint{
			Component: "api",
			Name:      "http_request",
			Value:     float64(time.Since(start).Milliseconds()),
			Type:      "timer",
			Fields: map[string]interface{}{
				"route":  route,
				"status": c.Writer.Status(),
				"bytes":  c.Writer.Size(),
			},
		})
	}
}

func (s *Server) handleList(c *gin.Context) {
	values := make(map[string]string)
	for _, key := range []string{"sport", "date", "minConfidence", "stat", "team", "player", "sortBy", "sortOrder", "page", "limit"} {
		if v, ok := c.GetQuery(key); ok {
			values[key] = v
		}
	}

	params := parseListParams(values, s.cfg.Engine, s.log)
	result := s.service.List(params.Filter, params.Sort, params.Page)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Summary())
}

func (s *Server) handlePerformance(c *gin.Context) {
	raw, fetchedAt, err := s.service.Performance()
	if err != nil {
		if errors.Is(err, engine.ErrNoPerformanceReport) {
			c.JSON(http.StatusServiceUnavailable, errorBody("unavailable", "no performance report has been ingested yet"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody("internal", "failed to load performance report"))
		return
	}

	c.Header("Last-Modified", fetchedAt.UTC().Format(http.TimeFormat))
	// The monitoring process's document is served byte-for-byte.
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.store.Stats()
	payload := gin.H{
		"status":               "ok",
		"app":                  s.cfg.Propflow.Name,
		"version":              s.cfg.Propflow.Version,
		"environment":          config.AppEnvironment(),
		"uptime_seconds":       int64(time.Since(s.startedAt).Seconds()),
		"snapshot":             stats,
		"snapshot_age_seconds": int64(time.Since(stats.PublishedAt).Seconds()),
	}
	if len(s.components) > 0 {
		components := gin.H{}
		for name, componentStats := range s.components {
			components[name] = componentStats()
		}
		payload["components"] = components
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleOpsMetrics(c *gin.Context) {
	metricsSnapshot := s.metricStore.snapshot()
	payload := make([]gin.H, 0, len(metricsSnapshot))
	for _, m := range metricsSnapshot {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"type":      m.Type,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func (s *Server) handleOpsLogs(c *gin.Context) {
	logsSnapshot := s.logStore.snapshot()
	payload := make([]gin.H, 0, len(logsSnapshot))
	for _, l := range logsSnapshot {
		payload = append(payload, gin.H{
			"timestamp": l.Timestamp.Format(time.RFC3339Nano),
			"level":     l.Level,
			"component": l.Component,
			"message":   l.Message,
			"fields":    l.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": payload})
}

func (s *Server) handleOpsResources(c *gin.Context) {
	snapshots := s.resourceSampler.snapshot()
	payload := make([]gin.H, 0, len(snapshots))
	for _, snap := range snapshots {
		payload = append(payload, gin.H{
			"timestamp":      snap.Timestamp.Format(time.RFC3339Nano),
			"cpu_percent":    snap.CPUPercent,
			"memory_used":    snap.MemoryUsed,
			"memory_total":   snap.MemoryTotal,
			"memory_percent": snap.MemoryPct,
			"disk_used":      snap.DiskUsed,
			"disk_total":     snap.DiskTotal,
			"disk_percent":   snap.DiskPct,
			"goroutines":     snap.Goroutines,
			"heap_bytes":     snap.HeapBytes,
		})
	}
	c.JSON(http.StatusOK, gin.H{"resources": payload})
}

func errorBody(kind, message string) gin.H {
	return gin.H{"error": gin.H{"kind": kind, "message": message}}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
