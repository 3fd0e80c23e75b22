package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/config"
	"github.com/envirodash/envirodash-api/internal/ingest"
)

// SensorDirectory lists persisted sensors by provider.
type SensorDirectory interface {
	SensorsByType(ctx context.Context, t catalog.ProviderType) ([]ingest.Sensor, error)
}

// Pipeline runs the fresh-data cycle for one sensor.
type Pipeline interface {
	FreshData(ctx context.Context, req ingest.FreshDataRequest) (ingest.FreshDataResult, error)
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg      config.Config
	catalog  *catalog.Catalog
	store    SensorDirectory
	pipeline Pipeline
	engine   *gin.Engine
	logger   *slog.Logger
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, cat *catalog.Catalog, store SensorDirectory, pipeline Pipeline, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	server := &Server{
		cfg:      cfg,
		catalog:  cat,
		store:    store,
		pipeline: pipeline,
		engine:   engine,
		logger:   logger,
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.GET("/sensors", s.handleListAllSensors)

	purple := api.Group("/purpleair")
	purple.GET("/sensors", s.handleListSensors(catalog.ProviderPurpleAir))
	purple.GET("/sensors/:sensor_index", s.handleGetSensor(catalog.ProviderPurpleAir))
	purple.GET("/sensors/:sensor_index/history", s.handlePurpleAirHistory)

	acurite := api.Group("/acurite")
	acurite.GET("/sensors", s.handleListSensors(catalog.ProviderAcuRite))
	acurite.GET("/sensors/:sensor_index", s.handleGetSensor(catalog.ProviderAcuRite))
	acurite.GET("/sensors/:sensor_index/live", s.handleAcuRiteLive)
	acurite.GET("/sensors/:sensor_index/live/:date", s.handleAcuRiteLive)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
