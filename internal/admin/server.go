package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/observability"
	"github.com/danmuck/republish/internal/reconcile"
)

const (
	nodeName            = "republishd"
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

var ErrJournalDisabled = errors.New("admin: journal not configured")

type StatusSource interface {
	Status() reconcile.Status
}

type ToleranceSource interface {
	Remaining() int
	Budget() int
}

type JournalReader interface {
	List(limit int) ([]reconcile.Outcome, error)
}

type Config struct {
	Addr        string
	CORSOrigins []string
	Version     string
}

// Server is the read-only admin surface over a running engine.
type Server struct {
	cfg       Config
	status    StatusSource
	tolerance ToleranceSource
	journal   JournalReader
	started   time.Time
	router    *gin.Engine
}

// New builds the router. tolerance and journal may be nil.
func New(cfg Config, status StatusSource, tolerance ToleranceSource, journal JournalReader) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(nodeName))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	if cfg.Version == "" {
		cfg.Version = "0.0.1"
	}

	s := &Server{
		cfg:       cfg,
		status:    status,
		tolerance: tolerance,
		journal:   journal,
		started:   time.Now(),
		router:    r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": nodeName,
			"version": s.cfg.Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.tolerance == nil || s.tolerance.Remaining() > 0
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.started).String(),
			"service": nodeName,
			"version": s.cfg.Version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		body := gin.H{"engine": s.status.Status()}
		if s.tolerance != nil {
			body["tolerance"] = gin.H{
				"remaining": s.tolerance.Remaining(),
				"budget":    s.tolerance.Budget(),
			}
		}
		c.JSON(http.StatusOK, body)
	})

	s.router.GET("/journal", func(c *gin.Context) {
		if s.journal == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrJournalDisabled.Error()})
			return
		}
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries, err := s.journal.List(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": entries})
	})
}

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("admin.Server.Serve listening addr=%s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultJournalLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("admin: limit must be a positive integer")
	}
	if n > maxJournalLimit {
		n = maxJournalLimit
	}
	return n, nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
