// Package adminhttp runs a gin sidecar alongside the Redis-protocol
// listener: a health/metrics surface for orchestration, and a cookie-session
// admin API for reading and changing live configuration without a redis-cli.
package adminhttp

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/engine"
)

// Options configures Server.
type Options struct {
	Addr          string // "host:port" to listen on
	Dev           bool   // relax CORS/cookie Secure for local development
	SessionSecret []byte // cookie-store signing key; generated if empty
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6381"
	}
	if len(o.SessionSecret) == 0 {
		o.SessionSecret = []byte("redlite-dev-insecure-session-key")
	}
}

// Server is the admin HTTP sidecar.
type Server struct {
	log    *zap.Logger
	root   *engine.Root
	opts   Options
	srv    *http.Server
	stats  *statsCache
}

// New builds a Server bound to root's configuration and stats.
func New(root *engine.Root, opts Options) *Server {
	opts.setDefaults()
	log := root.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("adminhttp")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})
	r.Use(gin.Recovery())

	if opts.Dev || os.Getenv("ENV") == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "X-CSRF-Token"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(secure.New(secure.Config{
			SSLRedirect:           false,
			FrameDeny:             true,
			ContentTypeNosniff:    true,
			BrowserXssFilter:      true,
			STSSeconds:            31536000,
			STSIncludeSubdomains:  true,
			ContentSecurityPolicy: "default-src 'self'",
		}))
	}

	r.Use(zapLogger(log))

	store := cookie.NewStore(opts.SessionSecret)
	store.Options(sessions.Options{
		Path:     "/admin",
		MaxAge:   4 * 3600,
		Secure:   !opts.Dev,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("rl_sid", store))

	s := &Server{log: log, root: root, opts: opts, stats: newStatsCache(root.Store, 250*time.Millisecond)}
	s.routes(r)
	s.srv = &http.Server{Addr: opts.Addr, Handler: r}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", s.handleMetrics)

	admin := r.Group("/admin")
	admin.POST("/login", s.handleLogin)
	admin.POST("/logout", authenticate(s.root), s.handleLogout)
	admin.GET("/me", authenticate(s.root), s.handleMe)

	cfg := admin.Group("/config", authenticate(s.root))
	cfg.GET("", s.handleConfigGet)
	cfg.PUT("", validateCSRF, s.handleConfigSet)
}

// Run serves admin HTTP traffic until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.opts.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// zapLogger mirrors the structured access-log middleware used across the
// rest of this codebase's background services.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
