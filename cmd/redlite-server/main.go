package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/redlite/redlite/internal/adminhttp"
	"github.com/redlite/redlite/internal/engine"
	"github.com/redlite/redlite/internal/listener"
)

func main() {
	var (
		dataPath       = flag.String("data", "redlite.db", "path to the SQLite data file, or :memory:")
		addr           = flag.String("addr", "127.0.0.1:6380", "address to serve the Redis protocol on")
		adminAddr      = flag.String("admin-addr", "", "address to serve the admin HTTP API on, empty to disable")
		maxConnections = flag.Int64("max-connections", 0, "maximum concurrent client connections, 0 for unlimited")
		dev            = flag.Bool("dev", false, "relax CORS/cookie settings for local development")
		requirePass    = flag.String("requirepass", "", "password clients must AUTH with, empty to disable")
	)
	flag.Parse()

	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("main")

	root, err := engine.Open(engine.Options{Path: *dataPath, Log: log})
	if err != nil {
		log.Fatal("open engine", zap.Error(err))
	}
	defer root.Close()

	if *requirePass != "" {
		if err := root.Config.Set("requirepass", *requirePass); err != nil {
			log.Fatal("set requirepass", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln := listener.New(root, listener.Options{Addr: *addr, MaxConnections: *maxConnections})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		root.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return ln.Run(gctx)
	})
	if *adminAddr != "" {
		admin := adminhttp.New(root, adminhttp.Options{Addr: *adminAddr, Dev: *dev})
		g.Go(func() error {
			return admin.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
