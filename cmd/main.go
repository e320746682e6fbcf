package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"braid-project/braid"
	"braid-project/config"
	"braid-project/handlers"
	"braid-project/logger"
	"braid-project/routers"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	ConfigFile string `short:"c" long:"config" description:"Path to the YAML config file" default:"config/config.yaml"`
	DataDir    string `short:"d" long:"datadir" description:"Directory holding the braid store (overrides braid.data_dir)"`
	Reindex    bool   `long:"reindex" description:"Rebuild children, siblings and cohorts before serving"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}
	if opts.DataDir != "" {
		cfg.Braid.DataDir = opts.DataDir
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, opts.Reindex, nil)
	stop()
	if err != nil {
		logger.Logger.Error("Braid server failed", zap.Error(err))
		logger.Logger.Sync()
		os.Exit(1)
	}
}

// run serves the braid API until ctx is done. The store is closed on every
// return path. When ready is non-nil it receives the listening address.
func run(ctx context.Context, cfg *config.Config, reindex bool, ready chan<- string) error {
	b, err := braid.Open(cfg.Braid.DataDir, braid.Options{BeadCacheSize: cfg.Braid.BeadCacheSize})
	if err != nil {
		return errors.Wrap(err, "open braid")
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Logger.Error("Failed to close braid", zap.Error(err))
		}
	}()

	if reindex {
		if err := b.Reindex(); err != nil {
			return err
		}
	}

	router := mux.NewRouter()
	routers.RegisterRoutes(router, handlers.NewHandler(b))
	srv := &http.Server{Handler: router}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	logger.Logger.Info("Serving braid API", zap.String("addr", ln.Addr().String()))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	logger.Logger.Info("Shutting down braid server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
