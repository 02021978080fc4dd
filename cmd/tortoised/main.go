// Command tortoised runs the tortoisedb HTTP probe surface backed by a
// single on-disk database directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tortoisedb/tortoisedb"
	"github.com/tortoisedb/tortoisedb/httpapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir        = flag.String("data-dir", "./data", "directory holding the WAL and SST files")
		addr           = flag.String("addr", ":8080", "HTTP listen address")
		flushThreshold = flag.Int("flush-threshold", tortoisedb.DefaultFlushThreshold, "memtable size_hint threshold, in bytes, that triggers a flush")
		dev            = flag.Bool("dev", false, "use a human-readable development logger instead of the production JSON logger")
	)
	flag.Parse()

	logger, err := newLogger(*dev)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	engine, err := tortoisedb.Open(*dataDir,
		tortoisedb.WithFlushThreshold(*flushThreshold),
		tortoisedb.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("open database at %q: %w", *dataDir, err)
	}
	defer engine.Close()

	server := httpapi.New(engine, logger)
	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", *addr), zap.String("data_dir", *dataDir))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
