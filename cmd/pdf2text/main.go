package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/pdf2text/internal/common"
	"github.com/joseph-ayodele/pdf2text/internal/convert"
	"github.com/joseph-ayodele/pdf2text/internal/export"
	"github.com/joseph-ayodele/pdf2text/internal/ocr"
	"github.com/joseph-ayodele/pdf2text/internal/repository"
	"github.com/joseph-ayodele/pdf2text/internal/server"
	"github.com/joseph-ayodele/pdf2text/internal/staging"
)

const (
	healthService  = "pdf2text"
	healthInterval = time.Minute
	shutdownGrace  = 15 * time.Second
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := common.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pdf2text stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	backend, err := ocr.NewBackend(ocr.FromConfig(cfg.OCR), logger)
	if err != nil {
		return fmt.Errorf("ocr backend: %w", err)
	}
	stager, err := staging.NewStager(cfg.Storage.StagingDir, logger)
	if err != nil {
		return err
	}

	db, err := repository.Open(ctx, "", logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer repository.Close(db, logger)
	ledger := repository.NewConversionRepository(db, logger)

	svc := convert.NewService(backend, stager, ledger, convert.Config{
		OutputDir:       cfg.Storage.OutputDir,
		DefaultMaxPages: cfg.Convert.MaxPages,
		DefaultLanguage: cfg.OCR.Language,
		Timeout:         cfg.Convert.Timeout,
		MaxConcurrent:   cfg.Convert.MaxConcurrent,
	}, logger)

	web := server.NewHTTPServer(svc, export.NewService(ledger, logger), ledger, server.HTTPConfig{
		SamplePDF:      cfg.Storage.SamplePDF,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           web.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("pdf2text http listening", "addr", cfg.Server.HTTPAddr, "engine", backend.Name())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			return err
		}
		health := server.NewHealth(backend, healthService, logger)
		g.Go(func() error {
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			return health.Serve(lis)
		})
		g.Go(func() error {
			health.Watch(gctx, healthInterval)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			health.GracefulStop()
			return nil
		})
	} else {
		// no health endpoint; still surface missing binaries early
		g.Go(func() error {
			if err := backend.Check(gctx); err != nil {
				logger.Warn("ocr backend check failed", "engine", backend.Name(), "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}
