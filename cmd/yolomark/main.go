// Annotates a folder of images with bounding boxes and exports them as a train/val detection
// dataset with one label file per image.
//
// In serve mode the annotation session is driven over HTTP. In save and export mode a folder of
// images and the annotations saved by an earlier session are written out without a UI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sensorable/yolomark"
	"github.com/sensorable/yolomark/internal/config"
	"github.com/sensorable/yolomark/internal/logger"
	"github.com/sensorable/yolomark/internal/server"
)

func main() {
	cfg, err := config.Load(filepath.Base(os.Args[0]), os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Invalid arguments:", err)
		os.Exit(2)
	}

	log, err := logger.NewSugared(cfg.LogLevel)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "CRITICAL: Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Desugar()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	session := yolomark.NewSession(log)
	if err := session.SetViewport(cfg.Viewport); err != nil {
		return err
	}

	if cfg.ImageDir != "" {
		if err := session.OpenFolder(cfg.ImageDir); err != nil {
			return fmt.Errorf("failed to open the image folder: %w", err)
		}
	}
	if cfg.LabelDir != "" {
		if _, err := session.LoadAnnotations(cfg.LabelDir, cfg.Labels); err != nil {
			return fmt.Errorf("failed to load the annotations: %w", err)
		}
	}

	openSink, err := newSinkOpener(ctx, cfg, log)
	if err != nil {
		return err
	}

	switch cfg.Mode {
	case config.ModeServe:
		return serve(ctx, cfg, session, openSink, log)
	case config.ModeSave:
		sink, err := openSink(ctx, cfg.OutDir)
		if err != nil {
			return err
		}
		report, err := session.Save(ctx, sink, cfg.SaveOptions())
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		return checkReport(report, log)
	case config.ModeExport:
		sink, err := openSink(ctx, cfg.OutDir)
		if err != nil {
			return err
		}
		report, err := session.Export(ctx, sink, cfg.ExportOptions())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		return checkReport(report, log)
	}
	return fmt.Errorf("unsupported mode %q", cfg.Mode)
}

// newSinkOpener returns the output for save and export: the S3 bucket if one is configured and
// a local directory otherwise.
func newSinkOpener(ctx context.Context, cfg *config.Config, log *zap.Logger) (server.SinkOpener, error) {
	if !cfg.UseS3() {
		return func(_ context.Context, dir string) (yolomark.Sink, error) {
			if dir == "" {
				dir = cfg.OutDir
			}
			if dir == "" {
				return nil, server.ErrMissingDir
			}
			return yolomark.NewDirSink(dir), nil
		}, nil
	}

	sink, err := yolomark.NewS3Sink(ctx, cfg.S3, log)
	if err != nil {
		return nil, err
	}
	return func(context.Context, string) (yolomark.Sink, error) {
		return sink, nil
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, session *yolomark.Session,
	openSink server.SinkOpener, log *zap.Logger) error {

	srv := server.New(session, server.Options{
		Addr:     cfg.Listen,
		Save:     cfg.SaveOptions(),
		Export:   cfg.ExportOptions(),
		OpenSink: openSink,
	}, log)

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Run()
	}()

	select {
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Received signal, shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// checkReport logs the failed images and returns an error if there were any.
func checkReport(report yolomark.Report, log *zap.Logger) error {
	for _, f := range report.Failed {
		log.Error("Image failed", zap.String("image", f.Image), zap.Error(f.Err))
	}
	log.Info("Done",
		zap.Int("labelFiles", len(report.Labels)),
		zap.Int("train", len(report.Train)),
		zap.Int("val", len(report.Val)))

	if !report.OK() {
		return fmt.Errorf("%d images failed", len(report.Failed))
	}
	return nil
}
