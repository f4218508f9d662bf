// Package app builds the label service from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/api"
	"github.com/printops/labelpress/internal/config"
	"github.com/printops/labelpress/internal/detect"
	"github.com/printops/labelpress/internal/detect/anthropic"
	"github.com/printops/labelpress/internal/detect/gemini"
	"github.com/printops/labelpress/internal/extract"
	"github.com/printops/labelpress/internal/label"
	"github.com/printops/labelpress/internal/logging"
	"github.com/printops/labelpress/internal/metrics"
	"github.com/printops/labelpress/internal/pipeline"
	"github.com/printops/labelpress/internal/print/ipp"
	"github.com/printops/labelpress/internal/print/lp"
	"github.com/printops/labelpress/internal/render/fitz"
	"github.com/printops/labelpress/internal/trace"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	gemini    *gemini.Client
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application", zap.Any("config", cfg.Redacted()))

	detector, err := setupDetector(ctx, app)
	if err != nil {
		return nil, err
	}
	dispatcher := setupDispatcher(app)

	promSink, err := trace.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("trace sink init failed: %w", err)
	}

	extractor := extract.New(detector, extract.Config{
		SnapPx:                   cfg.Extract.SnapPx,
		MinAreaPct:               cfg.Extract.MinAreaPct,
		MaxAreaPct:               cfg.Extract.MaxAreaPct,
		BoundsTolerancePx:        cfg.Extract.BoundsTolerancePx,
		LetterAspectTolerancePct: cfg.Extract.LetterAspectTolerancePct,
	}, logger.Named("extract"))

	runner := pipeline.New(pipeline.Config{
		RenderDPI:       cfg.Render.DPI,
		LabelWidthPx:    cfg.PixelWidth(),
		LabelHeightPx:   cfg.PixelHeight(),
		DefaultScalePct: cfg.Label.DefaultScalePct,
		Dither:          cfg.Label.Dither,
		TrimLuma:        uint8(cfg.Process.TrimLuma),
		TrimMarginPx:    cfg.Process.TrimMarginPx,
		MinTrimPct:      cfg.Process.MinTrimPct,
	}, pipeline.Deps{
		Renderer:   fitz.New(),
		Extractor:  extractor,
		Dispatcher: dispatcher,
		Logger:     logger.Named("pipeline"),
		Sinks:      []trace.Sink{trace.NewLogSink(logger.Named("trace")), promSink},
	})

	app.apiServer = api.NewServer(runner, dispatcher, cfg, logger.Named("api"))
	return app, nil
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			a.logger.Warn("gemini client close failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Handler exposes the HTTP handler for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// setupDetector builds the vision detector named by detect.provider. A
// missing API key degrades to no detector so uploads still print full frame.
func setupDetector(ctx context.Context, app *App) (label.Detector, error) {
	cfg := app.cfg.Detect
	switch cfg.Provider {
	case config.ProviderNone:
		app.logger.Info("vision detector disabled")
		return nil, nil
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			app.logger.Warn("detect.api_key not set, labels will print full frame")
			return nil, nil
		}
		client, err := anthropic.New(anthropic.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic client init failed: %w", err)
		}
		app.logger.Info("using anthropic detector", zap.Float64("qps", cfg.QPS))
		return detect.NewLimited(client, config.ProviderAnthropic, cfg.QPS, app.cfg.DetectTimeout()), nil
	case config.ProviderGemini:
		if cfg.APIKey == "" {
			app.logger.Warn("detect.api_key not set, labels will print full frame")
			return nil, nil
		}
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client init failed: %w", err)
		}
		app.gemini = client
		app.logger.Info("using gemini detector", zap.Float64("qps", cfg.QPS))
		return detect.NewLimited(client, config.ProviderGemini, cfg.QPS, app.cfg.DetectTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown detect provider: %s", cfg.Provider)
	}
}

// setupDispatcher builds the spooler client named by print.mode.
func setupDispatcher(app *App) label.Dispatcher {
	cfg := app.cfg.Print
	if cfg.Mode == config.PrintModeLP {
		app.logger.Info("using lp print backend", zap.String("server", cfg.CUPSHost))
		return lp.New(lp.Config{
			Server:        cfg.CUPSHost,
			SubmitTimeout: app.cfg.PrintTimeout(),
			StatusTimeout: app.cfg.PrintTimeout(),
		}, app.logger.Named("lp"))
	}
	app.logger.Info("using ipp print backend",
		zap.String("host", cfg.CUPSHost),
		zap.Int("port", cfg.CUPSPort),
	)
	return ipp.New(ipp.Config{
		Host:     cfg.CUPSHost,
		Port:     cfg.CUPSPort,
		Username: cfg.Username,
		Password: cfg.Password,
		UseTLS:   cfg.UseTLS,
	}, app.logger.Named("ipp"))
}
