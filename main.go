package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Adedunmol/face-kiosk/api/client"
	"github.com/Adedunmol/face-kiosk/api/handlers"
	"github.com/Adedunmol/face-kiosk/archive"
	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/config"
	"github.com/Adedunmol/face-kiosk/core"
	"github.com/Adedunmol/face-kiosk/detector"
	"github.com/Adedunmol/face-kiosk/kiosk"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/Adedunmol/face-kiosk/notify"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

const (
	notificationLimit = 50
	shutdownTimeout   = 5 * time.Second
)

func main() {
	if err := logger.Init("info"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", logger.LoggerOptions{Key: "error", Data: err})
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		logger.Warning("failed to apply log level", logger.LoggerOptions{Key: "error", Data: err})
	}

	// The dlib models are loaded on first use so a kiosk without them can
	// still run registration.
	var classifierLoaded atomic.Bool
	loadClassifier := sync.OnceValues(func() (*core.Classifier, error) {
		c, err := core.NewClassifier(cfg.ModelDir)
		if err == nil {
			classifierLoaded.Store(true)
		}
		return c, err
	})
	defer func() {
		if classifierLoaded.Load() {
			c, _ := loadClassifier()
			c.Close()
		}
	}()

	recorder := notify.NewRecorder(notificationLimit)
	identity := client.New(cfg.ServiceURL, cfg.RequestTimeout)

	deps := kiosk.Deps{
		NewCamera: func() kiosk.Camera {
			return camera.NewFFmpegSession(camera.Options{
				Device: cfg.CameraDevice,
				Format: cfg.CameraFormat,
				Width:  cfg.CameraWidth,
				Height: cfg.CameraHeight,
			})
		},
		NewDetector: func() (*detector.Detector, error) {
			c, err := loadClassifier()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", detector.ErrDetectionInit, err)
			}
			return detector.New(c, cfg.MinConfidence), nil
		},
		Verifier:          identity,
		Submitter:         identity,
		Notifier:          recorder,
		ReadyPollInterval: cfg.ReadyPollInterval,
		ReadyTimeout:      cfg.ReadyTimeout,
		VerifyTimeout:     cfg.RequestTimeout,
	}
	if cfg.CloudinaryURL != "" {
		archiver, err := archive.NewCloudinary(cfg.CloudinaryURL, cfg.ArchiveFolder)
		if err != nil {
			logger.Warning("registration archive disabled", logger.LoggerOptions{Key: "error", Data: err})
		} else {
			deps.Archiver = archiver
		}
	}
	k := kiosk.New(deps)

	mux := http.NewServeMux()
	handlers.New(k, recorder).Routes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return k.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("kiosk server starting", logger.LoggerOptions{Key: "addr", Data: cfg.ListenAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("kiosk server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// The kiosk opens on the lookup page.
	if _, err := k.StartLookup(); err != nil {
		logger.Error("failed to start lookup session", logger.LoggerOptions{Key: "error", Data: err})
	}

	if err := g.Wait(); err != nil {
		logger.Error("kiosk stopped with error", logger.LoggerOptions{Key: "error", Data: err})
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("kiosk stopped")
}
