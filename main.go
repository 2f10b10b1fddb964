package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/Tutortoise/deepfake-detector/config"
	"github.com/Tutortoise/deepfake-detector/detections"
	"github.com/Tutortoise/deepfake-detector/inference"
	"github.com/Tutortoise/deepfake-detector/logger"
	"github.com/Tutortoise/deepfake-detector/server"
	"github.com/Tutortoise/deepfake-detector/store"
	"github.com/Tutortoise/deepfake-detector/video"
)

const shutdownTimeout = 10 * time.Second

// loadedModels holds whatever loaded at startup. A nil classifier means the model
// is unavailable.
type loadedModels struct {
	image detections.ImageClassifier
	text  detections.SequenceClassifier
	pools []*inference.ModelSessionPool
}

func (m *loadedModels) destroy() {
	for _, p := range m.pools {
		p.Destroy()
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("error loading .env file: %v", err)
	}

	cfg := config.Load()

	lg, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer lg.Close()

	runtimeReady := true
	if err := inference.InitRuntime(cfg.OrtLibPath); err != nil {
		slog.Error("onnxruntime unavailable, all models disabled", slog.Any("error", err))
		runtimeReady = false
	} else {
		defer inference.ShutdownRuntime()
	}

	loaded := &loadedModels{}
	if runtimeReady {
		loaded = loadModels(cfg)
	}
	defer loaded.destroy()

	imageDetector := detections.NewImageDetector(loaded.image, detections.NewHTTPFetcher(detections.DefaultFetchTimeout))
	textDetector := detections.NewTextDetector(loaded.text, detections.TextOptions{
		FakeIndex: cfg.TextFakeIndex,
		Normalize: cfg.TextNormalize,
		MaxLength: cfg.MaxTextLength,
	})
	videoDetector := detections.NewVideoDetector(imageDetector, video.Open, cfg.VideoWorkers)

	uploads, err := store.NewUploads(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}

	var feedback server.FeedbackStore
	if cfg.FeedbackDB != "" {
		db, err := store.New(cfg.FeedbackDB)
		if err != nil {
			slog.Error("feedback store disabled", slog.String("path", cfg.FeedbackDB), slog.Any("error", err))
		} else {
			defer db.Close()
			feedback = store.NewFeedbackRepository(db)
		}
	}

	reporters := make([]server.PoolReporter, 0, len(loaded.pools))
	for _, p := range loaded.pools {
		reporters = append(reporters, p)
	}

	api := server.New(server.Detectors{
		Image: imageDetector,
		Text:  textDetector,
		Video: videoDetector,
	}, uploads, feedback, reporters, server.Options{
		DegradeOnError: cfg.DegradeOnError,
		MaxImageUpload: int64(cfg.MaxImageUploadMB) << 20,
		MaxVideoUpload: int64(cfg.MaxVideoUploadMB) << 20,
	})

	srv := &http.Server{
		Handler:      api.Handler(lg.Access()),
		Addr:         cfg.Addr(),
		WriteTimeout: 5 * time.Minute,
		ReadTimeout:  5 * time.Minute,
	}

	printBanner(cfg, map[string]bool{
		"image": imageDetector.Available(),
		"text":  textDetector.Available(),
		"video": videoDetector.Available(),
	}, feedback != nil)

	go func() {
		slog.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received kill signal, shutting down", slog.Any("signal", sig))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", slog.Any("error", err))
	}

	slog.Info("server exited")
}

// loadModels builds the session pools. A model that fails to load is logged
// and left nil so the rest of the service keeps running.
func loadModels(cfg *config.Config) *loadedModels {
	loaded := &loadedModels{}
	threads := inference.IntraOpThreads(cfg.PoolSize * 2)

	numLabels := len(cfg.ImageLabels)
	imagePool, err := inference.NewModelSessionPool("image", cfg.PoolSize, func() (*inference.ModelSession, error) {
		return inference.NewImageSession(cfg.ImageModelPath, numLabels, threads)
	})
	if err != nil {
		slog.Error("image model unavailable", slog.String("path", cfg.ImageModelPath), slog.Any("error", err))
	} else {
		loaded.pools = append(loaded.pools, imagePool)
		loaded.image = inference.NewImageClassifier(imagePool, cfg.ImageLabels)
	}

	tok, err := inference.LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		slog.Error("text tokenizer unavailable", slog.String("path", cfg.TokenizerPath), slog.Any("error", err))
		return loaded
	}

	textPool, err := inference.NewModelSessionPool("text", cfg.PoolSize, func() (*inference.ModelSession, error) {
		return inference.NewTextSession(cfg.TextModelPath, inference.DefaultTextLabels, detections.MaxTokens, threads)
	})
	if err != nil {
		slog.Error("text model unavailable", slog.String("path", cfg.TextModelPath), slog.Any("error", err))
		return loaded
	}
	loaded.pools = append(loaded.pools, textPool)
	loaded.text = inference.NewSequenceClassifier(textPool, tok, int64(cfg.TextPadID))

	return loaded
}

func printBanner(cfg *config.Config, available map[string]bool, feedback bool) {
	color.New(color.FgCyan, color.Bold).Println("Deepfake Detector API")
	for _, name := range []string{"image", "text", "video"} {
		if available[name] {
			color.Green("  %-8s ready", name)
		} else {
			color.Yellow("  %-8s unavailable", name)
		}
	}
	if feedback {
		color.Green("  %-8s %s", "feedback", cfg.FeedbackDB)
	}
	fmt.Printf("  listening on %s\n", cfg.Addr())
}
