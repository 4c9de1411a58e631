package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stereo-media-server/internal/cache"
	"stereo-media-server/internal/ffmpeg"
	"stereo-media-server/internal/library"
	"stereo-media-server/internal/platform/config"
	"stereo-media-server/internal/platform/logger"
	"stereo-media-server/internal/platform/metrics"
	"stereo-media-server/internal/subs"
	"stereo-media-server/internal/thumb"
	"stereo-media-server/internal/workpool"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "1304")
	mediaRoot := config.GetEnv("MEDIA_ROOT", "")
	cacheDir := config.GetEnv("CACHE_DIR", filepath.Join(xdg.CacheHome, "stereo-media-server", "derived"))
	cacheLimitMB := config.GetEnvInt64("CACHE_SIZE_LIMIT_MB", 1000)
	clearOnStart := config.GetEnvBool("CLEAR_CACHE_ON_START", false)
	poolSize := config.GetEnvInt("WORKER_POOL_SIZE", workpool.DefaultSize)
	ffmpegPath := config.GetEnv("FFMPEG_PATH", "ffmpeg")
	ffprobePath := config.GetEnv("FFPROBE_PATH", "ffprobe")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	if mediaRoot == "" {
		log.Error("MEDIA_ROOT is required")
		os.Exit(1)
	}
	mediaRoot, err := filepath.Abs(mediaRoot)
	if err != nil {
		log.Error("resolving media root", "error", err)
		os.Exit(1)
	}
	if info, err := os.Stat(mediaRoot); err != nil || !info.IsDir() {
		log.Error("media root is not a directory", "root", mediaRoot)
		os.Exit(1)
	}

	store, err := cache.Open(cacheDir, cacheLimitMB*1024*1024)
	if err != nil {
		log.Error("opening derivation cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if clearOnStart {
		if err := store.Clear(); err != nil {
			log.Error("clearing cache", "error", err)
			os.Exit(1)
		}
		log.Info("cache cleared on startup")
	}

	runner := ffmpeg.New(ffmpegPath, ffprobePath)
	pool := workpool.New(poolSize)
	met := metrics.New()

	svc := library.NewService(
		mediaRoot,
		store,
		thumb.NewGenerator(runner),
		subs.NewExtractor(runner),
		pool,
		log,
		met,
	)
	h := library.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetCacheSizeBytes(store.SizeBytes()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/list", h.List)
		r.Get("/media", h.Media)
		r.Get("/thumbnail", h.Thumbnail)
		r.Get("/subtitles", h.Subtitles)
		r.Post("/cache/clear", h.ClearCache)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"media_root", mediaRoot,
		"cache_dir", cacheDir,
		"cache_limit", humanize.Bytes(uint64(cacheLimitMB)*1024*1024),
		"worker_pool_size", poolSize,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
