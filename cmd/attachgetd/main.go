package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"attachget/internal/api"
	"attachget/internal/bot"
	"attachget/internal/config"
	"attachget/internal/disk"
	"attachget/internal/history"
	"attachget/internal/loader"
	"attachget/internal/logger"
	"attachget/internal/manager"
	"attachget/internal/memstor"
	"attachget/internal/status"
	"attachget/internal/uploader"
)

const (
	shutdownTimeout = 30 * time.Second
	apiBasePath     = "/api"
)

type runStore interface {
	manager.Recorder
	api.Store
}

func main() {
	godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger.SetupDefault(cfg.Logger)

	slog.Debug("bot config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := disk.Open(cfg.Manager.OutputDir)
	if err != nil {
		log.Fatalf("open output dir failed: %v", err)
	}

	store, closeStore := newRunStore(ctx, cfg.Status)
	defer closeStore()

	opts := []manager.Option{manager.WithRecorder(store)}
	if cfg.OBS.Enabled() {
		obsUploader, err := uploader.NewObsUploader(cfg.OBS)
		if err != nil {
			log.Fatalf("create OBS uploader failed: %v", err)
		}
		defer obsUploader.Close()
		opts = append(opts, manager.WithMirror(obsUploader))
		slog.Info("OBS mirror enabled", "bucket", cfg.OBS.Bucket)
	}
	if cfg.Blob.URL != "" {
		blobUploader, err := uploader.NewBlobUploader(ctx, cfg.Blob.URL, cfg.Blob.Prefix)
		if err != nil {
			log.Fatalf("create blob uploader failed: %v", err)
		}
		defer blobUploader.Close()
		opts = append(opts, manager.WithMirror(blobUploader))
		slog.Info("blob mirror enabled", "url", cfg.Blob.URL)
	}

	session, err := bot.NewSession(cfg.Bot.Token)
	if err != nil {
		log.Fatalf("create session failed: %v", err)
	}

	ldr := loader.New(loader.NewHTTPClient(cfg.Loader))
	pager := history.New(session, cfg.History)
	mgr := manager.New(cfg.Manager, pager, ldr, dir, opts...)

	b := bot.New(session, mgr, cfg.Bot)
	if err := b.Start(ctx); err != nil {
		log.Fatalf("start bot failed: %v", err)
	}

	var server *http.Server
	if cfg.Status.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		handler := logger.HTTPLogging(slog.Default(), api.New(store, apiBasePath))
		server = newServer(cfg.Status.Addr, handler)
		go func() {
			slog.Info("status server startup", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("status server failed", "error", err)
				stop()
			}
		}()
	}

	slog.Info("bot is running", "outputDir", dir.Root())
	<-ctx.Done()
	slog.Info("shutdown", "cause", context.Cause(ctx))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("status server shutdown failed", "error", err)
		}
	}

	if err := b.Stop(); err != nil {
		slog.Error("bot shutdown failed", "error", err)
	}
}

// newRunStore выбирает хранилище сводок: Redis, если задан адрес, иначе память.
func newRunStore(ctx context.Context, cfg config.Status) (runStore, func()) {
	if cfg.RedisAddr != "" {
		rdb, err := status.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("connect redis failed: %v", err)
		}
		slog.Info("run store: redis", "addr", cfg.RedisAddr)
		return status.NewStore(rdb, cfg.TTL), func() { rdb.Close() }
	}

	stor := memstor.New(memstor.Config{
		MaxTotal: cfg.MaxTotal,
		TTL:      cfg.TTL,
	})
	slog.Info("run store: memory", "maxTotal", cfg.MaxTotal)
	return stor, stor.Cancel
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: handler,

		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       1 * time.Minute,

		MaxHeaderBytes: 8192, // 8 KB
	}
}
