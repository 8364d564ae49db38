package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stemdeck/cache"
	"stemdeck/config"
	"stemdeck/core/audio"
	"stemdeck/core/player"
	"stemdeck/core/separator"
	"stemdeck/core/splitclient"
	"stemdeck/db"
	"stemdeck/logger"
	"stemdeck/model"
	"stemdeck/repository"
	"stemdeck/storage"
)

// Start wires every subsystem together and runs the HTTP server until
// the process receives an interrupt.
func Start() error {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
	defer logger.Sync()

	store, err := storage.NewStore(cfg.UploadDir, cfg.SeparatedDir)
	if err != nil {
		return err
	}

	// Persistence and caching are optional; the engine itself only needs
	// the filesystem.
	var projects repository.ProjectRepository
	if cfg.DBEnabled {
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(&model.Project{}); err != nil {
			return err
		}
		projects = repository.NewGormProjectRepository(db.GormDB)
	} else {
		projects = repository.NewMemoryProjectRepository()
		logger.Info("database disabled, keeping the project library in memory")
	}

	if cfg.RedisEnabled {
		if err := db.ConnectRedis(cfg); err != nil {
			return err
		}
		defer db.CloseRedis()
	}
	projectCache := cache.NewProjectCache(db.RedisClient)

	var mirror *storage.Mirror
	if cfg.MinioEnabled {
		mirror, err = storage.NewMirror(
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return err
		}
	}

	sep := separator.New(separator.Config{
		DemucsPath:   cfg.DemucsPath,
		SpleeterPath: cfg.SpleeterPath,
		SeparatedDir: cfg.SeparatedDir,
		DefaultTool:  cfg.DefaultSplitter,
		DefaultModel: cfg.DefaultModel,
	})

	audio.SetFFmpegPath(cfg.FFmpegPath)
	actx := audio.NewContext()
	defer actx.Shutdown()
	if cfg.AudioSpeaker {
		if err := actx.AttachSpeaker(); err != nil {
			logger.Warn("speaker unavailable, serving network sinks only", logger.ErrorField(err))
		}
	}

	splitter := pickSplitter(cfg)
	engine := player.New(actx, newStoreFetcher(store), splitter)

	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	// Engine events drive every connected editor, and state changes
	// refresh the playback snapshot for sibling services. Callbacks must
	// not block, so the cache write runs on its own goroutine.
	engine.Subscribe(hub.BroadcastEvent)
	engine.Subscribe(func(evt player.Event) {
		state, ok := evt.Data.(player.StateData)
		if evt.Type != player.EventState || !ok || state.JobID == "" {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			snap := &model.PlaybackSnapshot{
				JobID:     state.JobID,
				Playing:   state.Playing,
				Position:  state.Position,
				Duration:  state.Duration,
				UpdatedAt: time.Now().UnixMilli(),
			}
			if err := projectCache.SetPlayback(ctx, snap); err != nil {
				logger.Warn("playback snapshot not cached", logger.ErrorField(err))
			}
		}()
	})

	api := NewAPIHandler(cfg, store, sep, engine, actx, projects, projectCache, mirror, hub, splitter)

	// No global read/write timeouts: uploads are large and the live
	// stream never ends. Idle and header timeouts still apply.
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			logger.String("addr", cfg.Addr()),
			logger.String("uploads", cfg.UploadDir),
			logger.String("separated", cfg.SeparatedDir))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logger.ErrorField(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// pickSplitter chooses the secondary split backend: a remote service
// when configured, local command templates otherwise, nil when neither
// is set. Split requests without a backend fail cleanly.
func pickSplitter(cfg *config.Config) player.Splitter {
	if cfg.SplitBackendURL != "" {
		logger.Info("using remote split backend", logger.String("url", cfg.SplitBackendURL))
		return splitclient.New(cfg.SplitBackendURL)
	}
	tools := make(map[string]string)
	if cfg.SplitToolVocals != "" {
		tools["vocals"] = cfg.SplitToolVocals
	}
	if cfg.SplitToolDrums != "" {
		tools["drums"] = cfg.SplitToolDrums
	}
	if len(tools) == 0 {
		return nil
	}
	logger.Info("using local split tools", logger.Int("tools", len(tools)))
	return separator.NewSplitRunner(cfg.SeparatedDir, tools)
}
