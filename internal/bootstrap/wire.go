package bootstrap

import (
	"context"
	"errors"
	"io"
	"os"

	"go.uber.org/zap"

	"avatarmail/internal/audio"
	"avatarmail/internal/avatars"
	"avatarmail/internal/config"
	"avatarmail/internal/logging"
	"avatarmail/internal/metrics"
	"avatarmail/internal/ports"
	"avatarmail/internal/sentences"
	"avatarmail/internal/storage"
	"avatarmail/internal/upload"
	"avatarmail/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Avatars   *usecase.AvatarService
	Sentences *sentences.Catalog
	Storage   *storage.FileStorage
	Metrics   *metrics.Collector
	Logger    *zap.Logger
	Config    config.Config

	cancel     context.CancelFunc
	dispatcher *upload.Dispatcher
	store      avatars.Store
	logCloser  io.Closer
}

// Build loads configuration and wires all backend dependencies for the
// current runtime.
func Build(ctx context.Context, eventSink ports.EventSink) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWithConfig(ctx, cfg, eventSink)
}

// BuildWithConfig wires dependencies from an already resolved config.
func BuildWithConfig(ctx context.Context, cfg config.Config, eventSink ports.EventSink) (*Services, error) {
	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	catalog, err := sentences.Load(cfg.Sentences.Path)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	store, err := avatars.Open(ctx, avatars.Config{
		Backend:    cfg.Avatars.Backend,
		SQLitePath: cfg.Avatars.SQLitePath,
		Redis: avatars.RedisConfig{
			Addr:      cfg.Avatars.Redis.Addr,
			Password:  cfg.Avatars.Redis.Password,
			DB:        cfg.Avatars.Redis.DB,
			KeyPrefix: cfg.Avatars.Redis.KeyPrefix,
		},
	})
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	services := &Services{
		Sentences: catalog,
		Storage:   storage.NewFileStorage(cfg.Storage.Root, logger),
		Metrics:   metrics.NewCollector(logger),
		Logger:    logger,
		Config:    cfg,
		cancel:    cancel,
		store:     store,
		logCloser: logCloser,
	}

	if cfg.Metrics.ListenAddr != "" {
		go func() {
			if err := services.Metrics.Serve(runCtx, cfg.Metrics.ListenAddr); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	var uploader ports.VoiceUploader
	if cfg.Upload.Enabled {
		services.dispatcher = upload.NewDispatcher(
			upload.NewClient(upload.Config{APIKey: cfg.Upload.APIKey, APIBaseURL: cfg.Upload.URL}, services.Storage),
			upload.DispatcherConfig{
				Workers:   cfg.Upload.Workers,
				QueueSize: cfg.Upload.QueueSize,
				Timeout:   cfg.Upload.Timeout,
			},
			logger,
			services.Metrics,
		)
		services.dispatcher.Start(runCtx)
		uploader = services.dispatcher
	}

	recorder := audio.NewRecorder(
		audio.NewMicCapture(cfg.Audio.RecorderCommand, logger),
		audio.RecorderConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			TickInterval:   cfg.Recorder.TickInterval,
			AcquireTimeout: cfg.Recorder.AcquireTimeout,
			ChunkSize:      cfg.Audio.ChunkSize,
		},
		logger,
	)

	services.Avatars = usecase.NewAvatarService(store, uploader, usecase.VoiceDeps{
		Recorder: recorder,
		Player:   audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand, services.Storage, logger),
		Storage:  services.Storage,
		Events:   eventSink,
		Logger:   logger,
		Metrics:  services.Metrics,
	})

	logger.Info("backend ready",
		zap.String("storage", cfg.Storage.Root),
		zap.String("avatars", cfg.Avatars.Backend),
		zap.Bool("upload", cfg.Upload.Enabled),
		zap.Int("sentences", catalog.Len()),
	)
	return services, nil
}

// Close drains pending uploads and releases the store and log file.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	s.cancel()
	err := s.store.Close()
	s.Logger.Info("backend stopped")
	return errors.Join(err, s.logCloser.Close())
}
