package upload

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"avatarmail/internal/domain"
	"avatarmail/internal/metrics"
)

// Uploader is the part of Client the dispatcher drives.
type Uploader interface {
	Upload(ctx context.Context, avatar domain.AvatarRecord) (Result, error)
}

// DispatcherConfig bounds the background upload pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Dispatcher runs uploads on a fixed worker pool. Enqueue never blocks; when
// the queue is full the job is dropped.
type Dispatcher struct {
	uploader Uploader
	cfg      DispatcherConfig
	logger   *zap.Logger
	metrics  *metrics.Collector

	jobs   chan domain.AvatarRecord
	group  *errgroup.Group
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(uploader Uploader, cfg DispatcherConfig, logger *zap.Logger, collector *metrics.Collector) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		uploader: uploader,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "upload")),
		metrics:  collector,
		jobs:     make(chan domain.AvatarRecord, cfg.QueueSize),
	}
}

// Start launches the workers. They exit when ctx is cancelled or Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.group.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
}

// Enqueue schedules an upload of avatar's recordings.
func (d *Dispatcher) Enqueue(avatar domain.AvatarRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(avatar, "dispatcher closed")
		return
	}
	select {
	case d.jobs <- avatar:
		d.logger.Debug("upload queued", zap.String("avatar", avatar.Name), zap.Int("samples", len(avatar.Recordings)))
	default:
		d.drop(avatar, "queue full")
	}
}

// Close stops accepting jobs and waits for queued uploads to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	if d.group != nil {
		_ = d.group.Wait()
	}
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case avatar, ok := <-d.jobs:
			if !ok {
				return
			}
			d.run(ctx, avatar)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, avatar domain.AvatarRecord) {
	uploadCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	started := time.Now()
	result, err := d.uploader.Upload(uploadCtx, avatar)
	if err != nil {
		d.metrics.UploadFinished(metrics.UploadFailed)
		d.logger.Warn("voice upload failed",
			zap.String("avatar", avatar.Name),
			zap.String("avatar_id", avatar.ID),
			zap.Error(err),
		)
		return
	}
	d.metrics.UploadFinished(metrics.UploadSucceeded)
	d.logger.Info("voice upload finished",
		zap.String("avatar", avatar.Name),
		zap.String("voice_id", result.VoiceID),
		zap.Int("samples", result.Acked),
		zap.Duration("took", time.Since(started)),
	)
}

func (d *Dispatcher) drop(avatar domain.AvatarRecord, reason string) {
	d.metrics.UploadFinished(metrics.UploadDropped)
	d.logger.Warn("voice upload dropped", zap.String("avatar", avatar.Name), zap.String("reason", reason))
}
