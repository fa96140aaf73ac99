package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"avatarmail/internal/domain"
	"avatarmail/internal/ports"
)

// RecorderConfig controls capture and the elapsed-time clock.
type RecorderConfig struct {
	Audio          ports.AudioConfig
	TickInterval   time.Duration
	AcquireTimeout time.Duration
	ChunkSize      int
}

// Recorder buffers one capture at a time and encodes it as WAV on stop.
type Recorder struct {
	capture ports.AudioCapture
	cfg     RecorderConfig
	logger  *zap.Logger

	// clock and newID are injectable for tests.
	clock func() time.Time
	newID func() string

	mu     sync.Mutex
	active *activeCapture
}

type activeCapture struct {
	sentence  string
	startedAt time.Time
	session   ports.AudioSession

	bufMu   sync.Mutex
	buf     bytes.Buffer
	pumpErr error

	pumpDone chan struct{}
	tickStop chan struct{}
	tickDone chan struct{}
}

func NewRecorder(capture ports.AudioCapture, cfg RecorderConfig, logger *zap.Logger) *Recorder {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 3 * time.Second
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	cfg.Audio = withCaptureDefaults(cfg.Audio)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		capture: capture,
		cfg:     cfg,
		logger:  logger.Named("recorder"),
		clock:   time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// StartRecording acquires the capture device and starts buffering audio for sentence.
// Device acquisition is bounded by the configured acquire timeout.
func (r *Recorder) StartRecording(ctx context.Context, sentence string, onTick func(elapsed time.Duration)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return domain.ErrRecordingInProgress
	}

	acquireCtx, cancel := context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	defer cancel()

	session, err := r.capture.Start(acquireCtx, r.cfg.Audio)
	if err != nil {
		if !errors.Is(err, domain.ErrHardwareUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrHardwareUnavailable, err)
		}
		return err
	}

	active := &activeCapture{
		sentence:  sentence,
		startedAt: r.clock(),
		session:   session,
		pumpDone:  make(chan struct{}),
		tickStop:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}
	r.active = active

	go bufferAudio(active, r.cfg.ChunkSize)
	go r.runClock(active, onTick)

	r.logger.Debug("recording started", zap.String("sentence", sentence))
	return nil
}

// StopRecording ends the capture and returns the encoded recording.
func (r *Recorder) StopRecording(ctx context.Context) (domain.Recording, error) {
	r.mu.Lock()
	active := r.active
	r.active = nil
	r.mu.Unlock()

	if active == nil {
		return domain.Recording{}, domain.ErrNoActiveRecording
	}

	elapsed := r.clock().Sub(active.startedAt)
	if err := r.halt(active); err != nil {
		r.logger.Warn("capture did not stop cleanly", zap.Error(err))
	}

	active.bufMu.Lock()
	pcm := append([]byte(nil), active.buf.Bytes()...)
	pumpErr := active.pumpErr
	active.bufMu.Unlock()

	if pumpErr != nil {
		return domain.Recording{}, fmt.Errorf("capture failed: %w", pumpErr)
	}

	frame := bytesPerSample * r.cfg.Audio.Channels
	pcm = pcm[:len(pcm)-len(pcm)%frame]
	if len(pcm) == 0 {
		return domain.Recording{}, domain.ErrEmptyRecording
	}

	id := r.newID()
	recording := domain.Recording{
		Sample: domain.AudioSample{
			ID:        id,
			FileName:  domain.SampleFileName(id),
			Contents:  active.sentence,
			CreatedAt: r.clock(),
			Duration:  elapsed.Seconds(),
		},
		Data: encodeWAV(pcm, r.cfg.Audio.SampleRate, r.cfg.Audio.Channels),
	}

	r.logger.Info("recording finished",
		zap.String("file", recording.Sample.FileName),
		zap.Float64("seconds", recording.Sample.Duration),
		zap.Int("pcmBytes", len(pcm)),
	)
	return recording, nil
}

// CancelRecording discards any in-progress capture. It is safe to call when idle.
func (r *Recorder) CancelRecording() {
	r.mu.Lock()
	active := r.active
	r.active = nil
	r.mu.Unlock()

	if active == nil {
		return
	}
	if err := r.halt(active); err != nil {
		r.logger.Debug("cancelled capture stopped with error", zap.Error(err))
	}
	r.logger.Debug("recording cancelled")
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recorder) halt(active *activeCapture) error {
	close(active.tickStop)
	<-active.tickDone
	err := active.session.Stop()
	<-active.pumpDone
	if closeErr := active.session.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (r *Recorder) runClock(active *activeCapture, onTick func(elapsed time.Duration)) {
	defer close(active.tickDone)
	if onTick == nil {
		<-active.tickStop
		return
	}

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-active.tickStop:
			return
		case <-ticker.C:
			onTick(r.clock().Sub(active.startedAt))
		}
	}
}

func bufferAudio(active *activeCapture, chunkSize int) {
	defer close(active.pumpDone)

	buf := make([]byte, chunkSize)
	for {
		n, err := active.session.Read(buf)
		if n > 0 {
			active.bufMu.Lock()
			active.buf.Write(buf[:n])
			active.bufMu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedPipe(err) {
				active.bufMu.Lock()
				active.pumpErr = err
				active.bufMu.Unlock()
			}
			return
		}
	}
}

func isClosedPipe(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}
