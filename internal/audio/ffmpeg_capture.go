package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"avatarmail/internal/domain"
	"avatarmail/internal/ports"
)

const (
	defaultStartupProbe = 250 * time.Millisecond
	defaultStopGrace    = 1200 * time.Millisecond
	stderrTailLimit     = 4096
)

// MicCapture reads raw s16le microphone PCM from an ffmpeg subprocess.
type MicCapture struct {
	command string
	logger  *zap.Logger

	// startupProbe is how long the process must survive before the device
	// counts as acquired.
	startupProbe time.Duration
	stopGrace    time.Duration
}

func NewMicCapture(command string, logger *zap.Logger) *MicCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MicCapture{
		command:      command,
		logger:       logger.Named("capture"),
		startupProbe: defaultStartupProbe,
		stopGrace:    defaultStopGrace,
	}
}

// Start launches ffmpeg against the configured input. Every way the device can
// fail to come up, ctx expiry included, wraps domain.ErrHardwareUnavailable.
func (c *MicCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withCaptureDefaults(cfg)

	// The read end is ours, so exec's Wait never closes it under a reader
	// still draining the final frames ffmpeg flushes on SIGINT.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", domain.ErrHardwareUnavailable, err)
	}

	// Not bound to ctx: the capture runs until the recorder stops it.
	cmd := exec.Command(c.command, captureArgs(cfg)...)
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stdout = writer
	cmd.Stderr = stderr
	cmd.WaitDelay = c.stopGrace

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("%w: launch %s: %v", domain.ErrHardwareUnavailable, c.command, err)
	}
	_ = writer.Close()

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	session := &micSession{
		stdout:    reader,
		stderr:    stderr,
		process:   cmd.Process,
		exited:    exited,
		stopGrace: c.stopGrace,
	}

	probe := time.NewTimer(c.startupProbe)
	defer probe.Stop()

	select {
	case err := <-exited:
		detail := stderr.String()
		if err == nil {
			err = errors.New("exited")
		}
		_ = reader.Close()
		c.logger.Warn("capture device unavailable", zap.String("device", cfg.InputDevice), zap.String("stderr", detail))
		return nil, fmt.Errorf("%w: capture ended during startup: %v: %s", domain.ErrHardwareUnavailable, err, detail)
	case <-ctx.Done():
		_ = session.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrHardwareUnavailable, ctx.Err())
	case <-probe.C:
	}

	c.logger.Debug("capture started",
		zap.String("format", cfg.InputFormat),
		zap.String("device", cfg.InputDevice),
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("channels", cfg.Channels),
	)
	return session, nil
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le", "pipe:1",
	}
}

func withCaptureDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

type micSession struct {
	stdout  *os.File
	stderr  *tailBuffer
	process *os.Process
	exited  <-chan error

	stopGrace time.Duration
	stopOnce  sync.Once
	stopErr   error
	closeOnce sync.Once
}

// Read returns io.EOF once ffmpeg has exited and its output is drained.
func (s *micSession) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		err = io.EOF
	}
	return n, err
}

// Stop sends SIGINT so ffmpeg flushes, then kills it after the grace period.
// The output stays readable until Close, so flushed frames reach the reader.
func (s *micSession) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.process.Signal(os.Interrupt)

		var waitErr error
		select {
		case waitErr = <-s.exited:
		case <-time.After(s.stopGrace):
			_ = s.process.Kill()
			waitErr = <-s.exited
		}
		s.stopErr = ignoreExitStatus(waitErr)

		// A leftover child holding the write end must not block the drain forever.
		if err := s.stdout.SetReadDeadline(time.Now().Add(s.stopGrace)); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			if detail := s.stderr.String(); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})
	return s.stopErr
}

// Close stops the process if needed and releases the output pipe.
func (s *micSession) Close() error {
	err := s.Stop()
	s.closeOnce.Do(func() {
		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && err == nil {
			err = closeErr
		}
	})
	return err
}

// ignoreExitStatus drops non-zero exit codes (ffmpeg exits 255 on SIGINT)
// and stderr left open by a lingering child.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it. exec writes stderr from
// its own goroutine, so access is locked.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = append(b.data[:0], b.data[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.data))
}
