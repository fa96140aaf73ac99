package audio

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"avatarmail/internal/domain"
)

// SampleSource resolves stored sample bytes and paths.
type SampleSource interface {
	Load(fileName string) ([]byte, error)
	URLFor(fileName string) string
}

// FFPlayPlayer plays WAV samples through an ffplay subprocess.
type FFPlayPlayer struct {
	command string
	source  SampleSource
	logger  *zap.Logger

	mu      sync.Mutex
	current *playback
}

type playback struct {
	fileName string
	cmd      *exec.Cmd
	stopped  bool
	done     chan struct{}
}

func NewFFPlayPlayer(command string, source SampleSource, logger *zap.Logger) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFPlayPlayer{command: command, source: source, logger: logger.Named("player")}
}

// Play validates the stored sample and starts playback, stopping any playback
// already in progress.
func (p *FFPlayPlayer) Play(_ context.Context, sample domain.AudioSample, onDone func(fileName string, err error)) error {
	data, err := p.source.Load(sample.FileName)
	if err != nil {
		return fmt.Errorf("load %s: %w", sample.FileName, err)
	}
	if _, err := decodeWAVHeader(data); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.stopLocked(p.current)
	}

	cmd := exec.Command(p.command,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		p.source.URLFor(sample.FileName),
	)
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command, err)
	}

	pb := &playback{fileName: sample.FileName, cmd: cmd, done: make(chan struct{})}
	p.current = pb
	go p.wait(pb, stderr, onDone)

	p.logger.Debug("playback started", zap.String("file", sample.FileName))
	return nil
}

// Stop ends the current playback without firing its completion callback.
func (p *FFPlayPlayer) Stop() error {
	p.mu.Lock()
	pb := p.current
	if pb == nil {
		p.mu.Unlock()
		return domain.ErrNotPlaying
	}
	p.stopLocked(pb)
	p.mu.Unlock()

	<-pb.done
	return nil
}

// Playing returns the file currently playing, if any.
func (p *FFPlayPlayer) Playing() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", false
	}
	return p.current.fileName, true
}

func (p *FFPlayPlayer) stopLocked(pb *playback) {
	pb.stopped = true
	if p.current == pb {
		p.current = nil
	}
	if pb.cmd.Process != nil {
		_ = pb.cmd.Process.Kill()
	}
	p.logger.Debug("playback stopped", zap.String("file", pb.fileName))
}

func (p *FFPlayPlayer) wait(pb *playback, stderr *tailBuffer, onDone func(fileName string, err error)) {
	err := pb.cmd.Wait()

	p.mu.Lock()
	natural := !pb.stopped
	if p.current == pb {
		p.current = nil
	}
	p.mu.Unlock()
	close(pb.done)

	if !natural || onDone == nil {
		return
	}
	if err != nil {
		err = fmt.Errorf("%w: %v: %s", domain.ErrDecodeFailure, err, stderr.String())
	}
	onDone(pb.fileName, err)
}
