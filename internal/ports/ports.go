package ports

import (
	"context"
	"io"
	"time"

	"avatarmail/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// Recorder turns a start/stop command pair into a finished recording.
// onTick is invoked with the elapsed time at a fixed interval while recording.
type Recorder interface {
	StartRecording(ctx context.Context, sentence string, onTick func(elapsed time.Duration)) error
	StopRecording(ctx context.Context) (domain.Recording, error)
	CancelRecording()
}

// Player plays one sample at a time; Play on a busy player replaces the
// current playback. onDone fires exactly once when playback ends on its own:
// err is nil on natural completion and non-nil if the player died mid-stream.
// It never fires after an explicit Stop.
type Player interface {
	Play(ctx context.Context, sample domain.AudioSample, onDone func(fileName string, err error)) error
	Stop() error
}

// SampleStorage persists audio bytes by file name.
type SampleStorage interface {
	Save(fileName string, data []byte) error
	Load(fileName string) ([]byte, error)
	Delete(fileName string) error
	Exists(fileName string) bool
	URLFor(fileName string) string
}

// AvatarStore is the durable avatar document store keyed by avatar name.
// GetAvatar returns (nil, nil) when no avatar has the given name.
type AvatarStore interface {
	GetAvatar(ctx context.Context, name string) (*domain.AvatarRecord, error)
	SaveAvatar(ctx context.Context, record *domain.AvatarRecord) error
	DeleteAvatar(ctx context.Context, name string) error
	ListAvatars(ctx context.Context) ([]domain.AvatarRecord, error)
}

// VoiceUploader hands committed samples to the remote voice-model service.
// Enqueue must not block on network I/O.
type VoiceUploader interface {
	Enqueue(avatar domain.AvatarRecord)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	RecordingTick(elapsed time.Duration)
	RecordingsChanged(visible []domain.AudioSample)
	SessionError(code domain.ErrorCode, detail string)
}
