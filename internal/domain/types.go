package domain

import (
	"time"
)

// SessionState models the voice edit session lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStatePlaying   SessionState = "playing"
	SessionStateSaving    SessionState = "saving"
	SessionStateEnded     SessionState = "ended"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonSessionOpened      SessionStateReason = "session_opened"
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonRecordingSaved     SessionStateReason = "recording_saved"
	SessionReasonRecordingFailed    SessionStateReason = "recording_failed"
	SessionReasonRecordingDiscarded SessionStateReason = "recording_discarded"
	SessionReasonPlaybackStarted    SessionStateReason = "playback_started"
	SessionReasonPlaybackStopped    SessionStateReason = "playback_stopped"
	SessionReasonPlaybackFinished   SessionStateReason = "playback_finished"
	SessionReasonPlaybackFailed     SessionStateReason = "playback_failed"
	SessionReasonSaving             SessionStateReason = "saving"
	SessionReasonSaveFailed         SessionStateReason = "save_failed"
	SessionReasonCommitted          SessionStateReason = "committed"
	SessionReasonAborted            SessionStateReason = "aborted"
)

// ErrorCode identifies non-fatal backend errors reported to the UI.
type ErrorCode string

const (
	ErrorCodeStartup   ErrorCode = "startup"
	ErrorCodeRecording ErrorCode = "recording"
	ErrorCodeStorage   ErrorCode = "storage"
	ErrorCodePlayback  ErrorCode = "playback"
	ErrorCodeAvatar    ErrorCode = "avatar"
)

// AudioSample is one recorded voice sample. It is never mutated after creation.
type AudioSample struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	Contents  string    `json:"contents"`
	CreatedAt time.Time `json:"createdAt"`
	Duration  float64   `json:"duration"`
}

// Recording is a finished capture: the sample metadata plus its encoded bytes.
type Recording struct {
	Sample AudioSample
	Data   []byte
}

// AvatarRecord is the durable avatar document, keyed by Name.
type AvatarRecord struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Age          int           `json:"age"`
	Relationship string        `json:"relationship"`
	Personality  string        `json:"personality"`
	SpeechStyle  string        `json:"speechStyle"`
	Recordings   []AudioSample `json:"recordings"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Status summarizes the current voice session.
type Status struct {
	State        SessionState `json:"state"`
	PlayingFile  string       `json:"playingFile,omitempty"`
	PendingCount int          `json:"pendingCount"`
	RemovedCount int          `json:"removedCount"`
}

// SampleFileName derives the storage file name for a sample id.
func SampleFileName(id string) string {
	return id + ".wav"
}
