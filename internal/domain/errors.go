package domain

import "errors"

var (
	ErrHardwareUnavailable = errors.New("audio hardware unavailable")
	ErrNoActiveRecording   = errors.New("no active recording")
	ErrRecordingInProgress = errors.New("a recording is already in progress")
	ErrEmptyRecording      = errors.New("no audio was captured")
	ErrDecodeFailure       = errors.New("audio could not be decoded")
	ErrNotPlaying          = errors.New("nothing is playing")
	ErrWriteFailure        = errors.New("failed to write audio file")
	ErrDeleteFailure       = errors.New("failed to delete audio file")
	ErrNotFound            = errors.New("audio file not found")
	ErrUnknownRecording    = errors.New("recording is not part of this session")
	ErrSessionEnded        = errors.New("voice session has already ended")
	ErrSaveInProgress      = errors.New("the avatar is being saved")
	ErrAvatarNameRequired  = errors.New("avatar name is required")
	ErrAvatarExists        = errors.New("an avatar with this name already exists")
)
