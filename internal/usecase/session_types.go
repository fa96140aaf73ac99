package usecase

import (
	"fmt"

	"avatarmail/internal/domain"
)

// sessionState is the closed set of voice session states. Every switch over it
// ends in a default that panics, so a new state cannot be silently unhandled.
type sessionState interface {
	isSessionState()
}

type idleState struct{}

type recordingState struct {
	sentence string
}

type playingState struct {
	fileName string
	// generation distinguishes repeated plays of the same file.
	generation uint64
}

// savingState holds the session still while the final list is persisted.
type savingState struct{}

type endedState struct {
	committed bool
}

func (idleState) isSessionState()      {}
func (recordingState) isSessionState() {}
func (playingState) isSessionState()   {}
func (savingState) isSessionState()    {}
func (endedState) isSessionState()     {}

func stateName(state sessionState) domain.SessionState {
	switch state.(type) {
	case idleState:
		return domain.SessionStateIdle
	case recordingState:
		return domain.SessionStateRecording
	case playingState:
		return domain.SessionStatePlaying
	case savingState:
		return domain.SessionStateSaving
	case endedState:
		return domain.SessionStateEnded
	default:
		panic(fmt.Sprintf("usecase: unhandled session state %T", state))
	}
}
