package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"avatarmail/internal/bootstrap"
	"avatarmail/internal/domain"
	"avatarmail/internal/sentences"
	"avatarmail/internal/usecase"
)

const (
	eventSession    = "avatarmail:session"
	eventTick       = "avatarmail:tick"
	eventRecordings = "avatarmail:recordings"
	eventError      = "avatarmail:error"
)

var errNoOpenAvatar = errors.New("no avatar is open for editing")

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error

	mu     sync.Mutex
	editor *usecase.AvatarEditSession
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services
}

// shutdown abandons any open edit session so its recordings are swept.
func (a *App) shutdown(ctx context.Context) {
	a.mu.Lock()
	editor := a.editor
	a.editor = nil
	a.mu.Unlock()

	if editor != nil {
		editor.Close(ctx)
	}
	if a.services != nil {
		_ = a.services.Close()
	}
}

// OpenAvatar starts editing an avatar; an empty name starts a new one. Any
// edit session still open is abandoned first.
func (a *App) OpenAvatar(name string) (usecase.AvatarDetails, error) {
	if err := a.requireReady(); err != nil {
		return usecase.AvatarDetails{}, err
	}
	editor, err := a.services.Avatars.Open(a.context(), name)
	if err != nil {
		return usecase.AvatarDetails{}, err
	}

	a.mu.Lock()
	previous := a.editor
	a.editor = editor
	a.mu.Unlock()
	if previous != nil {
		previous.Close(a.context())
	}
	return editor.Details(), nil
}

// SetDetails updates the persona fields of the open avatar.
func (a *App) SetDetails(details usecase.AvatarDetails) error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	return editor.SetDetails(details)
}

// SaveAvatar persists the open avatar and keeps its recordings.
func (a *App) SaveAvatar() (domain.AvatarRecord, error) {
	editor, err := a.currentEditor()
	if err != nil {
		return domain.AvatarRecord{}, err
	}
	record, err := editor.Save(a.context())
	if err != nil {
		return domain.AvatarRecord{}, err
	}
	a.releaseEditor(editor)
	return record, nil
}

// CloseAvatar leaves the edit screen without saving.
func (a *App) CloseAvatar() {
	a.mu.Lock()
	editor := a.editor
	a.editor = nil
	a.mu.Unlock()
	if editor != nil {
		editor.Close(a.context())
	}
}

// ListAvatars returns every stored avatar.
func (a *App) ListAvatars() ([]domain.AvatarRecord, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Avatars.List(a.context())
}

// DeleteAvatar removes a stored avatar and its audio.
func (a *App) DeleteAvatar(name string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Avatars.Delete(a.context(), name); err != nil {
		a.SessionError(domain.ErrorCodeAvatar, err.Error())
		return err
	}
	return nil
}

// Sentences returns the prompts users read while recording.
func (a *App) Sentences() ([]sentences.Sentence, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Sentences.All(), nil
}

// BeginRecording starts capturing the user reading sentence.
func (a *App) BeginRecording(sentence string) error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	return editor.Voice().BeginRecording(a.context(), sentence)
}

// FinishRecording stops capture and stages the new sample.
func (a *App) FinishRecording() (domain.AudioSample, error) {
	editor, err := a.currentEditor()
	if err != nil {
		return domain.AudioSample{}, err
	}
	return editor.Voice().FinishRecording(a.context())
}

// CancelRecording discards an in-progress capture.
func (a *App) CancelRecording() error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	editor.Voice().CancelRecording()
	return nil
}

func (a *App) DeletePending(fileName string) error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	return editor.Voice().DeletePending(fileName)
}

func (a *App) DeleteCommitted(fileName string) error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	return editor.Voice().DeleteCommitted(fileName)
}

func (a *App) RestoreCommitted(fileName string) error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	return editor.Voice().RestoreCommitted(fileName)
}

func (a *App) Play(fileName string) error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	return editor.Voice().Play(a.context(), fileName)
}

func (a *App) StopPlaying() error {
	editor, err := a.currentEditor()
	if err != nil {
		return err
	}
	return editor.Voice().StopPlaying()
}

// Recordings returns the list the edit screen should show.
func (a *App) Recordings() ([]domain.AudioSample, error) {
	editor, err := a.currentEditor()
	if err != nil {
		return nil, err
	}
	return editor.Voice().VisibleList(), nil
}

// GetStatus returns the current voice session status.
func (a *App) GetStatus() domain.Status {
	a.mu.Lock()
	editor := a.editor
	a.mu.Unlock()
	if editor == nil {
		return domain.Status{State: domain.SessionStateEnded}
	}
	return editor.Voice().Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}
	cfg := a.services.Config
	return map[string]string{
		"storageRoot":      cfg.Storage.Root,
		"avatarBackend":    cfg.Avatars.Backend,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"uploadEnabled":    fmt.Sprintf("%t", cfg.Upload.Enabled),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) currentEditor() (*usecase.AvatarEditSession, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editor == nil {
		return nil, errNoOpenAvatar
	}
	return a.editor, nil
}

func (a *App) releaseEditor(editor *usecase.AvatarEditSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editor == editor {
		a.editor = nil
	}
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// RecordingTick emits the elapsed recording time.
func (a *App) RecordingTick(elapsed time.Duration) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTick, map[string]any{
		"elapsedMs": elapsed.Milliseconds(),
		"display":   formatElapsed(elapsed),
	})
}

// RecordingsChanged emits the list the edit screen should show.
func (a *App) RecordingsChanged(visible []domain.AudioSample) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecordings, visible)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// formatElapsed renders mm:ss.cc.
func formatElapsed(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	centis := elapsed.Milliseconds() / 10
	return fmt.Sprintf("%02d:%02d.%02d", centis/6000, (centis/100)%60, centis%100)
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonSessionOpened:
		return "Ready to record"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecordingSaved:
		return "Recording saved"
	case domain.SessionReasonRecordingFailed:
		return "Recording failed"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonPlaybackStarted:
		return "Playing"
	case domain.SessionReasonPlaybackStopped:
		return "Playback stopped"
	case domain.SessionReasonPlaybackFinished:
		return "Playback finished"
	case domain.SessionReasonPlaybackFailed:
		return "Playback failed"
	case domain.SessionReasonSaving:
		return "Saving avatar"
	case domain.SessionReasonSaveFailed:
		return "Avatar could not be saved"
	case domain.SessionReasonCommitted:
		return "Recordings saved"
	case domain.SessionReasonAborted:
		return "Changes discarded"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeRecording:
		return "Recording issue"
	case domain.ErrorCodeStorage:
		return "Could not save recording"
	case domain.ErrorCodePlayback:
		return "Playback issue"
	case domain.ErrorCodeAvatar:
		return "Avatar could not be saved"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
