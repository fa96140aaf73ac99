package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"avatarmail/internal/domain"
	"avatarmail/internal/metrics"
	"avatarmail/internal/ports"
	"avatarmail/internal/staging"
)

// VoiceDeps are the collaborators every voice session is built from.
type VoiceDeps struct {
	Recorder ports.Recorder
	Player   ports.Player
	Storage  ports.SampleStorage
	Events   ports.EventSink
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

// VoiceSession owns the recorder, the player and the staging ledger for one
// avatar edit session. All mutating calls are serialized by mu; the player's
// completion callback re-enters through the same lock.
type VoiceSession struct {
	recorder ports.Recorder
	player   ports.Player
	storage  ports.SampleStorage
	events   ports.EventSink
	logger   *zap.Logger
	metrics  *metrics.Collector

	mu         sync.Mutex
	state      sessionState
	generation uint64
	ledger     *staging.Ledger
	committed  []domain.AudioSample
	pending    []domain.AudioSample
}

// NewVoiceSession opens a session over the avatar's committed recordings.
func NewVoiceSession(deps VoiceDeps, committed []domain.AudioSample) *VoiceSession {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &VoiceSession{
		recorder:  deps.Recorder,
		player:    deps.Player,
		storage:   deps.Storage,
		events:    deps.Events,
		logger:    logger.With(zap.String("component", "voice_session")),
		metrics:   deps.Metrics,
		state:     idleState{},
		ledger:    staging.NewLedger(),
		committed: append([]domain.AudioSample(nil), committed...),
	}
	s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonSessionOpened)
	s.events.RecordingsChanged(s.ledger.VisibleList(s.committed, nil))
	return s
}

// BeginRecording starts capturing a sample for sentence. Active playback is
// stopped first.
func (s *VoiceSession) BeginRecording(ctx context.Context, sentence string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state := s.state.(type) {
	case endedState:
		return domain.ErrSessionEnded
	case savingState:
		return domain.ErrSaveInProgress
	case recordingState:
		return domain.ErrRecordingInProgress
	case playingState:
		s.stopPlaybackLocked(state)
	case idleState:
	default:
		panic(fmt.Sprintf("usecase: unhandled session state %T", state))
	}

	if err := s.recorder.StartRecording(ctx, sentence, s.forwardTick); err != nil {
		s.metrics.RecordingFailed(metrics.StageStart)
		s.logger.Warn("recording start failed", zap.Error(err))
		s.events.SessionError(domain.ErrorCodeRecording, "failed to start recording")
		s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingFailed)
		return err
	}

	s.state = recordingState{sentence: sentence}
	s.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

// FinishRecording stops the recorder and stores the sample. The sample is
// staged and listed only after the write succeeded; on any failure the
// captured bytes are dropped and the session returns to idle.
func (s *VoiceSession) FinishRecording(ctx context.Context) (domain.AudioSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state := s.state.(type) {
	case endedState:
		return domain.AudioSample{}, domain.ErrSessionEnded
	case savingState:
		return domain.AudioSample{}, domain.ErrSaveInProgress
	case idleState, playingState:
		return domain.AudioSample{}, domain.ErrNoActiveRecording
	case recordingState:
	default:
		panic(fmt.Sprintf("usecase: unhandled session state %T", state))
	}

	recording, err := s.recorder.StopRecording(ctx)
	s.state = idleState{}
	if err != nil {
		s.metrics.RecordingFailed(metrics.StageCapture)
		s.logger.Warn("recording failed", zap.Error(err))
		s.events.SessionError(domain.ErrorCodeRecording, "recording failed, please try again")
		s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingFailed)
		return domain.AudioSample{}, err
	}

	sample := recording.Sample
	if err := s.storage.Save(sample.FileName, recording.Data); err != nil {
		s.metrics.RecordingFailed(metrics.StageStorage)
		s.logger.Warn("failed to save recording", zap.String("file", sample.FileName), zap.Error(err))
		s.events.SessionError(domain.ErrorCodeStorage, "failed to save recording")
		s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingFailed)
		return domain.AudioSample{}, err
	}

	s.ledger.RecordAdded(sample.FileName)
	s.pending = append(s.pending, sample)
	s.metrics.RecordingSaved()
	s.logger.Debug("recording staged", zap.String("file", sample.FileName), zap.Float64("duration", sample.Duration))

	s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingSaved)
	s.events.RecordingsChanged(s.visibleLocked())
	return sample, nil
}

// CancelRecording discards an in-progress capture. It is a no-op otherwise.
func (s *VoiceSession) CancelRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.(recordingState); !ok {
		return
	}
	s.cancelRecordingLocked()
}

// DeletePending drops a sample recorded in this session. The file stays on
// disk until the session ends.
func (s *VoiceSession) DeletePending(fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}
	if !s.ledger.IsAdded(fileName) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRecording, fileName)
	}

	s.stopIfPlayingLocked(fileName)
	s.ledger.DiscardAdded(fileName)
	s.pending = removeSample(s.pending, fileName)
	s.events.RecordingsChanged(s.visibleLocked())
	return nil
}

// DeleteCommitted hides a committed sample. Its bytes are only deleted when
// the session commits.
func (s *VoiceSession) DeleteCommitted(fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}
	if !s.isCommittedLocked(fileName) || s.ledger.IsRemoved(fileName) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRecording, fileName)
	}

	s.stopIfPlayingLocked(fileName)
	s.ledger.RecordRemoved(fileName)
	s.events.RecordingsChanged(s.visibleLocked())
	return nil
}

// RestoreCommitted brings back a committed sample that was deleted in this session.
func (s *VoiceSession) RestoreCommitted(fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}
	if !s.isCommittedLocked(fileName) || !s.ledger.UndoRemoved(fileName) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRecording, fileName)
	}
	s.events.RecordingsChanged(s.visibleLocked())
	return nil
}

// Play starts playback of a visible sample. An in-progress recording is
// discarded rather than overlapping two hardware sessions, but only once the
// sample is known to exist.
func (s *VoiceSession) Play(ctx context.Context, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state := s.state.(type) {
	case endedState:
		return domain.ErrSessionEnded
	case savingState:
		return domain.ErrSaveInProgress
	case idleState, recordingState, playingState:
	default:
		panic(fmt.Sprintf("usecase: unhandled session state %T", state))
	}

	sample, ok := s.findVisibleLocked(fileName)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRecording, fileName)
	}
	switch state := s.state.(type) {
	case recordingState:
		s.cancelRecordingLocked()
	case playingState:
		s.stopPlaybackLocked(state)
	}

	s.generation++
	generation := s.generation
	if err := s.player.Play(ctx, sample, func(name string, err error) {
		s.handlePlaybackDone(generation, name, err)
	}); err != nil {
		s.state = idleState{}
		s.logger.Warn("playback failed", zap.String("file", fileName), zap.Error(err))
		s.events.SessionError(domain.ErrorCodePlayback, "failed to play recording")
		s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonPlaybackFailed)
		return err
	}

	s.state = playingState{fileName: fileName, generation: generation}
	s.events.SessionStateChanged(domain.SessionStatePlaying, domain.SessionReasonPlaybackStarted)
	return nil
}

// StopPlaying stops the current playback. It fails with ErrNotPlaying when
// nothing is playing.
func (s *VoiceSession) StopPlaying() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.state.(playingState)
	if !ok {
		if _, ended := s.state.(endedState); ended {
			return domain.ErrSessionEnded
		}
		return domain.ErrNotPlaying
	}
	s.stopPlaybackLocked(state)
	return nil
}

// EndSession force-stops any hardware activity and sweeps the ledger: commit
// deletes removed files, abort deletes added ones. Sweep failures are logged
// and counted, never returned. Calling it again is a no-op, as is calling it
// while Commit is persisting.
func (s *VoiceSession) EndSession(_ context.Context, committed bool) staging.SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state := s.state.(type) {
	case endedState:
		return staging.SweepReport{Mode: sweepMode(state.committed), Skipped: true}
	case savingState:
		s.logger.Debug("end requested while saving")
		return staging.SweepReport{Mode: sweepMode(committed), Skipped: true}
	case idleState, recordingState, playingState:
		s.haltLocked(state)
	default:
		panic(fmt.Sprintf("usecase: unhandled session state %T", state))
	}

	if committed {
		s.committed = s.visibleLocked()
	}
	return s.finishLocked(committed)
}

// Commit hands the final recordings to persist and, if it succeeds, ends the
// session with a commit sweep. The session refuses every change while persist
// runs, so the persisted list and the sweep always agree. If persist fails
// nothing is deleted and the session is idle again.
func (s *VoiceSession) Commit(_ context.Context, persist func(final []domain.AudioSample) error) (staging.SweepReport, error) {
	s.mu.Lock()
	switch state := s.state.(type) {
	case endedState:
		s.mu.Unlock()
		return staging.SweepReport{}, domain.ErrSessionEnded
	case savingState:
		s.mu.Unlock()
		return staging.SweepReport{}, domain.ErrSaveInProgress
	case idleState, recordingState, playingState:
		s.haltLocked(state)
	default:
		s.mu.Unlock()
		panic(fmt.Sprintf("usecase: unhandled session state %T", state))
	}
	final := s.visibleLocked()
	s.state = savingState{}
	s.events.SessionStateChanged(domain.SessionStateSaving, domain.SessionReasonSaving)
	s.mu.Unlock()

	err := persist(append([]domain.AudioSample(nil), final...))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = idleState{}
		s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonSaveFailed)
		return staging.SweepReport{}, err
	}
	s.committed = final
	return s.finishLocked(true), nil
}

// VisibleList returns the recordings the user currently sees.
func (s *VoiceSession) VisibleList() []domain.AudioSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

// FinalRecordings is the list to persist on commit: committed minus removed,
// plus added. After the session ends it is the list the session ended with.
func (s *VoiceSession) FinalRecordings() []domain.AudioSample {
	return s.VisibleList()
}

// Status reports the current state and staging counts.
func (s *VoiceSession) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.Status{
		State:        stateName(s.state),
		PendingCount: len(s.ledger.Added()),
		RemovedCount: len(s.ledger.Removed()),
	}
	if playing, ok := s.state.(playingState); ok {
		status.PlayingFile = playing.fileName
	}
	return status
}

func (s *VoiceSession) forwardTick(elapsed time.Duration) {
	s.events.RecordingTick(elapsed)
}

func (s *VoiceSession) handlePlaybackDone(generation uint64, fileName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playing, ok := s.state.(playingState)
	if !ok || playing.generation != generation {
		return
	}

	s.state = idleState{}
	if err != nil {
		s.logger.Warn("playback ended with error", zap.String("file", fileName), zap.Error(err))
		s.events.SessionError(domain.ErrorCodePlayback, "playback failed")
		s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonPlaybackFailed)
		return
	}
	s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonPlaybackFinished)
}

// haltLocked stops hardware without emitting transitions; the caller is
// about to leave the state anyway.
func (s *VoiceSession) haltLocked(state sessionState) {
	switch state := state.(type) {
	case recordingState:
		s.recorder.CancelRecording()
	case playingState:
		if err := s.player.Stop(); err != nil && !errors.Is(err, domain.ErrNotPlaying) {
			s.logger.Warn("failed to stop playback", zap.String("file", state.fileName), zap.Error(err))
		}
	}
}

func (s *VoiceSession) finishLocked(committed bool) staging.SweepReport {
	var report staging.SweepReport
	reason := domain.SessionReasonAborted
	if committed {
		report = s.ledger.Commit(s.storage)
		reason = domain.SessionReasonCommitted
	} else {
		report = s.ledger.Abort(s.storage)
	}

	for _, failure := range report.Failures {
		s.logger.Warn("sweep delete failed",
			zap.String("mode", string(report.Mode)),
			zap.String("file", failure.FileName),
			zap.Error(failure.Err),
		)
	}
	s.metrics.SweepCompleted(string(report.Mode), len(report.Deleted), len(report.Failures))
	s.logger.Info("voice session ended",
		zap.String("mode", string(report.Mode)),
		zap.Int("deleted", len(report.Deleted)),
		zap.Int("missing", len(report.Missing)),
		zap.Int("failed", len(report.Failures)),
	)

	s.pending = nil
	s.state = endedState{committed: committed}
	s.events.SessionStateChanged(domain.SessionStateEnded, reason)
	return report
}

func (s *VoiceSession) stopPlaybackLocked(state playingState) {
	if err := s.player.Stop(); err != nil && !errors.Is(err, domain.ErrNotPlaying) {
		s.logger.Warn("failed to stop playback", zap.String("file", state.fileName), zap.Error(err))
	}
	s.state = idleState{}
	s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonPlaybackStopped)
}

func (s *VoiceSession) stopIfPlayingLocked(fileName string) {
	if playing, ok := s.state.(playingState); ok && playing.fileName == fileName {
		s.stopPlaybackLocked(playing)
	}
}

func (s *VoiceSession) cancelRecordingLocked() {
	s.recorder.CancelRecording()
	s.state = idleState{}
	s.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
}

func (s *VoiceSession) mutableLocked() error {
	switch s.state.(type) {
	case endedState:
		return domain.ErrSessionEnded
	case savingState:
		return domain.ErrSaveInProgress
	}
	return nil
}

func sweepMode(committed bool) staging.Mode {
	if committed {
		return staging.ModeCommit
	}
	return staging.ModeAbort
}

func (s *VoiceSession) isCommittedLocked(fileName string) bool {
	for _, sample := range s.committed {
		if sample.FileName == fileName {
			return true
		}
	}
	return false
}

func (s *VoiceSession) findVisibleLocked(fileName string) (domain.AudioSample, bool) {
	for _, sample := range s.visibleLocked() {
		if sample.FileName == fileName {
			return sample, true
		}
	}
	return domain.AudioSample{}, false
}

func (s *VoiceSession) visibleLocked() []domain.AudioSample {
	return s.ledger.VisibleList(s.committed, s.pending)
}

func removeSample(samples []domain.AudioSample, fileName string) []domain.AudioSample {
	out := samples[:0]
	for _, sample := range samples {
		if sample.FileName != fileName {
			out = append(out, sample)
		}
	}
	return out
}
