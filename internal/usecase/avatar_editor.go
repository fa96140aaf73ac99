package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"avatarmail/internal/domain"
	"avatarmail/internal/ports"
	"avatarmail/internal/staging"
)

// AvatarDetails are the user-editable persona fields of an avatar.
type AvatarDetails struct {
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Relationship string `json:"relationship"`
	Personality  string `json:"personality"`
	SpeechStyle  string `json:"speechStyle"`
}

// AvatarService opens edit sessions and manages stored avatars.
type AvatarService struct {
	store    ports.AvatarStore
	uploader ports.VoiceUploader
	voice    VoiceDeps
	logger   *zap.Logger
	clock    func() time.Time
	newID    func() string
}

// NewAvatarService wires the avatar store to the voice session dependencies.
// uploader may be nil when uploads are disabled.
func NewAvatarService(store ports.AvatarStore, uploader ports.VoiceUploader, voice VoiceDeps) *AvatarService {
	logger := voice.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvatarService{
		store:    store,
		uploader: uploader,
		voice:    voice,
		logger:   logger.With(zap.String("component", "avatars")),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// Open starts an edit session. An empty name opens a new, unsaved avatar.
func (s *AvatarService) Open(ctx context.Context, name string) (*AvatarEditSession, error) {
	var original *domain.AvatarRecord
	name = strings.TrimSpace(name)
	if name != "" {
		record, err := s.store.GetAvatar(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load avatar %q: %w", name, err)
		}
		if record == nil {
			return nil, fmt.Errorf("%w: avatar %s", domain.ErrNotFound, name)
		}
		original = record
	}

	editor := &AvatarEditSession{service: s, original: original}
	var committed []domain.AudioSample
	if original != nil {
		editor.details = AvatarDetails{
			Name:         original.Name,
			Age:          original.Age,
			Relationship: original.Relationship,
			Personality:  original.Personality,
			SpeechStyle:  original.SpeechStyle,
		}
		committed = original.Recordings
	}
	editor.voice = NewVoiceSession(s.voice, committed)
	return editor, nil
}

// List returns every stored avatar.
func (s *AvatarService) List(ctx context.Context) ([]domain.AvatarRecord, error) {
	return s.store.ListAvatars(ctx)
}

// Delete removes an avatar and, best effort, its audio files.
func (s *AvatarService) Delete(ctx context.Context, name string) error {
	record, err := s.store.GetAvatar(ctx, name)
	if err != nil {
		return fmt.Errorf("load avatar %q: %w", name, err)
	}
	if record == nil {
		return fmt.Errorf("%w: avatar %s", domain.ErrNotFound, name)
	}
	if err := s.store.DeleteAvatar(ctx, name); err != nil {
		return fmt.Errorf("delete avatar %q: %w", name, err)
	}

	for _, sample := range record.Recordings {
		err := s.voice.Storage.Delete(sample.FileName)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to delete avatar audio",
				zap.String("avatar", name),
				zap.String("file", sample.FileName),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("avatar deleted", zap.String("avatar", name), zap.Int("recordings", len(record.Recordings)))
	return nil
}

// AvatarEditSession is one visit to the avatar edit screen. Exactly one of
// Save or Close ends it; both end the underlying voice session.
type AvatarEditSession struct {
	service  *AvatarService
	original *domain.AvatarRecord
	voice    *VoiceSession

	mu      sync.Mutex
	details AvatarDetails
	closed  bool
}

// Voice returns the session's recording controller.
func (e *AvatarEditSession) Voice() *VoiceSession {
	return e.voice
}

func (e *AvatarEditSession) Details() AvatarDetails {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.details
}

func (e *AvatarEditSession) SetDetails(details AvatarDetails) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrSessionEnded
	}
	e.details = details
	return nil
}

// Save persists the avatar with its final recordings and commits the staging
// ledger in one step. If the store rejects the record, or the name belongs to
// another avatar, the session stays open so the user can retry or cancel.
func (e *AvatarEditSession) Save(ctx context.Context) (domain.AvatarRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.AvatarRecord{}, domain.ErrSessionEnded
	}
	name := strings.TrimSpace(e.details.Name)
	if name == "" {
		return domain.AvatarRecord{}, domain.ErrAvatarNameRequired
	}

	s := e.service
	var (
		record     domain.AvatarRecord
		persistErr error
	)
	_, err := e.voice.Commit(ctx, func(final []domain.AudioSample) error {
		record, persistErr = e.persist(ctx, name, final)
		return persistErr
	})
	if err != nil {
		if persistErr == nil {
			return domain.AvatarRecord{}, err
		}
		if errors.Is(persistErr, domain.ErrAvatarExists) {
			s.voice.Events.SessionError(domain.ErrorCodeAvatar, "an avatar with this name already exists")
		} else {
			s.voice.Events.SessionError(domain.ErrorCodeAvatar, "failed to save avatar")
		}
		return domain.AvatarRecord{}, fmt.Errorf("save avatar %q: %w", name, persistErr)
	}

	if e.original != nil && e.original.Name != name {
		if err := s.store.DeleteAvatar(ctx, e.original.Name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to remove renamed avatar", zap.String("avatar", e.original.Name), zap.Error(err))
		}
	}
	e.closed = true
	s.logger.Info("avatar saved", zap.String("avatar", name), zap.Int("recordings", len(record.Recordings)))

	if s.uploader != nil && len(record.Recordings) > 0 {
		s.uploader.Enqueue(record)
	}
	return record, nil
}

// persist writes the record under name. A name already used by a different
// avatar is refused: the store is keyed by name and overwriting would orphan
// that avatar's audio.
func (e *AvatarEditSession) persist(ctx context.Context, name string, final []domain.AudioSample) (domain.AvatarRecord, error) {
	s := e.service
	existing, err := s.store.GetAvatar(ctx, name)
	if err != nil {
		return domain.AvatarRecord{}, fmt.Errorf("load avatar %q: %w", name, err)
	}
	if existing != nil && (e.original == nil || e.original.Name != name) {
		return domain.AvatarRecord{}, domain.ErrAvatarExists
	}

	now := s.clock()
	record := domain.AvatarRecord{
		ID:           s.newID(),
		Name:         name,
		Age:          e.details.Age,
		Relationship: e.details.Relationship,
		Personality:  e.details.Personality,
		SpeechStyle:  e.details.SpeechStyle,
		Recordings:   final,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if e.original != nil {
		record.ID = e.original.ID
		record.CreatedAt = e.original.CreatedAt
	}
	if err := s.store.SaveAvatar(ctx, &record); err != nil {
		return domain.AvatarRecord{}, err
	}
	return record, nil
}

// Close abandons the edit session, discarding recordings made during it.
// Calling Close after Save or a previous Close is a no-op.
func (e *AvatarEditSession) Close(ctx context.Context) staging.SweepReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return staging.SweepReport{Skipped: true}
	}
	e.closed = true
	return e.voice.EndSession(ctx, false)
}
