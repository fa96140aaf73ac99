// Package avatars holds the durable avatar document stores. Every backend keys
// records by avatar name and overwrites the whole document on save.
package avatars

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"avatarmail/internal/domain"
)

// MemoryStore keeps avatars in process memory. Used in tests and when no
// persistent backend is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.AvatarRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.AvatarRecord)}
}

func (s *MemoryStore) GetAvatar(_ context.Context, name string) (*domain.AvatarRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[name]
	if !ok {
		return nil, nil
	}
	record = cloneRecord(record)
	return &record, nil
}

func (s *MemoryStore) SaveAvatar(_ context.Context, record *domain.AvatarRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Name] = cloneRecord(*record)
	return nil
}

func (s *MemoryStore) DeleteAvatar(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("%w: avatar %s", domain.ErrNotFound, name)
	}
	delete(s.records, name)
	return nil
}

func (s *MemoryStore) ListAvatars(_ context.Context) ([]domain.AvatarRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AvatarRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, cloneRecord(record))
	}
	sortByName(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func validateRecord(record *domain.AvatarRecord) error {
	if record == nil || record.Name == "" {
		return domain.ErrAvatarNameRequired
	}
	return nil
}

func cloneRecord(record domain.AvatarRecord) domain.AvatarRecord {
	record.Recordings = append([]domain.AudioSample(nil), record.Recordings...)
	return record
}

func sortByName(records []domain.AvatarRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
}
