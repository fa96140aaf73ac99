package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"avatarmail/internal/domain"
)

type fakeRecorder struct {
	mu          sync.Mutex
	recording   bool
	sentence    string
	onTick      func(time.Duration)
	startErr    error
	stopErr     error
	durations   []float64
	next        int
	cancelCalls int
}

func (f *fakeRecorder) StartRecording(_ context.Context, sentence string, onTick func(time.Duration)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.recording {
		return domain.ErrRecordingInProgress
	}
	f.recording = true
	f.sentence = sentence
	f.onTick = onTick
	return nil
}

func (f *fakeRecorder) StopRecording(_ context.Context) (domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return domain.Recording{}, domain.ErrNoActiveRecording
	}
	f.recording = false
	if f.stopErr != nil {
		return domain.Recording{}, f.stopErr
	}

	duration := 1.0
	if f.next < len(f.durations) {
		duration = f.durations[f.next]
	}
	f.next++
	id := fmt.Sprintf("rec-%d", f.next)
	return domain.Recording{
		Sample: domain.AudioSample{
			ID:        id,
			FileName:  domain.SampleFileName(id),
			Contents:  f.sentence,
			CreatedAt: time.Date(2026, 3, 1, 12, 0, f.next, 0, time.UTC),
			Duration:  duration,
		},
		Data: []byte("wav:" + id),
	}, nil
}

func (f *fakeRecorder) CancelRecording() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	f.recording = false
}

func (f *fakeRecorder) tick(elapsed time.Duration) {
	f.mu.Lock()
	onTick := f.onTick
	f.mu.Unlock()
	if onTick != nil {
		onTick(elapsed)
	}
}

func (f *fakeRecorder) isRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

type fakePlayer struct {
	mu        sync.Mutex
	playing   string
	onDone    func(string, error)
	playErr   error
	plays     []string
	stopCalls int
}

func (f *fakePlayer) Play(_ context.Context, sample domain.AudioSample, onDone func(string, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = sample.FileName
	f.onDone = onDone
	f.plays = append(f.plays, sample.FileName)
	return nil
}

func (f *fakePlayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playing == "" {
		return domain.ErrNotPlaying
	}
	f.stopCalls++
	f.playing = ""
	f.onDone = nil
	return nil
}

// finish simulates playback ending on its own.
func (f *fakePlayer) finish(err error) {
	f.mu.Lock()
	name, onDone := f.playing, f.onDone
	f.playing = ""
	f.onDone = nil
	f.mu.Unlock()
	if onDone != nil {
		onDone(name, err)
	}
}

func (f *fakePlayer) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

type memStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	saveErr   error
	deleteErr map[string]error
}

func newMemStorage(names ...string) *memStorage {
	s := &memStorage{files: map[string][]byte{}, deleteErr: map[string]error{}}
	for _, name := range names {
		s.files[name] = []byte("existing:" + name)
	}
	return s
}

func (m *memStorage) Save(fileName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.files[fileName] = append([]byte(nil), data...)
	return nil
}

func (m *memStorage) Load(fileName string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[fileName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, fileName)
	}
	return data, nil
}

func (m *memStorage) Delete(fileName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.deleteErr[fileName]; ok {
		return err
	}
	if _, ok := m.files[fileName]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, fileName)
	}
	delete(m.files, fileName)
	return nil
}

func (m *memStorage) Exists(fileName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[fileName]
	return ok
}

func (m *memStorage) URLFor(fileName string) string { return "/audio_files/" + fileName }

func (m *memStorage) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for name := range m.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type fakeEventSink struct {
	mu sync.Mutex

	states []stateEvent
	ticks  []time.Duration
	lists  [][]domain.AudioSample
	errors []errEvent
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) RecordingTick(elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, elapsed)
}

func (f *fakeEventSink) RecordingsChanged(visible []domain.AudioSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, visible)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) lastState() stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return stateEvent{}
	}
	return f.states[len(f.states)-1]
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) lastList() []domain.AudioSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lists) == 0 {
		return nil
	}
	return f.lists[len(f.lists)-1]
}

type fakeAvatarStore struct {
	mu        sync.Mutex
	avatars   map[string]domain.AvatarRecord
	saveErr   error
	saveCalls int
	// beforeSave runs at the start of SaveAvatar, outside the store lock.
	beforeSave func()
}

func newFakeAvatarStore(records ...domain.AvatarRecord) *fakeAvatarStore {
	s := &fakeAvatarStore{avatars: map[string]domain.AvatarRecord{}}
	for _, record := range records {
		s.avatars[record.Name] = record
	}
	return s
}

func (f *fakeAvatarStore) GetAvatar(_ context.Context, name string) (*domain.AvatarRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.avatars[name]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (f *fakeAvatarStore) SaveAvatar(_ context.Context, record *domain.AvatarRecord) error {
	if f.beforeSave != nil {
		f.beforeSave()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.avatars[record.Name] = *record
	return nil
}

func (f *fakeAvatarStore) DeleteAvatar(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.avatars[name]; !ok {
		return fmt.Errorf("%w: avatar %s", domain.ErrNotFound, name)
	}
	delete(f.avatars, name)
	return nil
}

func (f *fakeAvatarStore) ListAvatars(_ context.Context) ([]domain.AvatarRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AvatarRecord, 0, len(f.avatars))
	for _, record := range f.avatars {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	enqueued []domain.AvatarRecord
}

func (f *fakeUploader) Enqueue(avatar domain.AvatarRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, avatar)
}

func committedSample(name string) domain.AudioSample {
	return domain.AudioSample{ID: name, FileName: domain.SampleFileName(name), Contents: "sentence " + name, Duration: 1}
}

func sampleNames(samples []domain.AudioSample) []string {
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.FileName)
	}
	return out
}
