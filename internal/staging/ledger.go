// Package staging tracks which audio files an edit session has provisionally
// added or removed, and reconciles them with storage when the session ends.
package staging

import (
	"errors"

	"avatarmail/internal/domain"
)

// Deleter is the slice of storage the sweeps need.
type Deleter interface {
	Delete(fileName string) error
}

// Mode identifies which terminal sweep ran.
type Mode string

const (
	ModeCommit Mode = "commit"
	ModeAbort  Mode = "abort"
)

// SweepFailure is one physical delete that did not succeed.
type SweepFailure struct {
	FileName string
	Err      error
}

// SweepReport summarizes a commit or abort sweep.
type SweepReport struct {
	Mode     Mode
	Deleted  []string
	Missing  []string
	Failures []SweepFailure
	// Skipped is set when the ledger had already been finalized.
	Skipped bool
}

// Ledger holds the provisional additions and removals of one edit session.
// It is not safe for concurrent use; the owning session serializes access.
// A file name is never in both sets at once.
//
// Additions discarded before the session ends are kept aside so that both
// sweeps delete them; they were never committed and must not outlive the session.
type Ledger struct {
	added      []string
	addedSet   map[string]struct{}
	removed    []string
	removedSet map[string]struct{}
	discarded  []string
	finalized  bool
}

// NewLedger returns an empty ledger for a freshly opened session.
func NewLedger() *Ledger {
	return &Ledger{
		addedSet:   make(map[string]struct{}),
		removedSet: make(map[string]struct{}),
	}
}

// RecordAdded stages a newly stored file.
func (l *Ledger) RecordAdded(fileName string) {
	if l.finalized || fileName == "" {
		return
	}
	l.dropRemoved(fileName)
	l.discarded = removeName(l.discarded, fileName)
	if _, ok := l.addedSet[fileName]; ok {
		return
	}
	l.addedSet[fileName] = struct{}{}
	l.added = append(l.added, fileName)
}

// DiscardAdded forgets a provisional addition. It reports whether the file was staged.
func (l *Ledger) DiscardAdded(fileName string) bool {
	if l.finalized {
		return false
	}
	if _, ok := l.addedSet[fileName]; !ok {
		return false
	}
	delete(l.addedSet, fileName)
	l.added = removeName(l.added, fileName)
	l.discarded = append(l.discarded, fileName)
	return true
}

// RecordRemoved stages the removal of a committed file. Removing a provisional
// addition only discards the addition.
func (l *Ledger) RecordRemoved(fileName string) {
	if l.finalized || fileName == "" {
		return
	}
	if l.DiscardAdded(fileName) {
		return
	}
	if _, ok := l.removedSet[fileName]; ok {
		return
	}
	l.removedSet[fileName] = struct{}{}
	l.removed = append(l.removed, fileName)
}

// UndoRemoved restores a file previously staged for removal.
func (l *Ledger) UndoRemoved(fileName string) bool {
	if l.finalized {
		return false
	}
	return l.dropRemoved(fileName)
}

// IsAdded reports whether fileName is a staged addition.
func (l *Ledger) IsAdded(fileName string) bool {
	_, ok := l.addedSet[fileName]
	return ok
}

// IsRemoved reports whether fileName is staged for removal.
func (l *Ledger) IsRemoved(fileName string) bool {
	_, ok := l.removedSet[fileName]
	return ok
}

// Added returns the staged additions in the order they were recorded.
func (l *Ledger) Added() []string {
	return append([]string(nil), l.added...)
}

// Removed returns the staged removals in the order they were recorded.
func (l *Ledger) Removed() []string {
	return append([]string(nil), l.removed...)
}

// Finalized reports whether Commit or Abort already ran.
func (l *Ledger) Finalized() bool {
	return l.finalized
}

// VisibleList returns committed samples not staged for removal, followed by
// pending samples staged as added, in the order they were added.
func (l *Ledger) VisibleList(committed, pending []domain.AudioSample) []domain.AudioSample {
	visible := make([]domain.AudioSample, 0, len(committed)+len(l.added))
	for _, sample := range committed {
		if _, removed := l.removedSet[sample.FileName]; removed {
			continue
		}
		visible = append(visible, sample)
	}

	byName := make(map[string]domain.AudioSample, len(pending))
	for _, sample := range pending {
		byName[sample.FileName] = sample
	}
	for _, name := range l.added {
		if sample, ok := byName[name]; ok {
			visible = append(visible, sample)
		}
	}
	return visible
}

// Discarded returns additions that were dropped before the session ended.
func (l *Ledger) Discarded() []string {
	return append([]string(nil), l.discarded...)
}

// Commit deletes every file staged for removal plus discarded additions, then
// clears and finalizes the ledger. Individual failures are collected, never fatal.
func (l *Ledger) Commit(storage Deleter) SweepReport {
	return l.sweep(ModeCommit, storage, concatNames(l.removed, l.discarded))
}

// Abort deletes every file staged as added plus discarded additions, then
// clears and finalizes the ledger. Files staged for removal are left untouched.
func (l *Ledger) Abort(storage Deleter) SweepReport {
	return l.sweep(ModeAbort, storage, concatNames(l.added, l.discarded))
}

func (l *Ledger) sweep(mode Mode, storage Deleter, targets []string) SweepReport {
	report := SweepReport{Mode: mode}
	if l.finalized {
		report.Skipped = true
		return report
	}

	for _, name := range targets {
		err := storage.Delete(name)
		switch {
		case err == nil:
			report.Deleted = append(report.Deleted, name)
		case errors.Is(err, domain.ErrNotFound):
			report.Missing = append(report.Missing, name)
		default:
			report.Failures = append(report.Failures, SweepFailure{FileName: name, Err: err})
		}
	}

	l.added = nil
	l.removed = nil
	l.discarded = nil
	l.addedSet = make(map[string]struct{})
	l.removedSet = make(map[string]struct{})
	l.finalized = true
	return report
}

func (l *Ledger) dropRemoved(fileName string) bool {
	if _, ok := l.removedSet[fileName]; !ok {
		return false
	}
	delete(l.removedSet, fileName)
	l.removed = removeName(l.removed, fileName)
	return true
}

func concatNames(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func removeName(names []string, target string) []string {
	out := names[:0]
	for _, name := range names {
		if name != target {
			out = append(out, name)
		}
	}
	return out
}
