// Package store implements the Report Store (spec.md §4.10): a process-
// local, TTL-bound map from job id to finalized report, grounded on the
// teacher's AnalysisRepo.Save/Load upsert shape (pkg/core/store/
// analysis_repo.go) and DebateManager's background cleanup ticker
// (pkg/core/debate/manager.go), generalized from a Postgres-backed single
// record to an in-memory map of many reports with explicit expiry.
package store

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ncrc/justdata/pkg/core/report"
)

// ErrNotFound is returned when a job id has no stored report (never
// existed, or expired and was already removed by the GC sweep).
var ErrNotFound = errors.New("store: report not found")

// ErrExpired is returned when a job id's report existed but its TTL has
// elapsed (spec.md §4.10: "a distinct 'expired' failure").
var ErrExpired = errors.New("store: report expired")

type entry struct {
	report    *report.Report
	storedAt  time.Time
	expiresAt time.Time
}

// Writer produces export bytes from a finalized report; the store
// delegates to it rather than authoring export formats itself (spec.md
// §4.10: "delegates to a format-specific writer").
type Writer interface {
	Write(rep *report.Report, format string) (data []byte, mime string, filename string, err error)
}

// Store is the production Report Store: an in-memory map guarded by a
// mutex, garbage-collected on a ticker.
type Store struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	writer Writer

	stop chan struct{}
}

// New constructs a Store with the given report TTL (spec.md §4.10 default
// 24h) and starts its background GC ticker.
func New(ttl time.Duration, writer Writer) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Store{
		ttl:     ttl,
		entries: make(map[string]*entry),
		writer:  writer,
		stop:    make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

// Save persists rep keyed by its job id, overwriting any prior entry for
// the same id (reports are immutable once stored, but job ids are never
// reused so this is effectively insert-only).
func (s *Store) Save(rep *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.entries[rep.Metadata.JobID] = &entry{
		report:    rep,
		storedAt:  now,
		expiresAt: now.Add(s.ttl),
	}
}

// Get returns the stored report for jobID, ErrExpired if its TTL has
// elapsed, or ErrNotFound if it was never stored or has been swept.
func (s *Store) Get(jobID string) (*report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		return nil, ErrExpired
	}
	return e.report, nil
}

// DownloadStream delegates export-byte authoring to the configured Writer
// (spec.md §4.10: "does not author export bytes; it delegates to a
// format-specific writer").
func (s *Store) DownloadStream(jobID, format string) (data []byte, mime string, filename string, err error) {
	rep, err := s.Get(jobID)
	if err != nil {
		return nil, "", "", err
	}
	if s.writer == nil {
		return nil, "", "", errors.New("store: no export writer configured")
	}
	return s.writer.Write(rep, format)
}

// Snapshot marshals the stored report to its canonical JSON structure for
// /report-data (spec.md §4.10 "(a) the canonical JSON structure consumed
// by /report-data").
func (s *Store) Snapshot(jobID string) ([]byte, error) {
	rep, err := s.Get(jobID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rep)
}

// gcLoop evicts expired entries on a fixed interval, mirroring the
// teacher's hourly cleanup ticker but scaled to a quarter of the report
// TTL, with a one-minute floor. Get reports expiry on its own, whether or
// not the sweep has run.
func (s *Store) gcLoop() {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// Close stops the background GC loop.
func (s *Store) Close() {
	close(s.stop)
}
