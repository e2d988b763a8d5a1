package store

import (
	"errors"
	"testing"
	"time"

	"github.com/ncrc/justdata/pkg/core/report"
)

type stubWriter struct {
	calledFormat string
	err          error
}

func (w *stubWriter) Write(rep *report.Report, format string) ([]byte, string, string, error) {
	w.calledFormat = format
	if w.err != nil {
		return nil, "", "", w.err
	}
	return []byte("payload"), "application/json", "report.json", nil
}

func newReport(jobID string) *report.Report {
	rep := report.New(report.Metadata{JobID: jobID})
	return rep
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := New(time.Hour, &stubWriter{})
	defer s.Close()

	s.Save(newReport("job-1"))
	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Metadata.JobID != "job-1" {
		t.Errorf("got job id %q, want job-1", got.Metadata.JobID)
	}
}

func TestGetUnknownJobReturnsNotFound(t *testing.T) {
	s := New(time.Hour, &stubWriter{})
	defer s.Close()

	if _, err := s.Get("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExpiredReturnsErrExpired(t *testing.T) {
	s := New(10*time.Millisecond, &stubWriter{})
	defer s.Close()

	s.Save(newReport("job-1"))
	time.Sleep(30 * time.Millisecond)

	if _, err := s.Get("job-1"); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestDownloadStreamDelegatesToWriter(t *testing.T) {
	w := &stubWriter{}
	s := New(time.Hour, w)
	defer s.Close()

	s.Save(newReport("job-1"))
	data, mime, filename, err := s.DownloadStream("job-1", "json")
	if err != nil {
		t.Fatalf("DownloadStream() error: %v", err)
	}
	if w.calledFormat != "json" {
		t.Errorf("writer called with format %q, want json", w.calledFormat)
	}
	if string(data) != "payload" || mime != "application/json" || filename != "report.json" {
		t.Errorf("unexpected writer output: %q %q %q", data, mime, filename)
	}
}

func TestDownloadStreamPropagatesNotFound(t *testing.T) {
	s := New(time.Hour, &stubWriter{})
	defer s.Close()

	if _, _, _, err := s.DownloadStream("absent", "json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotMarshalsStoredReport(t *testing.T) {
	s := New(time.Hour, &stubWriter{})
	defer s.Close()

	s.Save(newReport("job-1"))
	data, err := s.Snapshot("job-1")
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty JSON snapshot")
	}
}

func TestNewDefaultsZeroTTL(t *testing.T) {
	s := New(0, &stubWriter{})
	defer s.Close()
	if s.ttl != 24*time.Hour {
		t.Errorf("expected the default 24h TTL, got %v", s.ttl)
	}
}
