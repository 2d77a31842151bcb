package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"cheqr/internal/token"
)

// Memory is a mutex-guarded in-memory ledger for dev mode and tests.
// The single mutex makes mint and append atomic the same way the
// Postgres uniqueness constraints do.
type Memory struct {
	mu       sync.Mutex
	sessions []token.Token
	scans    map[string]map[string]ScanRecord // sessionID -> studentID -> record
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{scans: make(map[string]map[string]ScanRecord)}
}

// MintSession inserts t unless the course already holds a live token.
func (m *Memory) MintSession(ctx context.Context, t token.Token) (token.Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.CourseID == t.CourseID && s.ExpiresAt.After(t.IssuedAt) {
			return s, false, nil
		}
	}
	m.sessions = append(m.sessions, t)
	return t, true, nil
}

// FindValidToken returns the course's unexpired token at now, if any.
func (m *Memory) FindValidToken(ctx context.Context, courseID string, now time.Time) (*token.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.CourseID == courseID && s.ExpiresAt.After(now) {
			t := s
			return &t, nil
		}
	}
	return nil, nil
}

// FindSession resolves a session by (courseID, issuedAt).
func (m *Memory) FindSession(ctx context.Context, courseID string, issuedAt time.Time) (*token.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.CourseID == courseID && s.IssuedAt.Equal(issuedAt) {
			t := s
			return &t, nil
		}
	}
	return nil, ErrNoSession
}

// GetSession resolves a session by storage id.
func (m *Memory) GetSession(ctx context.Context, sessionID string) (*token.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == sessionID {
			t := s
			return &t, nil
		}
	}
	return nil, ErrNoSession
}

// ListSessions returns the course's sessions, most recent first.
func (m *Memory) ListSessions(ctx context.Context, courseID string) ([]token.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []token.Token
	for _, s := range m.sessions {
		if s.CourseID == courseID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

// AppendScan inserts rec with duplicate detection.
func (m *Memory) AppendScan(ctx context.Context, rec ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySession, ok := m.scans[rec.SessionID]
	if !ok {
		bySession = make(map[string]ScanRecord)
		m.scans[rec.SessionID] = bySession
	}
	if _, exists := bySession[rec.StudentID]; exists {
		return ErrDuplicateScan
	}
	bySession[rec.StudentID] = rec
	return nil
}

// ListScans returns a session's records ordered by scan time.
func (m *Memory) ListScans(ctx context.Context, sessionID string) ([]ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ScanRecord
	for _, rec := range m.scans[sessionID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScannedAt.Before(out[j].ScannedAt) })
	return out, nil
}

// CountRecentScans counts course scans inside the trailing window.
func (m *Memory) CountRecentScans(ctx context.Context, courseID string, window time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-window)
	count := 0
	for _, bySession := range m.scans {
		for _, rec := range bySession {
			if rec.CourseID == courseID && !rec.ScannedAt.Before(cutoff) && !rec.ScannedAt.After(now) {
				count++
			}
		}
	}
	return count, nil
}

// ListRecentScans returns course scans since the given instant.
func (m *Memory) ListRecentScans(ctx context.Context, courseID string, since time.Time) ([]ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ScanRecord
	for _, bySession := range m.scans {
		for _, rec := range bySession {
			if rec.CourseID == courseID && !rec.ScannedAt.Before(since) {
				out = append(out, rec)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScannedAt.Before(out[j].ScannedAt) })
	return out, nil
}
