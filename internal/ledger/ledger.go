package ledger

import (
	"context"
	"errors"
	"time"

	"cheqr/internal/token"
)

// ScanRecord is one successful attendance scan. Records are append-only
// and never mutated; (SessionID, StudentID) is unique per session.
type ScanRecord struct {
	SessionID string    `json:"session_id"`
	CourseID  string    `json:"course_id"`
	StudentID string    `json:"student_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

var (
	// ErrDuplicateScan reports that the student already scanned this session.
	ErrDuplicateScan = errors.New("ledger: duplicate scan")
	// ErrNoSession reports that no session matches the given key.
	ErrNoSession = errors.New("ledger: session not found")
)

// Store is the append-only attendance ledger. The ledger is the sole
// arbiter of cross-device races: MintSession and AppendScan perform
// their check-and-insert atomically.
type Store interface {
	// MintSession inserts the session for t unless the course already
	// has an unexpired one, in which case the existing token comes back
	// with created=false. t.IssuedAt is the mint instant.
	MintSession(ctx context.Context, t token.Token) (token.Token, bool, error)
	// FindValidToken returns the course's single unexpired token at now,
	// or nil when none exists.
	FindValidToken(ctx context.Context, courseID string, now time.Time) (*token.Token, error)
	// FindSession resolves a session by its (courseID, issuedAt) identity.
	FindSession(ctx context.Context, courseID string, issuedAt time.Time) (*token.Token, error)
	// GetSession resolves a session by storage id.
	GetSession(ctx context.Context, sessionID string) (*token.Token, error)
	// ListSessions returns a course's sessions, most recent first.
	ListSessions(ctx context.Context, courseID string) ([]token.Token, error)
	// AppendScan inserts rec, returning ErrDuplicateScan when the
	// (session, student) pair already has a record.
	AppendScan(ctx context.Context, rec ScanRecord) error
	// ListScans returns a session's records ordered by scan time.
	ListScans(ctx context.Context, sessionID string) ([]ScanRecord, error)
	// CountRecentScans counts scans for the course with scannedAt in
	// [now-window, now]. Bounded by the window, not full history.
	CountRecentScans(ctx context.Context, courseID string, window time.Duration, now time.Time) (int, error)
	// ListRecentScans returns course scans since the given instant.
	ListRecentScans(ctx context.Context, courseID string, since time.Time) ([]ScanRecord, error)
}
