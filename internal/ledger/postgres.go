package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cheqr/internal/token"
)

// Postgres persists sessions and scans in Postgres. Duplicate scans are
// caught by the primary key on (session_id, student_id); the
// one-live-token rule is enforced under a per-course advisory lock so
// concurrent mints cannot both insert.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed ledger.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// MintSession inserts the session for t unless the course already holds
// an unexpired token at t.IssuedAt.
func (p *Postgres) MintSession(ctx context.Context, t token.Token) (token.Token, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return token.Token{}, false, err
	}
	defer tx.Rollback()

	// Serialize mints per course for the duration of the transaction.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.CourseID); err != nil {
		return token.Token{}, false, err
	}

	existing, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, course_id, course_code, course_name, COALESCE(lecturer_id, ''), issued_at, expires_at
		FROM attendance_sessions
		WHERE course_id = $1 AND expires_at > $2
		ORDER BY issued_at DESC
		LIMIT 1
	`, t.CourseID, t.IssuedAt))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return token.Token{}, false, err
	}
	if err == nil {
		return existing, false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, course_id, course_code, course_name, lecturer_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, t.ID, t.CourseID, t.CourseCode, t.CourseName, t.LecturerID, t.IssuedAt, t.ExpiresAt); err != nil {
		return token.Token{}, false, err
	}
	return t, true, tx.Commit()
}

// FindValidToken returns the course's single unexpired token at now.
func (p *Postgres) FindValidToken(ctx context.Context, courseID string, now time.Time) (*token.Token, error) {
	t, err := scanSession(p.db.QueryRowContext(ctx, `
		SELECT id, course_id, course_code, course_name, COALESCE(lecturer_id, ''), issued_at, expires_at
		FROM attendance_sessions
		WHERE course_id = $1 AND expires_at > $2
		ORDER BY issued_at DESC
		LIMIT 1
	`, courseID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// FindSession resolves a session by its (courseID, issuedAt) identity.
func (p *Postgres) FindSession(ctx context.Context, courseID string, issuedAt time.Time) (*token.Token, error) {
	t, err := scanSession(p.db.QueryRowContext(ctx, `
		SELECT id, course_id, course_code, course_name, COALESCE(lecturer_id, ''), issued_at, expires_at
		FROM attendance_sessions
		WHERE course_id = $1 AND issued_at = $2
	`, courseID, issuedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return &t, nil
}

// GetSession resolves a session by storage id.
func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*token.Token, error) {
	t, err := scanSession(p.db.QueryRowContext(ctx, `
		SELECT id, course_id, course_code, course_name, COALESCE(lecturer_id, ''), issued_at, expires_at
		FROM attendance_sessions
		WHERE id = $1
	`, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return &t, nil
}

// ListSessions returns a course's sessions, most recent first.
func (p *Postgres) ListSessions(ctx context.Context, courseID string) ([]token.Token, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, course_id, course_code, course_name, COALESCE(lecturer_id, ''), issued_at, expires_at
		FROM attendance_sessions
		WHERE course_id = $1
		ORDER BY issued_at DESC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []token.Token
	for rows.Next() {
		var t token.Token
		if err := rows.Scan(&t.ID, &t.CourseID, &t.CourseCode, &t.CourseName, &t.LecturerID, &t.IssuedAt, &t.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AppendScan inserts rec; the (session_id, student_id) primary key is
// the authoritative duplicate gate across devices.
func (p *Postgres) AppendScan(ctx context.Context, rec ScanRecord) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_scans (session_id, course_id, student_id, scanned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, rec.SessionID, rec.CourseID, rec.StudentID, rec.ScannedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateScan
	}
	return nil
}

// ListScans returns a session's records ordered by scan time.
func (p *Postgres) ListScans(ctx context.Context, sessionID string) ([]ScanRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, course_id, student_id, scanned_at
		FROM attendance_scans
		WHERE session_id = $1
		ORDER BY scanned_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScans(rows)
}

// CountRecentScans counts course scans inside the trailing window. The
// (course_id, scanned_at) index keeps this bounded by the window.
func (p *Postgres) CountRecentScans(ctx context.Context, courseID string, window time.Duration, now time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM attendance_scans
		WHERE course_id = $1 AND scanned_at >= $2 AND scanned_at <= $3
	`, courseID, now.Add(-window), now).Scan(&count)
	return count, err
}

// ListRecentScans returns course scans since the given instant.
func (p *Postgres) ListRecentScans(ctx context.Context, courseID string, since time.Time) ([]ScanRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, course_id, student_id, scanned_at
		FROM attendance_scans
		WHERE course_id = $1 AND scanned_at >= $2
		ORDER BY scanned_at
	`, courseID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScans(rows)
}

func scanSession(row *sql.Row) (token.Token, error) {
	var t token.Token
	err := row.Scan(&t.ID, &t.CourseID, &t.CourseCode, &t.CourseName, &t.LecturerID, &t.IssuedAt, &t.ExpiresAt)
	return t, err
}

func collectScans(rows *sql.Rows) ([]ScanRecord, error) {
	var out []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		if err := rows.Scan(&rec.SessionID, &rec.CourseID, &rec.StudentID, &rec.ScannedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
