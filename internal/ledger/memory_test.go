package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"cheqr/internal/clock"
	"cheqr/internal/token"
)

func mintAt(t *testing.T, led *Memory, courseID, id string, issued time.Time) token.Token {
	t.Helper()
	tok := token.Token{
		ID:        id,
		CourseID:  courseID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(time.Hour),
	}
	got, created, err := led.MintSession(context.Background(), tok)
	if err != nil {
		t.Fatalf("MintSession(%s) error = %v", id, err)
	}
	if !created {
		t.Fatalf("MintSession(%s) did not create, returned %s", id, got.ID)
	}
	return got
}

func TestMintSessionSingleLiveToken(t *testing.T) {
	led := NewMemory()
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	first := mintAt(t, led, "c-1", "s-1", base)

	// Second mint while the first is live returns the first.
	dup := token.Token{ID: "s-2", CourseID: "c-1", IssuedAt: base.Add(time.Minute), ExpiresAt: base.Add(time.Minute + time.Hour)}
	got, created, err := led.MintSession(context.Background(), dup)
	if err != nil {
		t.Fatalf("MintSession() error = %v", err)
	}
	if created || got.ID != first.ID {
		t.Errorf("MintSession() = (%s, created=%v), want existing %s", got.ID, created, first.ID)
	}

	// Another course is unaffected.
	mintAt(t, led, "c-2", "s-3", base)

	// After expiry, minting succeeds again.
	mintAt(t, led, "c-1", "s-4", base.Add(2*time.Hour))
}

func TestFindValidToken(t *testing.T) {
	led := NewMemory()
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	mintAt(t, led, "c-1", "s-1", base)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "during window", now: base.Add(30 * time.Minute), want: true},
		{name: "just before expiry", now: base.Add(time.Hour - time.Second), want: true},
		{name: "at expiry", now: base.Add(time.Hour), want: false},
		{name: "long after", now: base.Add(24 * time.Hour), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := led.FindValidToken(context.Background(), "c-1", tt.now)
			if err != nil {
				t.Fatalf("FindValidToken() error = %v", err)
			}
			if (got != nil) != tt.want {
				t.Errorf("FindValidToken() = %v, want present=%v", got, tt.want)
			}
		})
	}
}

func TestFindSessionByIdentity(t *testing.T) {
	led := NewMemory()
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	minted := mintAt(t, led, "c-1", "s-1", base)

	got, err := led.FindSession(context.Background(), "c-1", base)
	if err != nil {
		t.Fatalf("FindSession() error = %v", err)
	}
	if got.ID != minted.ID {
		t.Errorf("FindSession() = %s, want %s", got.ID, minted.ID)
	}
	if _, err := led.FindSession(context.Background(), "c-1", base.Add(time.Second)); !errors.Is(err, ErrNoSession) {
		t.Errorf("FindSession() unknown issuedAt error = %v, want ErrNoSession", err)
	}
}

func TestAppendScanDuplicate(t *testing.T) {
	led := NewMemory()
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	rec := ScanRecord{SessionID: "s-1", CourseID: "c-1", StudentID: "stud-1", ScannedAt: base}

	if err := led.AppendScan(context.Background(), rec); err != nil {
		t.Fatalf("first AppendScan() error = %v", err)
	}
	if err := led.AppendScan(context.Background(), rec); !errors.Is(err, ErrDuplicateScan) {
		t.Errorf("second AppendScan() error = %v, want ErrDuplicateScan", err)
	}

	// Same student, different session is a new record.
	rec2 := rec
	rec2.SessionID = "s-2"
	if err := led.AppendScan(context.Background(), rec2); err != nil {
		t.Errorf("AppendScan() other session error = %v", err)
	}

	records, err := led.ListScans(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("ListScans() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("ListScans() = %d records, want exactly 1", len(records))
	}
}

func TestCountRecentScans(t *testing.T) {
	led := NewMemory()
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	scans := []struct {
		student string
		session string
		at      time.Time
	}{
		{student: "stud-1", session: "s-1", at: base.Add(-20 * time.Minute)},
		{student: "stud-2", session: "s-1", at: base.Add(-10 * time.Minute)},
		{student: "stud-3", session: "s-1", at: base.Add(-2 * time.Minute)},
	}
	for _, s := range scans {
		err := led.AppendScan(context.Background(), ScanRecord{
			SessionID: s.session, CourseID: "c-1", StudentID: s.student, ScannedAt: s.at,
		})
		if err != nil {
			t.Fatalf("AppendScan(%s) error = %v", s.student, err)
		}
	}

	tests := []struct {
		name   string
		window time.Duration
		want   int
	}{
		{name: "covers all", window: 30 * time.Minute, want: 3},
		{name: "last quarter hour", window: 15 * time.Minute, want: 2},
		{name: "tight window", window: 5 * time.Minute, want: 1},
		{name: "zero window", window: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := led.CountRecentScans(context.Background(), "c-1", tt.window, base)
			if err != nil {
				t.Fatalf("CountRecentScans() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CountRecentScans(%s) = %d, want %d", tt.window, got, tt.want)
			}
		})
	}
}

func TestListRecentScansOrdered(t *testing.T) {
	led := NewMemory()
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	for i, student := range []string{"stud-3", "stud-1", "stud-2"} {
		err := led.AppendScan(context.Background(), ScanRecord{
			SessionID: "s-1", CourseID: "c-1", StudentID: student,
			ScannedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendScan() error = %v", err)
		}
	}
	records, err := led.ListRecentScans(context.Background(), "c-1", base)
	if err != nil {
		t.Fatalf("ListRecentScans() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ListRecentScans() = %d records, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].ScannedAt.Before(records[i-1].ScannedAt) {
			t.Errorf("records out of order at %d", i)
		}
	}
}
