package token_test

import (
	"context"
	"testing"
	"time"

	"cheqr/internal/clock"
	"cheqr/internal/directory"
	"cheqr/internal/ledger"
	"cheqr/internal/token"
)

func newFixture(t *testing.T) (*token.Generator, *ledger.Memory, clock.Fixed) {
	t.Helper()
	led := ledger.NewMemory()
	dir := directory.NewMemory()
	_, err := dir.CreateCourse(context.Background(), directory.Course{
		ID: "c-1", Code: "CS101", Name: "Intro to Computing", LecturerID: "lect-1",
	})
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	clk := clock.Fixed{T: time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)}
	return token.NewGenerator(led, dir, clk, time.Hour), led, clk
}

func TestGenerateMintsToken(t *testing.T) {
	gen, _, clk := newFixture(t)
	tok, err := gen.Generate(context.Background(), "c-1", "lect-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if tok.ID == "" {
		t.Error("Generate() minted token without id")
	}
	if tok.CourseCode != "CS101" || tok.CourseName != "Intro to Computing" {
		t.Errorf("Generate() did not embed course metadata: %+v", tok)
	}
	if !tok.IssuedAt.Equal(clk.Now()) {
		t.Errorf("Generate() issuedAt = %v, want %v", tok.IssuedAt, clk.Now())
	}
	if want := tok.IssuedAt.Add(time.Hour); !tok.ExpiresAt.Equal(want) {
		t.Errorf("Generate() expiresAt = %v, want %v", tok.ExpiresAt, want)
	}
}

func TestGenerateReturnsExistingLiveToken(t *testing.T) {
	gen, led, clk := newFixture(t)
	first, err := gen.Generate(context.Background(), "c-1", "lect-1")
	if err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}
	second, err := gen.Generate(context.Background(), "c-1", "lect-1")
	if err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second Generate() minted a new token %s, want existing %s", second.ID, first.ID)
	}
	sessions, err := led.ListSessions(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("persisted sessions = %d, want exactly 1", len(sessions))
	}
	// A live token must still exist at the mint instant.
	live, err := led.FindValidToken(context.Background(), "c-1", clk.Now())
	if err != nil || live == nil {
		t.Fatalf("FindValidToken() = %v, %v, want live token", live, err)
	}
}

func TestGenerateAfterExpiryMintsFresh(t *testing.T) {
	led := ledger.NewMemory()
	dir := directory.NewMemory()
	_, _ = dir.CreateCourse(context.Background(), directory.Course{ID: "c-1", Code: "CS101", Name: "Intro"})

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	gen := token.NewGenerator(led, dir, clock.Fixed{T: start}, time.Hour)
	first, err := gen.Generate(context.Background(), "c-1", "lect-1")
	if err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}

	later := token.NewGenerator(led, dir, clock.Fixed{T: start.Add(time.Hour + time.Second)}, time.Hour)
	second, err := later.Generate(context.Background(), "c-1", "lect-1")
	if err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}
	if second.ID == first.ID {
		t.Error("Generate() reused an expired token instead of minting")
	}
	sessions, _ := led.ListSessions(context.Background(), "c-1")
	if len(sessions) != 2 {
		t.Errorf("persisted sessions = %d, want 2", len(sessions))
	}
	if !sessions[0].IssuedAt.After(sessions[1].IssuedAt) {
		t.Error("ListSessions() not ordered most recent first")
	}
}

func TestGenerateUnknownCourse(t *testing.T) {
	gen, _, _ := newFixture(t)
	if _, err := gen.Generate(context.Background(), "missing", "lect-1"); err == nil {
		t.Error("Generate() for unknown course succeeded, want error")
	}
}
