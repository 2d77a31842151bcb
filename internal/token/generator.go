package token

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cheqr/internal/clock"
	"cheqr/internal/directory"
)

// DefaultValidity is the fixed window an attendance token stays
// scannable after issue.
const DefaultValidity = time.Hour

// SessionStore is the slice of the ledger the generator needs.
type SessionStore interface {
	FindValidToken(ctx context.Context, courseID string, now time.Time) (*Token, error)
	MintSession(ctx context.Context, t Token) (Token, bool, error)
}

// CourseGetter resolves course metadata for embedding into tokens.
type CourseGetter interface {
	GetCourse(ctx context.Context, id string) (directory.Course, error)
}

// Generator mints attendance tokens, one live token per course at a
// time. It is stateless over its inputs plus the store and clock.
type Generator struct {
	store    SessionStore
	courses  CourseGetter
	clk      clock.Clock
	validity time.Duration
}

// NewGenerator creates a generator with the given validity window.
func NewGenerator(store SessionStore, courses CourseGetter, clk clock.Clock, validity time.Duration) *Generator {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Generator{store: store, courses: courses, clk: clk, validity: validity}
}

// Generate returns the course's live token, minting one only when none
// exists. The store's mint is atomic, so two near-simultaneous calls
// converge on a single persisted token. The caller is expected to have
// verified that the lecturer teaches the course.
func (g *Generator) Generate(ctx context.Context, courseID, lecturerID string) (Token, error) {
	now := g.clk.Now().Truncate(time.Second)

	if existing, err := g.store.FindValidToken(ctx, courseID, now); err != nil {
		return Token{}, fmt.Errorf("generate attendance token: %w", err)
	} else if existing != nil {
		return *existing, nil
	}

	course, err := g.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Token{}, fmt.Errorf("generate attendance token: %w", err)
	}

	t := Token{
		ID:         uuid.NewString(),
		LecturerID: lecturerID,
		CourseID:   course.ID,
		CourseCode: course.Code,
		CourseName: course.Name,
		IssuedAt:   now,
		ExpiresAt:  now.Add(g.validity),
	}
	minted, _, err := g.store.MintSession(ctx, t)
	if err != nil {
		return Token{}, fmt.Errorf("generate attendance token: %w", err)
	}
	return minted, nil
}
