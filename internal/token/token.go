package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cheqr/internal/clock"
)

// Token is a time-boxed attendance pass issued by a lecturer for one
// course meeting. The session it spawns is identified by the
// (CourseID, IssuedAt) pair; ID is the storage key for that session.
type Token struct {
	ID         string    `json:"id,omitempty"`
	LecturerID string    `json:"-"`
	CourseID   string    `json:"course_id"`
	CourseCode string    `json:"course_code"`
	CourseName string    `json:"course_name"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// payload is the literal wire format carried inside the QR image.
// Timestamps travel as RFC3339 in the institutional timezone.
type payload struct {
	CourseID   string `json:"course_id"`
	CourseCode string `json:"course_code"`
	CourseName string `json:"course_name"`
	IssuedAt   string `json:"issued_at"`
	ExpiresAt  string `json:"expires_at"`
}

// ErrMalformed reports a scan payload that does not parse as a token.
var ErrMalformed = errors.New("malformed token payload")

// Expired reports whether the token is past its validity window at now.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Countdown renders the remaining validity as MM:SS for the lecturer
// screen, clamped at zero once the token has expired.
func (t Token) Countdown(now time.Time) string {
	left := t.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	left = left.Round(time.Second)
	mins := int(left / time.Minute)
	secs := int(left%time.Minute) / int(time.Second)
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// Encode serializes the token into the QR wire payload.
func Encode(t Token) ([]byte, error) {
	if t.CourseID == "" {
		return nil, errors.New("token missing course id")
	}
	return json.Marshal(payload{
		CourseID:   t.CourseID,
		CourseCode: t.CourseCode,
		CourseName: t.CourseName,
		IssuedAt:   t.IssuedAt.In(clock.Institutional).Format(time.RFC3339),
		ExpiresAt:  t.ExpiresAt.In(clock.Institutional).Format(time.RFC3339),
	})
}

// Decode parses a scanned payload back into a Token. Any structural or
// timestamp problem comes back as ErrMalformed; the caller maps that to
// the invalid-format rejection.
func Decode(raw []byte) (Token, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Token{}, ErrMalformed
	}
	if p.CourseID == "" || p.IssuedAt == "" || p.ExpiresAt == "" {
		return Token{}, ErrMalformed
	}
	issued, err := time.Parse(time.RFC3339, p.IssuedAt)
	if err != nil {
		return Token{}, ErrMalformed
	}
	expires, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return Token{}, ErrMalformed
	}
	if !expires.After(issued) {
		return Token{}, ErrMalformed
	}
	return Token{
		CourseID:   p.CourseID,
		CourseCode: p.CourseCode,
		CourseName: p.CourseName,
		IssuedAt:   issued.In(clock.Institutional),
		ExpiresAt:  expires.In(clock.Institutional),
	}, nil
}
