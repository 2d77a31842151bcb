package token

import (
	"testing"
	"time"

	"cheqr/internal/clock"
)

func sampleToken(t *testing.T) Token {
	t.Helper()
	issued := time.Date(2025, 3, 10, 10, 0, 0, 0, clock.Institutional)
	return Token{
		CourseID:   "c-1",
		CourseCode: "CS101",
		CourseName: "Intro to Computing",
		IssuedAt:   issued,
		ExpiresAt:  issued.Add(time.Hour),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := sampleToken(t)
	raw, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.CourseID != orig.CourseID || got.CourseCode != orig.CourseCode || got.CourseName != orig.CourseName {
		t.Errorf("Decode() course fields = %+v, want %+v", got, orig)
	}
	if !got.IssuedAt.Equal(orig.IssuedAt) {
		t.Errorf("Decode() issuedAt = %v, want %v", got.IssuedAt, orig.IssuedAt)
	}
	if !got.ExpiresAt.Equal(orig.ExpiresAt) {
		t.Errorf("Decode() expiresAt = %v, want %v", got.ExpiresAt, orig.ExpiresAt)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "hello there"},
		{name: "empty object", raw: "{}"},
		{name: "missing course id", raw: `{"course_code":"CS101","issued_at":"2025-03-10T10:00:00+08:00","expires_at":"2025-03-10T11:00:00+08:00"}`},
		{name: "bad issued timestamp", raw: `{"course_id":"c-1","issued_at":"yesterday","expires_at":"2025-03-10T11:00:00+08:00"}`},
		{name: "bad expires timestamp", raw: `{"course_id":"c-1","issued_at":"2025-03-10T10:00:00+08:00","expires_at":"later"}`},
		{name: "expiry before issue", raw: `{"course_id":"c-1","issued_at":"2025-03-10T11:00:00+08:00","expires_at":"2025-03-10T10:00:00+08:00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); err != ErrMalformed {
				t.Errorf("Decode() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	tok := sampleToken(t)
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "at issue", now: tok.IssuedAt, want: false},
		{name: "at boundary", now: tok.ExpiresAt, want: false},
		{name: "one second past", now: tok.ExpiresAt.Add(time.Second), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Expired(tt.now); got != tt.want {
				t.Errorf("Expired(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestCountdown(t *testing.T) {
	tok := sampleToken(t)
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "full window", now: tok.IssuedAt, want: "60:00"},
		{name: "mid window", now: tok.IssuedAt.Add(35*time.Minute + 12*time.Second), want: "24:48"},
		{name: "expired clamps to zero", now: tok.ExpiresAt.Add(5 * time.Minute), want: "00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Countdown(tt.now); got != tt.want {
				t.Errorf("Countdown(%v) = %q, want %q", tt.now, got, tt.want)
			}
		})
	}
}
