package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cheqr/internal/clock"
	"cheqr/internal/directory"
	"cheqr/internal/ledger"
	"cheqr/internal/token"
)

// Reason tags why a scan was rejected. Rejections are expected policy
// outcomes, not errors; only infrastructure failures surface as errors.
type Reason string

const (
	ReasonInvalidFormat  Reason = "invalid_format"
	ReasonWrongCourse    Reason = "wrong_course"
	ReasonNotEnrolled    Reason = "not_enrolled"
	ReasonExpired        Reason = "expired"
	ReasonAlreadyScanned Reason = "already_scanned"
)

// Result is the outcome of one validation attempt. On accept, Record is
// the ledger entry that was appended; on reject, Reason and Message
// describe the failure for the student's screen.
type Result struct {
	OK      bool               `json:"ok"`
	Reason  Reason             `json:"reason,omitempty"`
	Message string             `json:"message,omitempty"`
	Record  *ledger.ScanRecord `json:"record,omitempty"`
}

func reject(reason Reason, message string) Result {
	return Result{Reason: reason, Message: message}
}

// Ledger is the slice of the attendance ledger the validator needs.
type Ledger interface {
	FindSession(ctx context.Context, courseID string, issuedAt time.Time) (*token.Token, error)
	AppendScan(ctx context.Context, rec ledger.ScanRecord) error
}

// CourseGetter resolves the student's intended course and its roster.
type CourseGetter interface {
	GetCourse(ctx context.Context, id string) (directory.Course, error)
}

// Validator runs the ordered scan validation chain. Each check is a
// hard gate: the first failure wins and later checks never run. Format
// and course identity go first because they are cheapest and usually
// mean plain user error; expiry is evaluated last among the content
// checks so it reflects the validation instant.
type Validator struct {
	store   Ledger
	courses CourseGetter
	clk     clock.Clock
}

// NewValidator creates a validator over the given ledger and directory.
func NewValidator(store Ledger, courses CourseGetter, clk clock.Clock) *Validator {
	return &Validator{store: store, courses: courses, clk: clk}
}

// Validate checks a raw scanned payload against the course the student
// selected and, when every gate passes, appends the scan record. The
// ledger append is the authoritative duplicate check across devices.
func (v *Validator) Validate(ctx context.Context, raw []byte, studentID, intendedCourseID string) (Result, error) {
	decoded, err := token.Decode(raw)
	if err != nil {
		observe(ReasonInvalidFormat)
		return reject(ReasonInvalidFormat, "That QR code is not a valid attendance code. Please rescan."), nil
	}

	course, err := v.courses.GetCourse(ctx, intendedCourseID)
	if err != nil {
		return Result{}, fmt.Errorf("validate scan: %w", err)
	}

	if decoded.CourseID != course.ID {
		observe(ReasonWrongCourse)
		return reject(ReasonWrongCourse, fmt.Sprintf(
			"This code is for %s, but you selected %s.", decoded.CourseCode, course.Code)), nil
	}

	if !course.Enrolled(studentID) {
		observe(ReasonNotEnrolled)
		return reject(ReasonNotEnrolled, fmt.Sprintf("You are not enrolled in %s.", course.Code)), nil
	}

	now := v.clk.Now()
	if decoded.Expired(now) {
		observe(ReasonExpired)
		return reject(ReasonExpired, fmt.Sprintf("The attendance code for %s has expired.", course.Code)), nil
	}

	session, err := v.store.FindSession(ctx, decoded.CourseID, decoded.IssuedAt)
	if err != nil {
		if errors.Is(err, ledger.ErrNoSession) {
			// Decodes fine but was never issued by this server.
			observe(ReasonInvalidFormat)
			return reject(ReasonInvalidFormat, "That QR code is not a valid attendance code. Please rescan."), nil
		}
		return Result{}, fmt.Errorf("validate scan: %w", err)
	}

	// The payload is plain JSON, not signed; the stored session is
	// authoritative for the validity window. A payload whose expiry
	// differs from the issued session's was not produced by this server.
	if !session.ExpiresAt.Equal(decoded.ExpiresAt) {
		observe(ReasonInvalidFormat)
		return reject(ReasonInvalidFormat, "That QR code is not a valid attendance code. Please rescan."), nil
	}

	rec := ledger.ScanRecord{
		SessionID: session.ID,
		CourseID:  session.CourseID,
		StudentID: studentID,
		ScannedAt: now,
	}
	if err := v.store.AppendScan(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrDuplicateScan) {
			observe(ReasonAlreadyScanned)
			return reject(ReasonAlreadyScanned, fmt.Sprintf(
				"You already recorded attendance for this %s session.", course.Code)), nil
		}
		return Result{}, fmt.Errorf("validate scan: %w", err)
	}

	observeAccept()
	return Result{OK: true, Record: &rec}, nil
}
