package directory

import (
	"context"
	"errors"
)

// Course is a directory entry with its enrollment set. Code and Name
// are denormalized into attendance tokens for user-facing messages;
// only ID is authoritative.
type Course struct {
	ID         string   `json:"id"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	LecturerID string   `json:"lecturer_id,omitempty"`
	Students   []string `json:"student_ids"`
}

// User is a directory account. Role is one of admin, lecturer, student.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// ErrNotFound reports a missing course or user.
var ErrNotFound = errors.New("directory: not found")

// Enrolled reports whether studentID is in the course roster.
func (c Course) Enrolled(studentID string) bool {
	for _, id := range c.Students {
		if id == studentID {
			return true
		}
	}
	return false
}

// Directory is the course/user lookup and management surface. The
// validation core only reads from it; the admin API writes to it.
type Directory interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	ListCourses(ctx context.Context) ([]Course, error)
	CreateCourse(ctx context.Context, c Course) (Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	AssignStudent(ctx context.Context, courseID, studentID string) error
	UnassignStudent(ctx context.Context, courseID, studentID string) error

	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, role string) ([]User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	DeleteUser(ctx context.Context, id string) error
}
