package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is a mutex-guarded in-memory directory for dev mode and tests.
type Memory struct {
	mu      sync.RWMutex
	courses map[string]Course
	users   map[string]User
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		courses: make(map[string]Course),
		users:   make(map[string]User),
	}
}

// GetCourse returns a copy of the course with its roster.
func (m *Memory) GetCourse(ctx context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return copyCourse(c), nil
}

// ListCourses returns all courses.
func (m *Memory) ListCourses(ctx context.Context) ([]Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, copyCourse(c))
	}
	return out, nil
}

// CreateCourse stores a new course, assigning an id when absent.
func (m *Memory) CreateCourse(ctx context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.courses[c.ID] = copyCourse(c)
	return c, nil
}

// UpdateCourse replaces course fields, keeping the existing roster when
// the update carries none.
func (m *Memory) UpdateCourse(ctx context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.courses[c.ID]
	if !ok {
		return Course{}, ErrNotFound
	}
	if c.Students == nil {
		c.Students = cur.Students
	}
	m.courses[c.ID] = copyCourse(c)
	return c, nil
}

// DeleteCourse removes a course.
func (m *Memory) DeleteCourse(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return ErrNotFound
	}
	delete(m.courses, id)
	return nil
}

// AssignStudent adds a student to the roster; already-present is a no-op.
func (m *Memory) AssignStudent(ctx context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return ErrNotFound
	}
	if c.Enrolled(studentID) {
		return nil
	}
	c.Students = append(append([]string{}, c.Students...), studentID)
	m.courses[courseID] = c
	return nil
}

// UnassignStudent removes a student from the roster.
func (m *Memory) UnassignStudent(ctx context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return ErrNotFound
	}
	kept := make([]string, 0, len(c.Students))
	for _, id := range c.Students {
		if id != studentID {
			kept = append(kept, id)
		}
	}
	c.Students = kept
	m.courses[courseID] = c
	return nil
}

// GetUser returns a user by id.
func (m *Memory) GetUser(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// GetUserByUsername returns a user by login name.
func (m *Memory) GetUserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// ListUsers returns users, optionally filtered by role.
func (m *Memory) ListUsers(ctx context.Context, role string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// CreateUser stores a new user, assigning an id when absent.
func (m *Memory) CreateUser(ctx context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = u
	return u, nil
}

// DeleteUser removes a user.
func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func copyCourse(c Course) Course {
	c.Students = append([]string{}, c.Students...)
	return c
}
