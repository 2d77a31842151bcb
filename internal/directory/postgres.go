package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Postgres persists the directory in Postgres.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed directory.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// GetCourse loads a course and its enrollment set.
func (p *Postgres) GetCourse(ctx context.Context, id string) (Course, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, code, name, COALESCE(lecturer_id, '')
		FROM courses WHERE id = $1
	`, id)
	var c Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, err
	}
	students, err := p.roster(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.Students = students
	return c, nil
}

func (p *Postgres) roster(ctx context.Context, courseID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT student_id FROM enrollments WHERE course_id = $1 ORDER BY student_id
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		students = append(students, id)
	}
	return students, rows.Err()
}

// ListCourses returns all courses without rosters.
func (p *Postgres) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, code, name, COALESCE(lecturer_id, '') FROM courses ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCourse inserts a course.
func (p *Postgres) CreateCourse(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO courses (id, code, name, lecturer_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
	`, c.ID, c.Code, c.Name, c.LecturerID)
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

// UpdateCourse updates code, name and lecturer.
func (p *Postgres) UpdateCourse(ctx context.Context, c Course) (Course, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE courses SET code = $2, name = $3, lecturer_id = NULLIF($4, '')
		WHERE id = $1
	`, c.ID, c.Code, c.Name, c.LecturerID)
	if err != nil {
		return Course{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Course{}, ErrNotFound
	}
	return p.GetCourse(ctx, c.ID)
}

// DeleteCourse removes a course and its enrollments.
func (p *Postgres) DeleteCourse(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignStudent adds a student to a course roster; duplicates are no-ops.
func (p *Postgres) AssignStudent(ctx context.Context, courseID, studentID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO enrollments (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, courseID, studentID)
	return err
}

// UnassignStudent removes a student from a course roster.
func (p *Postgres) UnassignStudent(ctx context.Context, courseID, studentID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM enrollments WHERE course_id = $1 AND student_id = $2
	`, courseID, studentID)
	return err
}

// GetUser returns a user by id.
func (p *Postgres) GetUser(ctx context.Context, id string) (User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, name, role, password_hash FROM users WHERE id = $1
	`, id))
}

// GetUserByUsername returns a user by login name.
func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, name, role, password_hash FROM users WHERE username = $1
	`, username))
}

func (p *Postgres) scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// ListUsers returns users, optionally filtered by role.
func (p *Postgres) ListUsers(ctx context.Context, role string) ([]User, error) {
	query := `SELECT id, username, name, role, password_hash FROM users`
	args := []any{}
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY username`
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.PasswordHash); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateUser inserts a user.
func (p *Postgres) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, username, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.Name, u.Role, u.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// DeleteUser removes a user.
func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
