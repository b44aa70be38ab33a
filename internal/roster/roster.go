// Package roster serves the branch-scoped admin reads and the venue
// check-in log.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gradportal/internal/admin"
	"gradportal/internal/apperr"
	"gradportal/internal/store"
)

// StudentRow is one registered student in an admin listing.
type StudentRow struct {
	RollNo      string  `json:"rollno"`
	Name        string  `json:"name"`
	Branch      string  `json:"branch"`
	Intent      string  `json:"attendanceIntent"`
	WillAttend  *bool   `json:"willAttend"`
	GuestCount  int     `json:"guestCount"`
	ReferenceID *string `json:"referenceId"`
}

// GuestRow is one guest with its student.
type GuestRow struct {
	RollNo       string `json:"rollno"`
	StudentName  string `json:"studentName"`
	Branch       string `json:"branch"`
	GuestName    string `json:"guestName"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

// CheckIn records a student verified at the venue.
type CheckIn struct {
	RollNo      string    `json:"rollno"`
	Name        string    `json:"name"`
	Branch      string    `json:"branch"`
	SubmittedBy string    `json:"submittedBy"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// RegisteredStudent is the lookup shown at the venue gate.
type RegisteredStudent struct {
	RollNo      string  `json:"rollno"`
	Name        string  `json:"name"`
	Branch      string  `json:"branch"`
	Intent      string  `json:"attendanceIntent"`
	ReferenceID *string `json:"referenceId"`
	CheckedIn   bool    `json:"checkedIn"`
}

// Service reads rosters in the caller's scope.
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService creates a roster service.
func NewService(db *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

// branchFilter returns the WHERE fragment restricting column to the scope.
func branchFilter(scope admin.Scope, column string, args []any) (string, []any) {
	if scope.AllBranches() {
		return "", args
	}
	args = append(args, scope.Branch)
	return fmt.Sprintf(" WHERE %s = $%d", column, len(args)), args
}

func orderFor(scope admin.Scope, rest string) string {
	if scope.AllBranches() {
		return " ORDER BY s.branch, " + rest
	}
	return " ORDER BY " + rest
}

// ListStudents returns students with an attendance record.
func (s *Service) ListStudents(ctx context.Context, scope admin.Scope) ([]StudentRow, error) {
	where, args := branchFilter(scope, "s.branch", nil)
	query := `
		SELECT s.rollno, s.name, s.branch, a.intent,
			(SELECT COUNT(*) FROM guests g WHERE g.rollno = s.rollno) AS guest_count,
			r.reference_id
		FROM students s
		INNER JOIN attendance a ON a.rollno = s.rollno
		LEFT JOIN user_references r ON r.rollno = s.rollno` + where + orderFor(scope, "s.name")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	defer rows.Close()

	out := []StudentRow{}
	for rows.Next() {
		var row StudentRow
		if err := rows.Scan(&row.RollNo, &row.Name, &row.Branch, &row.Intent, &row.GuestCount, &row.ReferenceID); err != nil {
			return nil, apperr.Infrastructure("Database error", err)
		}
		row.WillAttend = willAttend(row.Intent)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	return out, nil
}

func willAttend(intent string) *bool {
	var b bool
	switch intent {
	case "attending":
		b = true
	case "not_attending":
	default:
		return nil
	}
	return &b
}

// ListGuests returns every guest of students in scope.
func (s *Service) ListGuests(ctx context.Context, scope admin.Scope) ([]GuestRow, error) {
	where, args := branchFilter(scope, "s.branch", nil)
	query := `
		SELECT g.rollno, s.name, s.branch, g.guest_name, g.relationship, g.phone
		FROM guests g
		INNER JOIN students s ON s.rollno = g.rollno` + where + orderFor(scope, "s.name, g.position")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	defer rows.Close()

	out := []GuestRow{}
	for rows.Next() {
		var row GuestRow
		if err := rows.Scan(&row.RollNo, &row.StudentName, &row.Branch, &row.GuestName, &row.Relationship, &row.Phone); err != nil {
			return nil, apperr.Infrastructure("Database error", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	return out, nil
}

// ListBranches returns the distinct student branches visible to scope.
func (s *Service) ListBranches(ctx context.Context, scope admin.Scope) ([]string, error) {
	where, args := branchFilter(scope, "branch", nil)
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT branch FROM students`+where+` ORDER BY branch`, args...)
	if err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, apperr.Infrastructure("Database error", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	return out, nil
}

// FindRegisteredStudent looks up a student who has an attendance record.
// Students outside the scope are reported as not found.
func (s *Service) FindRegisteredStudent(ctx context.Context, scope admin.Scope, rollNo string) (RegisteredStudent, error) {
	var st RegisteredStudent
	err := s.db.QueryRowContext(ctx, `
		SELECT s.rollno, s.name, s.branch, a.intent, r.reference_id,
			EXISTS (SELECT 1 FROM submitted_students c WHERE c.rollno = s.rollno)
		FROM students s
		INNER JOIN attendance a ON a.rollno = s.rollno
		LEFT JOIN user_references r ON r.rollno = s.rollno
		WHERE s.rollno = $1
	`, rollNo).Scan(&st.RollNo, &st.Name, &st.Branch, &st.Intent, &st.ReferenceID, &st.CheckedIn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RegisteredStudent{}, apperr.NotFound("Student not found or not registered")
		}
		return RegisteredStudent{}, apperr.Infrastructure("Database error", err)
	}
	if !scope.Allows(st.Branch) {
		return RegisteredStudent{}, apperr.NotFound("Student not found or not registered")
	}
	return st, nil
}

// RecordCheckIn logs a registered student at the gate. A repeat check-in is
// not an error; already reports it.
func (s *Service) RecordCheckIn(ctx context.Context, scope admin.Scope, rollNo string) (already bool, err error) {
	if rollNo == "" {
		return false, apperr.Validation("rollno", "Missing student details")
	}
	st, err := s.FindRegisteredStudent(ctx, scope, rollNo)
	if err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submitted_students (rollno, submitted_by) VALUES ($1, $2)
	`, st.RollNo, scope.Username)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return true, nil
		}
		return false, apperr.Infrastructure("Database error", err)
	}
	s.logger.Info("gate check-in recorded", zap.String("rollno", st.RollNo), zap.String("admin", scope.Username))
	return false, nil
}

// ListCheckedIn returns the check-in log in scope.
func (s *Service) ListCheckedIn(ctx context.Context, scope admin.Scope) ([]CheckIn, error) {
	where, args := branchFilter(scope, "s.branch", nil)
	query := `
		SELECT c.rollno, s.name, s.branch, c.submitted_by, c.submitted_at
		FROM submitted_students c
		INNER JOIN students s ON s.rollno = c.rollno` + where + orderFor(scope, "s.name")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	defer rows.Close()

	out := []CheckIn{}
	for rows.Next() {
		var row CheckIn
		if err := rows.Scan(&row.RollNo, &row.Name, &row.Branch, &row.SubmittedBy, &row.SubmittedAt); err != nil {
			return nil, apperr.Infrastructure("Database error", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	return out, nil
}
