package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gradportal/internal/store"
)

// maxReferenceAttempts bounds regeneration when a fresh identifier collides
// with one already issued to another student.
const maxReferenceAttempts = 5

// ErrReferenceExhausted means every generated identifier collided.
var ErrReferenceExhausted = errors.New("could not allocate a unique reference id")

// Store is the persistence the registration flow needs.
type Store interface {
	FindStudent(ctx context.Context, rollNo string) (*Student, error)
	FindRegistration(ctx context.Context, rollNo string) (*Registration, error)
	FindReference(ctx context.Context, rollNo string) (*Reference, error)
	// SaveSubmission applies the attendance upsert, the guest replacement and
	// the lazy reference issuance atomically. issued is true only when this
	// call created the reference.
	SaveSubmission(ctx context.Context, sub Submission, nextID func() (string, error)) (ref Reference, issued bool, err error)
}

// Repository persists registrations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindStudent returns nil, nil when the roll number is unknown.
func (r *Repository) FindStudent(ctx context.Context, rollNo string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT rollno, name, branch, email, guardian_name, program, national_id
		FROM students WHERE rollno = $1
	`, rollNo)
	var s Student
	if err := row.Scan(&s.RollNo, &s.Name, &s.Branch, &s.Email, &s.GuardianName, &s.Program, &s.NationalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FindRegistration returns nil, nil when the student has never submitted.
func (r *Repository) FindRegistration(ctx context.Context, rollNo string) (*Registration, error) {
	var intent string
	err := r.db.QueryRowContext(ctx, `SELECT intent FROM attendance WHERE rollno = $1`, rollNo).Scan(&intent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT guest_name, relationship, phone
		FROM guests WHERE rollno = $1
		ORDER BY position
	`, rollNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reg := Registration{RollNo: rollNo, Intent: Intent(intent)}
	for rows.Next() {
		var g Guest
		if err := rows.Scan(&g.Name, &g.Relationship, &g.Phone); err != nil {
			return nil, err
		}
		reg.Guests = append(reg.Guests, g)
	}
	return &reg, rows.Err()
}

// FindReference returns nil, nil when no reference was issued yet.
func (r *Repository) FindReference(ctx context.Context, rollNo string) (*Reference, error) {
	return scanReference(r.db.QueryRowContext(ctx, `
		SELECT rollno, reference_id, created_at FROM user_references WHERE rollno = $1
	`, rollNo))
}

// SaveSubmission runs the whole write path in one transaction. The attendance
// upsert takes the row lock on rollno first, which serialises concurrent
// submissions for the same student.
func (r *Repository) SaveSubmission(ctx context.Context, sub Submission, nextID func() (string, error)) (Reference, bool, error) {
	var (
		ref    Reference
		issued bool
	)
	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attendance (rollno, intent)
			VALUES ($1, $2)
			ON CONFLICT (rollno) DO UPDATE SET
				intent = EXCLUDED.intent,
				updated_at = NOW()
		`, sub.RollNo, string(sub.Intent)); err != nil {
			return fmt.Errorf("upsert attendance: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM guests WHERE rollno = $1`, sub.RollNo); err != nil {
			return fmt.Errorf("delete guests: %w", err)
		}
		if sub.Intent == IntentAttending {
			for i, g := range sub.Guests {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO guests (rollno, position, guest_name, relationship, phone)
					VALUES ($1, $2, $3, $4, $5)
				`, sub.RollNo, i+1, g.Name, g.Relationship, g.Phone); err != nil {
					return fmt.Errorf("insert guest %d: %w", i+1, err)
				}
			}
		}

		var err error
		ref, issued, err = issueReference(ctx, tx, sub.RollNo, nextID)
		return err
	})
	if err != nil {
		return Reference{}, false, err
	}
	return ref, issued, nil
}

func issueReference(ctx context.Context, tx *sql.Tx, rollNo string, nextID func() (string, error)) (Reference, bool, error) {
	existing, err := scanReference(tx.QueryRowContext(ctx, `
		SELECT rollno, reference_id, created_at FROM user_references WHERE rollno = $1
	`, rollNo))
	if err != nil {
		return Reference{}, false, fmt.Errorf("read reference: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}

	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		id, err := nextID()
		if err != nil {
			return Reference{}, false, err
		}
		// a conflict on either rollno or reference_id inserts nothing
		created, err := scanReference(tx.QueryRowContext(ctx, `
			INSERT INTO user_references (rollno, reference_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING rollno, reference_id, created_at
		`, rollNo, id))
		if err != nil {
			return Reference{}, false, fmt.Errorf("insert reference: %w", err)
		}
		if created != nil {
			return *created, true, nil
		}

		stored, err := scanReference(tx.QueryRowContext(ctx, `
			SELECT rollno, reference_id, created_at FROM user_references WHERE rollno = $1
		`, rollNo))
		if err != nil {
			return Reference{}, false, fmt.Errorf("read reference: %w", err)
		}
		if stored != nil {
			return *stored, false, nil
		}
	}
	return Reference{}, false, ErrReferenceExhausted
}

func scanReference(row *sql.Row) (*Reference, error) {
	var ref Reference
	if err := row.Scan(&ref.RollNo, &ref.ID, &ref.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}
