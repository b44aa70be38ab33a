package registration

import "time"

// Student is an enrolled graduate as provided by the enrollment system.
// NationalID is the secondary login credential and is never serialised.
type Student struct {
	RollNo       string `json:"rollno"`
	Name         string `json:"name"`
	Branch       string `json:"branch"`
	Email        string `json:"email"`
	GuardianName string `json:"guardianName,omitempty"`
	Program      string `json:"program,omitempty"`
	NationalID   string `json:"-"`
}

// Intent is the tri-state attendance decision.
type Intent string

const (
	IntentUndecided    Intent = "undecided"
	IntentAttending    Intent = "attending"
	IntentNotAttending Intent = "not_attending"
)

// IntentFromWillAttend maps the wire's nullable willAttend flag.
func IntentFromWillAttend(willAttend *bool) Intent {
	switch {
	case willAttend == nil:
		return IntentUndecided
	case *willAttend:
		return IntentAttending
	default:
		return IntentNotAttending
	}
}

// WillAttend is the inverse of IntentFromWillAttend.
func (i Intent) WillAttend() *bool {
	var b bool
	switch i {
	case IntentAttending:
		b = true
	case IntentNotAttending:
		b = false
	default:
		return nil
	}
	return &b
}

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentUndecided, IntentAttending, IntentNotAttending:
		return true
	}
	return false
}

// Guest is one accompanying person.
type Guest struct {
	Name         string `json:"name" validate:"required,max=30"`
	Relationship string `json:"relationship" validate:"required,relationship"`
	Phone        string `json:"phone" validate:"omitempty,digits10"`
}

// Registration is the stored attendance decision with its guest set.
type Registration struct {
	RollNo string
	Intent Intent
	Guests []Guest
}

// Submission is one registration request.
type Submission struct {
	RollNo string
	Intent Intent
	Guests []Guest
}

// Reference is the one-time identifier issued for a student.
type Reference struct {
	RollNo    string    `json:"rollno"`
	ID        string    `json:"referenceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notification reports what happened to the confirmation email.
type Notification struct {
	Status  string
	Success bool
}

// Result is the outcome of a persisted submission.
type Result struct {
	Student      Student
	Reference    Reference
	Notification Notification
}

// PassData is everything a gate pass prints.
type PassData struct {
	Student   Student
	Intent    Intent
	Guests    []Guest
	Reference Reference
}
