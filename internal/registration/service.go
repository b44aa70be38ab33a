package registration

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gradportal/internal/apperr"
	"gradportal/internal/metrics"
	"gradportal/internal/notify"
)

// Notification status strings reported back to the student.
const (
	statusDisabled = "Email service temporarily unavailable. Please contact administrator."
	statusNoEmail  = "No valid email address found. Please update your email to receive notifications."
)

// IDGenerator produces candidate reference identifiers.
type IDGenerator interface {
	Next() (string, error)
}

// Service is the student-facing registration flow.
type Service struct {
	store    Store
	ids      IDGenerator
	notifier notify.Notifier
	cache    ReferenceCache
	logger   *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithCache enables the read-through reference cache.
func WithCache(c ReferenceCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires the flow. A nil notifier behaves as notify.Disabled.
func NewService(store Store, ids IDGenerator, notifier notify.Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = notify.Disabled{}
	}
	s := &Service{store: store, ids: ids, notifier: notifier, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeRollNo(rollNo string) string {
	return strings.TrimSpace(rollNo)
}

// Login checks the secondary credential. It never changes state.
func (s *Service) Login(ctx context.Context, rollNo, credential string) (Student, error) {
	rollNo = normalizeRollNo(rollNo)
	credential = strings.TrimSpace(credential)
	if rollNo == "" || credential == "" {
		metrics.StudentLogins.WithLabelValues("invalid").Inc()
		return Student{}, apperr.Validation("", "Roll number and Aadhar number are required")
	}
	st, err := s.store.FindStudent(ctx, rollNo)
	if err != nil {
		return Student{}, apperr.Infrastructure("Database error", err)
	}
	if st == nil || subtle.ConstantTimeCompare([]byte(st.NationalID), []byte(credential)) != 1 {
		metrics.StudentLogins.WithLabelValues("denied").Inc()
		return Student{}, apperr.Auth("Invalid credentials")
	}
	metrics.StudentLogins.WithLabelValues("granted").Inc()
	return *st, nil
}

// CheckRegistration returns nil when the student has not submitted yet.
func (s *Service) CheckRegistration(ctx context.Context, rollNo string) (*Registration, error) {
	reg, err := s.store.FindRegistration(ctx, normalizeRollNo(rollNo))
	if err != nil {
		return nil, apperr.Infrastructure("Database error", err)
	}
	return reg, nil
}

// SubmitRegistration validates and persists a submission, issues the
// reference once, then attempts the confirmation email. The email outcome
// never affects the returned error.
func (s *Service) SubmitRegistration(ctx context.Context, sub Submission) (Result, error) {
	sub.RollNo = normalizeRollNo(sub.RollNo)
	if sub.Intent == "" {
		sub.Intent = IntentUndecided
	}
	sub.Guests = normalizeGuests(sub.Guests)

	if sub.RollNo == "" {
		return Result{}, s.rejected(apperr.Validation("rollno", "Roll number is required"))
	}
	if !sub.Intent.Valid() {
		return Result{}, s.rejected(apperr.Validation("willAttend", "Unknown attendance intent %q", sub.Intent))
	}
	// guests only matter when attending; stale rows are discarded unchecked
	if sub.Intent != IntentAttending {
		sub.Guests = nil
	}
	if err := ValidateGuests(sub.Guests); err != nil {
		return Result{}, s.rejected(err)
	}

	st, err := s.store.FindStudent(ctx, sub.RollNo)
	if err != nil {
		return Result{}, s.failed(apperr.Infrastructure("Failed to save details", err))
	}
	if st == nil {
		return Result{}, s.rejected(apperr.NotFound("Student not found"))
	}

	// a client disconnect must not abort the write halfway through
	ref, issued, err := s.store.SaveSubmission(context.WithoutCancel(ctx), sub, s.ids.Next)
	if err != nil {
		s.logger.Error("registration transaction failed", zap.String("rollno", sub.RollNo), zap.Error(err))
		return Result{}, s.failed(apperr.Infrastructure("Failed to save details", err))
	}
	metrics.RegistrationSubmissions.WithLabelValues("saved").Inc()
	if issued {
		metrics.ReferencesIssued.Inc()
		s.logger.Info("reference issued", zap.String("rollno", sub.RollNo), zap.String("reference_id", ref.ID))
	}
	s.remember(ctx, ref)

	res := Result{Student: *st, Reference: ref}
	res.Notification = s.notify(ctx, *st, sub, ref)
	return res, nil
}

func (s *Service) rejected(err error) error {
	metrics.RegistrationSubmissions.WithLabelValues("rejected").Inc()
	return err
}

func (s *Service) failed(err error) error {
	metrics.RegistrationSubmissions.WithLabelValues("failed").Inc()
	return err
}

// notify turns every notifier outcome, including a panic, into a status.
func (s *Service) notify(ctx context.Context, st Student, sub Submission, ref Reference) (out Notification) {
	log := s.logger.With(zap.String("rollno", st.RollNo))
	if !s.notifier.Enabled() {
		metrics.Notifications.WithLabelValues("disabled").Inc()
		return Notification{Status: statusDisabled}
	}
	email := strings.TrimSpace(st.Email)
	if !ValidEmail(email) {
		metrics.Notifications.WithLabelValues("no_email").Inc()
		return Notification{Status: statusNoEmail}
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("notifier panicked", zap.Any("panic", p))
			metrics.Notifications.WithLabelValues("failed").Inc()
			out = Notification{Status: "Failed to send email: unexpected notification error"}
		}
	}()

	delivery, err := s.notifier.Notify(ctx, notify.Notice{
		To:           email,
		Name:         st.Name,
		RollNo:       st.RollNo,
		Branch:       st.Branch,
		ReferenceID:  ref.ID,
		Attending:    sub.Intent == IntentAttending,
		GuestCount:   len(sub.Guests),
		RegisteredAt: ref.CreatedAt,
	})
	if err != nil {
		log.Warn("registration email failed", zap.Error(err))
		metrics.Notifications.WithLabelValues("failed").Inc()
		return Notification{Status: fmt.Sprintf("Failed to send email: %v", err)}
	}
	metrics.Notifications.WithLabelValues(string(delivery)).Inc()
	if delivery == notify.DeliveryQueued {
		return Notification{Status: "Registration confirmation email queued for delivery to: " + email, Success: true}
	}
	return Notification{Status: "Registration confirmation email sent successfully to: " + email, Success: true}
}

// GetReference returns the issued reference, reading through the cache.
func (s *Service) GetReference(ctx context.Context, rollNo string) (Reference, error) {
	rollNo = normalizeRollNo(rollNo)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, rollNo)
		if err != nil {
			s.logger.Warn("reference cache read failed", zap.String("rollno", rollNo), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}
	ref, err := s.store.FindReference(ctx, rollNo)
	if err != nil {
		return Reference{}, apperr.Infrastructure("Database error", err)
	}
	if ref == nil {
		return Reference{}, apperr.NotFound("Reference ID not found")
	}
	s.remember(ctx, *ref)
	return *ref, nil
}

func (s *Service) remember(ctx context.Context, ref Reference) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, ref); err != nil {
		s.logger.Warn("reference cache write failed", zap.String("rollno", ref.RollNo), zap.Error(err))
	}
}

// PassDetails gathers what the gate pass prints. Students without a reference
// have not registered and get NotFound.
func (s *Service) PassDetails(ctx context.Context, rollNo string) (PassData, error) {
	rollNo = normalizeRollNo(rollNo)
	st, err := s.store.FindStudent(ctx, rollNo)
	if err != nil {
		return PassData{}, apperr.Infrastructure("Database error", err)
	}
	if st == nil {
		return PassData{}, apperr.NotFound("Student not found")
	}
	ref, err := s.GetReference(ctx, rollNo)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return PassData{}, apperr.NotFound("Registration not completed")
		}
		return PassData{}, err
	}
	reg, err := s.store.FindRegistration(ctx, rollNo)
	if err != nil {
		return PassData{}, apperr.Infrastructure("Database error", err)
	}
	pass := PassData{Student: *st, Reference: ref, Intent: IntentUndecided}
	if reg != nil {
		pass.Intent = reg.Intent
		pass.Guests = reg.Guests
	}
	return pass, nil
}
