package registration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradportal/internal/apperr"
	"gradportal/internal/notify"
)

// memoryStore applies each submission under one lock, the way the
// attendance row lock serialises them in Postgres.
type memoryStore struct {
	mu         sync.Mutex
	students   map[string]Student
	attendance map[string]Intent
	guests     map[string][]Guest
	refs       map[string]Reference
	refIDs     map[string]string
	saveErr    error
	findErr    error
}

func newMemoryStore(students ...Student) *memoryStore {
	m := &memoryStore{
		students:   map[string]Student{},
		attendance: map[string]Intent{},
		guests:     map[string][]Guest{},
		refs:       map[string]Reference{},
		refIDs:     map[string]string{},
	}
	for _, s := range students {
		m.students[s.RollNo] = s
	}
	return m
}

func (m *memoryStore) FindStudent(_ context.Context, rollNo string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	s, ok := m.students[rollNo]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStore) FindRegistration(_ context.Context, rollNo string) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.attendance[rollNo]
	if !ok {
		return nil, nil
	}
	return &Registration{RollNo: rollNo, Intent: intent, Guests: append([]Guest(nil), m.guests[rollNo]...)}, nil
}

func (m *memoryStore) FindReference(_ context.Context, rollNo string) (*Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[rollNo]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

func (m *memoryStore) SaveSubmission(_ context.Context, sub Submission, nextID func() (string, error)) (Reference, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return Reference{}, false, m.saveErr
	}
	// stage, then commit all at once
	guests := []Guest(nil)
	if sub.Intent == IntentAttending {
		guests = append(guests, sub.Guests...)
	}
	if ref, ok := m.refs[sub.RollNo]; ok {
		m.attendance[sub.RollNo] = sub.Intent
		m.guests[sub.RollNo] = guests
		return ref, false, nil
	}
	for i := 0; i < maxReferenceAttempts; i++ {
		id, err := nextID()
		if err != nil {
			return Reference{}, false, err
		}
		if _, taken := m.refIDs[id]; taken {
			continue
		}
		ref := Reference{RollNo: sub.RollNo, ID: id, CreatedAt: time.Now().UTC()}
		m.refs[sub.RollNo] = ref
		m.refIDs[id] = sub.RollNo
		m.attendance[sub.RollNo] = sub.Intent
		m.guests[sub.RollNo] = guests
		return ref, true, nil
	}
	return Reference{}, false, ErrReferenceExhausted
}

func (m *memoryStore) referenceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refs)
}

type stubNotifier struct {
	mu       sync.Mutex
	enabled  bool
	err      error
	panics   bool
	delivery notify.Delivery
	notices  []notify.Notice
}

func (n *stubNotifier) Enabled() bool { return n.enabled }

func (n *stubNotifier) Notify(_ context.Context, notice notify.Notice) (notify.Delivery, error) {
	if n.panics {
		panic("smtp client exploded")
	}
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	if n.delivery == "" {
		return notify.DeliverySent, nil
	}
	return n.delivery, nil
}

var referencePattern = regexp.MustCompile(`^GD2025-\d{6}-[A-F0-9]{8}$`)

func csStudent() Student {
	return Student{RollNo: "CS2025001", Name: "Asha Rao", Branch: "CSE", Email: "asha@example.edu", NationalID: "123412341234"}
}

func attending() *bool { b := true; return &b }

func TestSubmitRegistration_FirstSubmission(t *testing.T) {
	store := newMemoryStore(csStudent())
	n := &stubNotifier{enabled: true}
	svc := NewService(store, NewGenerator("GD2025"), n)

	res, err := svc.SubmitRegistration(context.Background(), Submission{
		RollNo: "CS2025001",
		Intent: IntentFromWillAttend(attending()),
		Guests: []Guest{{Name: "Jane Doe", Relationship: "Mother", Phone: "9876543210"}},
	})
	require.NoError(t, err)

	assert.Regexp(t, referencePattern, res.Reference.ID)
	assert.Equal(t, "Asha Rao", res.Student.Name)
	assert.True(t, res.Notification.Success)
	assert.Equal(t, "Registration confirmation email sent successfully to: asha@example.edu", res.Notification.Status)

	reg, err := svc.CheckRegistration(context.Background(), "CS2025001")
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, IntentAttending, reg.Intent)
	assert.Len(t, reg.Guests, 1)

	require.Len(t, n.notices, 1)
	assert.Equal(t, res.Reference.ID, n.notices[0].ReferenceID)
	assert.Equal(t, 1, n.notices[0].GuestCount)
}

func TestSubmitRegistration_ResubmitKeepsReference(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)
	ctx := context.Background()

	first, err := svc.SubmitRegistration(ctx, Submission{
		RollNo: "CS2025001",
		Intent: IntentAttending,
		Guests: []Guest{{Name: "Jane Doe", Relationship: "Mother", Phone: "9876543210"}},
	})
	require.NoError(t, err)

	second, err := svc.SubmitRegistration(ctx, Submission{RollNo: "CS2025001", Intent: IntentNotAttending, Guests: []Guest{}})
	require.NoError(t, err)

	assert.Equal(t, first.Reference.ID, second.Reference.ID)
	reg, err := svc.CheckRegistration(ctx, "CS2025001")
	require.NoError(t, err)
	assert.Equal(t, IntentNotAttending, reg.Intent)
	assert.Empty(t, reg.Guests)
	assert.Equal(t, 1, store.referenceCount())
}

func TestSubmitRegistration_IdenticalResubmissionIsIdempotent(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)
	ctx := context.Background()
	sub := Submission{
		RollNo: "CS2025001",
		Intent: IntentAttending,
		Guests: []Guest{
			{Name: "Jane Doe", Relationship: "Mother", Phone: "9876543210"},
			{Name: "John Doe", Relationship: "Father"},
		},
	}

	a, err := svc.SubmitRegistration(ctx, sub)
	require.NoError(t, err)
	b, err := svc.SubmitRegistration(ctx, sub)
	require.NoError(t, err)

	assert.Equal(t, a.Reference, b.Reference)
	reg, err := svc.CheckRegistration(ctx, "CS2025001")
	require.NoError(t, err)
	assert.Equal(t, sub.Guests, reg.Guests, "guest set replaced, never appended")
}

func TestSubmitRegistration_ConcurrentFirstSubmissions(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)

	const n = 16
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.SubmitRegistration(context.Background(), Submission{RollNo: "CS2025001", Intent: IntentAttending})
			ids[i], errs[i] = res.Reference.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, store.referenceCount())
}

func TestSubmitRegistration_GuestsDroppedWhenNotAttending(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)

	_, err := svc.SubmitRegistration(context.Background(), Submission{
		RollNo: "CS2025001",
		Intent: IntentUndecided,
		Guests: []Guest{{Name: "Jane Doe", Relationship: "Mother"}},
	})
	require.NoError(t, err)
	reg, err := svc.CheckRegistration(context.Background(), "CS2025001")
	require.NoError(t, err)
	assert.Equal(t, IntentUndecided, reg.Intent)
	assert.Empty(t, reg.Guests)
}

func TestSubmitRegistration_NotAttendingIgnoresInvalidGuests(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)

	res, err := svc.SubmitRegistration(context.Background(), Submission{
		RollNo: "CS2025001",
		Intent: IntentNotAttending,
		Guests: []Guest{
			{Name: strings.Repeat("a", 40), Relationship: "Neighbour", Phone: "123"},
			{Relationship: "Father"},
			{Name: "Third", Relationship: "Sister"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reference.ID)

	reg, err := svc.CheckRegistration(context.Background(), "CS2025001")
	require.NoError(t, err)
	assert.Equal(t, IntentNotAttending, reg.Intent)
	assert.Empty(t, reg.Guests)
}

func TestSubmitRegistration_RelationshipStoredCanonically(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)

	_, err := svc.SubmitRegistration(context.Background(), Submission{
		RollNo: "CS2025001",
		Intent: IntentAttending,
		Guests: []Guest{{Name: "Jane Doe", Relationship: "  mother "}},
	})
	require.NoError(t, err)
	reg, err := svc.CheckRegistration(context.Background(), "CS2025001")
	require.NoError(t, err)
	require.Len(t, reg.Guests, 1)
	assert.Equal(t, "Mother", reg.Guests[0].Relationship)
}

func TestSubmitRegistration_UnknownRelationshipIsValidationFailure(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)

	_, err := svc.SubmitRegistration(context.Background(), Submission{
		RollNo: "CS2025001",
		Intent: IntentAttending,
		Guests: []Guest{{Name: "Jane Doe", Relationship: strings.Repeat("R", 40)}},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.False(t, apperr.Retryable(err))
	assert.Zero(t, store.referenceCount())
}

func TestSubmitRegistration_ValidationIsAllOrNothing(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)

	_, err := svc.SubmitRegistration(context.Background(), Submission{
		RollNo: "CS2025001",
		Intent: IntentAttending,
		Guests: []Guest{
			{Name: "Jane Doe", Relationship: "Mother", Phone: "9876543210"},
			{Name: "John Doe", Relationship: "Father", Phone: "12345"},
		},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, apperr.Message(err), "guest 2 (John Doe)")

	reg, err := svc.CheckRegistration(context.Background(), "CS2025001")
	require.NoError(t, err)
	assert.Nil(t, reg)
	assert.Zero(t, store.referenceCount())
}

func TestSubmitRegistration_Failures(t *testing.T) {
	ctx := context.Background()

	svc := NewService(newMemoryStore(csStudent()), NewGenerator("GD2025"), nil)
	_, err := svc.SubmitRegistration(ctx, Submission{RollNo: "XX0000000", Intent: IntentAttending})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.SubmitRegistration(ctx, Submission{RollNo: "  ", Intent: IntentAttending})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.SubmitRegistration(ctx, Submission{RollNo: "CS2025001", Intent: Intent("maybe")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	store := newMemoryStore(csStudent())
	store.saveErr = errors.New("deadlock detected")
	svc = NewService(store, NewGenerator("GD2025"), nil)
	_, err = svc.SubmitRegistration(ctx, Submission{RollNo: "CS2025001", Intent: IntentAttending})
	assert.True(t, apperr.Is(err, apperr.KindInfrastructure))
	assert.True(t, apperr.Retryable(err))
	assert.Equal(t, "Failed to save details", apperr.Message(err))
}

func TestSubmitRegistration_SurvivesCallerCancellation(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.SubmitRegistration(ctx, Submission{RollNo: "CS2025001", Intent: IntentAttending})
	require.NoError(t, err)
	assert.Equal(t, 1, store.referenceCount())
}

func TestSubmitRegistration_NotificationOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		notifier notify.Notifier
		email    string
		status   string
		success  bool
	}{
		{"disabled", notify.Disabled{}, "asha@example.edu", statusDisabled, false},
		{"no email", &stubNotifier{enabled: true}, "", statusNoEmail, false},
		{"bad email", &stubNotifier{enabled: true}, "not-an-address", statusNoEmail, false},
		{"send error", &stubNotifier{enabled: true, err: errors.New("535 auth failed")}, "asha@example.edu", "Failed to send email: 535 auth failed", false},
		{"panic", &stubNotifier{enabled: true, panics: true}, "asha@example.edu", "Failed to send email: unexpected notification error", false},
		{"queued", &stubNotifier{enabled: true, delivery: notify.DeliveryQueued}, "asha@example.edu", "Registration confirmation email queued for delivery to: asha@example.edu", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := csStudent()
			st.Email = tc.email
			store := newMemoryStore(st)
			svc := NewService(store, NewGenerator("GD2025"), tc.notifier)

			res, err := svc.SubmitRegistration(context.Background(), Submission{RollNo: st.RollNo, Intent: IntentAttending})
			require.NoError(t, err, "notification never fails the submission")
			assert.Equal(t, tc.status, res.Notification.Status)
			assert.Equal(t, tc.success, res.Notification.Success)
			assert.Equal(t, 1, store.referenceCount())
		})
	}
}

type fixedIDs struct {
	mu  sync.Mutex
	ids []string
}

func (f *fixedIDs) Next() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "", errors.New("out of ids")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

func TestSubmitRegistration_RegeneratesOnCollision(t *testing.T) {
	other := Student{RollNo: "EC2025007", Name: "Ravi", Branch: "ECE", NationalID: "1"}
	store := newMemoryStore(csStudent(), other)
	ids := &fixedIDs{ids: []string{"GD2025-000001-AAAAAAAA", "GD2025-000001-AAAAAAAA", "GD2025-000002-BBBBBBBB"}}
	svc := NewService(store, ids, nil)
	ctx := context.Background()

	a, err := svc.SubmitRegistration(ctx, Submission{RollNo: other.RollNo, Intent: IntentAttending})
	require.NoError(t, err)
	b, err := svc.SubmitRegistration(ctx, Submission{RollNo: "CS2025001", Intent: IntentAttending})
	require.NoError(t, err)

	assert.Equal(t, "GD2025-000001-AAAAAAAA", a.Reference.ID)
	assert.Equal(t, "GD2025-000002-BBBBBBBB", b.Reference.ID)
}

func TestLogin(t *testing.T) {
	svc := NewService(newMemoryStore(csStudent()), NewGenerator("GD2025"), nil)
	ctx := context.Background()

	st, err := svc.Login(ctx, " CS2025001 ", "123412341234")
	require.NoError(t, err)
	assert.Equal(t, "CSE", st.Branch)

	_, err = svc.Login(ctx, "CS2025001", "999999999999")
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	_, err = svc.Login(ctx, "NOPE", "123412341234")
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	_, err = svc.Login(ctx, "", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

type mapCache struct {
	mu   sync.Mutex
	refs map[string]Reference
	gets int
}

func (c *mapCache) Get(_ context.Context, rollNo string) (*Reference, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if r, ok := c.refs[rollNo]; ok {
		return &r, nil
	}
	return nil, nil
}

func (c *mapCache) Set(_ context.Context, ref Reference) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs[ref.RollNo] = ref
	return nil
}

func TestGetReference(t *testing.T) {
	store := newMemoryStore(csStudent())
	cache := &mapCache{refs: map[string]Reference{}}
	svc := NewService(store, NewGenerator("GD2025"), nil, WithCache(cache))
	ctx := context.Background()

	_, err := svc.GetReference(ctx, "CS2025001")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "Reference ID not found", apperr.Message(err))

	res, err := svc.SubmitRegistration(ctx, Submission{RollNo: "CS2025001", Intent: IntentAttending})
	require.NoError(t, err)
	assert.Contains(t, cache.refs, "CS2025001", "issuance warms the cache")

	// store failures are invisible once cached
	store.mu.Lock()
	delete(store.refs, "CS2025001")
	store.mu.Unlock()

	ref, err := svc.GetReference(ctx, "CS2025001")
	require.NoError(t, err)
	assert.Equal(t, res.Reference.ID, ref.ID)
}

func TestPassDetails(t *testing.T) {
	store := newMemoryStore(csStudent())
	svc := NewService(store, NewGenerator("GD2025"), nil)
	ctx := context.Background()

	_, err := svc.PassDetails(ctx, "CS2025001")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = svc.PassDetails(ctx, "UNKNOWN")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.SubmitRegistration(ctx, Submission{
		RollNo: "CS2025001",
		Intent: IntentAttending,
		Guests: []Guest{{Name: "Jane Doe", Relationship: "Mother"}},
	})
	require.NoError(t, err)

	pass, err := svc.PassDetails(ctx, "CS2025001")
	require.NoError(t, err)
	assert.Equal(t, IntentAttending, pass.Intent)
	assert.Len(t, pass.Guests, 1)
	assert.True(t, strings.HasPrefix(pass.Reference.ID, "GD2025-"))
}

func TestValidateGuests(t *testing.T) {
	name30 := strings.Repeat("a", 30)
	name31 := strings.Repeat("a", 31)

	cases := []struct {
		name   string
		guests []Guest
		want   string
	}{
		{"empty set", nil, ""},
		{"thirty chars", []Guest{{Name: name30, Relationship: "Aunty"}}, ""},
		{"thirty multibyte chars", []Guest{{Name: strings.Repeat("é", 30), Relationship: "Aunty"}}, ""},
		{"thirty one chars", []Guest{{Name: name31, Relationship: "Aunty"}}, fmt.Sprintf("guest 1 (%s): name must be at most 30 characters", name31)},
		{"short phone", []Guest{{Name: "Jane", Relationship: "Mother", Phone: "12345"}}, "guest 1 (Jane): phone must be exactly 10 digits"},
		{"ten digit phone", []Guest{{Name: "Jane", Relationship: "Mother", Phone: "1234567890"}}, ""},
		{"letters in phone", []Guest{{Name: "Jane", Relationship: "Mother", Phone: "12345abcde"}}, "guest 1 (Jane): phone must be exactly 10 digits"},
		{"absent phone", []Guest{{Name: "Jane", Relationship: "Mother"}}, ""},
		{"missing relationship", []Guest{{Name: "Jane"}}, "guest 1 (Jane): relationship is required"},
		{"missing name", []Guest{{Name: "Jane", Relationship: "Mother"}, {Relationship: "Father"}}, "guest 2: name is required"},
		{"three guests", []Guest{{Name: "A", Relationship: "Mother"}, {Name: "C", Relationship: "Father"}, {Name: "E", Relationship: "Sister"}}, "A maximum of 2 guests can be registered"},
		{"lowercase relationship", []Guest{{Name: "Jane", Relationship: "grandmother"}}, ""},
		{"unknown relationship", []Guest{{Name: "Jane", Relationship: "Neighbour"}}, "guest 1 (Jane): relationship must be one of " + strings.Join(Relationships, ", ")},
		{"single letter relationship", []Guest{{Name: "Jane", Relationship: "x"}}, "guest 1 (Jane): relationship must be one of " + strings.Join(Relationships, ", ")},
		{"overlong relationship", []Guest{{Name: "Jane", Relationship: strings.Repeat("R", 40)}}, "guest 1 (Jane): relationship must be one of " + strings.Join(Relationships, ", ")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGuests(tc.guests)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tc.want, apperr.Message(err))
		})
	}
}

func TestIntentFromWillAttend(t *testing.T) {
	yes, no := true, false
	assert.Equal(t, IntentUndecided, IntentFromWillAttend(nil))
	assert.Equal(t, IntentAttending, IntentFromWillAttend(&yes))
	assert.Equal(t, IntentNotAttending, IntentFromWillAttend(&no))

	assert.Nil(t, IntentUndecided.WillAttend())
	assert.True(t, *IntentAttending.WillAttend())
	assert.False(t, *IntentNotAttending.WillAttend())
}
