package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"gradportal/internal/apperr"
)

// MaxGuests is the number of guests a student may bring.
const MaxGuests = 2

// Relationships are the accepted guest relationship categories.
var Relationships = []string{
	"Mother", "Father", "Brother", "Sister", "Uncle",
	"Aunty", "Husband", "Wife", "Grandfather", "Grandmother",
}

var validate = newValidator()

// canonicalRelationship returns the listed spelling of rel, matched
// case-insensitively, and whether it is listed at all.
func canonicalRelationship(rel string) (string, bool) {
	for _, r := range Relationships {
		if strings.EqualFold(r, rel) {
			return r, true
		}
	}
	return rel, false
}

func newValidator() *validator.Validate {
	v := validator.New()
	// registered on a fresh instance, cannot fail
	_ = v.RegisterValidation("digits10", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 10 {
			return false
		}
		for i := 0; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		}
		return true
	})
	_ = v.RegisterValidation("relationship", func(fl validator.FieldLevel) bool {
		_, ok := canonicalRelationship(fl.Field().String())
		return ok
	})
	return v
}

// normalizeGuests trims every field. It never drops entries.
func normalizeGuests(in []Guest) []Guest {
	out := make([]Guest, len(in))
	for i, g := range in {
		rel, _ := canonicalRelationship(strings.TrimSpace(g.Relationship))
		out[i] = Guest{
			Name:         strings.TrimSpace(g.Name),
			Relationship: rel,
			Phone:        strings.TrimSpace(g.Phone),
		}
	}
	return out
}

// ValidateGuests checks the whole guest set and reports the first offending
// guest by position and name.
func ValidateGuests(guests []Guest) error {
	if len(guests) > MaxGuests {
		return apperr.Validation("guests", "A maximum of %d guests can be registered", MaxGuests)
	}
	for i, g := range guests {
		err := validate.Struct(g)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return apperr.Validation(fmt.Sprintf("guests[%d]", i), "%s: invalid guest", guestLabel(i, g))
		}
		return apperr.Validation(fmt.Sprintf("guests[%d]", i), "%s: %s", guestLabel(i, g), describe(fieldErrs[0]))
	}
	return nil
}

func guestLabel(i int, g Guest) string {
	if g.Name == "" {
		return fmt.Sprintf("guest %d", i+1)
	}
	return fmt.Sprintf("guest %d (%s)", i+1, g.Name)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "digits10":
		return field + " must be exactly 10 digits"
	case "relationship":
		return field + " must be one of " + strings.Join(Relationships, ", ")
	default:
		return field + " is invalid"
	}
}

// ValidEmail reports whether addr can receive the confirmation email.
func ValidEmail(addr string) bool {
	return validate.Var(strings.TrimSpace(addr), "required,email") == nil
}
