package accountsettings

import (
	"errors"
	"strings"
	"time"
)

// MaxChildren bounds the saved roster.
const MaxChildren = 12

// MaxPickups bounds saved default pickups; programs may allow fewer.
const MaxPickups = 5

var (
	ErrMissingAccount  = errors.New("account id is required")
	ErrTooManyChildren = errors.New("saved roster cannot exceed 12 children")
	ErrTooManyPickups  = errors.New("saved pickups cannot exceed 5")
	ErrChildName       = errors.New("saved child name must be at least 2 characters")
	ErrChildBirthDate  = errors.New("saved child date of birth is required")
	ErrFutureBirthDate = errors.New("saved child date of birth cannot be in the future")
	ErrPickupNamePhone = errors.New("saved pickup needs a name and phone")
)

// Contact is a saved adult contact default.
type Contact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// IsZero reports whether nothing was saved.
func (c Contact) IsZero() bool {
	return c.Name == "" && c.Phone == "" && c.Relationship == ""
}

// Child is one entry of the saved roster.
type Child struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	School       string    `json:"school"`
	MedicalNotes string    `json:"medical_notes"`
}

// AgeOn returns whole years completed on the given date.
// PRE: DateOfBirth is set
// POST: Returns 0 when on is before the date of birth
func (c Child) AgeOn(on time.Time) int {
	dob := c.DateOfBirth
	if on.Before(dob) {
		return 0
	}
	age := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		age--
	}
	return age
}

// Settings are per-account defaults used to pre-fill new registrations.
// INVARIANT: Settings are copied into a registration at creation; later edits never touch it
type Settings struct {
	AccountID             string    `json:"account_id"`
	Parent                Contact   `json:"parent"`
	Emergency             Contact   `json:"emergency"`
	Pickups               []Contact `json:"pickups"`
	MediaConsentInternal  bool      `json:"media_consent_internal"`
	MediaConsentMarketing bool      `json:"media_consent_marketing"`
	Children              []Child   `json:"children"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Normalize trims every text field.
func (s *Settings) Normalize() {
	trim := func(c *Contact) {
		c.Name = strings.TrimSpace(c.Name)
		c.Phone = strings.TrimSpace(c.Phone)
		c.Relationship = strings.TrimSpace(c.Relationship)
	}
	trim(&s.Parent)
	trim(&s.Emergency)
	for i := range s.Pickups {
		trim(&s.Pickups[i])
	}
	for i := range s.Children {
		s.Children[i].Name = strings.TrimSpace(s.Children[i].Name)
		s.Children[i].School = strings.TrimSpace(s.Children[i].School)
		s.Children[i].MedicalNotes = strings.TrimSpace(s.Children[i].MedicalNotes)
	}
}

// Validate checks the settings can be saved.
// PRE: Normalize has been called
// POST: Returns nil if valid, the first failing rule otherwise
func (s Settings) Validate(now time.Time) error {
	if s.AccountID == "" {
		return ErrMissingAccount
	}
	if len(s.Children) > MaxChildren {
		return ErrTooManyChildren
	}
	if len(s.Pickups) > MaxPickups {
		return ErrTooManyPickups
	}
	for _, p := range s.Pickups {
		if p.Name == "" || p.Phone == "" {
			return ErrPickupNamePhone
		}
	}
	for _, c := range s.Children {
		if len(c.Name) < 2 {
			return ErrChildName
		}
		if c.DateOfBirth.IsZero() {
			return ErrChildBirthDate
		}
		if c.DateOfBirth.After(now) {
			return ErrFutureBirthDate
		}
	}
	return nil
}
