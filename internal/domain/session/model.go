package session

import (
	"errors"
	"strings"
	"time"

	"registrar/internal/domain/program"
)

// Domain errors
var (
	ErrEmptyTitle       = errors.New("session title cannot be empty")
	ErrNegativeCapacity = errors.New("session capacity cannot be negative")
	ErrMissingStart     = errors.New("session start time must be set")
	ErrMixedPrograms    = errors.New("all selected sessions must belong to the same program")
	ErrInactive         = errors.New("session is not open for registration")
)

// Session is one dated offering of a program.
type Session struct {
	ID          string
	ProgramType program.Type
	Title       string
	StartsAt    time.Time
	Capacity    int // 0 means unlimited
	Active      bool
}

// Validate checks if the Session has valid data.
// PRE: Session struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Session) Validate() error {
	if _, err := program.ParseType(string(s.ProgramType)); err != nil {
		return err
	}
	if strings.TrimSpace(s.Title) == "" {
		return ErrEmptyTitle
	}
	if s.Capacity < 0 {
		return ErrNegativeCapacity
	}
	if s.StartsAt.IsZero() {
		return ErrMissingStart
	}
	return nil
}

// Availability is the soft capacity signal for a session.
// Enrolled counts children on non-cancelled registrations at read time; two
// concurrent submissions may both observe space and both succeed.
type Availability struct {
	SessionID string
	Capacity  int
	Enrolled  int
}

// Remaining returns the open places, or -1 for unlimited sessions.
func (a Availability) Remaining() int {
	if a.Capacity == 0 {
		return -1
	}
	r := a.Capacity - a.Enrolled
	if r < 0 {
		return 0
	}
	return r
}

// Waitlisted reports whether adding children would exceed capacity.
// INVARIANT: advisory only; never used to reject a submission
func (a Availability) Waitlisted(children int) bool {
	if a.Capacity == 0 {
		return false
	}
	return a.Enrolled+children > a.Capacity
}

// SameProgram checks that every session belongs to the given program and is open.
// PRE: sessions non-empty
// POST: Returns ErrMixedPrograms or ErrInactive when violated
func SameProgram(t program.Type, sessions []Session) error {
	for _, s := range sessions {
		if s.ProgramType != t {
			return ErrMixedPrograms
		}
		if !s.Active {
			return ErrInactive
		}
	}
	return nil
}
