package session_test

import (
	"errors"
	"testing"
	"time"

	"registrar/internal/domain/program"
	"registrar/internal/domain/session"
)

// TestSession_Validate tests validation of Session.
func TestSession_Validate(t *testing.T) {
	start := time.Date(2026, 11, 7, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		s       session.Session
		wantErr error
	}{
		{"valid", session.Session{ProgramType: program.TypeWorkshop, Title: "Clay", StartsAt: start, Capacity: 12}, nil},
		{"unknown program", session.Session{ProgramType: "yoga", Title: "Clay", StartsAt: start}, program.ErrUnknownType},
		{"empty title", session.Session{ProgramType: program.TypeCamp, StartsAt: start}, session.ErrEmptyTitle},
		{"negative capacity", session.Session{ProgramType: program.TypeCamp, Title: "Week 1", StartsAt: start, Capacity: -1}, session.ErrNegativeCapacity},
		{"missing start", session.Session{ProgramType: program.TypeCamp, Title: "Week 1"}, session.ErrMissingStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err=%v want %v", err, tt.wantErr)
			}
		})
	}
}

// TestAvailability_Waitlisted verifies the soft capacity signal.
func TestAvailability_Waitlisted(t *testing.T) {
	a := session.Availability{Capacity: 10, Enrolled: 9}
	if a.Waitlisted(1) {
		t.Error("expected one child to fit")
	}
	if !a.Waitlisted(2) {
		t.Error("expected two children to overflow")
	}
	if a.Remaining() != 1 {
		t.Errorf("remaining=%d want 1", a.Remaining())
	}

	over := session.Availability{Capacity: 10, Enrolled: 12}
	if over.Remaining() != 0 {
		t.Errorf("remaining=%d want 0 for oversubscribed session", over.Remaining())
	}

	unlimited := session.Availability{Capacity: 0, Enrolled: 500}
	if unlimited.Waitlisted(10) || unlimited.Remaining() != -1 {
		t.Error("expected unlimited session never to waitlist")
	}
}

// TestSameProgram rejects mixed or closed selections.
func TestSameProgram(t *testing.T) {
	open := session.Session{ProgramType: program.TypeWorkshop, Active: true}
	closed := session.Session{ProgramType: program.TypeWorkshop, Active: false}
	camp := session.Session{ProgramType: program.TypeCamp, Active: true}

	if err := session.SameProgram(program.TypeWorkshop, []session.Session{open, open}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := session.SameProgram(program.TypeWorkshop, []session.Session{open, camp}); !errors.Is(err, session.ErrMixedPrograms) {
		t.Errorf("err=%v want ErrMixedPrograms", err)
	}
	if err := session.SameProgram(program.TypeWorkshop, []session.Session{closed}); !errors.Is(err, session.ErrInactive) {
		t.Errorf("err=%v want ErrInactive", err)
	}
}
