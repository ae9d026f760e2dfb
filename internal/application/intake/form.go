// Package intake holds the live registration form state between the browser and the
// persistence service: which sections the user has edited, the actor mode, and the
// read-only price projection.
package intake

import (
	"time"

	"registrar/internal/domain/accountsettings"
	"registrar/internal/domain/bundle"
	"registrar/internal/domain/linkage"
	"registrar/internal/domain/pricing"
	"registrar/internal/domain/program"
)

// Mode is who is filling in the form.
type Mode string

const (
	ModeAnonymous     Mode = "anonymous"
	ModeLinking       Mode = "linking"
	ModeAuthenticated Mode = "authenticated"
)

// ModeFor maps a linkage state to the actor mode.
func ModeFor(s linkage.State) Mode {
	switch s {
	case linkage.StateLoggedIn:
		return ModeAuthenticated
	case linkage.StateChecking, linkage.StateExistingUser:
		return ModeLinking
	}
	return ModeAnonymous
}

// Section is a group of fields that account defaults fill as a unit.
type Section string

const (
	SectionParent    Section = "parent"
	SectionEmergency Section = "emergency"
	SectionPickups   Section = "pickups"
	SectionChildren  Section = "children"
	SectionConsent   Section = "consent"
)

// Sections lists every defaultable section in display order.
var Sections = []Section{SectionParent, SectionEmergency, SectionPickups, SectionChildren, SectionConsent}

// Form is the in-progress registration as the browser currently holds it.
// INVARIANT: Once a section is touched, defaults never overwrite it
type Form struct {
	Submission bundle.Submission
	Linkage    linkage.State
	touched    map[Section]bool
}

// NewForm wraps a submission with the sections the user has already edited.
// Unknown section names are ignored.
func NewForm(sub bundle.Submission, state linkage.State, touched []Section) *Form {
	f := &Form{Submission: sub, Linkage: state, touched: map[Section]bool{}}
	for _, s := range touched {
		f.Touch(s)
	}
	return f
}

// Touch marks a section as edited by the user.
func (f *Form) Touch(s Section) {
	for _, known := range Sections {
		if known == s {
			if f.touched == nil {
				f.touched = map[Section]bool{}
			}
			f.touched[s] = true
			return
		}
	}
}

// Touched reports whether the user has edited s.
func (f *Form) Touched(s Section) bool {
	return f.touched[s]
}

// TouchedSections returns the edited sections in display order.
func (f *Form) TouchedSections() []Section {
	var out []Section
	for _, s := range Sections {
		if f.touched[s] {
			out = append(out, s)
		}
	}
	return out
}

// Mode returns the actor mode for the current linkage state.
func (f *Form) Mode() Mode {
	return ModeFor(f.Linkage)
}

// NoPickupLimit passed as maxPickups keeps every saved pickup.
const NoPickupLimit = -1

// ApplyDefaults copies saved account settings into every untouched section.
// Defaults arriving after a section was touched are discarded.
// PRE: on is the date ages are derived for; maxPickups is NoPickupLimit or the program's cap, where 0 allows none
// POST: Returns the sections that were filled
func (f *Form) ApplyDefaults(s accountsettings.Settings, on time.Time, maxPickups int) []Section {
	var applied []Section
	sub := &f.Submission

	if !f.touched[SectionParent] && !s.Parent.IsZero() {
		sub.ParentName = s.Parent.Name
		sub.ParentPhone = s.Parent.Phone
		sub.ParentRelationship = s.Parent.Relationship
		applied = append(applied, SectionParent)
	}
	if !f.touched[SectionEmergency] && !s.Emergency.IsZero() {
		sub.EmergencyName = s.Emergency.Name
		sub.EmergencyPhone = s.Emergency.Phone
		sub.EmergencyRelationship = s.Emergency.Relationship
		applied = append(applied, SectionEmergency)
	}
	if !f.touched[SectionPickups] && len(s.Pickups) > 0 && maxPickups != 0 {
		pickups := s.Pickups
		if maxPickups > 0 && len(pickups) > maxPickups {
			pickups = pickups[:maxPickups]
		}
		sub.Pickups = make([]bundle.PickupInput, len(pickups))
		for i, p := range pickups {
			sub.Pickups[i] = bundle.PickupInput{Index: i, Name: p.Name, Phone: p.Phone, Relationship: p.Relationship}
		}
		applied = append(applied, SectionPickups)
	}
	if !f.touched[SectionChildren] && len(s.Children) > 0 {
		sub.Children = make([]bundle.ChildInput, len(s.Children))
		for i, c := range s.Children {
			sub.Children[i] = bundle.ChildInput{
				Index:   i,
				Name:    c.Name,
				Age:     c.AgeOn(on),
				School:  c.School,
				Medical: c.MedicalNotes,
			}
		}
		applied = append(applied, SectionChildren)
	}
	if !f.touched[SectionConsent] {
		sub.MediaConsentInternal = s.MediaConsentInternal
		sub.MediaConsentMarketing = s.MediaConsentMarketing
		applied = append(applied, SectionConsent)
	}
	return applied
}

// Quote projects the price for the current child and session counts.
// The projection is display-only; persistence recomputes the total.
// POST: ok is false while the program is unknown or the form has no children or sessions
func (f *Form) Quote(catalog *program.Catalog) (q pricing.Quote, ok bool) {
	t, err := program.ParseType(f.Submission.ProgramType)
	if err != nil {
		return pricing.Quote{}, false
	}
	cfg, err := catalog.Get(t)
	if err != nil {
		return pricing.Quote{}, false
	}
	q, err = cfg.Ladder().Quote(len(f.Submission.Children), len(f.Submission.SessionIDs))
	if err != nil {
		return pricing.Quote{}, false
	}
	return q, true
}

// ProjectionAgrees reports whether a client-displayed total matches the authoritative one.
// A missing projection agrees.
func ProjectionAgrees(displayed *int, authoritativeCents int) bool {
	return displayed == nil || *displayed == authoritativeCents
}
