package bundle

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"registrar/internal/domain/program"
	"registrar/internal/domain/registration"
)

// FieldErrors maps a form key (indexed rows use key_i) to a human-readable message.
type FieldErrors map[string]string

// Error makes FieldErrors usable as an error value.
func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("invalid fields: %s", strings.Join(keys, ", "))
}

// Has reports whether key carries an error.
func (fe FieldErrors) Has(key string) bool {
	_, ok := fe[key]
	return ok
}

// Contact is one validated adult contact.
type Contact struct {
	Name         string
	Email        string
	Phone        string
	Relationship string
}

// Bundle is a fully validated registration submission.
// INVARIANT: len(Children) >= 1 && len(SessionIDs) >= 1 && len(Pickups) <= Program.MaxPickups
type Bundle struct {
	Program    program.Config
	SessionIDs []string
	Parent     Contact
	Emergency  Contact
	Children   []ChildInput
	Pickups    []PickupInput

	PaymentMethod string

	AgreeWaiver           bool
	AgreeTerms            bool
	AgreeBehavior         bool
	MediaConsentInternal  bool
	MediaConsentMarketing bool

	HowHeard string
	Comments string

	CreateAccount   bool
	AccountPassword string

	DisplayedTotalCents *int
}

// headerRules carries the tag-driven rules for the non-repeating groups.
type headerRules struct {
	SessionIDs     []string `form:"workshop_ids" validate:"min=1,max=20,dive,max=64"`
	ParentName     string   `form:"parent_name" validate:"min=2,max=100"`
	ParentEmail    string   `form:"parent_email" validate:"required,max=254,contains=@"`
	ParentPhone    string   `form:"parent_phone" validate:"max=30"`
	EmergencyName  string   `form:"emergency_name" validate:"min=2,max=100"`
	EmergencyPhone string   `form:"emergency_phone" validate:"required,max=30"`
	PaymentMethod  string   `form:"payment_method" validate:"required,oneof=bank_transfer cash card"`
	AgreeWaiver    bool     `form:"agree_waiver" validate:"required"`
	AgreeTerms     bool     `form:"agree_terms" validate:"required"`
	Comments       string   `form:"comments" validate:"max=4000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks a submission against the rules of its program.
// PRE: sub has been normalized (DecodeForm does this)
// POST: Returns (Bundle, nil) when valid, or a zero Bundle and a non-empty FieldErrors
// INVARIANT: Pure function; the same submission always produces the same errors
func Validate(sub Submission, catalog *program.Catalog) (Bundle, FieldErrors) {
	errs := FieldErrors{}

	t, err := program.ParseType(sub.ProgramType)
	var cfg program.Config
	if err == nil {
		cfg, err = catalog.Get(t)
	}
	if err != nil {
		errs[KeyProgram] = "select a program"
	}

	collect(errs, validate.Struct(headerRules{
		SessionIDs:     sub.SessionIDs,
		ParentName:     sub.ParentName,
		ParentEmail:    sub.ParentEmail,
		ParentPhone:    sub.ParentPhone,
		EmergencyName:  sub.EmergencyName,
		EmergencyPhone: sub.EmergencyPhone,
		PaymentMethod:  sub.PaymentMethod,
		AgreeWaiver:    sub.AgreeWaiver,
		AgreeTerms:     sub.AgreeTerms,
		Comments:       sub.Comments,
	}), "")

	if len(sub.Children) == 0 {
		errs[KeyChildren] = "add at least one child"
	}
	for _, c := range sub.Children {
		suffix := fmt.Sprintf("_%d", c.Index)
		collect(errs, validate.Struct(c), suffix)
		if cfg.Requires.School && c.School == "" {
			errs["child_school"+suffix] = "school is required"
		}
		if cfg.Requires.Medical && c.Medical == "" {
			errs["child_medical"+suffix] = "medical information is required (enter none if not applicable)"
		}
		if cfg.Requires.TShirtSize && c.TShirtSize == "" {
			errs["child_tshirt"+suffix] = "t-shirt size is required"
		}
	}

	if cfg.Type != "" && len(sub.Pickups) > cfg.MaxPickups {
		errs[KeyPickups] = fmt.Sprintf("at most %d authorized pickups", cfg.MaxPickups)
	}
	for _, p := range sub.Pickups {
		if p.Name == "" {
			errs[fmt.Sprintf("pickup_name_%d", p.Index)] = "name is required"
		}
		collect(errs, validate.Struct(p), fmt.Sprintf("_%d", p.Index))
	}

	if cfg.Requires.BehaviorAgreement && !sub.AgreeBehavior {
		errs[KeyAgreeBehavior] = "must be accepted"
	}
	if sub.CreateAccount && len(sub.AccountPassword) < MinPasswordLength {
		errs[KeyAccountPassword] = fmt.Sprintf("must be at least %d characters", MinPasswordLength)
	}

	if len(errs) > 0 {
		return Bundle{}, errs
	}

	return Bundle{
		Program:    cfg,
		SessionIDs: sub.SessionIDs,
		Parent: Contact{
			Name:         sub.ParentName,
			Email:        sub.ParentEmail,
			Phone:        sub.ParentPhone,
			Relationship: sub.ParentRelationship,
		},
		Emergency: Contact{
			Name:         sub.EmergencyName,
			Phone:        sub.EmergencyPhone,
			Relationship: sub.EmergencyRelationship,
		},
		Children:              sub.Children,
		Pickups:               sub.Pickups,
		PaymentMethod:         sub.PaymentMethod,
		AgreeWaiver:           sub.AgreeWaiver,
		AgreeTerms:            sub.AgreeTerms,
		AgreeBehavior:         sub.AgreeBehavior,
		MediaConsentInternal:  sub.MediaConsentInternal,
		MediaConsentMarketing: sub.MediaConsentMarketing,
		HowHeard:              sub.HowHeard,
		Comments:              sub.Comments,
		CreateAccount:         sub.CreateAccount,
		AccountPassword:       sub.AccountPassword,
		DisplayedTotalCents:   sub.DisplayedTotalCents,
	}, nil
}

// MinPasswordLength applies to inline account creation.
const MinPasswordLength = 8

// RegistrationChildren converts the validated rows into registration children, applying the
// per-position discounts produced by the pricing ladder.
// PRE: len(discounts) == len(b.Children)
func (b Bundle) RegistrationChildren(discounts []int) []registration.Child {
	out := make([]registration.Child, len(b.Children))
	for i, c := range b.Children {
		out[i] = registration.Child{
			Position:      i,
			Name:          c.Name,
			Age:           c.Age,
			School:        c.School,
			MedicalNotes:  c.Medical,
			Allergies:     c.Allergies,
			Dietary:       c.Dietary,
			TShirtSize:    c.TShirtSize,
			DiscountCents: discounts[i],
		}
	}
	return out
}

// RegistrationPickups converts the validated pickup rows.
func (b Bundle) RegistrationPickups() []registration.Pickup {
	out := make([]registration.Pickup, len(b.Pickups))
	for i, p := range b.Pickups {
		out[i] = registration.Pickup{
			Position:     i,
			Name:         p.Name,
			Phone:        p.Phone,
			Relationship: p.Relationship,
		}
	}
	return out
}

// collect flattens validator errors into errs, keeping the first message per key.
func collect(errs FieldErrors, err error, suffix string) {
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["_form"] = "invalid submission"
		return
	}
	for _, fe := range verrs {
		key := fe.Field() + suffix
		if _, exists := errs[key]; exists {
			continue
		}
		errs[key] = message(fe)
	}
}

func message(fe validator.FieldError) string {
	switch fe.Field() {
	case KeySessionIDs:
		if fe.Tag() == "min" {
			return "select at least one session"
		}
	case KeyParentEmail:
		if fe.Tag() == "contains" {
			return "must be a valid email address"
		}
	case "child_age":
		return "age must be between 1 and 18"
	}

	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Bool {
			return "must be accepted"
		}
		return "is required"
	case "required_with":
		return "phone is required for each pickup"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}
