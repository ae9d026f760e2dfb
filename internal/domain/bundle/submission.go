package bundle

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Form keys shared by the flat encoding and the field-error map.
const (
	KeyProgram               = "program"
	KeySessionIDs            = "workshop_ids"
	KeyParentName            = "parent_name"
	KeyParentEmail           = "parent_email"
	KeyParentPhone           = "parent_phone"
	KeyParentRelationship    = "parent_relationship"
	KeyEmergencyName         = "emergency_name"
	KeyEmergencyPhone        = "emergency_phone"
	KeyEmergencyRelationship = "emergency_relationship"
	KeyPaymentMethod         = "payment_method"
	KeyAgreeWaiver           = "agree_waiver"
	KeyAgreeTerms            = "agree_terms"
	KeyAgreeBehavior         = "agree_behavior"
	KeyMediaInternal         = "media_consent_internal"
	KeyMediaMarketing        = "media_consent_marketing"
	KeyHowHeard              = "how_heard"
	KeyComments              = "comments"
	KeyCreateAccount         = "create_account"
	KeyAccountPassword       = "account_password"
	KeyDisplayedTotal        = "displayed_total_cents"
	KeyChildren              = "children"
	KeyPickups               = "pickups"

	// KeyHoneypot is rendered hidden; people leave it empty, bots fill it in.
	KeyHoneypot = "website"
)

// MaxChildren bounds how many indexed child rows are decoded from one submission.
const MaxChildren = 12

// ChildInput is one child row as submitted.
type ChildInput struct {
	Index      int    `json:"-"`
	Name       string `json:"name" form:"child_name" validate:"min=2,max=100"`
	Age        int    `json:"age" form:"child_age" validate:"min=1,max=18"`
	School     string `json:"school" form:"child_school" validate:"max=200"`
	Medical    string `json:"medical" form:"child_medical" validate:"max=2000"`
	Allergies  string `json:"allergies" form:"child_allergies" validate:"max=2000"`
	Dietary    string `json:"dietary" form:"child_dietary" validate:"max=2000"`
	TShirtSize string `json:"tshirt_size" form:"child_tshirt" validate:"max=10"`
}

// PickupInput is one authorized-pickup row as submitted.
type PickupInput struct {
	Index        int    `json:"-"`
	Name         string `json:"name" form:"pickup_name" validate:"omitempty,min=2,max=100"`
	Phone        string `json:"phone" form:"pickup_phone" validate:"required_with=Name,max=30"`
	Relationship string `json:"relationship" form:"pickup_relationship" validate:"max=50"`
}

// Submission is the decoded, not yet validated registration bundle.
// Children and pickups are ordered; position in the slice is registration order.
type Submission struct {
	ProgramType string   `json:"program"`
	SessionIDs  []string `json:"workshop_ids"`

	ParentName         string `json:"parent_name"`
	ParentEmail        string `json:"parent_email"`
	ParentPhone        string `json:"parent_phone"`
	ParentRelationship string `json:"parent_relationship"`

	EmergencyName         string `json:"emergency_name"`
	EmergencyPhone        string `json:"emergency_phone"`
	EmergencyRelationship string `json:"emergency_relationship"`

	Children []ChildInput  `json:"children"`
	Pickups  []PickupInput `json:"pickups"`

	PaymentMethod string `json:"payment_method"`

	AgreeWaiver   bool `json:"agree_waiver"`
	AgreeTerms    bool `json:"agree_terms"`
	AgreeBehavior bool `json:"agree_behavior"`

	MediaConsentInternal  bool `json:"media_consent_internal"`
	MediaConsentMarketing bool `json:"media_consent_marketing"`

	HowHeard string `json:"how_heard"`
	Comments string `json:"comments"`

	CreateAccount   bool   `json:"create_account"`
	AccountPassword string `json:"account_password"`

	// DisplayedTotalCents is the client's price projection; informational only.
	DisplayedTotalCents *int `json:"displayed_total_cents,omitempty"`

	Honeypot string `json:"website"`
}

// IsSpam reports whether the honeypot field was filled in.
func (s Submission) IsSpam() bool {
	return strings.TrimSpace(s.Honeypot) != ""
}

// Normalize trims whitespace and reindexes rows decoded from JSON.
// POST: every string field trimmed; email lower-cased; blank rows dropped
func (s *Submission) Normalize() {
	s.ProgramType = strings.ToLower(strings.TrimSpace(s.ProgramType))
	s.ParentName = strings.TrimSpace(s.ParentName)
	s.ParentEmail = strings.ToLower(strings.TrimSpace(s.ParentEmail))
	s.ParentPhone = strings.TrimSpace(s.ParentPhone)
	s.ParentRelationship = strings.TrimSpace(s.ParentRelationship)
	s.EmergencyName = strings.TrimSpace(s.EmergencyName)
	s.EmergencyPhone = strings.TrimSpace(s.EmergencyPhone)
	s.EmergencyRelationship = strings.TrimSpace(s.EmergencyRelationship)
	s.PaymentMethod = strings.TrimSpace(s.PaymentMethod)
	s.HowHeard = strings.TrimSpace(s.HowHeard)
	s.Comments = strings.TrimSpace(s.Comments)

	ids := s.SessionIDs[:0]
	seen := make(map[string]bool, len(s.SessionIDs))
	for _, id := range s.SessionIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	s.SessionIDs = ids

	children := s.Children[:0]
	for i, c := range s.Children {
		c.Name = strings.TrimSpace(c.Name)
		c.School = strings.TrimSpace(c.School)
		c.Medical = strings.TrimSpace(c.Medical)
		c.Allergies = strings.TrimSpace(c.Allergies)
		c.Dietary = strings.TrimSpace(c.Dietary)
		c.TShirtSize = strings.TrimSpace(c.TShirtSize)
		if c.Index == 0 && i > 0 {
			c.Index = i
		}
		if c.Name == "" && c.Age == 0 && c.School == "" && c.Medical == "" && c.Allergies == "" && c.Dietary == "" && c.TShirtSize == "" {
			continue
		}
		children = append(children, c)
	}
	s.Children = children

	pickups := s.Pickups[:0]
	for i, p := range s.Pickups {
		p.Name = strings.TrimSpace(p.Name)
		p.Phone = strings.TrimSpace(p.Phone)
		p.Relationship = strings.TrimSpace(p.Relationship)
		if p.Index == 0 && i > 0 {
			p.Index = i
		}
		if p.Name == "" && p.Phone == "" && p.Relationship == "" {
			continue
		}
		pickups = append(pickups, p)
	}
	s.Pickups = pickups
}

var indexedKey = regexp.MustCompile(`^(child|pickup)_([a-z]+)_(\d+)$`)

// DecodeForm turns the flat indexed field encoding into an ordered Submission.
// Rows are ordered by their index; rows with every field blank are dropped.
// PRE: values is a parsed form
// POST: Returns a normalized Submission; never fails on malformed input
func DecodeForm(values url.Values) Submission {
	s := Submission{
		ProgramType:           values.Get(KeyProgram),
		SessionIDs:            splitIDs(values[KeySessionIDs]),
		ParentName:            values.Get(KeyParentName),
		ParentEmail:           values.Get(KeyParentEmail),
		ParentPhone:           values.Get(KeyParentPhone),
		ParentRelationship:    values.Get(KeyParentRelationship),
		EmergencyName:         values.Get(KeyEmergencyName),
		EmergencyPhone:        values.Get(KeyEmergencyPhone),
		EmergencyRelationship: values.Get(KeyEmergencyRelationship),
		PaymentMethod:         values.Get(KeyPaymentMethod),
		AgreeWaiver:           truthy(values.Get(KeyAgreeWaiver)),
		AgreeTerms:            truthy(values.Get(KeyAgreeTerms)),
		AgreeBehavior:         truthy(values.Get(KeyAgreeBehavior)),
		MediaConsentInternal:  truthy(values.Get(KeyMediaInternal)),
		MediaConsentMarketing: truthy(values.Get(KeyMediaMarketing)),
		HowHeard:              values.Get(KeyHowHeard),
		Comments:              values.Get(KeyComments),
		CreateAccount:         truthy(values.Get(KeyCreateAccount)),
		AccountPassword:       values.Get(KeyAccountPassword),
		Honeypot:              values.Get(KeyHoneypot),
	}
	if v := values.Get(KeyDisplayedTotal); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.DisplayedTotalCents = &n
		}
	}

	children := map[int]*ChildInput{}
	pickups := map[int]*PickupInput{}
	for key, vals := range values {
		m := indexedKey.FindStringSubmatch(key)
		if m == nil || len(vals) == 0 {
			continue
		}
		idx, err := strconv.Atoi(m[3])
		if err != nil || idx >= MaxChildren*2 {
			continue
		}
		v := vals[0]
		switch m[1] {
		case "child":
			if idx >= MaxChildren {
				continue
			}
			c, ok := children[idx]
			if !ok {
				c = &ChildInput{Index: idx}
				children[idx] = c
			}
			setChildField(c, m[2], v)
		case "pickup":
			p, ok := pickups[idx]
			if !ok {
				p = &PickupInput{Index: idx}
				pickups[idx] = p
			}
			setPickupField(p, m[2], v)
		}
	}
	for _, idx := range sortedKeys(children) {
		s.Children = append(s.Children, *children[idx])
	}
	for _, idx := range sortedKeys(pickups) {
		s.Pickups = append(s.Pickups, *pickups[idx])
	}

	s.Normalize()
	return s
}

func setChildField(c *ChildInput, field, v string) {
	switch field {
	case "name":
		c.Name = v
	case "age":
		// Unparseable ages decode as 0 and fail the range rule.
		c.Age, _ = strconv.Atoi(strings.TrimSpace(v))
	case "school":
		c.School = v
	case "medical":
		c.Medical = v
	case "allergies":
		c.Allergies = v
	case "dietary":
		c.Dietary = v
	case "tshirt":
		c.TShirtSize = v
	}
}

func setPickupField(p *PickupInput, field, v string) {
	switch field {
	case "name":
		p.Name = v
	case "phone":
		p.Phone = v
	case "relationship":
		p.Relationship = v
	}
}

// splitIDs accepts repeated keys as well as a single comma-separated value.
func splitIDs(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			out = append(out, part)
		}
	}
	return out
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func sortedKeys[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
