package bundle

import (
	"net/url"
	"testing"

	"registrar/internal/domain/program"
)

func validForm() url.Values {
	return url.Values{
		"program":         {"workshop"},
		"workshop_ids":    {"ws-1", "ws-2"},
		"parent_name":     {"Dana Parent"},
		"parent_email":    {"Dana@Example.com "},
		"emergency_name":  {"Sam Contact"},
		"emergency_phone": {"021 555 0100"},
		"payment_method":  {"bank_transfer"},
		"agree_waiver":    {"on"},
		"agree_terms":     {"on"},
		"child_name_0":    {"Ari"},
		"child_age_0":     {"9"},
		"child_name_1":    {"Bo"},
		"child_age_1":     {"7"},
		"pickup_name_0":   {"Gran"},
		"pickup_phone_0":  {"021 555 0199"},
	}
}

func TestDecodeForm_OrdersRowsAndNormalizes(t *testing.T) {
	form := validForm()
	form.Set("child_name_5", "Cy")
	form.Set("child_age_5", "5")
	form.Set("child_name_3", "  ")
	sub := DecodeForm(form)

	if sub.ParentEmail != "dana@example.com" {
		t.Errorf("ParentEmail=%q want dana@example.com", sub.ParentEmail)
	}
	if len(sub.Children) != 3 {
		t.Fatalf("children=%d want 3", len(sub.Children))
	}
	wantNames := []string{"Ari", "Bo", "Cy"}
	for i, c := range sub.Children {
		if c.Name != wantNames[i] {
			t.Errorf("child[%d]=%q want %q", i, c.Name, wantNames[i])
		}
	}
	if sub.Children[2].Index != 5 {
		t.Errorf("Index=%d want 5", sub.Children[2].Index)
	}
	if len(sub.SessionIDs) != 2 {
		t.Errorf("sessions=%d want 2", len(sub.SessionIDs))
	}
}

func TestDecodeForm_CommaSeparatedSessionsDeduplicated(t *testing.T) {
	form := validForm()
	form["workshop_ids"] = []string{"ws-1, ws-2", "ws-1"}
	sub := DecodeForm(form)
	if len(sub.SessionIDs) != 2 || sub.SessionIDs[0] != "ws-1" || sub.SessionIDs[1] != "ws-2" {
		t.Errorf("SessionIDs=%v want [ws-1 ws-2]", sub.SessionIDs)
	}
}

func TestValidate_ValidBundle(t *testing.T) {
	b, errs := Validate(DecodeForm(validForm()), program.DefaultCatalog())
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if b.Program.Type != program.TypeWorkshop {
		t.Errorf("Program=%s want workshop", b.Program.Type)
	}
	if len(b.Children) != 2 || len(b.Pickups) != 1 {
		t.Errorf("children=%d pickups=%d want 2, 1", len(b.Children), len(b.Pickups))
	}

	children := b.RegistrationChildren([]int{0, 1000})
	if children[1].Position != 1 || children[1].DiscountCents != 1000 {
		t.Errorf("child[1]=%+v want position 1 discount 1000", children[1])
	}
}

func TestValidate_MissingEmailAndSessions(t *testing.T) {
	form := validForm()
	form.Del("parent_email")
	form.Del("workshop_ids")

	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if len(errs) != 2 {
		t.Fatalf("errors=%v want exactly parent_email and workshop_ids", errs)
	}
	if !errs.Has(KeyParentEmail) || !errs.Has(KeySessionIDs) {
		t.Errorf("errors=%v want parent_email and workshop_ids", errs)
	}
}

func TestValidate_IndexedChildErrors(t *testing.T) {
	form := validForm()
	form.Set("child_name_1", "B")
	form.Set("child_age_1", "19")

	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has("child_name_1") {
		t.Errorf("missing child_name_1 in %v", errs)
	}
	if !errs.Has("child_age_1") {
		t.Errorf("missing child_age_1 in %v", errs)
	}
	if errs.Has("child_name_0") {
		t.Errorf("unexpected child_name_0 in %v", errs)
	}
}

func TestValidate_UnparseableAgeFails(t *testing.T) {
	form := validForm()
	form.Set("child_age_0", "nine")
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has("child_age_0") {
		t.Errorf("missing child_age_0 in %v", errs)
	}
}

func TestValidate_NoChildren(t *testing.T) {
	form := validForm()
	for _, k := range []string{"child_name_0", "child_age_0", "child_name_1", "child_age_1"} {
		form.Del(k)
	}
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has(KeyChildren) {
		t.Errorf("missing children error in %v", errs)
	}
}

func TestValidate_AgreementsRequired(t *testing.T) {
	form := validForm()
	form.Del("agree_waiver")
	form.Set("agree_terms", "off")
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has(KeyAgreeWaiver) || !errs.Has(KeyAgreeTerms) {
		t.Errorf("errors=%v want agree_waiver and agree_terms", errs)
	}
}

func TestValidate_PaymentMethodClosedSet(t *testing.T) {
	form := validForm()
	form.Set("payment_method", "crypto")
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has(KeyPaymentMethod) {
		t.Errorf("missing payment_method in %v", errs)
	}
}

func TestValidate_PickupLimitPerProgram(t *testing.T) {
	form := validForm()
	form.Set("pickup_name_1", "Aunt Jo")
	form.Set("pickup_phone_1", "021 555 0201")
	form.Set("pickup_name_2", "Uncle Lee")
	form.Set("pickup_phone_2", "021 555 0202")

	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has(KeyPickups) {
		t.Errorf("workshop: missing pickups error in %v", errs)
	}

	form.Set("program", "camp")
	for _, i := range []string{"0", "1"} {
		form.Set("child_school_"+i, "Hill School")
		form.Set("child_tshirt_"+i, "M")
		form.Set("child_medical_"+i, "none")
	}
	form.Set("agree_behavior", "on")
	_, errs = Validate(DecodeForm(form), program.DefaultCatalog())
	if errs.Has(KeyPickups) {
		t.Errorf("camp allows three pickups, got %v", errs)
	}
	if len(errs) != 0 {
		t.Errorf("camp: unexpected errors %v", errs)
	}
}

func TestValidate_PickupPhoneRequiredWithName(t *testing.T) {
	form := validForm()
	form.Del("pickup_phone_0")
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has("pickup_phone_0") {
		t.Errorf("missing pickup_phone_0 in %v", errs)
	}
}

func TestValidate_ProgramRequirements(t *testing.T) {
	form := validForm()
	form.Set("program", "music_school")
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has("child_school_0") || !errs.Has("child_school_1") {
		t.Errorf("music_school requires school, got %v", errs)
	}

	form.Set("program", "camp")
	_, errs = Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has(KeyAgreeBehavior) {
		t.Errorf("camp requires behavior agreement, got %v", errs)
	}
}

func TestValidate_UnknownProgram(t *testing.T) {
	form := validForm()
	form.Set("program", "bootcamp")
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has(KeyProgram) {
		t.Errorf("missing program error in %v", errs)
	}
}

func TestValidate_InlineAccountPassword(t *testing.T) {
	form := validForm()
	form.Set("create_account", "on")
	form.Set("account_password", "short")
	_, errs := Validate(DecodeForm(form), program.DefaultCatalog())
	if !errs.Has(KeyAccountPassword) {
		t.Errorf("missing account_password in %v", errs)
	}
}

func TestSubmission_IsSpam(t *testing.T) {
	form := validForm()
	if DecodeForm(form).IsSpam() {
		t.Error("empty honeypot flagged as spam")
	}
	form.Set("website", "http://spam.example")
	if !DecodeForm(form).IsSpam() {
		t.Error("filled honeypot not flagged")
	}
}

func TestNormalize_JSONRowsGetPositions(t *testing.T) {
	sub := Submission{
		Children: []ChildInput{{Name: " Ari ", Age: 9}, {}, {Name: "Bo", Age: 7}},
	}
	sub.Normalize()
	if len(sub.Children) != 2 {
		t.Fatalf("children=%d want 2", len(sub.Children))
	}
	if sub.Children[0].Name != "Ari" || sub.Children[1].Index != 2 {
		t.Errorf("children=%+v", sub.Children)
	}
}
