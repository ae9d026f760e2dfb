package program_test

import (
	"errors"
	"strings"
	"testing"

	"registrar/internal/domain/program"
)

// TestParseType tests mapping of submitted keys onto the closed variant.
func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    program.Type
		wantErr bool
	}{
		{"workshop", program.TypeWorkshop, false},
		{" Camp ", program.TypeCamp, false},
		{"music_school", program.TypeMusicSchool, false},
		{"", "", true},
		{"kids", "", true},
	}
	for _, tt := range tests {
		got, err := program.ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseType(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

// TestDefaultCatalog_CampRequiresBehaviorAgreement verifies program-driven requirements.
func TestDefaultCatalog_CampRequiresBehaviorAgreement(t *testing.T) {
	cat := program.DefaultCatalog()
	camp, err := cat.Get(program.TypeCamp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !camp.Requires.BehaviorAgreement {
		t.Error("expected camp to require behavior agreement")
	}
	ws, _ := cat.Get(program.TypeWorkshop)
	if ws.Requires.BehaviorAgreement {
		t.Error("expected workshop not to require behavior agreement")
	}
	if len(cat.All()) != len(program.ValidTypes) {
		t.Errorf("catalog has %d configs want %d", len(cat.All()), len(program.ValidTypes))
	}
}

// TestNewCatalog_RequiresEveryType verifies a partial catalog is rejected.
func TestNewCatalog_RequiresEveryType(t *testing.T) {
	configs := program.DefaultConfigs()[:2]
	if _, err := program.NewCatalog(configs); !errors.Is(err, program.ErrMissingConfig) {
		t.Errorf("err=%v want ErrMissingConfig", err)
	}
}

// TestNewCatalog_RejectsDuplicate verifies one config per program type.
func TestNewCatalog_RejectsDuplicate(t *testing.T) {
	configs := append(program.DefaultConfigs(), program.DefaultConfigs()[0])
	if _, err := program.NewCatalog(configs); err == nil {
		t.Error("expected error for duplicate program type")
	}
}

// TestLoadCatalog decodes a JSON catalog.
func TestLoadCatalog(t *testing.T) {
	js := `[
	{"type":"workshop","name":"W","base_price_cents":5000,"discount_step_cents":500,"discount_cap_cents":1000,"max_pickups":2},
	{"type":"camp","name":"C","base_price_cents":30000,"discount_step_cents":2000,"discount_cap_cents":4000,"max_pickups":3,"requires":{"behavior_agreement":true}},
	{"type":"music_school","name":"M","base_price_cents":10000,"discount_step_cents":0,"discount_cap_cents":0,"max_pickups":1}
	]`
	cat, err := program.LoadCatalog(strings.NewReader(js))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ws, _ := cat.Get(program.TypeWorkshop)
	if ws.Ladder().BasePriceCents != 5000 {
		t.Errorf("base=%d want 5000", ws.Ladder().BasePriceCents)
	}

	bad := `[{"type":"school","name":"X"}]`
	if _, err := program.LoadCatalog(strings.NewReader(bad)); err == nil {
		t.Error("expected error for unknown program type")
	}
}

// TestConfig_Validate rejects negative money and pickups.
func TestConfig_Validate(t *testing.T) {
	cfg := program.DefaultConfigs()[0]
	cfg.DiscountCapCents = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative cap")
	}
	cfg = program.DefaultConfigs()[0]
	cfg.MaxPickups = -1
	if err := cfg.Validate(); !errors.Is(err, program.ErrInvalidPickups) {
		t.Errorf("err=%v want ErrInvalidPickups", err)
	}
}
