package program

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"registrar/internal/domain/pricing"
)

// Type is the closed set of program kinds offered for registration.
type Type string

// Program type constants
const (
	TypeWorkshop    Type = "workshop"
	TypeCamp        Type = "camp"
	TypeMusicSchool Type = "music_school"
)

// ValidTypes contains all valid program types.
var ValidTypes = []Type{TypeWorkshop, TypeCamp, TypeMusicSchool}

// Domain errors
var (
	ErrUnknownType    = errors.New("program type must be one of: workshop, camp, music_school")
	ErrMissingConfig  = errors.New("program type has no configuration")
	ErrInvalidPickups = errors.New("max pickups cannot be negative")
)

// ParseType maps a submitted program key onto the closed variant.
// PRE: none
// POST: Returns ErrUnknownType for anything outside ValidTypes; there is no fallback
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(strings.ToLower(s)))
	for _, v := range ValidTypes {
		if v == t {
			return t, nil
		}
	}
	return "", ErrUnknownType
}

// Requirements lists which optional registration fields a program makes mandatory.
type Requirements struct {
	School            bool `json:"school"`
	Medical           bool `json:"medical"`
	TShirtSize        bool `json:"tshirt_size"`
	BehaviorAgreement bool `json:"behavior_agreement"`
}

// Config is the configuration record associated with one program type.
type Config struct {
	Type              Type         `json:"type"`
	Name              string       `json:"name"`
	BasePriceCents    int          `json:"base_price_cents"`
	DiscountStepCents int          `json:"discount_step_cents"`
	DiscountCapCents  int          `json:"discount_cap_cents"`
	MaxPickups        int          `json:"max_pickups"`
	Requires          Requirements `json:"requires"`
}

// Ladder returns the sibling-discount schedule for this program.
func (c Config) Ladder() pricing.Ladder {
	return pricing.Ladder{
		BasePriceCents:    c.BasePriceCents,
		DiscountStepCents: c.DiscountStepCents,
		DiscountCapCents:  c.DiscountCapCents,
	}
}

// Validate checks if the Config has valid data.
// PRE: Config struct is populated
// POST: Returns nil if valid, error otherwise
func (c Config) Validate() error {
	if _, err := ParseType(string(c.Type)); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("program %s: name cannot be empty", c.Type)
	}
	if err := c.Ladder().Validate(); err != nil {
		return fmt.Errorf("program %s: %w", c.Type, err)
	}
	if c.MaxPickups < 0 {
		return fmt.Errorf("program %s: %w", c.Type, ErrInvalidPickups)
	}
	return nil
}

// Catalog holds the configuration of every program type.
// INVARIANT: every entry has passed Validate and every ValidTypes member is present
type Catalog struct {
	configs map[Type]Config
}

// NewCatalog builds a catalog from a complete set of configs.
// PRE: configs contains exactly one valid entry per program type
// POST: Returns a catalog or the first validation error
func NewCatalog(configs []Config) (*Catalog, error) {
	c := &Catalog{configs: make(map[Type]Config, len(configs))}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.configs[cfg.Type]; dup {
			return nil, fmt.Errorf("program %s configured twice", cfg.Type)
		}
		c.configs[cfg.Type] = cfg
	}
	for _, t := range ValidTypes {
		if _, ok := c.configs[t]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, t)
		}
	}
	return c, nil
}

// Get returns the configuration for t.
func (c *Catalog) Get(t Type) (Config, error) {
	cfg, ok := c.configs[t]
	if !ok {
		return Config{}, ErrUnknownType
	}
	return cfg, nil
}

// All returns every config ordered by type.
func (c *Catalog) All() []Config {
	out := make([]Config, 0, len(c.configs))
	for _, cfg := range c.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// DefaultConfigs returns the built-in program configuration.
func DefaultConfigs() []Config {
	return []Config{
		{
			Type:              TypeWorkshop,
			Name:              "Saturday Workshops",
			BasePriceCents:    7500,
			DiscountStepCents: 1000,
			DiscountCapCents:  3000,
			MaxPickups:        2,
		},
		{
			Type:              TypeCamp,
			Name:              "Summer Camp",
			BasePriceCents:    35000,
			DiscountStepCents: 2500,
			DiscountCapCents:  5000,
			MaxPickups:        3,
			Requires: Requirements{
				School:            true,
				Medical:           true,
				TShirtSize:        true,
				BehaviorAgreement: true,
			},
		},
		{
			Type:              TypeMusicSchool,
			Name:              "Music School",
			BasePriceCents:    18000,
			DiscountStepCents: 1500,
			DiscountCapCents:  3000,
			MaxPickups:        2,
			Requires: Requirements{
				School: true,
			},
		},
	}
}

// DefaultCatalog returns a catalog over DefaultConfigs.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultConfigs())
	if err != nil {
		panic(fmt.Sprintf("default program catalog invalid: %v", err))
	}
	return c
}

// LoadCatalog decodes a JSON array of configs and validates it as a catalog.
// PRE: r yields a JSON array of Config objects
// POST: Returns a complete catalog or an error naming the problem
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var configs []Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&configs); err != nil {
		return nil, fmt.Errorf("decode program catalog: %w", err)
	}
	return NewCatalog(configs)
}
