package intake

import (
	"time"

	"registrar/internal/domain/accountsettings"
	"registrar/internal/domain/bundle"
	"registrar/internal/domain/linkage"
	"registrar/internal/domain/pricing"
	"registrar/internal/domain/program"
)

// DraftRequest is what the browser sends on each change.
type DraftRequest struct {
	Submission bundle.Submission `json:"submission"`
	Touched    []Section         `json:"touched"`
	Linkage    linkage.State     `json:"linkage_state"`
}

// Draft is the merged form state returned to the browser.
type Draft struct {
	Submission bundle.Submission `json:"submission"`
	Touched    []Section         `json:"touched"`
	Mode       Mode              `json:"mode"`
	Applied    []Section         `json:"applied_defaults"`
	Quote      *pricing.Quote    `json:"quote,omitempty"`
}

// BuildDraft merges optional account defaults into the request and attaches a quote.
// PRE: settings is nil unless the caller is signed in
// POST: Touched sections in the request are returned unchanged
func BuildDraft(req DraftRequest, settings *accountsettings.Settings, catalog *program.Catalog, now time.Time) Draft {
	req.Submission.Normalize()
	f := NewForm(req.Submission, req.Linkage, req.Touched)

	var applied []Section
	if settings != nil && f.Mode() == ModeAuthenticated {
		maxPickups := NoPickupLimit
		if t, err := program.ParseType(f.Submission.ProgramType); err == nil {
			if cfg, err := catalog.Get(t); err == nil {
				maxPickups = cfg.MaxPickups
			}
		}
		applied = f.ApplyDefaults(*settings, now, maxPickups)
	}

	d := Draft{
		Submission: f.Submission,
		Touched:    f.TouchedSections(),
		Mode:       f.Mode(),
		Applied:    applied,
	}
	if q, ok := f.Quote(catalog); ok {
		d.Quote = &q
	}
	return d
}
