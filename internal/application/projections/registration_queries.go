package projections

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"registrar/internal/adapters/storage"
	"registrar/internal/adapters/storage/activity"
	"registrar/internal/adapters/storage/outbox"
	"registrar/internal/adapters/storage/registration"
	domainActivity "registrar/internal/domain/activity"
	domainOutbox "registrar/internal/domain/outbox"
	domainRegistration "registrar/internal/domain/registration"
)

const defaultRegistrationLimit = 100

// RegistrationReader is the read side of the registration store.
type RegistrationReader interface {
	GetByID(ctx context.Context, id string) (domainRegistration.Registration, error)
	ListChildren(ctx context.Context, registrationID string) ([]domainRegistration.Child, error)
	ListPickups(ctx context.Context, registrationID string) ([]domainRegistration.Pickup, error)
	List(ctx context.Context, filter registration.ListFilter) ([]domainRegistration.Registration, error)
}

// ActivityReader lists activity log entries.
type ActivityReader interface {
	List(ctx context.Context, filter activity.Filter) ([]domainActivity.Entry, error)
}

// OutboxReader lists outbox entries.
type OutboxReader interface {
	List(ctx context.Context, filter outbox.ListFilter) ([]domainOutbox.Entry, error)
}

// GetRegistrationListQuery carries admin list filters. Empty strings match everything.
type GetRegistrationListQuery struct {
	Status        string
	PaymentStatus string
	ProgramType   string
	SessionID     string
	NeedsRepair   *bool
	Limit         int
	Offset        int
}

// RegistrationRow is one line of the admin registration list.
type RegistrationRow struct {
	ID               string    `json:"id"`
	ProgramType      string    `json:"program_type"`
	ParentName       string    `json:"parent_name"`
	ParentEmail      string    `json:"parent_email"`
	SessionCount     int       `json:"session_count"`
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"payment_status"`
	TotalAmountCents int       `json:"total_amount_cents"`
	AmountPaidCents  int       `json:"amount_paid_cents"`
	BalanceCents     int       `json:"balance_cents"`
	NeedsRepair      bool      `json:"needs_repair"`
	Linked           bool      `json:"linked"`
	CreatedAt        time.Time `json:"created_at"`
}

// GetRegistrationListResult carries the query result.
type GetRegistrationListResult struct {
	Registrations []RegistrationRow `json:"registrations"`
	// NeedsRepair counts rows on this page whose child rows failed to persist.
	NeedsRepair int `json:"needs_repair"`
}

// GetRegistrationListDeps holds dependencies for GetRegistrationList.
type GetRegistrationListDeps struct {
	Registrations RegistrationReader
}

// QueryGetRegistrationList returns registrations for the admin list, newest first.
// PRE: Caller passed the admin allow-list
// POST: Rows match every non-empty filter; Limit defaults to 100
func QueryGetRegistrationList(ctx context.Context, query GetRegistrationListQuery, deps GetRegistrationListDeps) (GetRegistrationListResult, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultRegistrationLimit
	}
	regs, err := deps.Registrations.List(ctx, registration.ListFilter{
		Status:        query.Status,
		PaymentStatus: query.PaymentStatus,
		ProgramType:   query.ProgramType,
		SessionID:     query.SessionID,
		NeedsRepair:   query.NeedsRepair,
		Limit:         limit,
		Offset:        query.Offset,
	})
	if err != nil {
		return GetRegistrationListResult{}, err
	}

	result := GetRegistrationListResult{Registrations: make([]RegistrationRow, 0, len(regs))}
	for _, r := range regs {
		result.Registrations = append(result.Registrations, RegistrationRow{
			ID:               r.ID,
			ProgramType:      string(r.ProgramType),
			ParentName:       r.ParentName,
			ParentEmail:      r.ParentEmail,
			SessionCount:     r.SessionCount,
			Status:           r.Status,
			PaymentStatus:    r.PaymentStatus,
			TotalAmountCents: r.TotalAmountCents,
			AmountPaidCents:  r.AmountPaidCents,
			BalanceCents:     r.BalanceCents(),
			NeedsRepair:      r.NeedsRepair,
			Linked:           r.AccountID != "",
			CreatedAt:        r.CreatedAt,
		})
		if r.NeedsRepair {
			result.NeedsRepair++
		}
	}
	return result, nil
}

// GetRegistrationDetailQuery identifies one registration.
type GetRegistrationDetailQuery struct {
	RegistrationID string
}

// GetRegistrationDetailResult is the full admin view of a registration.
type GetRegistrationDetailResult struct {
	Registration domainRegistration.Registration `json:"registration"`
	Children     []domainRegistration.Child      `json:"children"`
	Pickups      []domainRegistration.Pickup     `json:"pickups"`
	History      []domainActivity.Entry          `json:"history"`
	Outbox       []domainOutbox.Entry            `json:"outbox"`
	BalanceCents int                             `json:"balance_cents"`
	// TotalVerified is false when the stored total disagrees with the stored child
	// discounts, or when the child rows are missing.
	TotalVerified bool   `json:"total_verified"`
	TotalProblem  string `json:"total_problem,omitempty"`
}

// GetRegistrationDetailDeps holds dependencies for GetRegistrationDetail.
type GetRegistrationDetailDeps struct {
	Registrations RegistrationReader
	Activity      ActivityReader // optional
	Outbox        OutboxReader   // optional
}

// QueryGetRegistrationDetail loads a registration with its dependents and history.
// PRE: Caller passed the admin allow-list
// POST: Returns storage.ErrNotFound for unknown IDs; total is re-derived from stored values
func QueryGetRegistrationDetail(ctx context.Context, query GetRegistrationDetailQuery, deps GetRegistrationDetailDeps) (GetRegistrationDetailResult, error) {
	reg, err := deps.Registrations.GetByID(ctx, query.RegistrationID)
	if err != nil {
		return GetRegistrationDetailResult{}, err
	}
	children, err := deps.Registrations.ListChildren(ctx, reg.ID)
	if err != nil {
		return GetRegistrationDetailResult{}, err
	}
	pickups, err := deps.Registrations.ListPickups(ctx, reg.ID)
	if err != nil {
		return GetRegistrationDetailResult{}, err
	}

	result := GetRegistrationDetailResult{
		Registration:  reg,
		Children:      children,
		Pickups:       pickups,
		BalanceCents:  reg.BalanceCents(),
		TotalVerified: true,
	}
	if err := reg.VerifyTotal(children); err != nil {
		result.TotalVerified = false
		result.TotalProblem = err.Error()
		if !errors.Is(err, domainRegistration.ErrNoChildren) || !reg.NeedsRepair {
			slog.Warn("registration_total_unverified", "registration_id", reg.ID, "error", err)
		}
	}

	if deps.Activity != nil {
		result.History, err = deps.Activity.List(ctx, activity.Filter{
			EntityType: string(domainActivity.EntityRegistration),
			EntityID:   reg.ID,
		})
		if err != nil {
			return GetRegistrationDetailResult{}, err
		}
	}
	if deps.Outbox != nil {
		result.Outbox, err = deps.Outbox.List(ctx, outbox.ListFilter{RegistrationID: reg.ID})
		if err != nil {
			return GetRegistrationDetailResult{}, err
		}
	}
	return result, nil
}

// IsNotFound reports whether a projection error means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
