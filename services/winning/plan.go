package winning

import (
	"fmt"
	"time"

	"payouts-controlplane/pkg/errutil"

	"github.com/shopspring/decimal"
)

// UpdateRequest is an edit of one winning. PaymentID narrows it to a single
// installment; ExpectedVersion, when set together with PaymentID, must match
// that installment's current version.
type UpdateRequest struct {
	PaymentID       string
	Status          *PaymentStatus
	ReleaseDate     *time.Time
	Amount          *decimal.Decimal
	Description     *string
	Note            string
	ActingUserID    string
	ExpectedVersion *int64
}

func (r UpdateRequest) hasChanges() bool {
	return r.Status != nil || r.ReleaseDate != nil || r.Amount != nil || r.Description != nil
}

type intentKind string

const (
	intentStatus      intentKind = "status"
	intentReleaseDate intentKind = "release_date"
	intentAmount      intentKind = "amount"
	intentDescription intentKind = "description"
)

// intent is one version-gated write against a payment row, plus the side
// effects that must commit with it.
type intent struct {
	kind         intentKind
	paymentID    string
	primary      bool
	values       map[string]any
	toStatus     PaymentStatus
	description  *string
	failReleases []string
	audit        string
}

var editableStates = map[PaymentStatus]bool{
	StatusOwed:        true,
	StatusOnHold:      true,
	StatusOnHoldAdmin: true,
}

// DefaultAmountEditStates is where amount edits are allowed unless the
// deployment opts into editing paid and processing payments as well.
func DefaultAmountEditStates() map[PaymentStatus]bool {
	return map[PaymentStatus]bool{StatusOwed: true, StatusOnHold: true, StatusOnHoldAdmin: true}
}

func ExtendedAmountEditStates() map[PaymentStatus]bool {
	states := DefaultAmountEditStates()
	states[StatusPaid] = true
	states[StatusProcessing] = true
	return states
}

type planner struct {
	now          time.Time
	revertAfter  time.Duration
	amountStates map[PaymentStatus]bool
}

// plan validates req against the current rows and returns every write it
// implies. It never touches storage; an error means nothing may be written.
func (p planner) plan(w *Winning, payments []*Payment, pending map[string][]*PaymentRelease, req UpdateRequest) ([]intent, error) {
	if len(payments) == 0 {
		return nil, errutil.NotFound("no payments found for winning", nil)
	}

	for _, pay := range payments {
		if pay.Status == StatusCancelled {
			return nil, errutil.InvalidState(fmt.Sprintf("payment %s is cancelled and cannot be modified", pay.ID), nil)
		}
	}

	if !req.hasChanges() {
		return nil, errutil.InvalidRequest("at least one of status, release date, amount or description must be provided", nil)
	}

	if req.ExpectedVersion != nil && req.PaymentID != "" && payments[0].Version != *req.ExpectedVersion {
		return nil, errutil.Conflict(fmt.Sprintf("payment %s is at version %d, not %d", payments[0].ID, payments[0].Version, *req.ExpectedVersion), nil)
	}

	var intents []intent
	for _, pay := range payments {
		effective := pay.Status

		if req.Status != nil {
			in, err := p.statusIntent(pay, *req.Status, pending[pay.ID])
			if err != nil {
				return nil, err
			}
			if in != nil {
				intents = append(intents, *in)
				effective = in.toStatus
			}
		}

		if req.ReleaseDate != nil {
			if !editableStates[effective] {
				return nil, errutil.InvalidState(fmt.Sprintf("release date of a %s payment cannot be changed", effective), nil)
			}
			intents = append(intents, intent{
				kind:      intentReleaseDate,
				paymentID: pay.ID,
				primary:   pay.IsPrimary(),
				values:    map[string]any{"release_date": *req.ReleaseDate},
				audit:     fmt.Sprintf("Release date changed from %s to %s", formatDate(pay.ReleaseDate), formatDate(req.ReleaseDate)),
			})
		}

		if req.Amount != nil {
			in, err := p.amountIntent(pay, effective, *req.Amount)
			if err != nil {
				return nil, err
			}
			intents = append(intents, in)
		}
	}

	if req.Description != nil {
		gate := payments[0]
		for _, pay := range payments {
			if pay.IsPrimary() {
				gate = pay
				break
			}
		}
		intents = append(intents, intent{
			kind:        intentDescription,
			paymentID:   gate.ID,
			primary:     gate.IsPrimary(),
			values:      map[string]any{},
			description: req.Description,
			audit:       fmt.Sprintf("Description changed from %q to %q", w.Description, *req.Description),
		})
	}

	return intents, nil
}

func (p planner) statusIntent(pay *Payment, to PaymentStatus, pending []*PaymentRelease) (*intent, error) {
	from := pay.Status
	in := &intent{
		kind:      intentStatus,
		paymentID: pay.ID,
		primary:   pay.IsPrimary(),
		toStatus:  to,
		values:    map[string]any{"status": to},
		audit:     fmt.Sprintf("Status changed from %s to %s", from, to),
	}

	switch to {
	case StatusOnHoldAdmin, StatusCancelled:
		if from == StatusProcessing {
			return nil, errutil.InvalidState(fmt.Sprintf("payment %s is processing and cannot be moved to %s", pay.ID, to), nil)
		}
	case StatusOwed:
		if len(pending) > 0 {
			for _, r := range pending {
				if p.now.Sub(r.ReleaseDate) < p.revertAfter {
					return nil, errutil.InvalidState(fmt.Sprintf(
						"payment %s has been processing for less than %s and cannot be moved back to OWED", pay.ID, p.revertAfter), nil)
				}
				in.failReleases = append(in.failReleases, r.ID)
			}
		} else if from != to && from != StatusOnHoldAdmin && from != StatusPaid {
			return nil, errutil.InvalidState(fmt.Sprintf("payment %s cannot be moved from %s to OWED", pay.ID, from), nil)
		}

		switch from {
		case StatusPaid, StatusProcessing, StatusReturned, StatusFailed:
			in.values["date_paid"] = nil
		}
	default:
		return nil, errutil.InvalidRequest("invalid payment status provided", nil)
	}

	if from == to && len(in.failReleases) == 0 {
		return nil, nil
	}

	return in, nil
}

func (p planner) amountIntent(pay *Payment, effective PaymentStatus, amount decimal.Decimal) (intent, error) {
	if !amount.IsPositive() {
		return intent{}, errutil.InvalidRequest("amount must be greater than zero", nil)
	}
	if !p.amountStates[effective] {
		return intent{}, errutil.InvalidState(fmt.Sprintf("amount of a %s payment cannot be changed", effective), nil)
	}

	values := map[string]any{"total_amount": amount}
	if pay.IsPrimary() {
		values["gross_amount"] = amount
		values["net_amount"] = amount
	}

	return intent{
		kind:      intentAmount,
		paymentID: pay.ID,
		primary:   pay.IsPrimary(),
		values:    values,
		audit:     fmt.Sprintf("Amount changed from %s to %s", pay.TotalAmount.StringFixed(2), amount.StringFixed(2)),
	}, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.UTC().Format("2006-01-02")
}

func hasOwedTransition(intents []intent) bool {
	for _, in := range intents {
		if in.kind == intentStatus && in.toStatus == StatusOwed {
			return true
		}
	}
	return false
}
