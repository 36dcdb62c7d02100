package winning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/db/option"
	"payouts-controlplane/pkg/db/pagination"
	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/featureflags"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EligibilityChecker answers whether a user may currently be paid.
type EligibilityChecker interface {
	IsEligible(ctx context.Context, userID string) (bool, error)
}

// ReconcileTrigger starts an eligibility reconciliation pass for users.
type ReconcileTrigger interface {
	TriggerReconcile(ctx context.Context, userIDs ...string) error
}

type Service struct {
	node  *snowflake.Node
	store Store

	winnings repository.Repository[Winning]
	audits   repository.Repository[Audit]

	eligibility EligibilityChecker
	reconcile   ReconcileTrigger
	flags       featureflags.FeatureFlag

	revertAfter     time.Duration
	defaultCurrency string
	nowFn           func() time.Time
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Node        *snowflake.Node
	Config      *config.Config
	Eligibility EligibilityChecker
	Reconcile   ReconcileTrigger         `optional:"true"`
	Flags       featureflags.FeatureFlag `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	currency := p.Config.Payments.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}

	return &Service{
		node:            p.Node,
		store:           NewStore(p.DB),
		winnings:        repository.ProvideStore[Winning](p.DB),
		audits:          repository.ProvideStore[Audit](p.DB),
		eligibility:     p.Eligibility,
		reconcile:       p.Reconcile,
		flags:           p.Flags,
		revertAfter:     p.Config.RevertThreshold(),
		defaultCurrency: currency,
		nowFn:           time.Now,
	}
}

type InstallmentRequest struct {
	Amount      decimal.Decimal
	ReleaseDate *time.Time
}

type CreateWinningRequest struct {
	WinnerID       string
	Type           WinningType
	Category       string
	Title          string
	Description    string
	ExternalID     string
	Origin         string
	Attributes     map[string]any
	Currency       string
	BillingAccount string
	CreatedBy      string
	Installments   []InstallmentRequest
}

func (r CreateWinningRequest) validate() error {
	var details []errutil.Detail
	if strings.TrimSpace(r.WinnerID) == "" {
		details = append(details, errutil.Detail{Field: "winner_id", Message: "is required"})
	}
	if r.Type != TypePayment && r.Type != TypeReward {
		details = append(details, errutil.Detail{Field: "type", Message: "must be PAYMENT or REWARD"})
	}
	if len(r.Installments) == 0 {
		details = append(details, errutil.Detail{Field: "installments", Message: "at least one installment is required"})
	}
	for i, in := range r.Installments {
		if !in.Amount.IsPositive() {
			details = append(details, errutil.Detail{Field: fmt.Sprintf("installments[%d].amount", i), Message: "must be greater than zero"})
		}
	}
	if len(details) > 0 {
		return errutil.InvalidRequest("invalid winning", nil, errutil.WithDetails(details...))
	}
	return nil
}

// CreateWinning stores a winning with one payment per installment. Every
// payment starts at version 1, OWED when the winner is eligible, else ON_HOLD.
func (s *Service) CreateWinning(ctx context.Context, req CreateWinningRequest) (*Winning, error) {
	log := logger.FromContext(ctx, zap.String("winner_id", req.WinnerID))

	if err := req.validate(); err != nil {
		return nil, err
	}

	eligible, err := s.eligibility.IsEligible(ctx, req.WinnerID)
	if err != nil {
		log.Error("failed to check eligibility", zap.Error(err))
		return nil, err
	}

	status := StatusOnHold
	if eligible {
		status = StatusOwed
	}

	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	var attrs datatypes.JSON
	if len(req.Attributes) > 0 {
		b, err := json.Marshal(req.Attributes)
		if err != nil {
			return nil, errutil.InvalidRequest("attributes must be a JSON object", err)
		}
		attrs = datatypes.JSON(b)
	}

	w := &Winning{
		ID:          s.node.Generate().String(),
		WinnerID:    req.WinnerID,
		Type:        req.Type,
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		ExternalID:  req.ExternalID,
		Origin:      req.Origin,
		Attributes:  attrs,
		CreatedBy:   req.CreatedBy,
	}
	for i, in := range req.Installments {
		w.Payments = append(w.Payments, &Payment{
			ID:                s.node.Generate().String(),
			WinningID:         w.ID,
			InstallmentNumber: i + 1,
			GrossAmount:       in.Amount,
			NetAmount:         in.Amount,
			TotalAmount:       in.Amount,
			Currency:          currency,
			Status:            status,
			ReleaseDate:       in.ReleaseDate,
			Version:           1,
			BillingAccount:    req.BillingAccount,
			CreatedBy:         req.CreatedBy,
		})
	}

	if err := s.store.CreateWinning(ctx, w); err != nil {
		log.Error("failed to create winning", zap.Error(err))
		return nil, errutil.Internal("failed to create winning", err)
	}

	log.Info("winning created",
		zap.String("winning_id", w.ID),
		zap.Int("installments", len(w.Payments)),
		zap.String("status", string(status)),
	)

	return s.GetWinning(ctx, w.ID)
}

func (s *Service) GetWinning(ctx context.Context, id string) (*Winning, error) {
	w, err := s.store.GetWinning(ctx, id)
	if err != nil {
		return nil, errutil.Internal("failed to load winning", err)
	}
	if w == nil {
		return nil, errutil.NotFound(fmt.Sprintf("winning %s not found", id), nil)
	}
	return w, nil
}

// Audits returns the audit trail of a winning, newest first.
func (s *Service) Audits(ctx context.Context, winningID string) ([]*Audit, error) {
	audits, err := s.audits.Find(ctx, &Audit{WinningID: winningID}, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	if err != nil {
		return nil, errutil.Internal("failed to load audits", err)
	}
	return audits, nil
}

type ListFilter struct {
	WinnerID string
	Type     WinningType
	Scope    func(*gorm.DB) *gorm.DB
	Page     pagination.Pagination
}

// ListWinnings pages through winnings ordered by id. Scope carries the
// caller's access filter.
func (s *Service) ListWinnings(ctx context.Context, f ListFilter) ([]*Winning, pagination.PageInfo, error) {
	page := f.Page.Normalize()

	opts := []option.QueryOption{
		option.WithPreload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("installment_number ASC") }),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "asc", Allow: map[string]bool{"id": true}}),
		option.WithLimit(page.Limit + 1),
	}
	if f.Scope != nil {
		opts = append(opts, option.WithScopes(f.Scope))
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, pagination.PageInfo{}, errutil.InvalidRequest("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.GT, Value: cursor.ID}))
	}

	rows, err := s.winnings.Find(ctx, &Winning{WinnerID: f.WinnerID, Type: f.Type}, opts...)
	if err != nil {
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list winnings", err)
	}

	rows, info := pagination.Paginate(rows, page.Limit, func(w *Winning) pagination.Cursor {
		return pagination.Cursor{ID: w.ID}
	})
	return rows, info, nil
}

func (s *Service) amountEditStates(ctx context.Context, actingUserID string) map[PaymentStatus]bool {
	if s.flags != nil && s.flags.Enabled(ctx, actingUserID, featureflags.AmountEditAfterPayment) {
		return ExtendedAmountEditStates()
	}
	return DefaultAmountEditStates()
}

type loaded struct {
	winning  *Winning
	payments []*Payment
	pending  map[string][]*PaymentRelease
}

func (s *Service) load(ctx context.Context, st Store, winningID, paymentID string) (*loaded, error) {
	w, err := st.GetWinning(ctx, winningID)
	if err != nil {
		return nil, errutil.Internal("failed to load winning", err)
	}
	if w == nil {
		return nil, errutil.NotFound(fmt.Sprintf("winning %s not found", winningID), nil)
	}

	payments, err := st.ListPayments(ctx, winningID, paymentID)
	if err != nil {
		return nil, errutil.Internal("failed to load payments", err)
	}

	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.ID)
	}

	pending, err := st.PendingReleases(ctx, ids)
	if err != nil {
		return nil, errutil.Internal("failed to load payment releases", err)
	}

	return &loaded{winning: w, payments: payments, pending: pending}, nil
}

// ApplyUpdate validates and applies a status, release date, amount and/or
// description change to a winning's payments. All writes commit together or
// not at all. A payment written by someone else since it was read yields a
// Conflict and nothing changes.
func (s *Service) ApplyUpdate(ctx context.Context, winningID string, req UpdateRequest) (*Winning, error) {
	log := logger.FromContext(ctx,
		zap.String("winning_id", winningID),
		zap.String("payment_id", req.PaymentID),
		zap.String("acting_user_id", req.ActingUserID),
	)

	p := planner{
		now:          s.nowFn(),
		revertAfter:  s.revertAfter,
		amountStates: s.amountEditStates(ctx, req.ActingUserID),
	}

	snapshot, err := s.load(ctx, s.store, winningID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if _, err := p.plan(snapshot.winning, snapshot.payments, snapshot.pending, req); err != nil {
		log.Warn("update rejected", zap.Error(err))
		return nil, err
	}

	seen := make(map[string]int64, len(snapshot.payments))
	for _, pay := range snapshot.payments {
		seen[pay.ID] = pay.Version
	}

	var intents []intent
	err = s.store.Transaction(ctx, func(tx Store) error {
		fresh, err := s.load(ctx, tx, winningID, req.PaymentID)
		if err != nil {
			return err
		}

		for _, pay := range fresh.payments {
			if v, ok := seen[pay.ID]; !ok || v != pay.Version {
				versionConflicts.Inc()
				return errutil.Conflict(fmt.Sprintf("payment %s was modified concurrently, reload and retry", pay.ID), nil)
			}
		}

		intents, err = p.plan(fresh.winning, fresh.payments, fresh.pending, req)
		if err != nil {
			return err
		}

		return s.execute(ctx, tx, fresh, intents, req)
	})
	if err != nil {
		log.Warn("update aborted", zap.Error(err))
		return nil, err
	}

	log.Info("winning updated", zap.Int("writes", len(intents)))

	if hasOwedTransition(intents) {
		s.triggerReconcile(ctx, snapshot.winning.WinnerID)
	}

	return s.GetWinning(ctx, winningID)
}

func (s *Service) execute(ctx context.Context, tx Store, l *loaded, intents []intent, req UpdateRequest) error {
	versions := make(map[string]int64, len(l.payments))
	for _, pay := range l.payments {
		versions[pay.ID] = pay.Version
	}

	var note *string
	if strings.TrimSpace(req.Note) != "" {
		n := req.Note
		note = &n
	}

	var audits []*Audit
	for _, in := range intents {
		if in.description != nil {
			if err := tx.UpdateWinningDescription(ctx, l.winning.ID, *in.description); err != nil {
				return err
			}
		}

		if len(in.failReleases) > 0 {
			if err := tx.UpdateReleaseStatus(ctx, in.failReleases, ReleaseFailed); err != nil {
				return err
			}
		}

		values := make(map[string]any, len(in.values)+1)
		for k, v := range in.values {
			values[k] = v
		}
		values["updated_by"] = req.ActingUserID

		if err := tx.UpdatePayment(ctx, in.paymentID, versions[in.paymentID], values); err != nil {
			return err
		}
		versions[in.paymentID]++

		if in.primary {
			audits = append(audits, &Audit{
				ID:        s.node.Generate().String(),
				WinningID: l.winning.ID,
				UserID:    req.ActingUserID,
				Action:    in.audit,
				Note:      note,
			})
		}
	}

	return tx.AppendAudits(ctx, audits)
}

func (s *Service) triggerReconcile(ctx context.Context, userID string) {
	if s.reconcile == nil {
		return
	}
	if err := s.reconcile.TriggerReconcile(ctx, userID); err != nil {
		logger.FromContext(ctx).Warn("reconcile after update failed", zap.String("user_id", userID), zap.Error(err))
	}
}
