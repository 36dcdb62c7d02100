package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/db/option"
	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/provider"
	"payouts-controlplane/pkg/repository"
	"payouts-controlplane/pkg/sequence"
	"payouts-controlplane/pkg/task"
	"payouts-controlplane/services/eligibility"
	"payouts-controlplane/services/winning"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Eligibility is the part of the eligibility oracle withdrawals depend on.
type Eligibility interface {
	HasActiveTaxForm(ctx context.Context, userID string) (bool, error)
	HasVerifiedPayoutMethod(ctx context.Context, userID string) (bool, error)
	PayoutMethod(ctx context.Context, userID string) (*eligibility.UserPaymentMethod, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	payments repository.Repository[winning.Payment]
	releases repository.Repository[winning.PaymentRelease]
	assocs   repository.Repository[winning.PaymentReleaseAssociation]

	eligibility Eligibility
	provider    provider.Client
	codes       sequence.Generator
	enqueuer    task.Enqueuer

	minPayout    decimal.Decimal
	asyncKickoff bool
	nowFn        func() time.Time
}

// settlementActor is recorded as the acting user of provider-driven changes.
const settlementActor = "provider"

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Node        *snowflake.Node
	Config      *config.Config
	Eligibility Eligibility
	Provider    provider.Client
	Codes       sequence.Generator `optional:"true"`
	Enqueuer    task.Enqueuer      `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:           p.DB,
		node:         p.Node,
		payments:     repository.ProvideStore[winning.Payment](p.DB),
		releases:     repository.ProvideStore[winning.PaymentRelease](p.DB),
		assocs:       repository.ProvideStore[winning.PaymentReleaseAssociation](p.DB),
		eligibility:  p.Eligibility,
		provider:     p.Provider,
		codes:        p.Codes,
		enqueuer:     p.Enqueuer,
		minPayout:    p.Config.MinPayout(),
		asyncKickoff: p.Config.Payments.AsyncBatchKickoff && p.Enqueuer != nil,
		nowFn:        time.Now,
	}
}

// Withdraw pays out the requested winnings of userID in one provider batch.
// Selected payments move to PROCESSING and a PENDING release is recorded in
// the same transaction as the provider calls, so a provider failure leaves
// nothing behind locally.
func (s *Service) Withdraw(ctx context.Context, userID, handle string, winningIDs []string) (*winning.PaymentRelease, error) {
	log := logger.FromContext(ctx, zap.String("user_id", userID), zap.Strings("winning_ids", winningIDs))

	ids := dedupe(winningIDs)
	if len(ids) == 0 {
		return nil, errutil.InvalidRequest("at least one winning id is required", nil)
	}

	hasTaxForm, err := s.eligibility.HasActiveTaxForm(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasTaxForm {
		return nil, errutil.InvalidRequest("an active tax form is required before withdrawing", nil)
	}

	hasMethod, err := s.eligibility.HasVerifiedPayoutMethod(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasMethod {
		return nil, errutil.InvalidRequest("a verified payout method is required before withdrawing", nil)
	}

	method, err := s.eligibility.PayoutMethod(ctx, userID)
	if err != nil {
		return nil, err
	}
	if method == nil || method.ProviderRecipientID == "" {
		return nil, errutil.InvalidRequest("a verified payout method is required before withdrawing", nil)
	}

	release := &winning.PaymentRelease{
		ID:           s.node.Generate().String(),
		UserID:       userID,
		Status:       winning.ReleasePending,
		PayoutMethod: method.PaymentMethodType,
		ReleaseDate:  s.nowFn().UTC(),
	}
	release.Code = s.releaseCode(ctx, log)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments, err := s.selectPayments(ctx, tx, userID, ids)
		if err != nil {
			return err
		}

		total, currency, err := s.total(payments)
		if err != nil {
			return err
		}
		release.TotalNetAmount = total
		release.Currency = currency

		paymentIDs := make([]string, 0, len(payments))
		for _, p := range payments {
			paymentIDs = append(paymentIDs, p.ID)
		}

		n, err := s.payments.WithTrx(tx).UpdateWhere(ctx,
			map[string]any{
				"status":     winning.StatusProcessing,
				"version":    gorm.Expr("version + 1"),
				"updated_by": userID,
			},
			option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: paymentIDs}),
			option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: winning.StatusOwed}),
		)
		if err != nil {
			return errutil.Internal("failed to mark payments processing", err)
		}
		if n != int64(len(paymentIDs)) {
			return errutil.Conflict("payments changed while withdrawing, reload and retry", nil)
		}

		meta, err := json.Marshal(map[string]any{
			"handle":      handle,
			"code":        release.Code,
			"winning_ids": ids,
		})
		if err != nil {
			return errutil.Internal("failed to encode release metadata", err)
		}
		release.Metadata = datatypes.JSON(meta)

		if err := s.releases.WithTrx(tx).Create(ctx, release); err != nil {
			return errutil.Internal("failed to create payment release", err)
		}

		assocs := make([]*winning.PaymentReleaseAssociation, 0, len(paymentIDs))
		for _, id := range paymentIDs {
			assocs = append(assocs, &winning.PaymentReleaseAssociation{PaymentReleaseID: release.ID, PaymentID: id})
		}
		if err := s.assocs.WithTrx(tx).BatchCreate(ctx, assocs); err != nil {
			return errutil.Internal("failed to link payments to release", err)
		}

		batchID, err := s.provider.OpenBatch(ctx, fmt.Sprintf("Winnings withdrawal %s for %s", release.Code, handle))
		if err != nil {
			return errutil.UpstreamFailure("failed to open provider batch", err)
		}

		txnID, err := s.provider.AddPayment(ctx, batchID, method.ProviderRecipientID, total, currency, ExternalID(release.ID, ids))
		if err != nil {
			return errutil.UpstreamFailure("failed to add payment to provider batch", err)
		}

		release.ProviderBatchID = batchID
		release.ExternalTransactionID = txnID
		if err := s.releases.WithTrx(tx).Update(ctx, release.ID, map[string]any{
			"provider_batch_id":       batchID,
			"external_transaction_id": txnID,
		}); err != nil {
			return errutil.Internal("failed to record provider batch", err)
		}

		return nil
	})
	if err != nil {
		log.Warn("withdrawal failed", zap.Error(err))
		return nil, err
	}

	log.Info("withdrawal submitted",
		zap.String("release_id", release.ID),
		zap.String("code", release.Code),
		zap.String("batch_id", release.ProviderBatchID),
		zap.String("amount", release.TotalNetAmount.StringFixed(2)),
	)

	s.kickoff(ctx, release)
	return release, nil
}

func (s *Service) releaseCode(ctx context.Context, log *zap.Logger) string {
	if s.codes == nil {
		return ""
	}
	code, err := s.codes.NextReleaseCode(ctx)
	if err != nil {
		log.Warn("failed to allocate release code", zap.Error(err))
		return ""
	}
	return code
}

// selectPayments loads the first installment of every requested winning owned
// by userID and checks each one is ready to be paid.
func (s *Service) selectPayments(ctx context.Context, tx *gorm.DB, userID string, winningIDs []string) ([]*winning.Payment, error) {
	owned := tx.Model(&winning.Winning{}).Select("id").Where("winner_id = ?", userID)

	rows, err := s.payments.WithTrx(tx).Find(ctx, &winning.Payment{InstallmentNumber: 1},
		option.ApplyOperator(option.Condition{Field: "winning_id", Operator: option.IN, Value: winningIDs}),
		option.WithScopes(func(db *gorm.DB) *gorm.DB { return db.Where("winning_id IN (?)", owned) }),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load payments", err)
	}

	byWinning := make(map[string]*winning.Payment, len(rows))
	for _, p := range rows {
		byWinning[p.WinningID] = p
	}

	now := s.nowFn()
	out := make([]*winning.Payment, 0, len(winningIDs))
	for _, id := range winningIDs {
		p, ok := byWinning[id]
		if !ok {
			return nil, errutil.NotFound(fmt.Sprintf("winning %s not found", id), nil)
		}
		switch {
		case p.Status != winning.StatusOwed:
			return nil, errutil.InvalidState(fmt.Sprintf("winning %s is %s and cannot be withdrawn", id, p.Status), nil)
		case p.DatePaid != nil:
			return nil, errutil.InvalidState(fmt.Sprintf("winning %s has already been paid", id), nil)
		case p.ReleaseDate != nil && p.ReleaseDate.After(now):
			return nil, errutil.InvalidState(fmt.Sprintf("winning %s is not released until %s", id, p.ReleaseDate.UTC().Format(time.RFC3339)), nil)
		}
		out = append(out, p)
	}

	return out, nil
}

func (s *Service) total(payments []*winning.Payment) (decimal.Decimal, string, error) {
	total := decimal.Zero
	currency := payments[0].Currency
	for _, p := range payments {
		if p.Currency != currency {
			return decimal.Zero, "", errutil.InvalidRequest("winnings in different currencies cannot be withdrawn together", nil)
		}
		total = total.Add(p.TotalAmount)
	}

	if total.LessThan(s.minPayout) {
		return decimal.Zero, "", errutil.InvalidRequest(fmt.Sprintf(
			"withdrawal total %s is below the minimum payout of %s", total.StringFixed(2), s.minPayout.StringFixed(2)), nil)
	}
	return total, currency, nil
}

// Event is a settlement outcome reported by the provider.
type Event struct {
	Status                string
	ExternalID            string
	ExternalTransactionID string
	OccurredAt            time.Time
}

var settledStatus = map[string]struct {
	payment winning.PaymentStatus
	release winning.ReleaseStatus
}{
	"processed": {winning.StatusPaid, winning.ReleaseProcessed},
	"failed":    {winning.StatusFailed, winning.ReleaseFailed},
	"returned":  {winning.StatusReturned, winning.ReleaseReturned},
}

// Settle applies a provider settlement to the payments and release it
// correlates to. Payment and release writes commit together.
func (s *Service) Settle(ctx context.Context, ev Event) error {
	target, ok := settledStatus[ev.Status]
	if !ok {
		return errutil.InvalidRequest(fmt.Sprintf("unknown settlement status %q", ev.Status), nil)
	}

	releaseID, winningIDs, err := ParseExternalID(ev.ExternalID)
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx, zap.String("release_id", releaseID), zap.String("status", ev.Status))

	paidAt := ev.OccurredAt
	if paidAt.IsZero() {
		paidAt = s.nowFn()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		release, err := s.releases.WithTrx(tx).FindOne(ctx, &winning.PaymentRelease{ID: releaseID})
		if err != nil {
			return errutil.Internal("failed to load payment release", err)
		}
		if release == nil && ev.ExternalTransactionID != "" {
			release, err = s.releases.WithTrx(tx).FindOne(ctx, &winning.PaymentRelease{ExternalTransactionID: ev.ExternalTransactionID})
			if err != nil {
				return errutil.Internal("failed to load payment release", err)
			}
		}
		if release == nil {
			return errutil.NotFound(fmt.Sprintf("payment release %s not found", releaseID), nil)
		}

		links, err := s.assocs.WithTrx(tx).Find(ctx, &winning.PaymentReleaseAssociation{PaymentReleaseID: release.ID})
		if err != nil {
			return errutil.Internal("failed to load release payments", err)
		}
		paymentIDs := make([]string, 0, len(links))
		for _, l := range links {
			paymentIDs = append(paymentIDs, l.PaymentID)
		}
		if len(paymentIDs) == 0 {
			return errutil.NotFound(fmt.Sprintf("payment release %s has no payments", release.ID), nil)
		}

		payments, err := s.payments.WithTrx(tx).Find(ctx, nil,
			option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: paymentIDs}),
			option.ApplyOperator(option.Condition{Field: "winning_id", Operator: option.IN, Value: winningIDs}),
			option.WithLockingUpdate(),
		)
		if err != nil {
			return errutil.Internal("failed to load release payments", err)
		}
		sort.Slice(payments, func(i, j int) bool { return payments[i].WinningID < payments[j].WinningID })

		st := winning.NewStore(tx)
		ids := make([]string, 0, len(payments))
		for _, p := range payments {
			ids = append(ids, p.ID)
		}
		pending, err := st.PendingReleases(ctx, ids)
		if err != nil {
			return errutil.Internal("failed to load pending releases", err)
		}

		var audits []*winning.Audit
		applied := 0
		for _, p := range payments {
			if p.Status == target.payment {
				continue
			}
			if owner := otherRelease(pending[p.ID], release.ID); owner != "" {
				log.Warn("payment belongs to a newer release, skipping",
					zap.String("payment_id", p.ID), zap.String("owner_release_id", owner))
				continue
			}
			applied++

			values := map[string]any{"status": target.payment, "updated_by": settlementActor}
			if target.payment == winning.StatusPaid {
				values["date_paid"] = paidAt
			}
			if err := st.UpdatePayment(ctx, p.ID, p.Version, values); err != nil {
				return err
			}

			if p.IsPrimary() {
				audits = append(audits, &winning.Audit{
					ID:        s.node.Generate().String(),
					WinningID: p.WinningID,
					UserID:    settlementActor,
					Action:    fmt.Sprintf("Status changed from %s to %s", p.Status, target.payment),
				})
			}
		}

		// A release disowned by a revert keeps its status unless the event still moved one of its payments.
		if release.Status != winning.ReleasePending && applied == 0 {
			log.Info("settlement for inactive release ignored", zap.String("release_status", string(release.Status)))
			return nil
		}
		if err := st.UpdateReleaseStatus(ctx, []string{release.ID}, target.release); err != nil {
			return err
		}
		return st.AppendAudits(ctx, audits)
	})
	if err != nil {
		log.Error("settlement failed", zap.Error(err))
		return err
	}

	log.Info("settlement applied", zap.Int("winnings", len(winningIDs)))
	return nil
}

// otherRelease returns the id of a pending release other than releaseID, if any.
func otherRelease(pending []*winning.PaymentRelease, releaseID string) string {
	for _, r := range pending {
		if r.ID != releaseID {
			return r.ID
		}
	}
	return ""
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
