package winning

import (
	"context"
	"errors"
	"fmt"

	"payouts-controlplane/pkg/db/option"
	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/repository"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var versionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "payments_version_conflicts_total",
	Help: "Payment writes rejected because the row version had moved.",
})

func init() {
	prometheus.MustRegister(versionConflicts)
}

// Store is the unit of work the state machine runs against. Transaction hands
// fn a Store bound to one database transaction; returning an error from fn
// rolls everything back, returning nil commits.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateWinning(ctx context.Context, w *Winning) error
	GetWinning(ctx context.Context, id string) (*Winning, error)
	ListPayments(ctx context.Context, winningID, paymentID string) ([]*Payment, error)
	PendingReleases(ctx context.Context, paymentIDs []string) (map[string][]*PaymentRelease, error)

	UpdatePayment(ctx context.Context, id string, version int64, values map[string]any) error
	UpdateWinningDescription(ctx context.Context, id, description string) error
	UpdateReleaseStatus(ctx context.Context, ids []string, status ReleaseStatus) error
	AppendAudits(ctx context.Context, audits []*Audit) error
}

type gormStore struct {
	db *gorm.DB

	winnings     repository.Repository[Winning]
	payments     repository.Repository[Payment]
	audits       repository.Repository[Audit]
	releases     repository.Repository[PaymentRelease]
	associations repository.Repository[PaymentReleaseAssociation]
}

// NewStore returns a Store over db. Pass a transaction handle to join an
// existing unit of work.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:           db,
		winnings:     repository.ProvideStore[Winning](db),
		payments:     repository.ProvideStore[Payment](db),
		audits:       repository.ProvideStore[Audit](db),
		releases:     repository.ProvideStore[PaymentRelease](db),
		associations: repository.ProvideStore[PaymentReleaseAssociation](db),
	}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func (s *gormStore) CreateWinning(ctx context.Context, w *Winning) error {
	return s.winnings.Create(ctx, w)
}

func (s *gormStore) GetWinning(ctx context.Context, id string) (*Winning, error) {
	var w Winning
	err := s.db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("installment_number ASC") }).
		Where("id = ?", id).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func (s *gormStore) ListPayments(ctx context.Context, winningID, paymentID string) ([]*Payment, error) {
	return s.payments.Find(ctx, &Payment{WinningID: winningID, ID: paymentID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "installment_number",
			OrderBy: "asc",
			Allow:   map[string]bool{"installment_number": true},
		}),
		option.WithLockingUpdate(),
	)
}

func (s *gormStore) PendingReleases(ctx context.Context, paymentIDs []string) (map[string][]*PaymentRelease, error) {
	out := make(map[string][]*PaymentRelease)
	if len(paymentIDs) == 0 {
		return out, nil
	}

	assocs, err := s.associations.Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "payment_id", Operator: option.IN, Value: paymentIDs}))
	if err != nil {
		return nil, err
	}
	if len(assocs) == 0 {
		return out, nil
	}

	releaseIDs := make([]string, 0, len(assocs))
	for _, a := range assocs {
		releaseIDs = append(releaseIDs, a.PaymentReleaseID)
	}

	releases, err := s.releases.Find(ctx, &PaymentRelease{Status: ReleasePending},
		option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: releaseIDs}))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*PaymentRelease, len(releases))
	for _, r := range releases {
		byID[r.ID] = r
	}
	for _, a := range assocs {
		if r, ok := byID[a.PaymentReleaseID]; ok {
			out[a.PaymentID] = append(out[a.PaymentID], r)
		}
	}

	return out, nil
}

// UpdatePayment writes values only if the row is still at version, bumping it
// by one. Any other outcome is a Conflict.
func (s *gormStore) UpdatePayment(ctx context.Context, id string, version int64, values map[string]any) error {
	set := make(map[string]any, len(values)+1)
	for k, v := range values {
		set[k] = v
	}
	set["version"] = gorm.Expr("version + 1")

	n, err := s.payments.UpdateWhere(ctx, set,
		option.ApplyOperator(option.Condition{Field: "id", Operator: option.EQ, Value: id}),
		option.ApplyOperator(option.Condition{Field: "version", Operator: option.EQ, Value: version}),
	)
	if err != nil {
		return errutil.Internal("failed to update payment", err)
	}
	if n != 1 {
		versionConflicts.Inc()
		return errutil.Conflict(fmt.Sprintf("payment %s was modified concurrently, reload and retry", id), nil)
	}
	return nil
}

func (s *gormStore) UpdateWinningDescription(ctx context.Context, id, description string) error {
	if err := s.winnings.Update(ctx, id, map[string]any{"description": description}); err != nil {
		return errutil.Internal("failed to update winning description", err)
	}
	return nil
}

func (s *gormStore) UpdateReleaseStatus(ctx context.Context, ids []string, status ReleaseStatus) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.releases.UpdateWhere(ctx, map[string]any{"status": status},
		option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: ids}))
	if err != nil {
		return errutil.Internal("failed to update payment release", err)
	}
	return nil
}

func (s *gormStore) AppendAudits(ctx context.Context, audits []*Audit) error {
	if err := s.audits.BatchCreate(ctx, audits); err != nil {
		return errutil.Internal("failed to write audit entries", err)
	}
	return nil
}
