package reconcile

import (
	"context"
	"sync"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/db/option"
	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/repository"
	"payouts-controlplane/services/winning"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const defaultConcurrency = 4

var reconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "payments_reconciled_total",
	Help: "Payments moved between OWED and ON_HOLD by eligibility reconciliation.",
}, []string{"direction"})

func init() {
	prometheus.MustRegister(reconciled)
}

// Result counts the payments one pass moved for a user.
type Result struct {
	UserID   string
	Released int64
	Held     int64
}

type Service struct {
	db          *gorm.DB
	payments    repository.Repository[winning.Payment]
	eligibility winning.EligibilityChecker
	concurrency int

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock serializes passes for one user. Callers never share a result:
// each pass re-reads eligibility after the previous one finishes.
type userLock struct {
	mu   sync.Mutex
	refs int
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Config      *config.Config
	Eligibility winning.EligibilityChecker
}

func NewService(p ServiceParams) *Service {
	n := p.Config.Payments.ReconcileConcurrency
	if n <= 0 {
		n = defaultConcurrency
	}

	return &Service{
		db:          p.DB,
		payments:    repository.ProvideStore[winning.Payment](p.DB),
		eligibility: p.Eligibility,
		concurrency: n,
		locks:       make(map[string]*userLock),
	}
}

func (s *Service) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

// Reconcile brings each user's payments in line with their current
// eligibility. Eligible users have ON_HOLD payments released to OWED, the
// rest have OWED payments put back ON_HOLD. Admin holds are left alone.
// Writes skip the version check and are safe to repeat.
func (s *Service) Reconcile(ctx context.Context, userIDs ...string) ([]Result, error) {
	users := dedupe(userIDs)
	results := make([]Result, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, userID := range users {
		g.Go(func() error {
			unlock := s.lock(userID)
			defer unlock()

			res, err := s.reconcileUser(gctx, userID)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) reconcileUser(ctx context.Context, userID string) (Result, error) {
	log := logger.FromContext(ctx, zap.String("user_id", userID))
	res := Result{UserID: userID}

	eligible, err := s.eligibility.IsEligible(ctx, userID)
	if err != nil {
		log.Error("eligibility read failed", zap.Error(err))
		return res, err
	}

	from, to := winning.StatusOwed, winning.StatusOnHold
	if eligible {
		from, to = winning.StatusOnHold, winning.StatusOwed
	}

	ownedBy := s.db.Model(&winning.Winning{}).Select("id").Where("winner_id = ?", userID)
	n, err := s.payments.UpdateWhere(ctx,
		map[string]any{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		},
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: from}),
		option.WithScopes(func(db *gorm.DB) *gorm.DB {
			return db.Where("winning_id IN (?)", ownedBy)
		}),
	)
	if err != nil {
		log.Error("bulk status flip failed", zap.Error(err))
		return res, errutil.Internal("failed to reconcile payments", err)
	}

	if eligible {
		res.Released = n
		reconciled.WithLabelValues("released").Add(float64(n))
	} else {
		res.Held = n
		reconciled.WithLabelValues("held").Add(float64(n))
	}

	if n > 0 {
		log.Info("payments reconciled",
			zap.Bool("eligible", eligible),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int64("count", n),
		)
	}

	return res, nil
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
