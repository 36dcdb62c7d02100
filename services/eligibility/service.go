package eligibility

import (
	"context"
	"fmt"

	"payouts-controlplane/pkg/celengine"
	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/db/option"
	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPolicy combines the two eligibility facts.
const DefaultPolicy = "has_active_tax_form && has_verified_payout_method"

// DefaultPayoutMethod is the provider-backed method type withdrawals are paid through.
const DefaultPayoutMethod = "PROVIDER"

var policySample = map[string]any{
	"has_active_tax_form":        false,
	"has_verified_payout_method": false,
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	taxForms repository.Repository[UserTaxForm]
	methods  repository.Repository[UserPaymentMethod]

	policy *celengine.Program
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	expr := DefaultPolicy
	if p.Config != nil && p.Config.Payments.EligibilityPolicy != "" {
		expr = p.Config.Payments.EligibilityPolicy
	}

	policy, err := celengine.Compile(expr, policySample)
	if err != nil {
		return nil, fmt.Errorf("compile eligibility policy: %w", err)
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		taxForms: repository.ProvideStore[UserTaxForm](p.DB),
		methods:  repository.ProvideStore[UserPaymentMethod](p.DB),
		policy:   policy,
	}, nil
}

func (s *Service) HasActiveTaxForm(ctx context.Context, userID string) (bool, error) {
	n, err := s.taxForms.Count(ctx, &UserTaxForm{UserID: userID, Status: TaxFormActive})
	if err != nil {
		return false, errutil.UpstreamFailure("failed to read tax forms", err)
	}
	return n > 0, nil
}

func (s *Service) HasVerifiedPayoutMethod(ctx context.Context, userID string) (bool, error) {
	n, err := s.methods.Count(ctx, &UserPaymentMethod{UserID: userID, Status: PaymentMethodConnected})
	if err != nil {
		return false, errutil.UpstreamFailure("failed to read payout methods", err)
	}
	return n > 0, nil
}

// IsEligible evaluates the eligibility policy over fresh reads of both facts.
func (s *Service) IsEligible(ctx context.Context, userID string) (bool, error) {
	taxForm, err := s.HasActiveTaxForm(ctx, userID)
	if err != nil {
		return false, err
	}

	method, err := s.HasVerifiedPayoutMethod(ctx, userID)
	if err != nil {
		return false, err
	}

	ok, err := s.policy.Evaluate(map[string]any{
		"has_active_tax_form":        taxForm,
		"has_verified_payout_method": method,
	})
	if err != nil {
		return false, errutil.Internal("failed to evaluate eligibility policy", err)
	}

	return ok, nil
}

// PayoutMethod returns the connected provider recipient of userID, or nil.
func (s *Service) PayoutMethod(ctx context.Context, userID string) (*UserPaymentMethod, error) {
	m, err := s.methods.FindOne(ctx, &UserPaymentMethod{UserID: userID, Status: PaymentMethodConnected},
		option.WithSortBy(option.QuerySortBy{SortBy: "updated_at", OrderBy: "desc", Allow: map[string]bool{"updated_at": true}}))
	if err != nil {
		return nil, errutil.UpstreamFailure("failed to read payout method", err)
	}
	return m, nil
}

type PayoutMethodInput struct {
	UserID              string
	ProviderRecipientID string
	ProviderAccountID   string
	Connected           bool
}

// UpsertPayoutMethod records the provider recipient for a user.
func (s *Service) UpsertPayoutMethod(ctx context.Context, in PayoutMethodInput) error {
	status := PaymentMethodInactive
	if in.Connected {
		status = PaymentMethodConnected
	}

	row := &UserPaymentMethod{
		ID:                  s.node.Generate().String(),
		UserID:              in.UserID,
		PaymentMethodType:   DefaultPayoutMethod,
		ProviderRecipientID: in.ProviderRecipientID,
		ProviderAccountID:   in.ProviderAccountID,
		Status:              status,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "payment_method_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider_recipient_id", "provider_account_id", "status", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return errutil.Internal("failed to upsert payout method", err)
	}

	logger.FromContext(ctx).Info("payout method updated",
		zap.String("user_id", in.UserID),
		zap.String("status", string(status)),
	)
	return nil
}

// DeletePayoutMethod disconnects the user's provider recipient.
func (s *Service) DeletePayoutMethod(ctx context.Context, userID string) error {
	_, err := s.methods.UpdateWhere(ctx,
		map[string]any{"status": PaymentMethodInactive},
		option.ApplyOperator(option.Condition{Field: "user_id", Operator: option.EQ, Value: userID}),
		option.ApplyOperator(option.Condition{Field: "payment_method_type", Operator: option.EQ, Value: DefaultPayoutMethod}),
	)
	if err != nil {
		return errutil.Internal("failed to delete payout method", err)
	}
	return nil
}

// SetTaxFormStatus marks the user's tax form active or inactive, creating the row on first sight.
func (s *Service) SetTaxFormStatus(ctx context.Context, userID, taxFormID string, active bool) error {
	status := TaxFormInactive
	if active {
		status = TaxFormActive
	}

	row := &UserTaxForm{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		TaxFormID: taxFormID,
		Status:    status,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "tax_form_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return errutil.Internal("failed to update tax form", err)
	}

	logger.FromContext(ctx).Info("tax form status updated",
		zap.String("user_id", userID),
		zap.String("status", string(status)),
	)
	return nil
}
