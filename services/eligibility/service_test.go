package eligibility

import (
	"context"
	"testing"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &UserTaxForm{}, &UserPaymentMethod{})
	svc, err := NewService(ServiceParams{DB: db, Node: testutil.NewNode(t)})
	require.NoError(t, err)
	return svc
}

func TestIsEligibleRequiresBothFacts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ok, err := svc.IsEligible(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.SetTaxFormStatus(ctx, "u1", "W-9", true))
	ok, err = svc.IsEligible(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.UpsertPayoutMethod(ctx, PayoutMethodInput{UserID: "u1", ProviderRecipientID: "R-1", Connected: true}))
	ok, err = svc.IsEligible(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	other, err := svc.IsEligible(ctx, "u2")
	require.NoError(t, err)
	require.False(t, other)
}

func TestPayoutMethodLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpsertPayoutMethod(ctx, PayoutMethodInput{UserID: "u1", ProviderRecipientID: "R-1", Connected: true}))
	require.NoError(t, svc.UpsertPayoutMethod(ctx, PayoutMethodInput{UserID: "u1", ProviderRecipientID: "R-2", Connected: true}))

	m, err := svc.PayoutMethod(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, "R-2", m.ProviderRecipientID)

	n, err := svc.methods.Count(ctx, &UserPaymentMethod{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, svc.DeletePayoutMethod(ctx, "u1"))
	verified, err := svc.HasVerifiedPayoutMethod(ctx, "u1")
	require.NoError(t, err)
	require.False(t, verified)

	m, err = svc.PayoutMethod(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestTaxFormDeactivation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetTaxFormStatus(ctx, "u1", "W-8BEN", true))
	active, err := svc.HasActiveTaxForm(ctx, "u1")
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, svc.SetTaxFormStatus(ctx, "u1", "W-8BEN", false))
	active, err = svc.HasActiveTaxForm(ctx, "u1")
	require.NoError(t, err)
	require.False(t, active)
}

func TestCustomPolicy(t *testing.T) {
	db := testutil.NewTestDB(t, &UserTaxForm{}, &UserPaymentMethod{})
	cfg := &config.Config{}
	cfg.Payments.EligibilityPolicy = "has_verified_payout_method"

	svc, err := NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Config: cfg})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.UpsertPayoutMethod(ctx, PayoutMethodInput{UserID: "u1", ProviderRecipientID: "R-1", Connected: true}))

	ok, err := svc.IsEligible(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	cfg.Payments.EligibilityPolicy = "1 + 1"
	_, err = NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Config: cfg})
	require.Error(t, err)
}
