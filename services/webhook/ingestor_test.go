package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/middleware"
	"payouts-controlplane/pkg/provider"
	"payouts-controlplane/services/eligibility"
	"payouts-controlplane/services/settlement"
	"payouts-controlplane/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "whsec_test"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type settlerStub struct {
	events []settlement.Event
	err    error
}

func (s *settlerStub) Settle(_ context.Context, ev settlement.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

type triggerRecorder struct {
	users []string
}

func (r *triggerRecorder) TriggerReconcile(_ context.Context, userIDs ...string) error {
	r.users = append(r.users, userIDs...)
	return nil
}

type fixture struct {
	db      *gorm.DB
	ing     *Ingestor
	settler *settlerStub
	elig    *eligibility.Service
	trigger *triggerRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &Event{}, &eligibility.UserTaxForm{}, &eligibility.UserPaymentMethod{})
	elig, err := eligibility.NewService(eligibility.ServiceParams{DB: db, Node: testutil.NewNode(t)})
	require.NoError(t, err)

	f := &fixture{db: db, settler: &settlerStub{}, elig: elig, trigger: &triggerRecorder{}}
	f.ing = NewIngestor(IngestorParams{
		DB:          db,
		Verifier:    provider.NewVerifierWithSecret(secret, 5*time.Minute, nil),
		Settler:     f.settler,
		Eligibility: elig,
		Reconcile:   f.trigger,
	})
	return f
}

func signed(deliveryID, body string) http.Header {
	h := http.Header{}
	h.Set(provider.SignatureHeader, provider.Sign(secret, time.Now(), []byte(body)))
	if deliveryID != "" {
		h.Set(provider.DeliveryHeader, deliveryID)
	}
	return h
}

func (f *fixture) event(t *testing.T, id string) Event {
	t.Helper()

	var ev Event
	require.NoError(t, f.db.First(&ev, "id = ?", id).Error)
	return ev
}

func (f *fixture) countEvents(t *testing.T) int64 {
	t.Helper()

	var n int64
	require.NoError(t, f.db.Model(&Event{}).Count(&n).Error)
	return n
}

const paymentBody = `{"model":"payment","action":"processed","createdAt":"2024-03-01T12:00:00Z","data":{"externalId":"r1:w1,w2","transactionId":"T-1"}}`

func TestHandleRejectsBadSignature(t *testing.T) {
	f := newFixture(t)

	h := signed("d1", paymentBody)
	h.Set(provider.SignatureHeader, provider.Sign("wrong", time.Now(), []byte(paymentBody)))

	outcome, err := f.ing.Handle(context.Background(), h, []byte(paymentBody), nil)
	require.Equal(t, OutcomeRejected, outcome)
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	h.Set(provider.SignatureHeader, "garbage")
	_, err = f.ing.Handle(context.Background(), h, []byte(paymentBody), nil)
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	_, err = f.ing.Handle(context.Background(), signed("", paymentBody), []byte(paymentBody), nil)
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	require.Zero(t, f.countEvents(t))
	require.Empty(t, f.settler.events)
}

func TestHandlePaymentSettlement(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.ing.Handle(context.Background(), signed("d1", paymentBody), []byte(paymentBody), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	require.Len(t, f.settler.events, 1)
	ev := f.settler.events[0]
	require.Equal(t, "processed", ev.Status)
	require.Equal(t, "r1:w1,w2", ev.ExternalID)
	require.Equal(t, "T-1", ev.ExternalTransactionID)
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), ev.OccurredAt.UTC())

	row := f.event(t, "d1")
	require.Equal(t, EventProcessed, row.Status)
	require.Equal(t, "payment", row.Model)
	require.Equal(t, "processed", row.Action)
}

func TestHandleDropsDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ing.Handle(ctx, signed("d1", paymentBody), []byte(paymentBody), nil)
	require.NoError(t, err)

	outcome, err := f.ing.Handle(ctx, signed("d1", paymentBody), []byte(paymentBody), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	require.EqualValues(t, 1, f.countEvents(t))
	require.Len(t, f.settler.events, 1)
}

func TestHandleRecordsHandlerFailure(t *testing.T) {
	f := newFixture(t)
	f.settler.err = errors.New("release not found")

	outcome, err := f.ing.Handle(context.Background(), signed("d1", paymentBody), []byte(paymentBody), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)

	row := f.event(t, "d1")
	require.Equal(t, EventError, row.Status)
	require.Contains(t, row.Error, "release not found")

	// A redelivery under the same id is not dispatched again.
	outcome, err = f.ing.Handle(context.Background(), signed("d1", paymentBody), []byte(paymentBody), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Len(t, f.settler.events, 1)
}

func TestHandleIgnoresUnknownEvents(t *testing.T) {
	f := newFixture(t)
	body := `{"model":"batch","action":"quoted","data":{}}`

	outcome, err := f.ing.Handle(context.Background(), signed("d1", body), []byte(body), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)
	require.Equal(t, EventProcessed, f.event(t, "d1").Status)
}

func TestHandleEligibilityEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taxForm := `{"model":"taxForm","action":"status_updated","data":{"recipientReferenceId":"alice","taxFormId":"TF-1","status":"reviewed"}}`
	account := `{"model":"recipientAccount","action":"created","data":{"recipientReferenceId":"alice","recipientId":"R-9","accountId":"A-1","status":"verified"}}`
	deleted := `{"model":"recipientAccount","action":"deleted","data":{"recipientReferenceId":"alice"}}`

	outcome, err := f.ing.Handle(ctx, signed("d1", taxForm), []byte(taxForm), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	ok, err := f.elig.HasActiveTaxForm(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.ing.Handle(ctx, signed("d2", account), []byte(account), nil)
	require.NoError(t, err)

	eligible, err := f.elig.IsEligible(ctx, "alice")
	require.NoError(t, err)
	require.True(t, eligible)

	method, err := f.elig.PayoutMethod(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "R-9", method.ProviderRecipientID)

	_, err = f.ing.Handle(ctx, signed("d3", deleted), []byte(deleted), nil)
	require.NoError(t, err)

	eligible, err = f.elig.IsEligible(ctx, "alice")
	require.NoError(t, err)
	require.False(t, eligible)

	require.Equal(t, []string{"alice", "alice", "alice"}, f.trigger.users)
}

func TestWebhookRoute(t *testing.T) {
	f := newFixture(t)
	r := gin.New()
	r.Use(middleware.Error())
	RegisterRoutes(r, f.ing)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/provider", strings.NewReader(paymentBody))
	req.Header = signed("d1", paymentBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"processed"`)

	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/provider", strings.NewReader(paymentBody))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRouteRejectsOversizedBody(t *testing.T) {
	f := newFixture(t)
	r := gin.New()
	r.Use(middleware.Error())
	RegisterRoutes(r, f.ing)

	body := `{"model":"payment","action":"processed","data":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/provider", strings.NewReader(body))
	req.Header = signed("d-large", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "body too large")
	require.Zero(t, f.countEvents(t))
}
