package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/provider"
	"payouts-controlplane/pkg/repository"
	"payouts-controlplane/services/eligibility"
	"payouts-controlplane/services/settlement"
	"payouts-controlplane/services/winning"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)

var deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "provider_webhook_deliveries_total",
	Help: "Provider webhook deliveries by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(deliveries)
}

type Settler interface {
	Settle(ctx context.Context, ev settlement.Event) error
}

// EligibilityWriter updates the facts the eligibility oracle reads.
type EligibilityWriter interface {
	UpsertPayoutMethod(ctx context.Context, in eligibility.PayoutMethodInput) error
	DeletePayoutMethod(ctx context.Context, userID string) error
	SetTaxFormStatus(ctx context.Context, userID, taxFormID string, active bool) error
}

type handlerFunc func(ctx context.Context, env *Envelope) error

type Ingestor struct {
	db       *gorm.DB
	events   repository.Repository[Event]
	verifier *provider.Verifier

	settler     Settler
	eligibility EligibilityWriter
	reconcile   winning.ReconcileTrigger

	routes map[string]handlerFunc
}

type IngestorParams struct {
	fx.In
	DB          *gorm.DB
	Verifier    *provider.Verifier
	Settler     Settler
	Eligibility EligibilityWriter
	Reconcile   winning.ReconcileTrigger
}

func NewIngestor(p IngestorParams) *Ingestor {
	i := &Ingestor{
		db:          p.DB,
		events:      repository.ProvideStore[Event](p.DB),
		verifier:    p.Verifier,
		settler:     p.Settler,
		eligibility: p.Eligibility,
		reconcile:   p.Reconcile,
	}

	i.routes = map[string]handlerFunc{
		"payment.processed":        i.handlePayment,
		"payment.failed":           i.handlePayment,
		"payment.returned":         i.handlePayment,
		"recipientAccount.created": i.handleRecipientAccount,
		"recipientAccount.updated": i.handleRecipientAccount,
		"recipientAccount.deleted": i.handleRecipientAccount,
		"taxForm.status_updated":   i.handleTaxForm,
	}
	return i
}

func routeKey(model, action string) string {
	return model + "." + action
}

// Handle runs one delivery through signature check, dedup, logging and
// dispatch. Signature and framing problems are returned as errors; a
// handler failure is recorded on the event row and reported as
// OutcomeFailed.
func (i *Ingestor) Handle(ctx context.Context, headers http.Header, rawBody []byte, parsed *Envelope) (Outcome, error) {
	deliveryID := strings.TrimSpace(headers.Get(provider.DeliveryHeader))
	log := logger.FromContext(ctx, zap.String("delivery_id", deliveryID))

	if err := i.verifier.Verify(headers.Get(provider.SignatureHeader), rawBody); err != nil {
		deliveries.WithLabelValues(string(OutcomeRejected)).Inc()
		log.Warn("webhook signature rejected", zap.Error(err))
		return OutcomeRejected, errutil.Unauthorized("invalid webhook signature", err)
	}

	if deliveryID == "" {
		deliveries.WithLabelValues(string(OutcomeRejected)).Inc()
		return OutcomeRejected, errutil.InvalidRequest("missing "+provider.DeliveryHeader+" header", nil)
	}

	if parsed == nil {
		var env Envelope
		if err := json.Unmarshal(rawBody, &env); err != nil {
			deliveries.WithLabelValues(string(OutcomeRejected)).Inc()
			return OutcomeRejected, errutil.InvalidRequest("malformed webhook body", err)
		}
		parsed = &env
	}

	log = log.With(zap.String("model", parsed.Model), zap.String("action", parsed.Action))

	event := &Event{
		ID:        deliveryID,
		Model:     parsed.Model,
		Action:    parsed.Action,
		EventTime: parsed.CreatedAt,
		Payload:   datatypes.JSON(rawBody),
		Status:    EventLogged,
	}
	res := i.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		log.Error("failed to log webhook event", zap.Error(res.Error))
		return "", errutil.Internal("failed to log webhook event", res.Error)
	}
	if res.RowsAffected == 0 {
		deliveries.WithLabelValues(string(OutcomeDuplicate)).Inc()
		log.Info("duplicate webhook delivery dropped")
		return OutcomeDuplicate, nil
	}

	outcome := OutcomeProcessed
	handler, ok := i.routes[routeKey(parsed.Model, parsed.Action)]
	if !ok {
		outcome = OutcomeIgnored
		log.Info("no handler for webhook event")
	} else if err := handler(ctx, parsed); err != nil {
		log.Error("webhook handler failed", zap.Error(err))
		deliveries.WithLabelValues(string(OutcomeFailed)).Inc()
		if err := i.finish(ctx, deliveryID, EventError, err.Error()); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeFailed, nil
	}

	if err := i.finish(ctx, deliveryID, EventProcessed, ""); err != nil {
		return outcome, err
	}

	deliveries.WithLabelValues(string(outcome)).Inc()
	log.Info("webhook event handled", zap.String("outcome", string(outcome)))
	return outcome, nil
}

func (i *Ingestor) finish(ctx context.Context, id string, status EventStatus, msg string) error {
	err := i.events.Update(ctx, id, map[string]any{"status": status, "error": msg})
	if err != nil {
		logger.FromContext(ctx).Error("failed to update webhook event", zap.String("delivery_id", id), zap.Error(err))
		return errutil.Internal("failed to update webhook event", err)
	}
	return nil
}

func (i *Ingestor) handlePayment(ctx context.Context, env *Envelope) error {
	var data paymentData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode payment event: %w", err)
	}

	ev := settlement.Event{
		Status:                env.Action,
		ExternalID:            data.ExternalID,
		ExternalTransactionID: data.TransactionID,
	}
	if env.CreatedAt != nil {
		ev.OccurredAt = *env.CreatedAt
	}
	return i.settler.Settle(ctx, ev)
}

func (i *Ingestor) handleRecipientAccount(ctx context.Context, env *Envelope) error {
	var data recipientAccountData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode recipient account event: %w", err)
	}
	if data.RecipientReferenceID == "" {
		return errutil.InvalidRequest("recipient account event without recipientReferenceId", nil)
	}

	var err error
	if env.Action == "deleted" {
		err = i.eligibility.DeletePayoutMethod(ctx, data.RecipientReferenceID)
	} else {
		err = i.eligibility.UpsertPayoutMethod(ctx, eligibility.PayoutMethodInput{
			UserID:              data.RecipientReferenceID,
			ProviderRecipientID: data.RecipientID,
			ProviderAccountID:   data.AccountID,
			Connected:           data.Status == "" || strings.EqualFold(data.Status, "verified") || strings.EqualFold(data.Status, "active"),
		})
	}
	if err != nil {
		return err
	}

	return i.reconcile.TriggerReconcile(ctx, data.RecipientReferenceID)
}

func (i *Ingestor) handleTaxForm(ctx context.Context, env *Envelope) error {
	var data taxFormData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode tax form event: %w", err)
	}
	if data.RecipientReferenceID == "" || data.TaxFormID == "" {
		return errutil.InvalidRequest("tax form event without recipientReferenceId or taxFormId", nil)
	}

	active := strings.EqualFold(data.Status, "reviewed")
	if err := i.eligibility.SetTaxFormStatus(ctx, data.RecipientReferenceID, data.TaxFormID, active); err != nil {
		return err
	}

	return i.reconcile.TriggerReconcile(ctx, data.RecipientReferenceID)
}
