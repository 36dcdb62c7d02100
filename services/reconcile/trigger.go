package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/task"
	"payouts-controlplane/pkg/taskname"
	"payouts-controlplane/services/winning"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Payload struct {
	UserIDs []string `json:"user_ids"`
}

// InlineTrigger reconciles in the caller's goroutine.
type InlineTrigger struct {
	svc *Service
}

func (t InlineTrigger) TriggerReconcile(ctx context.Context, userIDs ...string) error {
	_, err := t.svc.Reconcile(ctx, userIDs...)
	return err
}

// TaskTrigger hands the pass to the worker through asynq.
type TaskTrigger struct {
	enqueuer task.Enqueuer
}

func (t TaskTrigger) TriggerReconcile(ctx context.Context, userIDs ...string) error {
	users := dedupe(userIDs)
	if len(users) == 0 {
		return nil
	}

	tk, err := task.NewJSONTask(taskname.PaymentsReconcile, Payload{UserIDs: users})
	if err != nil {
		return err
	}

	info, err := t.enqueuer.Enqueue(ctx, tk, asynq.Queue(taskname.QueueDefault), asynq.MaxRetry(5))
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Debug("reconcile enqueued", zap.String("task_id", info.ID), zap.Strings("user_ids", users))
	return nil
}

type TriggerParams struct {
	fx.In
	Service  *Service
	Config   *config.Config
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewTrigger(p TriggerParams) winning.ReconcileTrigger {
	if p.Config.Payments.AsyncReconcile && p.Enqueuer != nil {
		return TaskTrigger{enqueuer: p.Enqueuer}
	}
	return InlineTrigger{svc: p.Service}
}

func (s *Service) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	log := zap.L().With(zap.String("task_type", t.Type()), zap.Strings("user_ids", payload.UserIDs))
	log.Info("start reconcile task")

	results, err := s.Reconcile(ctx, payload.UserIDs...)
	if err != nil {
		log.Error("reconcile task failed", zap.Error(err))
		return err
	}

	for _, r := range results {
		log.Debug("user reconciled", zap.String("user_id", r.UserID), zap.Int64("released", r.Released), zap.Int64("held", r.Held))
	}
	return nil
}

func RegisterTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.PaymentsReconcile, svc.HandleReconcileTask)
}
