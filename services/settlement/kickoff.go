package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/task"
	"payouts-controlplane/pkg/taskname"
	"payouts-controlplane/services/winning"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type KickoffPayload struct {
	ReleaseID string `json:"release_id"`
	BatchID   string `json:"batch_id"`
}

// KickoffBatch asks the provider to quote and then process a batch.
func (s *Service) KickoffBatch(ctx context.Context, batchID string) error {
	if err := s.provider.GenerateQuote(ctx, batchID); err != nil {
		return errutil.UpstreamFailure("failed to generate provider quote", err)
	}
	if err := s.provider.StartProcessing(ctx, batchID); err != nil {
		return errutil.UpstreamFailure("failed to start provider batch", err)
	}
	return nil
}

// kickoff runs after the withdrawal commits. Failures are only logged; the
// batch stays open on the provider side and can be started again.
func (s *Service) kickoff(ctx context.Context, release *winning.PaymentRelease) {
	log := logger.FromContext(ctx, zap.String("release_id", release.ID), zap.String("batch_id", release.ProviderBatchID))

	if s.asyncKickoff {
		t, err := task.NewJSONTask(taskname.ReleaseBatchKickoff, KickoffPayload{ReleaseID: release.ID, BatchID: release.ProviderBatchID})
		if err == nil {
			_, err = s.enqueuer.Enqueue(ctx, t, asynq.Queue(taskname.QueueCritical), asynq.MaxRetry(10))
		}
		if err != nil {
			log.Error("failed to enqueue batch kickoff", zap.Error(err))
		}
		return
	}

	if err := s.KickoffBatch(ctx, release.ProviderBatchID); err != nil {
		log.Error("batch kickoff failed", zap.Error(err))
	}
}

func (s *Service) HandleKickoffTask(ctx context.Context, t *asynq.Task) error {
	var payload KickoffPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.BatchID == "" {
		return fmt.Errorf("invalid payload: missing batch id: %w", asynq.SkipRetry)
	}

	log := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("release_id", payload.ReleaseID),
		zap.String("batch_id", payload.BatchID),
	)

	if err := s.KickoffBatch(ctx, payload.BatchID); err != nil {
		log.Warn("batch kickoff attempt failed", zap.Error(err))
		return err
	}

	log.Info("batch kickoff done")
	return nil
}

func RegisterTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.ReleaseBatchKickoff, svc.HandleKickoffTask)
}
