package task

import (
	"context"
	"time"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var processed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "payout_tasks_processed_total",
	Help: "Background payout tasks by type and result.",
}, []string{"type", "result"})

func init() {
	prometheus.MustRegister(processed)
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// Client wires the enqueue side used by the API process.
var Client = fx.Module("task.client",
	fx.Provide(newClient, NewEnqueuer),
)

func newClient(lc fx.Lifecycle, cfg *config.Config) (*asynq.Client, error) {
	client := asynq.NewClient(redisOpt(cfg))
	if err := client.Ping(); err != nil {
		zap.L().Error("task queue unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// Server wires the worker side. Handlers register on the provided mux.
var Server = fx.Module("task.server",
	fx.Provide(newServeMux),
	fx.Invoke(runServer),
)

func newServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(observe)
	return mux
}

// observe logs each task run and counts its result.
func observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		retried, _ := asynq.GetRetryCount(ctx)
		taskID, _ := asynq.GetTaskID(ctx)

		err := next.ProcessTask(ctx, t)

		result := "ok"
		if err != nil {
			result = "error"
		}
		processed.WithLabelValues(t.Type(), result).Inc()
		zap.L().Debug("task handled",
			zap.String("type", t.Type()),
			zap.String("task_id", taskID),
			zap.Int("retry", retried),
			zap.Duration("took", time.Since(start)),
			zap.String("result", result),
		)
		return err
	})
}

func runServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	concurrency := cfg.Payments.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency:    concurrency,
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		// Batch kickoff moves money; it drains ahead of reconcile sweeps.
		Queues: map[string]int{
			taskname.QueueCritical: 10,
			taskname.QueueDefault:  5,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			zap.L().Error("task failed",
				zap.String("type", t.Type()),
				zap.Int("retry", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := server.Start(mux); err != nil {
				return err
			}
			zap.L().Info("task worker started", zap.Int("concurrency", concurrency))
			return nil
		},
		OnStop: func(context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
