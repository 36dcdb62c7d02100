package task

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestObserveCountsResults(t *testing.T) {
	boom := errors.New("boom")
	ok := observe(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	fail := observe(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return boom }))

	before := testutil.ToFloat64(processed.WithLabelValues("test:observe", "ok"))
	require.NoError(t, ok.ProcessTask(context.Background(), asynq.NewTask("test:observe", nil)))
	require.ErrorIs(t, fail.ProcessTask(context.Background(), asynq.NewTask("test:observe", nil)), boom)

	require.Equal(t, before+1, testutil.ToFloat64(processed.WithLabelValues("test:observe", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(processed.WithLabelValues("test:observe", "error")))
}

func TestNewJSONTask(t *testing.T) {
	task, err := NewJSONTask("payments:reconcile", map[string][]string{"user_ids": {"u1"}})
	require.NoError(t, err)
	require.Equal(t, "payments:reconcile", task.Type())
	require.JSONEq(t, `{"user_ids":["u1"]}`, string(task.Payload()))
}
