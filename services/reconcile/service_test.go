package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/taskname"
	"payouts-controlplane/services/testutil"
	"payouts-controlplane/services/winning"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type eligibilityStub map[string]bool

func (e eligibilityStub) IsEligible(_ context.Context, userID string) (bool, error) {
	return e[userID], nil
}

func seed(t *testing.T, db *gorm.DB, winnerID, id string, status winning.PaymentStatus) {
	t.Helper()

	require.NoError(t, db.Create(&winning.Winning{
		ID:       "w-" + id,
		WinnerID: winnerID,
		Type:     winning.TypePayment,
		Payments: []*winning.Payment{{
			ID:                id,
			InstallmentNumber: 1,
			TotalAmount:       decimal.NewFromInt(10),
			Status:            status,
			Version:           1,
		}},
	}).Error)
}

func statusOf(t *testing.T, db *gorm.DB, id string) winning.Payment {
	t.Helper()

	var p winning.Payment
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func TestReconcile(t *testing.T) {
	db := testutil.NewTestDB(t, winning.Models()...)
	eligible := eligibilityStub{"alice": true}
	svc := NewService(ServiceParams{DB: db, Config: &config.Config{}, Eligibility: eligible})
	ctx := context.Background()

	seed(t, db, "alice", "a1", winning.StatusOnHold)
	seed(t, db, "alice", "a2", winning.StatusOnHoldAdmin)
	seed(t, db, "alice", "a3", winning.StatusPaid)
	seed(t, db, "bob", "b1", winning.StatusOwed)
	seed(t, db, "bob", "b2", winning.StatusOnHold)
	seed(t, db, "carol", "c1", winning.StatusOnHold)

	results, err := svc.Reconcile(ctx, "alice", "bob", "alice", "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, Result{UserID: "alice", Released: 1}, results[0])
	require.Equal(t, Result{UserID: "bob", Held: 1}, results[1])

	require.Equal(t, winning.StatusOwed, statusOf(t, db, "a1").Status)
	require.EqualValues(t, 2, statusOf(t, db, "a1").Version)
	require.Equal(t, winning.StatusOnHoldAdmin, statusOf(t, db, "a2").Status)
	require.Equal(t, winning.StatusPaid, statusOf(t, db, "a3").Status)
	require.Equal(t, winning.StatusOnHold, statusOf(t, db, "b1").Status)
	require.Equal(t, winning.StatusOnHold, statusOf(t, db, "c1").Status)

	// A second pass with no eligibility change moves nothing.
	results, err = svc.Reconcile(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, Result{UserID: "alice"}, results[0])
	require.Equal(t, Result{UserID: "bob"}, results[1])
	require.EqualValues(t, 2, statusOf(t, db, "a1").Version)

	eligible["bob"] = true
	_, err = svc.Reconcile(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, winning.StatusOwed, statusOf(t, db, "b1").Status)
	require.Equal(t, winning.StatusOwed, statusOf(t, db, "b2").Status)
}

// gatedEligibility parks the first IsEligible call until released, after
// returning the fact it read on entry.
type gatedEligibility struct {
	mu      sync.Mutex
	facts   map[string]bool
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEligibility) set(userID string, eligible bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.facts[userID] = eligible
}

func (g *gatedEligibility) IsEligible(_ context.Context, userID string) (bool, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	eligible := g.facts[userID]
	g.mu.Unlock()

	if first {
		close(g.entered)
		<-g.release
	}
	return eligible, nil
}

func TestReconcileTriggerDuringPassSeesNewFacts(t *testing.T) {
	db := testutil.NewTestDB(t, winning.Models()...)
	gate := &gatedEligibility{
		facts:   map[string]bool{"alice": false},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(ServiceParams{DB: db, Config: &config.Config{}, Eligibility: gate})
	ctx := context.Background()

	seed(t, db, "alice", "a1", winning.StatusOnHold)

	first := make(chan error, 1)
	go func() {
		_, err := svc.Reconcile(ctx, "alice")
		first <- err
	}()
	<-gate.entered

	// The tax form is approved while the first pass holds the stale fact.
	gate.set("alice", true)
	var results []Result
	second := make(chan error, 1)
	go func() {
		var err error
		results, err = svc.Reconcile(ctx, "alice")
		second <- err
	}()

	time.Sleep(50 * time.Millisecond)
	close(gate.release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	require.Equal(t, Result{UserID: "alice", Released: 1}, results[0])

	gate.mu.Lock()
	require.Equal(t, 2, gate.calls)
	gate.mu.Unlock()
	require.Equal(t, winning.StatusOwed, statusOf(t, db, "a1").Status)
}

type enqueuerRecorder struct {
	tasks []*asynq.Task
}

func (e *enqueuerRecorder) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

func TestTriggerSelection(t *testing.T) {
	db := testutil.NewTestDB(t, winning.Models()...)
	svc := NewService(ServiceParams{DB: db, Config: &config.Config{}, Eligibility: eligibilityStub{}})

	inline := NewTrigger(TriggerParams{Service: svc, Config: &config.Config{}})
	require.IsType(t, InlineTrigger{}, inline)

	cfg := &config.Config{}
	cfg.Payments.AsyncReconcile = true
	rec := &enqueuerRecorder{}
	async := NewTrigger(TriggerParams{Service: svc, Config: cfg, Enqueuer: rec})
	require.IsType(t, TaskTrigger{}, async)

	require.NoError(t, async.TriggerReconcile(context.Background(), "u1", "u1", "u2"))
	require.Len(t, rec.tasks, 1)
	require.Equal(t, taskname.PaymentsReconcile, rec.tasks[0].Type())

	var payload Payload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &payload))
	require.Equal(t, []string{"u1", "u2"}, payload.UserIDs)

	require.NoError(t, async.TriggerReconcile(context.Background()))
	require.Len(t, rec.tasks, 1)
}

func TestHandleReconcileTask(t *testing.T) {
	db := testutil.NewTestDB(t, winning.Models()...)
	svc := NewService(ServiceParams{DB: db, Config: &config.Config{}, Eligibility: eligibilityStub{"alice": true}})
	seed(t, db, "alice", "a1", winning.StatusOnHold)

	b, err := json.Marshal(Payload{UserIDs: []string{"alice"}})
	require.NoError(t, err)
	require.NoError(t, svc.HandleReconcileTask(context.Background(), asynq.NewTask(taskname.PaymentsReconcile, b)))
	require.Equal(t, winning.StatusOwed, statusOf(t, db, "a1").Status)

	err = svc.HandleReconcileTask(context.Background(), asynq.NewTask(taskname.PaymentsReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
