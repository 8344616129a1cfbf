package workflows

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ghuser/campusreserve/pkg/logger"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
	"github.com/ghuser/campusreserve/services/reservation/infrastructure/memory"
)

// flakyLedger fails the first n increments with a transient error.
type flakyLedger struct {
	*memory.Ledger
	failures atomic.Int32
}

func (l *flakyLedger) Increment(ctx context.Context, itemID uuid.UUID) error {
	if l.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return l.Ledger.Increment(ctx, itemID)
}

func heldItem(t *testing.T) (*memory.Ledger, *models.Item) {
	t.Helper()
	item, err := models.NewItem("Projector", models.KindEquipment, 2, 0)
	require.NoError(t, err)
	ledger := memory.NewLedger()
	ledger.Track(item)
	require.NoError(t, ledger.TryDecrement(context.Background(), item.ID))
	return ledger, item
}

func TestReleaseCapacityWorkflow_Releases(t *testing.T) {
	ledger, item := heldItem(t)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{Ledger: ledger})

	env.ExecuteWorkflow(ReleaseCapacityWorkflow, ReleaseInput{ReservationID: uuid.New(), ItemID: item.ID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	n, err := ledger.Available(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReleaseCapacityWorkflow_RetriesTransientFailures(t *testing.T) {
	ledger, item := heldItem(t)
	flaky := &flakyLedger{Ledger: ledger}
	flaky.failures.Store(2)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{Ledger: flaky})

	env.ExecuteWorkflow(ReleaseCapacityWorkflow, ReleaseInput{ReservationID: uuid.New(), ItemID: item.ID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	n, err := ledger.Available(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReleaseCapacityWorkflow_OverflowIsPermanent(t *testing.T) {
	item, err := models.NewItem("Projector", models.KindEquipment, 1, 0)
	require.NoError(t, err)
	ledger := memory.NewLedger()
	ledger.Track(item)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{Ledger: ledger})

	env.ExecuteWorkflow(ReleaseCapacityWorkflow, ReleaseInput{ReservationID: uuid.New(), ItemID: item.ID})

	require.True(t, env.IsWorkflowCompleted())
	werr := env.GetWorkflowError()
	require.Error(t, werr)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(werr, &appErr))
	assert.Equal(t, ErrTypeCapacityOverflow, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestActivities_ReleaseCapacity_OverflowIsReportedCritical(t *testing.T) {
	item, err := models.NewItem("Projector", models.KindEquipment, 1, 0)
	require.NoError(t, err)
	ledger := memory.NewLedger()
	ledger.Track(item)

	var buf bytes.Buffer
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	acts := &Activities{Ledger: ledger, Log: logger.NewWriter(&buf, "info")}
	env.RegisterActivity(acts)

	reservationID := uuid.New()
	_, err = env.ExecuteActivity(acts.ReleaseCapacity, ReleaseInput{ReservationID: reservationID, ItemID: item.ID})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"severity":"critical"`)
	assert.Contains(t, out, "capacity overflow on release")
	assert.Contains(t, out, reservationID.String())
}

func TestActivities_ReleaseCapacity_UnknownItem(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	acts := &Activities{Ledger: memory.NewLedger()}
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.ReleaseCapacity, ReleaseInput{ReservationID: uuid.New(), ItemID: uuid.New()})

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeItemNotFound, appErr.Type())
}

type fakeStarter struct {
	opts client.StartWorkflowOptions
	args []interface{}
	err  error
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	f.opts = opts
	f.args = args
	return nil, f.err
}

func TestReleaseScheduler_ScheduleRelease(t *testing.T) {
	starter := &fakeStarter{}
	s := &ReleaseScheduler{client: starter, taskQueue: "reservation-release"}
	reservationID, itemID := uuid.New(), uuid.New()

	require.NoError(t, s.ScheduleRelease(context.Background(), reservationID, itemID))
	assert.Equal(t, "release-"+reservationID.String(), starter.opts.ID)
	assert.Equal(t, "reservation-release", starter.opts.TaskQueue)
	require.Len(t, starter.args, 1)
	assert.Equal(t, ReleaseInput{ReservationID: reservationID, ItemID: itemID}, starter.args[0])

	starter.err = errors.New("frontend unavailable")
	assert.ErrorContains(t, s.ScheduleRelease(context.Background(), reservationID, itemID), "start release workflow")
}
