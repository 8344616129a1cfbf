// Package workflows runs capacity releases that could not finish inline as
// durable Temporal workflows.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/ghuser/campusreserve/pkg/logger"
	"github.com/ghuser/campusreserve/pkg/telemetry"
	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/repositories"
)

// Non-retryable failure types reported by ReleaseCapacity.
const (
	ErrTypeCapacityOverflow = "CapacityOverflow"
	ErrTypeItemNotFound     = "ItemNotFound"
)

// ReleaseInput identifies the unit of capacity to give back.
type ReleaseInput struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ItemID        uuid.UUID `json:"item_id"`
}

// ReleaseCapacityWorkflow retries the ledger increment until it succeeds or
// fails permanently.
func ReleaseCapacityWorkflow(ctx workflow.Context, in ReleaseInput) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        5 * time.Minute,
			NonRetryableErrorTypes: []string{ErrTypeCapacityOverflow, ErrTypeItemNotFound},
		},
	})

	var a *Activities
	if err := workflow.ExecuteActivity(ctx, a.ReleaseCapacity, in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("capacity release failed permanently",
			"reservation_id", in.ReservationID, "item_id", in.ItemID, "error", err)
		return err
	}
	return nil
}

// Activities holds the dependencies of the release activity. Log receives
// the critical report of a permanent failure; nil skips the log line but
// still reports to Sentry.
type Activities struct {
	Ledger repositories.Ledger
	Log    logger.Logger
}

// ReleaseCapacity returns one unit of the item's capacity.
func (a *Activities) ReleaseCapacity(ctx context.Context, in ReleaseInput) error {
	err := a.Ledger.Increment(ctx, in.ItemID)
	switch {
	case err == nil:
		activity.GetLogger(ctx).Info("capacity released", "reservation_id", in.ReservationID, "item_id", in.ItemID)
		return nil
	case errors.Is(err, domain.ErrCapacityOverflow):
		a.alert(ctx, "capacity overflow on release", err, in)
		return temporal.NewNonRetryableApplicationError("capacity already at total", ErrTypeCapacityOverflow, err)
	case errors.Is(err, domain.ErrItemNotFound):
		a.alert(ctx, "capacity release for untracked item", err, in)
		return temporal.NewNonRetryableApplicationError("item not tracked by ledger", ErrTypeItemNotFound, err)
	default:
		return err
	}
}

func (a *Activities) alert(ctx context.Context, msg string, err error, in ReleaseInput) {
	if a.Log != nil {
		logger.Critical(ctx, a.Log, msg,
			"reservation_id", in.ReservationID, "item_id", in.ItemID, "error", err)
	}
	telemetry.CaptureCritical(ctx, fmt.Errorf("%s: %w", msg, err), map[string]string{
		"reservation_id": in.ReservationID.String(),
		"item_id":        in.ItemID.String(),
	})
}

// Register adds the release workflow and its activity to a worker.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(ReleaseCapacityWorkflow)
	r.RegisterActivity(acts)
}

type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ReleaseScheduler starts one ReleaseCapacityWorkflow per reservation.
type ReleaseScheduler struct {
	client    workflowStarter
	taskQueue string
}

// NewReleaseScheduler returns a ReleaseScheduler that enqueues on taskQueue.
func NewReleaseScheduler(c client.Client, taskQueue string) *ReleaseScheduler {
	return &ReleaseScheduler{client: c, taskQueue: taskQueue}
}

// ScheduleRelease starts the release workflow. The workflow ID is derived from
// the reservation so a repeated hand-off joins the running execution.
func (s *ReleaseScheduler) ScheduleRelease(ctx context.Context, reservationID, itemID uuid.UUID) error {
	_, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(reservationID),
		TaskQueue: s.taskQueue,
	}, ReleaseCapacityWorkflow, ReleaseInput{ReservationID: reservationID, ItemID: itemID})
	if err != nil {
		return fmt.Errorf("start release workflow: %w", err)
	}
	return nil
}

// WorkflowID is the release workflow ID for a reservation.
func WorkflowID(reservationID uuid.UUID) string {
	return "release-" + reservationID.String()
}
