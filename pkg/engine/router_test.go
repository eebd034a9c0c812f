package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/beaconcrm/automation/pkg/actions"
	"github.com/beaconcrm/automation/pkg/checkpoint"
	"github.com/beaconcrm/automation/pkg/conditions"
	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listStub struct {
	workflows []*models.Workflow
	err       error
}

func (s *listStub) ListActiveByTrigger(_ context.Context, _ string, _ models.TriggerType) ([]*models.Workflow, error) {
	return s.workflows, s.err
}

type failingGovernor struct{}

func (failingGovernor) Admit(_ context.Context, _ string, _ models.RateLimits) (bool, error) {
	return false, errors.New("governor backend unreachable")
}

func routerFixture(t *testing.T, list *listStub, governor ratelimit.Governor, executed *[]string) (*TriggerRouter, *stubWorkflows, *Executor) {
	t.Helper()

	var allWorkflows []*models.Workflow
	allWorkflows = append(allWorkflows, list.workflows...)

	workflows := newStubWorkflows(allWorkflows...)

	executor := NewExecutor(testLogger(), workflows, newStubExecutions(),
		checkpoint.NewMemoryStore(), recordingDispatcher(t, executed, nil), &capturingPublisher{})

	router := NewTriggerRouter(testLogger(), list, conditions.NewEvaluator(testLogger()), governor, executor)

	return router, workflows, executor
}

func namedWorkflow(id string, priority int, cond *models.Condition, limits models.RateLimits) *models.Workflow {
	return &models.Workflow{
		ID:             id,
		OrganizationID: "org-1",
		Name:           "workflow " + id,
		TriggerType:    models.TriggerPlatformEvent,
		Conditions:     cond,
		Actions:        []models.Action{mark(models.ActionAddTag, id, false)},
		Status:         models.WorkflowStatusActive,
		Priority:       priority,
		RateLimits:     limits,
	}
}

func TestRouter_UnknownTriggerTypeRoutesNothing(t *testing.T) {
	var executed []string

	router, _, _ := routerFixture(t, &listStub{}, ratelimit.NewMemoryGovernor(), &executed)

	started, err := router.Route(context.Background(), "org-1", "carrier_pigeon", nil)
	require.NoError(t, err)
	assert.Empty(t, started)
}

func TestRouter_StartsMatchingWorkflowsInOrder(t *testing.T) {
	var executed []string

	// The repository returns priority order; the router preserves it.
	list := &listStub{workflows: []*models.Workflow{
		namedWorkflow("wf-high", 10, nil, models.RateLimits{}),
		namedWorkflow("wf-low", 1, nil, models.RateLimits{}),
	}}

	router, workflows, executor := routerFixture(t, list, ratelimit.NewMemoryGovernor(), &executed)

	started, err := router.Route(context.Background(), "org-1", models.TriggerPlatformEvent, map[string]any{"amount": 50})
	require.NoError(t, err)

	// The routing pass admits and starts in priority order; the workers
	// themselves run concurrently.
	require.Len(t, started, 2)
	assert.Equal(t, "wf-high", started[0].WorkflowID)
	assert.Equal(t, "wf-low", started[1].WorkflowID)

	executor.Wait()
	assert.ElementsMatch(t, []string{"wf-high", "wf-low"}, executed)

	// Both terminated executions landed in the stats.
	assert.Len(t, workflows.recorded, 2)
}

func TestRouter_ConditionsFilterWorkflows(t *testing.T) {
	var executed []string

	bigDonation := &models.Condition{Field: "amount", Operator: models.OpGreaterThan, Value: 100}

	list := &listStub{workflows: []*models.Workflow{
		namedWorkflow("wf-big", 5, bigDonation, models.RateLimits{}),
		namedWorkflow("wf-any", 1, nil, models.RateLimits{}),
	}}

	router, _, executor := routerFixture(t, list, ratelimit.NewMemoryGovernor(), &executed)

	started, err := router.Route(context.Background(), "org-1", models.TriggerPlatformEvent, map[string]any{"amount": 50})
	require.NoError(t, err)

	require.Len(t, started, 1)
	assert.Equal(t, "wf-any", started[0].WorkflowID)

	executor.Wait()
	assert.Equal(t, []string{"wf-any"}, executed)
}

func TestRouter_RateLimitSkips(t *testing.T) {
	var executed []string

	list := &listStub{workflows: []*models.Workflow{
		namedWorkflow("wf-limited", 5, nil, models.RateLimits{MaxPerHour: 1}),
	}}

	router, _, executor := routerFixture(t, list, ratelimit.NewMemoryGovernor(), &executed)

	started, err := router.Route(context.Background(), "org-1", models.TriggerPlatformEvent, nil)
	require.NoError(t, err)
	require.Len(t, started, 1)

	// Second trigger within the window is skipped, not an error. Admission
	// is consumed during the routing pass, not when the worker finishes.
	started, err = router.Route(context.Background(), "org-1", models.TriggerPlatformEvent, nil)
	require.NoError(t, err)
	assert.Empty(t, started)

	executor.Wait()
	assert.Equal(t, []string{"wf-limited"}, executed)
}

func TestRouter_GovernorFailureFailsClosed(t *testing.T) {
	var executed []string

	list := &listStub{workflows: []*models.Workflow{
		namedWorkflow("wf-1", 5, nil, models.RateLimits{}),
	}}

	router, _, _ := routerFixture(t, list, failingGovernor{}, &executed)

	started, err := router.Route(context.Background(), "org-1", models.TriggerPlatformEvent, nil)
	require.NoError(t, err)
	assert.Empty(t, started)
	assert.Empty(t, executed)
}

func TestRouter_PinnedPayloadSelectsOneWorkflow(t *testing.T) {
	var executed []string

	list := &listStub{workflows: []*models.Workflow{
		namedWorkflow("wf-a", 5, nil, models.RateLimits{}),
		namedWorkflow("wf-b", 1, nil, models.RateLimits{}),
	}}

	router, _, executor := routerFixture(t, list, ratelimit.NewMemoryGovernor(), &executed)

	started, err := router.Route(context.Background(), "org-1", models.TriggerPlatformEvent,
		map[string]any{"workflow_id": "wf-b"})
	require.NoError(t, err)

	require.Len(t, started, 1)
	assert.Equal(t, "wf-b", started[0].WorkflowID)

	executor.Wait()
}

func TestRouter_RepositoryErrorPropagates(t *testing.T) {
	var executed []string

	list := &listStub{err: errors.New("database offline")}

	router, _, _ := routerFixture(t, list, ratelimit.NewMemoryGovernor(), &executed)

	_, err := router.Route(context.Background(), "org-1", models.TriggerPlatformEvent, nil)
	assert.Error(t, err)
}

func TestRouter_NonRoutableWorkflowSkipped(t *testing.T) {
	var executed []string

	paused := namedWorkflow("wf-paused", 5, nil, models.RateLimits{})
	paused.Status = models.WorkflowStatusPaused

	list := &listStub{workflows: []*models.Workflow{paused}}

	router, _, _ := routerFixture(t, list, ratelimit.NewMemoryGovernor(), &executed)

	started, err := router.Route(context.Background(), "org-1", models.TriggerPlatformEvent, nil)
	require.NoError(t, err)
	assert.Empty(t, started)
}

func TestRouter_RouteReturnsBeforeExecutionsFinish(t *testing.T) {
	ctx := context.Background()

	inFlight := make(chan struct{}, 2)
	release := make(chan struct{})

	dispatcher := actions.NewDispatcher(testLogger())
	require.NoError(t, dispatcher.Register(models.ActionAddTag, actions.HandlerFunc(
		func(_ context.Context, _ map[string]any, _ actions.ExecutionContext, _ *slog.Logger) error {
			inFlight <- struct{}{}
			<-release

			return nil
		})))

	list := &listStub{workflows: []*models.Workflow{
		namedWorkflow("wf-a", 5, nil, models.RateLimits{}),
		namedWorkflow("wf-b", 1, nil, models.RateLimits{}),
	}}

	workflows := newStubWorkflows(list.workflows...)
	executions := newStubExecutions()

	executor := NewExecutor(testLogger(), workflows, executions,
		checkpoint.NewMemoryStore(), dispatcher, &capturingPublisher{})
	router := NewTriggerRouter(testLogger(), list, conditions.NewEvaluator(testLogger()),
		ratelimit.NewMemoryGovernor(), executor)

	// Both workflows block inside their first action until released, so a
	// routing pass that waited on its executions could never return here.
	started, err := router.Route(ctx, "org-1", models.TriggerPlatformEvent, nil)
	require.NoError(t, err)
	require.Len(t, started, 2)

	for _, execution := range started {
		assert.False(t, execution.Status.Terminal())
	}

	// One worker per execution: both actions are in flight at the same time.
	<-inFlight
	<-inFlight

	close(release)
	executor.Wait()

	for _, execution := range started {
		saved, err := executions.GetByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, saved.Status)
	}
}
