package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/resolver"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

func intPtr(i int) *int { return &i }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []*event.Event
}

func (l *eventLog) handle(ctx context.Context, evt *event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) types() []event.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Type, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store  *fakeStore
	engine Engine
	clock  *testClock
	events *eventLog
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	store := newFakeStore()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	log := &eventLog{}

	d := dispatcher.NewDispatcher()
	d.SubscribeAll("test-log", log.handle)
	t.Cleanup(func() { _ = d.Close() })

	engine := NewEngine(store, store, resolver.New(store), store,
		WithConfig(cfg),
		WithDispatcher(d),
		WithClock(clock.Now),
	)

	return &harness{store: store, engine: engine, clock: clock, events: log}
}

// scenarioHarness builds the purchase requisition flow: the requester's manager
// approves, then two of three procurement officers
func scenarioHarness(t *testing.T, cfg Config) *harness {
	h := newHarness(t, cfg)
	h.store.addEmployee("E015", "Eva", "Site Engineer", "M010")
	h.store.addEmployee("M010", "Marco", "Project Manager", "D001")
	h.store.addEmployee("D001", "Dana", "Director", "")
	h.store.addRole("PROC_OFFICER", "P001", "P002", "P003")
	h.store.addDefinition("PR_STD", "PURCHASE_REQ",
		hierarchyStep("MANAGER"),
		roleStep("PROCUREMENT", entity.CompletionMinN, intPtr(2), "PROC_OFFICER"),
	)
	return h
}

func (h *harness) create(t *testing.T) *entity.WorkflowInstance {
	t.Helper()
	inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{
		ObjectType:  "PURCHASE_REQ",
		ObjectID:    "PR-2026-0001",
		RequesterID: "E015",
		ContextData: map[string]interface{}{"amount": 1200.0, "plant_code": "PL01"},
	})
	require.NoError(t, err)
	return inst
}

func (h *harness) approve(t *testing.T, si *entity.StepInstance) *ApprovalResult {
	t.Helper()
	res, err := h.engine.RecordApproval(context.Background(), si.ID, entity.ActionApprove, "ok")
	require.NoError(t, err)
	return res
}

func TestCreateInstance_Validation(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())

	tests := []struct {
		name string
		req  CreateInstanceRequest
	}{
		{"missing object type", CreateInstanceRequest{ObjectID: "1", RequesterID: "E015"}},
		{"blank object id", CreateInstanceRequest{ObjectType: "PURCHASE_REQ", ObjectID: "   ", RequesterID: "E015"}},
		{"missing requester", CreateInstanceRequest{ObjectType: "PURCHASE_REQ", ObjectID: "1"}},
		{"object id too long", CreateInstanceRequest{ObjectType: "PURCHASE_REQ", ObjectID: strings.Repeat("x", 51), RequesterID: "E015"}},
		{"requester id too long", CreateInstanceRequest{ObjectType: "PURCHASE_REQ", ObjectID: "1", RequesterID: strings.Repeat("E", 21)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateInstance(context.Background(), tt.req)
			assert.ErrorIs(t, err, domainwf.ErrInvalidInput)
		})
	}

	assert.Empty(t, h.store.instances)
	assert.Zero(t, h.store.commits)
}

func TestCreateInstance_NoMatchingWorkflow(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())

	_, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{
		ObjectType:  "TIMESHEET",
		ObjectID:    "TS-1",
		RequesterID: "E015",
	})

	assert.ErrorIs(t, err, domainwf.ErrNoMatchingWorkflow)
	assert.Empty(t, h.store.instances)
	assert.Empty(t, h.store.stepInstances)
}

func TestCreateInstance_InitializesFirstStep(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())

	inst := h.create(t)

	assert.Equal(t, entity.InstanceStatusActive, inst.Status)
	assert.Equal(t, 1, inst.CurrentStepSequence)
	assert.Equal(t, "PR_STD", inst.WorkflowID)

	pending := h.store.pendingFor(inst.ID, 1)
	require.Len(t, pending, 1)
	assert.Equal(t, "M010", pending[0].AssignedAgentID)
	assert.Equal(t, "Marco", pending[0].AssignedAgentName)
	assert.Equal(t, "Project Manager", pending[0].AssignedAgentRole)
	assert.Equal(t, h.clock.Now().Add(48*time.Hour), pending[0].TimeoutAt)

	assert.Equal(t, []event.Type{event.TypeInstanceCreated, event.TypeStepInitialized}, h.events.types())
}

func TestCreateInstance_RoundTripMatchesResolution(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)

	step, err := h.store.GetStep(context.Background(), inst.WorkflowID, 1)
	require.NoError(t, err)
	want := resolver.New(h.store).ResolveStepAgents(context.Background(), step, resolver.ResolutionContext{
		RequesterID: inst.RequesterID,
		Data:        inst.ContextData,
	})

	got, err := h.store.ListStepInstances(context.Background(), inst.ID, 1)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].AgentID, got[i].AssignedAgentID)
		assert.Equal(t, want[i].AgentRole, got[i].AssignedAgentRole)
	}
}

func TestScenario_HierarchyThenMinN(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)

	// step 1: the manager approves
	res := h.approve(t, h.store.pendingFor(inst.ID, 1)[0])
	assert.Equal(t, domainwf.StepOutcome{Decided: true, Result: domainwf.StepApproved}, res.Outcome)
	assert.Equal(t, 2, res.Instance.CurrentStepSequence)
	assert.Equal(t, entity.InstanceStatusActive, res.Instance.Status)

	officers := h.store.pendingFor(inst.ID, 2)
	require.Len(t, officers, 3)

	// step 2: the first approval is not enough
	res = h.approve(t, officers[0])
	assert.False(t, res.Outcome.Decided)
	assert.Equal(t, 2, res.Instance.CurrentStepSequence)

	res = h.approve(t, officers[1])
	assert.True(t, res.Outcome.Decided)
	assert.Equal(t, entity.InstanceStatusCompleted, res.Instance.Status)
	assert.Equal(t, 2, res.Instance.CurrentStepSequence)
	assert.NotNil(t, res.Instance.CompletedAt)

	stored, _ := h.store.GetInstance(context.Background(), inst.ID)
	assert.Equal(t, entity.InstanceStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.CurrentStepSequence)

	// the third officer's task is closed
	third, _ := h.store.GetStepInstance(context.Background(), officers[2].ID)
	assert.Equal(t, entity.StepStatusCancelled, third.Status)

	_, err := h.engine.RecordApproval(context.Background(), officers[2].ID, entity.ActionApprove, "")
	assert.ErrorIs(t, err, domainwf.ErrStepAlreadyDecided)

	assert.Contains(t, h.events.types(), event.TypeInstanceCompleted)
}

func TestRecordApproval_AllRuleWaitsForEveryAgent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.addRole("QA", "Q1", "Q2", "Q3")
	h.store.addDefinition("QC", "INSPECTION", roleStep("QA_SIGNOFF", entity.CompletionAll, nil, "QA"))

	inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{ObjectType: "INSPECTION", ObjectID: "I-1", RequesterID: "E1"})
	require.NoError(t, err)

	agents := h.store.pendingFor(inst.ID, 1)
	require.Len(t, agents, 3)

	for i, si := range agents {
		res := h.approve(t, si)
		if i < 2 {
			assert.Equal(t, entity.InstanceStatusActive, res.Instance.Status, "after %d approvals", i+1)
			continue
		}
		assert.Equal(t, entity.InstanceStatusCompleted, res.Instance.Status)
	}
}

func TestRecordApproval_RejectionTerminatesByDefault(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)
	h.approve(t, h.store.pendingFor(inst.ID, 1)[0])

	officers := h.store.pendingFor(inst.ID, 2)
	require.Len(t, officers, 3)

	// one rejection still leaves two possible approvals
	res, err := h.engine.RecordApproval(context.Background(), officers[0].ID, "reject", "price too high")
	require.NoError(t, err)
	assert.False(t, res.Outcome.Decided)
	assert.Equal(t, entity.StepStatusRejected, res.StepInstance.Status)
	assert.Equal(t, "price too high", res.StepInstance.Comments)

	// a second rejection makes MIN_N(2) unreachable
	res, err = h.engine.RecordApproval(context.Background(), officers[1].ID, entity.ActionReject, "")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StepOutcome{Decided: true, Result: domainwf.StepRejected}, res.Outcome)
	assert.Equal(t, entity.InstanceStatusRejected, res.Instance.Status)

	assert.Empty(t, h.store.pendingFor(inst.ID, 2))
	assert.Contains(t, h.events.types(), event.TypeInstanceRejected)
}

func TestRecordApproval_AdvancePolicyMovesOnAfterRejection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RejectionPolicy = RejectionAdvance
	h := newHarness(t, cfg)
	h.store.addRole("SAFETY", "S1", "S2")
	h.store.addRole("FIN", "F1")
	h.store.addDefinition("CHG", "CHANGE_ORDER",
		roleStep("SAFETY_REVIEW", entity.CompletionAny, nil, "SAFETY"),
		roleStep("FINANCE", entity.CompletionDefault, nil, "FIN"),
	)

	inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{ObjectType: "CHANGE_ORDER", ObjectID: "CO-7", RequesterID: "E1"})
	require.NoError(t, err)

	res, err := h.engine.RecordApproval(context.Background(), h.store.pendingFor(inst.ID, 1)[0].ID, entity.ActionReject, "")
	require.NoError(t, err)

	assert.Equal(t, domainwf.StepRejected, res.Outcome.Result)
	assert.Equal(t, entity.InstanceStatusActive, res.Instance.Status)
	assert.Equal(t, 2, res.Instance.CurrentStepSequence)
	assert.Len(t, h.store.pendingFor(inst.ID, 2), 1)
}

func TestRecordApproval_InputErrors(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)
	si := h.store.pendingFor(inst.ID, 1)[0]

	_, err := h.engine.RecordApproval(context.Background(), "", entity.ActionApprove, "")
	assert.ErrorIs(t, err, domainwf.ErrInvalidInput)

	_, err = h.engine.RecordApproval(context.Background(), si.ID, "MAYBE", "")
	assert.ErrorIs(t, err, domainwf.ErrInvalidInput)

	_, err = h.engine.RecordApproval(context.Background(), "missing", entity.ActionApprove, "")
	assert.ErrorIs(t, err, domainwf.ErrStepInstanceNotFound)
}

func TestRecordApproval_TruncatesComments(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)

	res, err := h.engine.RecordApproval(context.Background(), h.store.pendingFor(inst.ID, 1)[0].ID, entity.ActionApprove, strings.Repeat("é", 600))
	require.NoError(t, err)

	assert.Equal(t, 500, len([]rune(res.StepInstance.Comments)))
}

func TestRecordApproval_LostAdvanceRollsBack(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)
	si := h.store.pendingFor(inst.ID, 1)[0]
	eventsBefore := len(h.events.types())

	h.store.staleAdvance = true
	_, err := h.engine.RecordApproval(context.Background(), si.ID, entity.ActionApprove, "")
	require.ErrorIs(t, err, domainwf.ErrConcurrentUpdate)

	// the decision was rolled back with the failed advancement
	stored, _ := h.store.GetStepInstance(context.Background(), si.ID)
	assert.Equal(t, entity.StepStatusPending, stored.Status)
	assert.Empty(t, h.store.pendingFor(inst.ID, 2))
	assert.Len(t, h.events.types(), eventsBefore, "no events for a rolled back operation")

	// retrying succeeds
	res := h.approve(t, si)
	assert.Equal(t, 2, res.Instance.CurrentStepSequence)
}

func TestRecordApproval_ConcurrentApprovalsAdvanceOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.addRole("BOARD", "B1", "B2", "B3", "B4")
	h.store.addRole("CFO", "C1")
	h.store.addDefinition("CAPEX", "CAPEX",
		roleStep("BOARD", entity.CompletionMinN, intPtr(2), "BOARD"),
		roleStep("CFO", entity.CompletionDefault, nil, "CFO"),
	)

	inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{ObjectType: "CAPEX", ObjectID: "CX-1", RequesterID: "E1"})
	require.NoError(t, err)
	board := h.store.pendingFor(inst.ID, 1)
	require.Len(t, board, 4)

	var wg sync.WaitGroup
	for _, si := range board {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = h.engine.RecordApproval(context.Background(), id, entity.ActionApprove, "")
		}(si.ID)
	}
	wg.Wait()

	stored, _ := h.store.GetInstance(context.Background(), inst.ID)
	assert.Equal(t, 2, stored.CurrentStepSequence)
	assert.Len(t, h.store.pendingFor(inst.ID, 2), 1, "step 2 initialized exactly once")

	advanced := 0
	for _, typ := range h.events.types() {
		if typ == event.TypeInstanceAdvanced {
			advanced++
		}
	}
	assert.Equal(t, 1, advanced)
}

func TestRecordApproval_StepNotCurrent(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)

	// an extra pending row on step 1
	stray := &entity.StepInstance{
		ID:                 "stray",
		WorkflowInstanceID: inst.ID,
		StepSequence:       1,
		AssignedAgentID:    "X",
		Status:             entity.StepStatusPending,
	}
	require.NoError(t, h.store.CreateStepInstance(context.Background(), stray))
	h.approve(t, h.store.pendingFor(inst.ID, 1)[0])

	// the stray row was cancelled when step 1 was decided
	_, err := h.engine.RecordApproval(context.Background(), "stray", entity.ActionApprove, "")
	assert.ErrorIs(t, err, domainwf.ErrStepAlreadyDecided)

	late := &entity.StepInstance{ID: "late", WorkflowInstanceID: inst.ID, StepSequence: 1, Status: entity.StepStatusPending}
	require.NoError(t, h.store.CreateStepInstance(context.Background(), late))
	_, err = h.engine.RecordApproval(context.Background(), "late", entity.ActionApprove, "")
	assert.ErrorIs(t, err, domainwf.ErrStepNotCurrent)
}

func TestCreateInstance_NoAgentsResolved(t *testing.T) {
	t.Run("fails and persists nothing by default", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.store.addDefinition("ORPHAN", "MEMO", hierarchyStep("MANAGER"))

		_, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{ObjectType: "MEMO", ObjectID: "M-1", RequesterID: "NOBODY"})

		assert.ErrorIs(t, err, domainwf.ErrNoAgentsResolved)
		assert.Empty(t, h.store.instances)
		assert.Empty(t, h.events.types())
	})

	t.Run("allowed empty step leaves instance waiting", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AllowEmptySteps = true
		h := newHarness(t, cfg)
		h.store.addDefinition("ORPHAN", "MEMO", hierarchyStep("MANAGER"))

		inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{ObjectType: "MEMO", ObjectID: "M-1", RequesterID: "NOBODY"})

		require.NoError(t, err)
		assert.Equal(t, entity.InstanceStatusActive, inst.Status)
		assert.Empty(t, h.store.pendingFor(inst.ID, 1))

		complete, err := h.engine.IsStepComplete(context.Background(), inst.ID, 1)
		require.NoError(t, err)
		assert.False(t, complete, "a step without step instances is never complete")
	})
}

func TestInitializeStep_MissingStepIsNoop(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)

	created, err := h.engine.InitializeStep(context.Background(), inst.ID, 9)

	require.NoError(t, err)
	assert.Empty(t, created)

	_, err = h.engine.InitializeStep(context.Background(), "unknown", 1)
	assert.ErrorIs(t, err, domainwf.ErrInstanceNotFound)
}

func TestAdvance_CompletesAfterLastStep(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.addRole("QA", "Q1")
	h.store.addDefinition("ONE", "NCR", roleStep("QA", entity.CompletionAny, nil, "QA"))

	inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{ObjectType: "NCR", ObjectID: "N-1", RequesterID: "E1"})
	require.NoError(t, err)

	done, err := h.engine.Advance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusCompleted, done.Status)
	assert.Equal(t, 1, done.CurrentStepSequence)

	_, err = h.engine.Advance(context.Background(), inst.ID)
	assert.ErrorIs(t, err, domainwf.ErrInstanceNotActive)
}

func TestIsStepCompleteAndEvaluateStep(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)
	h.approve(t, h.store.pendingFor(inst.ID, 1)[0])
	officers := h.store.pendingFor(inst.ID, 2)

	_, err := h.engine.RecordApproval(context.Background(), officers[0].ID, entity.ActionApprove, "")
	require.NoError(t, err)

	complete, err := h.engine.IsStepComplete(context.Background(), inst.ID, 2)
	require.NoError(t, err)
	assert.False(t, complete)

	outcome, err := h.engine.EvaluateStep(context.Background(), inst.ID, 2)
	require.NoError(t, err)
	assert.False(t, outcome.Decided)

	complete, err = h.engine.IsStepComplete(context.Background(), inst.ID, 1)
	require.NoError(t, err)
	assert.True(t, complete)

	complete, err = h.engine.IsStepComplete(context.Background(), inst.ID, 3)
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestCancelInstance(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)

	cancelled, err := h.engine.CancelInstance(context.Background(), inst.ID, "  requisition withdrawn ")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusCancelled, cancelled.Status)
	assert.Empty(t, h.store.pendingFor(inst.ID, 1))

	_, err = h.engine.CancelInstance(context.Background(), inst.ID, "again")
	assert.ErrorIs(t, err, domainwf.ErrInstanceNotActive)

	last := h.events.events[len(h.events.events)-1]
	assert.Equal(t, event.TypeInstanceCancelled, last.Type)
	assert.Equal(t, "requisition withdrawn", last.GetPayloadString("reason"))
}

func TestHandleTimeout_EscalatesToManager(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)
	original := h.store.pendingFor(inst.ID, 1)[0]

	h.clock.Advance(49 * time.Hour)
	handled, err := h.engine.SweepTimeouts(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	stored, _ := h.store.GetStepInstance(context.Background(), original.ID)
	assert.Equal(t, entity.StepStatusEscalated, stored.Status)

	pending := h.store.pendingFor(inst.ID, 1)
	require.Len(t, pending, 1)
	assert.Equal(t, "D001", pending[0].AssignedAgentID)
	assert.Equal(t, original.ID, pending[0].EscalatedFrom)
	assert.Equal(t, h.clock.Now().Add(48*time.Hour), pending[0].TimeoutAt)

	// the director can decide the step in the manager's place
	res := h.approve(t, pending[0])
	assert.Equal(t, 2, res.Instance.CurrentStepSequence)
}

func TestHandleTimeout_NoManagerAutoRejects(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	inst := h.create(t)
	h.approve(t, h.store.pendingFor(inst.ID, 1)[0])

	// procurement officers have no manager on record
	officers := h.store.pendingFor(inst.ID, 2)
	res, err := h.engine.HandleTimeout(context.Background(), officers[0].ID)
	require.NoError(t, err)
	assert.Equal(t, TimeoutReject, res.Action)
	assert.Nil(t, res.EscalatedTo)

	stored, _ := h.store.GetStepInstance(context.Background(), officers[0].ID)
	assert.Equal(t, entity.StepStatusRejected, stored.Status)
	assert.Equal(t, "auto-rejected: approval timed out", stored.Comments)
	assert.Equal(t, entity.InstanceStatusActive, res.Instance.Status)
}

func TestHandleTimeout_RejectAction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutAction = TimeoutReject
	h := scenarioHarness(t, cfg)
	inst := h.create(t)

	res, err := h.engine.HandleTimeout(context.Background(), h.store.pendingFor(inst.ID, 1)[0].ID)
	require.NoError(t, err)

	// the only manager's step rejects, which ends the instance
	assert.Equal(t, entity.InstanceStatusRejected, res.Instance.Status)
	assert.Contains(t, h.events.types(), event.TypeApprovalTimedOut)
}

func TestHandleTimeout_NoneAction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutAction = TimeoutNone
	h := scenarioHarness(t, cfg)
	inst := h.create(t)
	si := h.store.pendingFor(inst.ID, 1)[0]

	res, err := h.engine.HandleTimeout(context.Background(), si.ID)
	require.NoError(t, err)
	assert.Equal(t, TimeoutNone, res.Action)

	stored, _ := h.store.GetStepInstance(context.Background(), si.ID)
	assert.Equal(t, entity.StepStatusPending, stored.Status)
}

func TestSweepTimeouts_SkipsUnexpired(t *testing.T) {
	h := scenarioHarness(t, DefaultConfig())
	h.create(t)

	h.clock.Advance(47 * time.Hour)
	handled, err := h.engine.SweepTimeouts(context.Background(), 10)

	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestStepTimeoutHoursOverride(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.addRole("QA", "Q1")
	step := roleStep("QA", entity.CompletionAny, nil, "QA")
	step.TimeoutHours = intPtr(4)
	h.store.addDefinition("FAST", "NCR", step)

	inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{ObjectType: "NCR", ObjectID: "N-2", RequesterID: "E1"})
	require.NoError(t, err)

	assert.Equal(t, h.clock.Now().Add(4*time.Hour), h.store.pendingFor(inst.ID, 1)[0].TimeoutAt)
}
