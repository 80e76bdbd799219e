package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-request-service/internal/checklist"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/events"
	"github.com/spec-kit/change-request-service/internal/repository"
	apperrors "github.com/spec-kit/change-request-service/pkg/util/errorutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc    *ChangeRequestService
	repo   *repository.MemoryChangeRequestRepository
	clock  *fakeClock
	events *recordingDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryChangeRequestRepository()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	dispatcher := &recordingDispatcher{}
	svc := NewChangeRequestService(ChangeRequestDependencies{
		Repo:       repo,
		Numbers:    NewNumberGenerator(nil, repo),
		Dispatcher: dispatcher,
		Clock:      clock.Now,
	})
	return &fixture{svc: svc, repo: repo, clock: clock, events: dispatcher}
}

func actor(id string, roles ...string) domain.Actor {
	return domain.Actor{ID: id, Roles: domain.NewRoleSet(roles...)}
}

var (
	requester     = actor("u-req", "requester")
	lineManager   = actor("u-lm", "line_manager")
	headOfIT      = actor("u-hit", "head_of_it")
	itOfficer     = actor("u-ito", "it_officer")
	qaOfficer     = actor("u-qa", "qa_officer")
	nocEngineer   = actor("u-noc", "noc")
	deciderByStep = map[domain.Stage]domain.Actor{
		domain.StageDraft:                     requester,
		domain.StageLineManagerApproval:       lineManager,
		domain.StageHeadOfITApproval:          headOfIT,
		domain.StageITOfficerAssessment:       itOfficer,
		domain.StageRequestorTestConfirmation: requester,
		domain.StageQAValidation:              qaOfficer,
		domain.StageRiskAcceptance:            headOfIT,
		domain.StageDeployment:                itOfficer,
		domain.StagePostDeploymentReview:      headOfIT,
		domain.StageClosure:                   nocEngineer,
	}
)

func passingChecklist() *checklist.Submission {
	return &checklist.Submission{
		Schemes: map[checklist.Scheme]checklist.SchemeChecklist{
			checklist.SchemeVisa: {
				Enabled: true,
				Transactions: map[checklist.TransactionType]checklist.MethodResults{
					checklist.TxPurchase: {Insert: checklist.Pass, Tap: checklist.Pass},
				},
			},
		},
		AdditionalChecks: map[string]checklist.TriState{"receipt_printing": checklist.Pass},
	}
}

func failingChecklist() *checklist.Submission {
	sub := passingChecklist()
	sub.AdditionalChecks["receipt_printing"] = checklist.Fail
	return sub
}

func payloadFor(stage domain.Stage) StagePayload {
	accepted := true
	switch stage {
	case domain.StageHeadOfITApproval:
		return StagePayload{AssignedITOfficerID: itOfficer.ID}
	case domain.StageITOfficerAssessment:
		return StagePayload{ITAssessment: &domain.ITAssessment{ImpactAnalysis: "card terminals", RollbackPlan: "reinstall previous firmware"}}
	case domain.StageRequestorTestConfirmation:
		return StagePayload{RequestorTest: &TestingInput{Checklist: passingChecklist()}}
	case domain.StageQAValidation:
		return StagePayload{QAValidation: &QAValidationInput{
			Items:     []domain.QAChecklistItem{{CheckItem: "regression suite", Checked: true}},
			Checklist: passingChecklist(),
		}}
	case domain.StageRiskAcceptance:
		return StagePayload{RiskAccepted: &accepted}
	case domain.StageDeployment:
		return StagePayload{
			DeploymentTeam:  []domain.DeploymentTeamMember{{MemberName: "Dana", Designation: "Engineer"}},
			DeploymentNotes: "rolled out in window",
		}
	case domain.StagePostDeploymentReview:
		return StagePayload{PostDeploymentNotes: "no issues"}
	}
	return StagePayload{}
}

func (f *fixture) create(t *testing.T) *domain.ChangeRequest {
	t.Helper()
	cr, err := f.svc.Create(context.Background(), requester, CreateInput{
		Title:           "Upgrade POS firmware",
		Description:     "Roll out firmware 4.2 to all terminals",
		LineManagerID:   lineManager.ID,
		AffectedSystems: []string{"pos", " "},
	})
	require.NoError(t, err)
	return cr
}

func (f *fixture) approve(t *testing.T, cr *domain.ChangeRequest) *domain.ChangeRequest {
	t.Helper()
	stage := cr.CurrentStage
	updated, err := f.svc.Approve(context.Background(), cr.ID, deciderByStep[stage], ApproveInput{
		SignatureRef: "sig/" + deciderByStep[stage].ID,
		Payload:      payloadFor(stage),
	})
	require.NoError(t, err, "approve stage %d", stage)
	return updated
}

func (f *fixture) advanceTo(t *testing.T, cr *domain.ChangeRequest, stage domain.Stage) *domain.ChangeRequest {
	t.Helper()
	for cr.CurrentStage < stage {
		f.clock.Advance(time.Hour)
		cr = f.approve(t, cr)
	}
	return cr
}

func TestCreateStartsDraft(t *testing.T) {
	f := newFixture(t)
	cr := f.create(t)

	assert.Equal(t, "CR-20260302-0001", cr.CRNumber)
	assert.Equal(t, domain.StageDraft, cr.CurrentStage)
	assert.Equal(t, domain.StatusDraft, cr.CurrentStatus)
	assert.Equal(t, requester.ID, cr.RequestedBy)
	assert.Equal(t, domain.ChangeTypeNormal, cr.ChangeType)
	assert.Equal(t, domain.PriorityMedium, cr.Priority)
	assert.Equal(t, []string{"pos"}, cr.AffectedSystems)
	assert.EqualValues(t, 1, cr.Version)

	history, err := f.svc.GetHistory(context.Background(), cr.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryCreated, history[0].Action)
	assert.Equal(t, domain.Stage(0), history[0].FromStage)
	assert.Equal(t, domain.StageDraft, history[0].ToStage)

	second := f.create(t)
	assert.Equal(t, "CR-20260302-0002", second.CRNumber)
	assert.Equal(t, []events.EventType{events.EventChangeRequestCreated, events.EventChangeRequestCreated}, f.events.types())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, lineManager, CreateInput{Title: "x", Description: "y", LineManagerID: "u-lm"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition))

	_, err = f.svc.Create(ctx, requester, CreateInput{LineManagerID: requester.ID, Priority: "urgent"})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
	assert.Contains(t, domainErr.Details, "title")
	assert.Contains(t, domainErr.Details, "description")
	assert.Contains(t, domainErr.Details, "line_manager_id")
	assert.Contains(t, domainErr.Details, "priority")
}

func TestFullLifecycleCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.create(t)

	cr = f.advanceTo(t, cr, domain.StageClosure)
	assert.Equal(t, domain.StatusWaitingForClosure, cr.CurrentStatus)
	require.NotNil(t, cr.AssignedITOfficerID)
	assert.Equal(t, itOfficer.ID, *cr.AssignedITOfficerID)
	require.NotNil(t, cr.ITAssessment)
	require.NotNil(t, cr.RiskAccepted)
	assert.True(t, *cr.RiskAccepted)
	assert.NotNil(t, cr.DeploymentCompletedAt)
	assert.Equal(t, "no issues", cr.PostDeploymentNotes)

	f.clock.Advance(49 * time.Hour)
	cr, err := f.svc.Close(ctx, cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{NOCClosureNotes: "monitored, stable"}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, cr.CurrentStatus)
	assert.Equal(t, domain.StageClosure, cr.CurrentStage)
	require.NotNil(t, cr.CompletedAt)
	assert.Equal(t, f.clock.Now(), *cr.CompletedAt)
	assert.EqualValues(t, 11, cr.Version)

	history, err := f.svc.GetHistory(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, history, 11)
	for i, h := range history[1:10] {
		assert.Equal(t, domain.HistoryApproved, h.Action)
		assert.Equal(t, domain.Stage(i+1), h.FromStage)
		assert.Equal(t, domain.Stage(i+2), h.ToStage)
	}
	last := history[10]
	assert.Equal(t, domain.HistoryClosed, last.Action)
	assert.Equal(t, domain.StatusWaitingForClosure, last.FromStatus)
	assert.Equal(t, domain.StatusCompleted, last.ToStatus)

	approvals, err := f.svc.GetApprovals(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 9)
	assert.Equal(t, domain.RoleRequester, approvals[4].ApproverRole)
	require.NotNil(t, approvals[6].RiskAccepted)

	team, err := f.svc.GetDeploymentTeam(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, "Dana", team[0].MemberName)

	qa, err := f.svc.GetQAChecklists(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, qa, 1)
	assert.True(t, qa[0].Validated)

	latest, err := f.svc.GetLatestTestingResult(ctx, cr.ID, domain.TestTypeRequestorConfirmation)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, latest.Summary)
	assert.Equal(t, 49, latest.Summary.TotalTests)
	assert.Equal(t, 3, latest.Summary.Passed)
	assert.True(t, latest.Passed)

	_, err = f.svc.Approve(ctx, cr.ID, nocEngineer, ApproveInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestLineManagerIdentityIsEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageLineManagerApproval)

	_, err := f.svc.Approve(ctx, cr.ID, actor("u-other-lm", "line_manager"), ApproveInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition))

	_, err = f.svc.Approve(ctx, cr.ID, actor(lineManager.ID, "requester"), ApproveInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition), "identity without role")

	updated, err := f.svc.Approve(ctx, cr.ID, lineManager, ApproveInput{SignatureRef: "sig"})
	require.NoError(t, err)
	assert.Equal(t, domain.StageHeadOfITApproval, updated.CurrentStage)
	assert.Equal(t, domain.StatusPendingHeadOfIT, updated.CurrentStatus)
}

func TestRequestorConfirmationIsIdentityGated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageRequestorTestConfirmation)

	_, err := f.svc.Approve(ctx, cr.ID, actor("someone-else", "requester", "qa_officer"), ApproveInput{
		SignatureRef: "sig",
		Payload:      payloadFor(domain.StageRequestorTestConfirmation),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition))

	updated, err := f.svc.Approve(ctx, cr.ID, actor(requester.ID), ApproveInput{
		SignatureRef: "sig",
		Payload:      payloadFor(domain.StageRequestorTestConfirmation),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageQAValidation, updated.CurrentStage)
}

func TestFailedRequestorChecklistBlocksApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageRequestorTestConfirmation)

	_, err := f.svc.Approve(ctx, cr.ID, requester, ApproveInput{
		SignatureRef: "sig",
		Payload:      StagePayload{RequestorTest: &TestingInput{Checklist: failingChecklist()}},
	})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
	assert.Equal(t, 1, domainErr.Details["failed"])

	reloaded, err := f.svc.GetByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageRequestorTestConfirmation, reloaded.CurrentStage)
	assert.Equal(t, cr.Version, reloaded.Version)

	results, err := f.svc.GetTestingResults(ctx, cr.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = f.svc.Approve(ctx, cr.ID, requester, ApproveInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "checklist is mandatory")
}

func TestQAValidationNeedsEveryItemChecked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageQAValidation)

	_, err := f.svc.Approve(ctx, cr.ID, qaOfficer, ApproveInput{
		SignatureRef: "sig",
		Payload: StagePayload{QAValidation: &QAValidationInput{
			Items: []domain.QAChecklistItem{
				{CheckItem: "regression suite", Checked: true},
				{CheckItem: "security scan", Checked: false},
			},
			Checklist: passingChecklist(),
		}},
	})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
	assert.Equal(t, false, domainErr.Details["all_items_checked"])
}

func TestStagePayloadsAreRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageHeadOfITApproval)

	_, err := f.svc.Approve(ctx, cr.ID, headOfIT, ApproveInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.svc.Approve(ctx, cr.ID, headOfIT, ApproveInput{Payload: payloadFor(domain.StageHeadOfITApproval)})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "signature is mandatory")

	cr = f.advanceTo(t, cr, domain.StageRiskAcceptance)
	declined := false
	_, err = f.svc.Approve(ctx, cr.ID, headOfIT, ApproveInput{SignatureRef: "sig", Payload: StagePayload{RiskAccepted: &declined}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	cr = f.advanceTo(t, cr, domain.StageDeployment)
	_, err = f.svc.Approve(ctx, cr.ID, itOfficer, ApproveInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestCloseEnforcesSettlingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageClosure)

	f.clock.Advance(10 * time.Hour)
	_, err := f.svc.Close(ctx, cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{NOCClosureNotes: "stable"}})
	require.Error(t, err)
	assert.Contains(t, apperrors.ToDomainError(err).Details, "early_closure_justification")

	_, err = f.svc.Close(ctx, cr.ID, headOfIT, CloseInput{Closure: domain.Closure{NOCClosureNotes: "stable", EarlyClosureJustification: "x"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition))

	closed, err := f.svc.Close(ctx, cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{
		NOCClosureNotes:           "stable",
		EarlyClosureJustification: "vendor confirmed fix",
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, closed.CurrentStatus)
	require.NotNil(t, closed.Closure)
	assert.Equal(t, "vendor confirmed fix", closed.Closure.EarlyClosureJustification)
}

func TestCloseRequiresIncidentAndRollbackDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageClosure)
	f.clock.Advance(72 * time.Hour)

	_, err := f.svc.Close(ctx, cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{
		NOCClosureNotes:   "rolled back",
		IncidentTriggered: true,
		RollbackTriggered: true,
	}})
	require.Error(t, err)
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "incident_details")
	assert.Contains(t, details, "rollback_details")
	assert.NotContains(t, details, "early_closure_justification")
}

func TestCloseBeforeClosureStageIsInvalid(t *testing.T) {
	f := newFixture(t)
	cr := f.advanceTo(t, f.create(t), domain.StagePostDeploymentReview)

	_, err := f.svc.Close(context.Background(), cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{NOCClosureNotes: "n"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestRejectFreezesRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageHeadOfITApproval)

	_, err := f.svc.Reject(ctx, cr.ID, headOfIT, RejectInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "reason is mandatory")

	rejected, err := f.svc.Reject(ctx, cr.ID, headOfIT, RejectInput{Reason: "no budget", SignatureRef: "sig"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.CurrentStatus)
	assert.Equal(t, domain.StageHeadOfITApproval, rejected.CurrentStage)

	history, err := f.svc.GetHistory(ctx, cr.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.HistoryRejected, last.Action)
	assert.Equal(t, domain.StatusPendingHeadOfIT, last.FromStatus)
	assert.Equal(t, domain.StatusRejected, last.ToStatus)
	assert.Equal(t, "no budget", last.Notes)

	checks := map[string]error{}
	_, checks["approve"] = f.svc.Approve(ctx, cr.ID, headOfIT, ApproveInput{SignatureRef: "sig", Payload: payloadFor(domain.StageHeadOfITApproval)})
	_, checks["reject"] = f.svc.Reject(ctx, cr.ID, headOfIT, RejectInput{Reason: "again", SignatureRef: "sig"})
	_, checks["close"] = f.svc.Close(ctx, cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{NOCClosureNotes: "n"}})
	_, checks["edit"] = f.svc.EditDecision(ctx, cr.ID, lineManager, EditDecisionInput{Stage: domain.StageLineManagerApproval, Decision: domain.DecisionApproved, SignatureRef: "sig"})
	_, checks["attach"] = f.svc.AddAttachment(ctx, cr.ID, requester, AttachmentInput{StorageKey: "k", FileName: "f.pdf"})
	checks["delete"] = f.svc.Delete(ctx, cr.ID, lineManager, nil)
	for op, err := range checks {
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState), op)
	}

	_, perms, err := f.svc.ResolvePermissions(ctx, cr.ID, headOfIT)
	require.NoError(t, err)
	assert.False(t, perms.CanActOnCurrentStage)
	assert.False(t, perms.CanEdit)
}

func TestRejectAllowedAtClosure(t *testing.T) {
	f := newFixture(t)
	cr := f.advanceTo(t, f.create(t), domain.StageClosure)

	rejected, err := f.svc.Reject(context.Background(), cr.ID, nocEngineer, RejectInput{Reason: "outage", SignatureRef: "sig"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.CurrentStatus)
}

func TestExpectedVersionMismatchIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.create(t)
	stale := cr.Version

	cr = f.approve(t, cr)
	_, err := f.svc.Approve(ctx, cr.ID, lineManager, ApproveInput{SignatureRef: "sig", ExpectedVersion: &stale})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStaleState))

	reloaded, err := f.svc.GetByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageLineManagerApproval, reloaded.CurrentStage)

	current := reloaded.Version
	_, err = f.svc.Approve(ctx, cr.ID, lineManager, ApproveInput{SignatureRef: "sig", ExpectedVersion: &current})
	require.NoError(t, err)
}

func TestEditDecisionKeepsStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageHeadOfITApproval)

	_, err := f.svc.EditDecision(ctx, cr.ID, headOfIT, EditDecisionInput{Stage: domain.StageLineManagerApproval, Decision: domain.DecisionApproved, SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition), "head of IT decides stage 3 but may not edit it")

	_, err = f.svc.EditDecision(ctx, cr.ID, lineManager, EditDecisionInput{Stage: domain.StageDraft, Decision: domain.DecisionApproved, SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))

	edited, err := f.svc.EditDecision(ctx, cr.ID, actor("u-any-lm", "line_manager"), EditDecisionInput{
		Stage:        domain.StageLineManagerApproval,
		Decision:     domain.DecisionApproved,
		SignatureRef: "sig-2",
		Comments:     "re-signed",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageHeadOfITApproval, edited.CurrentStage)
	assert.Equal(t, domain.StatusPendingHeadOfIT, edited.CurrentStatus)

	approvals, err := f.svc.GetApprovals(ctx, cr.ID)
	require.NoError(t, err)
	last := approvals[len(approvals)-1]
	assert.True(t, last.IsEdit)
	assert.Equal(t, domain.StageLineManagerApproval, last.Stage)
	assert.Equal(t, domain.RoleLineManager, last.ApproverRole)

	history, err := f.svc.GetHistory(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HistoryDecisionEdited, history[len(history)-1].Action)

	rejected, err := f.svc.EditDecision(ctx, cr.ID, lineManager, EditDecisionInput{
		Stage:        domain.StageLineManagerApproval,
		Decision:     domain.DecisionRejected,
		SignatureRef: "sig-3",
		Comments:     "scope changed",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.CurrentStatus)
	assert.Equal(t, domain.StageHeadOfITApproval, rejected.CurrentStage)
}

func TestEditDecisionKeepsAssignedOfficer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageITOfficerAssessment)

	edited, err := f.svc.EditDecision(ctx, cr.ID, headOfIT, EditDecisionInput{
		Stage:        domain.StageHeadOfITApproval,
		Decision:     domain.DecisionApproved,
		SignatureRef: "sig",
		Payload:      StagePayload{AssignedITOfficerID: "someone-else"},
	})
	require.NoError(t, err)
	require.NotNil(t, edited.AssignedITOfficerID)
	assert.Equal(t, itOfficer.ID, *edited.AssignedITOfficerID)
}

func TestAddAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageHeadOfITApproval)

	_, err := f.svc.AddAttachment(ctx, cr.ID, actor("stranger", "qa_officer"), AttachmentInput{StorageKey: "k", FileName: "plan.pdf"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition))

	_, err = f.svc.AddAttachment(ctx, cr.ID, requester, AttachmentInput{FileName: "plan.pdf"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	att, err := f.svc.AddAttachment(ctx, cr.ID, requester, AttachmentInput{StorageKey: "uploads/plan.pdf", FileName: "plan.pdf", MimeType: "application/pdf", SizeBytes: 1024})
	require.NoError(t, err)
	assert.NotEmpty(t, att.ID)
	assert.Equal(t, requester.ID, att.UploadedBy)

	attachments, err := f.svc.GetAttachments(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)

	reloaded, err := f.svc.GetByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageHeadOfITApproval, reloaded.CurrentStage)

	history, err := f.svc.GetHistory(ctx, cr.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.HistoryAttachmentAdded, last.Action)
	assert.Equal(t, last.FromStage, last.ToStage)
}

func TestDeleteFollowsEditRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageLineManagerApproval)

	err := f.svc.Delete(ctx, cr.ID, lineManager, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition))

	require.NoError(t, f.svc.Delete(ctx, cr.ID, requester, nil))

	_, err = f.svc.GetByID(ctx, cr.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = f.svc.GetHistory(ctx, cr.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.Contains(t, f.events.types(), events.EventChangeRequestDeleted)
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	f := newFixture(t)
	cr := f.create(t)
	before := len(f.events.types())

	_, err := f.svc.Approve(context.Background(), cr.ID, lineManager, ApproveInput{SignatureRef: "sig"})
	require.Error(t, err)
	assert.Len(t, f.events.types(), before)
}

func TestUnknownChangeRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Approve(context.Background(), "missing", requester, ApproveInput{SignatureRef: "sig"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestListFiltersByStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t)
	f.advanceTo(t, f.create(t), domain.StageLineManagerApproval)

	stage := domain.StageDraft
	crs, err := f.svc.List(ctx, ListFilter{Stage: &stage})
	require.NoError(t, err)
	require.Len(t, crs, 1)
	assert.Equal(t, first.ID, crs[0].ID)
}

// flakySequencer counts up until it is marked down, then errors until it is
// marked up again. Its counter does not see numbers issued elsewhere.
type flakySequencer struct {
	mu     sync.Mutex
	next   int64
	down   bool
	stuck  bool
	floors []int64
}

func (s *flakySequencer) NextSequence(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, errors.New("redis: connection refused")
	}
	if !s.stuck {
		s.next++
	}
	return s.next, nil
}

func (s *flakySequencer) AdvanceSequence(_ context.Context, _ string, floor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floors = append(s.floors, floor)
	if !s.stuck && s.next < floor {
		s.next = floor
	}
	return nil
}

func (s *flakySequencer) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func newFixtureWithPrimary(t *testing.T, primary Sequencer) *fixture {
	t.Helper()
	f := newFixture(t)
	f.svc = NewChangeRequestService(ChangeRequestDependencies{
		Repo:       f.repo,
		Numbers:    NewNumberGenerator(primary, f.repo),
		Dispatcher: f.events,
		Clock:      f.clock.Now,
	})
	return f
}

func TestCreateSurvivesPrimarySequenceOutage(t *testing.T) {
	primary := &flakySequencer{}
	f := newFixtureWithPrimary(t, primary)

	var numbers []string
	for n := 0; n < 3; n++ {
		numbers = append(numbers, f.create(t).CRNumber)
	}

	primary.setDown(true)
	for n := 0; n < 2; n++ {
		numbers = append(numbers, f.create(t).CRNumber)
	}

	primary.setDown(false)
	numbers = append(numbers, f.create(t).CRNumber)

	assert.Equal(t, []string{
		"CR-20260302-0001",
		"CR-20260302-0002",
		"CR-20260302-0003",
		"CR-20260302-0004",
		"CR-20260302-0005",
		"CR-20260302-0006",
	}, numbers)
	assert.Equal(t, []int64{5}, primary.floors, "recovered primary is moved past the fallback's numbers")

	next := f.create(t)
	assert.Equal(t, "CR-20260302-0007", next.CRNumber)
}

func TestCreateGivesUpAfterRepeatedDuplicates(t *testing.T) {
	primary := &flakySequencer{stuck: true, next: 1}
	f := newFixtureWithPrimary(t, primary)
	f.create(t)

	_, err := f.svc.Create(context.Background(), requester, CreateInput{
		Title:         "Second request",
		Description:   "same number every time",
		LineManagerID: lineManager.ID,
	})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeConflict, domainErr.Code)
	assert.Equal(t, "CR-20260302-0001", domainErr.Details["cr_number"])
	assert.Len(t, primary.floors, maxNumberAttempts-1)

	crs, err := f.svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, crs, 1)
}

func TestCompletedRequestRejectsEveryMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageClosure)
	f.clock.Advance(49 * time.Hour)
	cr, err := f.svc.Close(ctx, cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{NOCClosureNotes: "stable"}})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, cr.CurrentStatus)
	version := cr.Version

	checks := map[string]error{}
	_, checks["approve"] = f.svc.Approve(ctx, cr.ID, nocEngineer, ApproveInput{SignatureRef: "sig"})
	_, checks["reject"] = f.svc.Reject(ctx, cr.ID, nocEngineer, RejectInput{Reason: "late outage", SignatureRef: "sig"})
	_, checks["close"] = f.svc.Close(ctx, cr.ID, nocEngineer, CloseInput{Closure: domain.Closure{NOCClosureNotes: "again"}})
	_, checks["edit"] = f.svc.EditDecision(ctx, cr.ID, headOfIT, EditDecisionInput{Stage: domain.StagePostDeploymentReview, Decision: domain.DecisionApproved, SignatureRef: "sig"})
	_, checks["attach"] = f.svc.AddAttachment(ctx, cr.ID, requester, AttachmentInput{StorageKey: "k", FileName: "report.pdf"})
	checks["delete"] = f.svc.Delete(ctx, cr.ID, requester, nil)
	for op, err := range checks {
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState), "%s: %v", op, err)
	}

	reloaded, err := f.svc.GetByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, version, reloaded.Version)
	assert.Equal(t, domain.StatusCompleted, reloaded.CurrentStatus)
}

func TestConcurrentApproveHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.advanceTo(t, f.create(t), domain.StageLineManagerApproval)
	version := cr.Version

	const racers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, racers)
	)
	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Approve(ctx, cr.ID, lineManager, ApproveInput{
				SignatureRef:    "sig/u-lm",
				ExpectedVersion: &version,
			})
		}()
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodeStaleState), "loser got %v", err)
	}
	assert.Equal(t, 1, wins)

	reloaded, err := f.svc.GetByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageHeadOfITApproval, reloaded.CurrentStage)
	assert.Equal(t, version+1, reloaded.Version)

	history, err := f.svc.GetHistory(ctx, cr.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	approvals, err := f.svc.GetApprovals(ctx, cr.ID)
	require.NoError(t, err)
	assert.Len(t, approvals, 2)
}

func TestDraftCannotBeEditedOrDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cr := f.create(t)

	_, perms, err := f.svc.ResolvePermissions(ctx, cr.ID, requester)
	require.NoError(t, err)
	assert.True(t, perms.CanActOnCurrentStage)
	assert.False(t, perms.CanEdit)
	assert.False(t, perms.CanDelete)

	err = f.svc.Delete(ctx, cr.ID, requester, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbiddenTransition))

	_, err = f.svc.GetByID(ctx, cr.ID)
	require.NoError(t, err)
}
