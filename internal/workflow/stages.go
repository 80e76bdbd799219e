// Package workflow holds the fixed change request stage rules and the
// permission resolver built on top of them.
package workflow

import "github.com/spec-kit/change-request-service/internal/domain"

// IdentityRule pins a stage to a specific person recorded on the change request.
type IdentityRule int

const (
	IdentityNone IdentityRule = iota
	IdentityLineManager
	IdentityRequester
)

// StageRule describes who may decide a stage.
type StageRule struct {
	Stage    domain.Stage
	Name     string
	Status   domain.CRStatus
	Roles    []domain.Role
	Identity IdentityRule
}

var stageTable = map[domain.Stage]StageRule{
	domain.StageDraft: {
		Name:   "Submission",
		Status: domain.StatusDraft,
		Roles:  []domain.Role{domain.RoleRequester},
	},
	domain.StageLineManagerApproval: {
		Name:     "Line Manager Approval",
		Status:   domain.StatusPendingLineManager,
		Roles:    []domain.Role{domain.RoleLineManager},
		Identity: IdentityLineManager,
	},
	domain.StageHeadOfITApproval: {
		Name:   "Head of IT Approval",
		Status: domain.StatusPendingHeadOfIT,
		Roles:  []domain.Role{domain.RoleHeadOfIT},
	},
	domain.StageITOfficerAssessment: {
		Name:   "IT Officer Assessment",
		Status: domain.StatusPendingITOfficer,
		Roles:  []domain.Role{domain.RoleITOfficer},
	},
	domain.StageRequestorTestConfirmation: {
		Name:     "Requestor Test Confirmation",
		Status:   domain.StatusPendingRequestorTest,
		Identity: IdentityRequester,
	},
	domain.StageQAValidation: {
		Name:   "QA Validation",
		Status: domain.StatusPendingQAValidation,
		Roles:  []domain.Role{domain.RoleQAOfficer},
	},
	domain.StageRiskAcceptance: {
		Name:   "Risk Acceptance",
		Status: domain.StatusPendingRiskAcceptance,
		Roles:  []domain.Role{domain.RoleHeadOfIT},
	},
	domain.StageDeployment: {
		Name:   "Deployment",
		Status: domain.StatusReadyToDeploy,
		Roles:  []domain.Role{domain.RoleITOfficer},
	},
	domain.StagePostDeploymentReview: {
		Name:   "Post-Deployment Review",
		Status: domain.StatusPendingPostDeploymentReview,
		Roles:  []domain.Role{domain.RoleHeadOfIT},
	},
	domain.StageClosure: {
		Name:   "NOC Closure",
		Status: domain.StatusWaitingForClosure,
		Roles:  []domain.Role{domain.RoleNOC},
	},
}

func init() {
	for stage, rule := range stageTable {
		rule.Stage = stage
		stageTable[stage] = rule
	}
}

// RuleFor returns the decision rule of a stage.
func RuleFor(stage domain.Stage) (StageRule, bool) {
	rule, ok := stageTable[stage]
	return rule, ok
}

// StatusFor is the non-terminal status a change request carries while at stage.
func StatusFor(stage domain.Stage) domain.CRStatus {
	if rule, ok := stageTable[stage]; ok {
		return rule.Status
	}
	return ""
}

// Next returns the stage that follows stage on approval.
func Next(stage domain.Stage) (domain.Stage, bool) {
	if stage < domain.FirstStage || stage >= domain.LastStage {
		return 0, false
	}
	return stage + 1, true
}

// Allows reports whether actor satisfies the rule for cr. Roles and identity
// are both enforced when both are set; a rule without roles is gated by
// identity alone.
func (r StageRule) Allows(cr *domain.ChangeRequest, actor domain.Actor) bool {
	if actor.ID == "" {
		return false
	}
	if len(r.Roles) > 0 && !actor.Roles.HasAny(r.Roles...) {
		return false
	}
	switch r.Identity {
	case IdentityLineManager:
		return actor.Is(cr.LineManagerID)
	case IdentityRequester:
		return actor.Is(cr.RequestedBy)
	}
	return len(r.Roles) > 0
}

// CanDecide reports whether actor may approve or reject cr at its current stage.
func CanDecide(cr *domain.ChangeRequest, actor domain.Actor) bool {
	if cr == nil || cr.IsTerminal() {
		return false
	}
	rule, ok := RuleFor(cr.CurrentStage)
	if !ok {
		return false
	}
	return rule.Allows(cr, actor)
}

// CanEditDecision applies the edit rules, which are separate from
// the decision rules: stage 3 is decided by the head of IT but its inbound
// decision is corrected by a line manager.
func CanEditDecision(cr *domain.ChangeRequest, actor domain.Actor) bool {
	if cr == nil || cr.IsTerminal() || actor.ID == "" {
		return false
	}
	switch {
	case cr.CurrentStage == domain.StageLineManagerApproval:
		return actor.Is(cr.RequestedBy)
	case cr.CurrentStage == domain.StageHeadOfITApproval:
		return actor.Roles.Has(domain.RoleLineManager)
	case cr.CurrentStage >= domain.StageITOfficerAssessment && cr.CurrentStage <= domain.StagePostDeploymentReview:
		return actor.Roles.Has(domain.RoleHeadOfIT)
	default:
		return false
	}
}
