package domain

import "time"

// Stage is a position in the ten-step change request workflow.
type Stage int

const (
	StageDraft Stage = iota + 1
	StageLineManagerApproval
	StageHeadOfITApproval
	StageITOfficerAssessment
	StageRequestorTestConfirmation
	StageQAValidation
	StageRiskAcceptance
	StageDeployment
	StagePostDeploymentReview
	StageClosure
)

// FirstStage and LastStage bound the workflow.
const (
	FirstStage = StageDraft
	LastStage  = StageClosure
)

// Valid reports whether the stage lies within the workflow.
func (s Stage) Valid() bool {
	return s >= FirstStage && s <= LastStage
}

// CRStatus is the human-facing status of a change request.
type CRStatus string

const (
	StatusDraft                       CRStatus = "Draft"
	StatusPendingLineManager          CRStatus = "Pending Line Manager Approval"
	StatusPendingHeadOfIT             CRStatus = "Pending Head of IT Approval"
	StatusPendingITOfficer            CRStatus = "Pending IT Officer Assessment"
	StatusPendingRequestorTest        CRStatus = "Pending Requestor Test Confirmation"
	StatusPendingQAValidation         CRStatus = "Pending QA Validation"
	StatusPendingRiskAcceptance       CRStatus = "Pending Risk Acceptance"
	StatusReadyToDeploy               CRStatus = "Ready to Deploy"
	StatusPendingPostDeploymentReview CRStatus = "Pending Post-Deployment Review"
	StatusWaitingForClosure           CRStatus = "Waiting for Closure"
	StatusCompleted                   CRStatus = "Completed"
	StatusRejected                    CRStatus = "Rejected"
)

// IsTerminal reports whether no further workflow mutation is permitted.
func (s CRStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// ChangeType classifies the change.
type ChangeType string

const (
	ChangeTypeNormal    ChangeType = "normal"
	ChangeTypeStandard  ChangeType = "standard"
	ChangeTypeEmergency ChangeType = "emergency"
)

// Valid reports whether the change type is known.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeNormal, ChangeTypeStandard, ChangeTypeEmergency:
		return true
	}
	return false
}

// Priority enumerates change urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether the priority is known.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ITAssessment is written by the IT officer at stage 4.
type ITAssessment struct {
	ImpactAnalysis           string `json:"impact_analysis"`
	RollbackPlan             string `json:"rollback_plan"`
	TestPlan                 string `json:"test_plan,omitempty"`
	DowntimeRequired         bool   `json:"downtime_required"`
	EstimatedDowntimeMinutes int    `json:"estimated_downtime_minutes,omitempty"`
}

// Closure is written by the NOC when the change request is closed.
type Closure struct {
	NOCClosureNotes           string `json:"noc_closure_notes"`
	IncidentTriggered         bool   `json:"incident_triggered"`
	IncidentDetails           string `json:"incident_details,omitempty"`
	RollbackTriggered         bool   `json:"rollback_triggered"`
	RollbackDetails           string `json:"rollback_details,omitempty"`
	EarlyClosureJustification string `json:"early_closure_justification,omitempty"`
}

// ChangeRequest is the workflow aggregate root.
type ChangeRequest struct {
	ID              string
	CRNumber        string
	Title           string
	Description     string
	Justification   string
	ChangeType      ChangeType
	Priority        Priority
	AffectedSystems []string
	PlannedStart    *time.Time
	PlannedEnd      *time.Time

	CurrentStage  Stage
	CurrentStatus CRStatus

	RequestedBy         string
	LineManagerID       string
	AssignedITOfficerID *string

	ITAssessment          *ITAssessment
	RiskAccepted          *bool
	DeploymentNotes       string
	PostDeploymentNotes   string
	Closure               *Closure
	DeploymentCompletedAt *time.Time

	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// IsTerminal reports whether the change request is frozen.
func (cr *ChangeRequest) IsTerminal() bool {
	return cr.CurrentStatus.IsTerminal()
}

// Clone returns a deep copy so callers can mutate a working copy inside a transaction.
func (cr *ChangeRequest) Clone() *ChangeRequest {
	if cr == nil {
		return nil
	}
	out := *cr
	out.AffectedSystems = append([]string(nil), cr.AffectedSystems...)
	out.PlannedStart = cloneTime(cr.PlannedStart)
	out.PlannedEnd = cloneTime(cr.PlannedEnd)
	out.DeploymentCompletedAt = cloneTime(cr.DeploymentCompletedAt)
	out.CompletedAt = cloneTime(cr.CompletedAt)
	if cr.AssignedITOfficerID != nil {
		id := *cr.AssignedITOfficerID
		out.AssignedITOfficerID = &id
	}
	if cr.ITAssessment != nil {
		a := *cr.ITAssessment
		out.ITAssessment = &a
	}
	if cr.RiskAccepted != nil {
		v := *cr.RiskAccepted
		out.RiskAccepted = &v
	}
	if cr.Closure != nil {
		c := *cr.Closure
		out.Closure = &c
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
