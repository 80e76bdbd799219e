package dto

import (
	"time"

	"github.com/spec-kit/change-request-service/internal/checklist"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/service"
)

// CreateChangeRequestRequest payload.
type CreateChangeRequestRequest struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description" validate:"required"`
	Justification   string            `json:"justification"`
	ChangeType      domain.ChangeType `json:"change_type" validate:"omitempty,oneof=normal standard emergency"`
	Priority        domain.Priority   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AffectedSystems []string          `json:"affected_systems" validate:"omitempty,dive,max=120"`
	PlannedStart    *time.Time        `json:"planned_start"`
	PlannedEnd      *time.Time        `json:"planned_end"`
	LineManagerID   string            `json:"line_manager_id" validate:"required"`
}

// ToInput maps the request onto the service input.
func (r CreateChangeRequestRequest) ToInput() service.CreateInput {
	return service.CreateInput{
		Title:           r.Title,
		Description:     r.Description,
		Justification:   r.Justification,
		ChangeType:      r.ChangeType,
		Priority:        r.Priority,
		AffectedSystems: r.AffectedSystems,
		PlannedStart:    r.PlannedStart,
		PlannedEnd:      r.PlannedEnd,
		LineManagerID:   r.LineManagerID,
	}
}

// TestingResultRequest is a submitted test run.
type TestingResultRequest struct {
	TestCases []domain.TestCase     `json:"test_cases"`
	Checklist *checklist.Submission `json:"checklist"`
	Notes     string                `json:"notes"`
}

// QAValidationRequest is the QA officer's submission.
type QAValidationRequest struct {
	Items     []QAChecklistItemRequest `json:"items" validate:"required,min=1,dive"`
	Checklist *checklist.Submission    `json:"checklist" validate:"required"`
	Notes     string                   `json:"notes"`
}

// QAChecklistItemRequest is one QA check.
type QAChecklistItemRequest struct {
	CheckItem string `json:"check_item" validate:"required"`
	Checked   bool   `json:"checked"`
	Remarks   string `json:"remarks"`
}

// DeploymentTeamMemberRequest lists a person executing the change.
type DeploymentTeamMemberRequest struct {
	MemberName  string `json:"member_name" validate:"required"`
	Designation string `json:"designation"`
	Contact     string `json:"contact"`
	Role        string `json:"role"`
}

// StagePayloadRequest carries per-stage data. Only the fields of the decided stage are read.
type StagePayloadRequest struct {
	AssignedITOfficerID string                        `json:"assigned_it_officer_id"`
	ITAssessment        *domain.ITAssessment          `json:"it_assessment"`
	UATResult           *TestingResultRequest         `json:"uat_result"`
	RequestorTest       *TestingResultRequest         `json:"requestor_test"`
	QAValidation        *QAValidationRequest          `json:"qa_validation"`
	RiskAccepted        *bool                         `json:"risk_accepted"`
	DeploymentTeam      []DeploymentTeamMemberRequest `json:"deployment_team" validate:"omitempty,dive"`
	DeploymentNotes     string                        `json:"deployment_notes"`
	PostDeploymentNotes string                        `json:"post_deployment_notes"`
}

// ToPayload maps the request onto the service payload.
func (r StagePayloadRequest) ToPayload() service.StagePayload {
	payload := service.StagePayload{
		AssignedITOfficerID: r.AssignedITOfficerID,
		ITAssessment:        r.ITAssessment,
		UATResult:           r.UATResult.toInput(),
		RequestorTest:       r.RequestorTest.toInput(),
		RiskAccepted:        r.RiskAccepted,
		DeploymentNotes:     r.DeploymentNotes,
		PostDeploymentNotes: r.PostDeploymentNotes,
	}
	if r.QAValidation != nil {
		items := make([]domain.QAChecklistItem, 0, len(r.QAValidation.Items))
		for _, item := range r.QAValidation.Items {
			items = append(items, domain.QAChecklistItem{CheckItem: item.CheckItem, Checked: item.Checked, Remarks: item.Remarks})
		}
		payload.QAValidation = &service.QAValidationInput{
			Items:     items,
			Checklist: r.QAValidation.Checklist,
			Notes:     r.QAValidation.Notes,
		}
	}
	for _, m := range r.DeploymentTeam {
		payload.DeploymentTeam = append(payload.DeploymentTeam, domain.DeploymentTeamMember{
			MemberName:  m.MemberName,
			Designation: m.Designation,
			Contact:     m.Contact,
			Role:        m.Role,
		})
	}
	return payload
}

func (r *TestingResultRequest) toInput() *service.TestingInput {
	if r == nil {
		return nil
	}
	return &service.TestingInput{TestCases: r.TestCases, Checklist: r.Checklist, Notes: r.Notes}
}

// ApproveRequest payload.
type ApproveRequest struct {
	SignatureRef    string `json:"signature_ref" validate:"required"`
	Comments        string `json:"comments"`
	ExpectedVersion *int64 `json:"expected_version"`
	StagePayloadRequest
}

// RejectRequest payload.
type RejectRequest struct {
	Reason          string `json:"reason" validate:"required"`
	SignatureRef    string `json:"signature_ref" validate:"required"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// CloseRequest payload.
type CloseRequest struct {
	NOCClosureNotes           string `json:"noc_closure_notes" validate:"required"`
	IncidentTriggered         bool   `json:"incident_triggered"`
	IncidentDetails           string `json:"incident_details" validate:"required_if=IncidentTriggered true"`
	RollbackTriggered         bool   `json:"rollback_triggered"`
	RollbackDetails           string `json:"rollback_details" validate:"required_if=RollbackTriggered true"`
	EarlyClosureJustification string `json:"early_closure_justification"`
	ExpectedVersion           *int64 `json:"expected_version"`
}

// ToClosure maps the request onto the closure record.
func (r CloseRequest) ToClosure() domain.Closure {
	return domain.Closure{
		NOCClosureNotes:           r.NOCClosureNotes,
		IncidentTriggered:         r.IncidentTriggered,
		IncidentDetails:           r.IncidentDetails,
		RollbackTriggered:         r.RollbackTriggered,
		RollbackDetails:           r.RollbackDetails,
		EarlyClosureJustification: r.EarlyClosureJustification,
	}
}

// EditDecisionRequest payload.
type EditDecisionRequest struct {
	Stage           domain.Stage          `json:"stage" validate:"required,min=1,max=10"`
	Decision        domain.DecisionStatus `json:"decision" validate:"required,oneof=approved rejected"`
	SignatureRef    string                `json:"signature_ref" validate:"required"`
	Comments        string                `json:"comments"`
	ExpectedVersion *int64                `json:"expected_version"`
	StagePayloadRequest
}

// AddAttachmentRequest payload.
type AddAttachmentRequest struct {
	StorageKey      string `json:"storage_key" validate:"required"`
	FileName        string `json:"file_name" validate:"required,max=255"`
	MimeType        string `json:"mime_type"`
	SizeBytes       int64  `json:"size_bytes" validate:"gte=0"`
	ExpectedVersion *int64 `json:"expected_version"`
}
