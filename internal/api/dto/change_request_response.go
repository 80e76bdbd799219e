package dto

import (
	"time"

	"github.com/spec-kit/change-request-service/internal/checklist"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/workflow"
)

// ChangeRequestSummary is the list representation.
type ChangeRequestSummary struct {
	ID            string            `json:"id"`
	CRNumber      string            `json:"cr_number"`
	Title         string            `json:"title"`
	ChangeType    domain.ChangeType `json:"change_type"`
	Priority      domain.Priority   `json:"priority"`
	CurrentStage  domain.Stage      `json:"current_stage"`
	CurrentStatus domain.CRStatus   `json:"current_status"`
	RequestedBy   string            `json:"requested_by"`
	LineManagerID string            `json:"line_manager_id"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ChangeRequestResponse provides full change request info.
type ChangeRequestResponse struct {
	ChangeRequestSummary
	Description           string                `json:"description"`
	Justification         string                `json:"justification"`
	AffectedSystems       []string              `json:"affected_systems"`
	PlannedStart          *time.Time            `json:"planned_start"`
	PlannedEnd            *time.Time            `json:"planned_end"`
	AssignedITOfficerID   *string               `json:"assigned_it_officer_id"`
	ITAssessment          *domain.ITAssessment  `json:"it_assessment"`
	RiskAccepted          *bool                 `json:"risk_accepted"`
	DeploymentNotes       string                `json:"deployment_notes,omitempty"`
	DeploymentCompletedAt *time.Time            `json:"deployment_completed_at"`
	PostDeploymentNotes   string                `json:"post_deployment_notes,omitempty"`
	Closure               *domain.Closure       `json:"closure"`
	CompletedAt           *time.Time            `json:"completed_at"`
	Permissions           *workflow.Permissions `json:"permissions,omitempty"`
}

// ApprovalResponse is one decision row.
type ApprovalResponse struct {
	ID           string                `json:"id"`
	Stage        domain.Stage          `json:"stage"`
	ApproverID   string                `json:"approver_id"`
	ApproverRole domain.Role           `json:"approver_role"`
	Status       domain.DecisionStatus `json:"status"`
	SignatureRef string                `json:"signature_ref"`
	Comments     string                `json:"comments,omitempty"`
	RiskAccepted *bool                 `json:"risk_accepted,omitempty"`
	IsEdit       bool                  `json:"is_edit"`
	ApprovedAt   time.Time             `json:"approved_at"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID         string               `json:"id"`
	ChangedBy  string               `json:"changed_by"`
	Action     domain.HistoryAction `json:"action"`
	FromStage  domain.Stage         `json:"from_stage"`
	ToStage    domain.Stage         `json:"to_stage"`
	FromStatus domain.CRStatus      `json:"from_status"`
	ToStatus   domain.CRStatus      `json:"to_status"`
	Notes      string               `json:"notes,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// TestingResultResponse is a stored test run with its aggregate.
type TestingResultResponse struct {
	ID          string                `json:"id"`
	TestType    domain.TestType       `json:"test_type"`
	TestCases   []domain.TestCase     `json:"test_cases"`
	Checklist   *checklist.Submission `json:"checklist,omitempty"`
	Summary     *checklist.Summary    `json:"summary,omitempty"`
	Passed      bool                  `json:"passed"`
	Notes       string                `json:"notes,omitempty"`
	SubmittedBy string                `json:"submitted_by"`
	CreatedAt   time.Time             `json:"created_at"`
}

// QAChecklistResponse is a stored QA checklist.
type QAChecklistResponse struct {
	ID          string                   `json:"id"`
	QAOfficerID string                   `json:"qa_officer_id"`
	Items       []domain.QAChecklistItem `json:"items"`
	Validated   bool                     `json:"validated"`
	Notes       string                   `json:"notes,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
}

// DeploymentTeamMemberResponse lists a deployment team member.
type DeploymentTeamMemberResponse struct {
	ID          string `json:"id"`
	MemberName  string `json:"member_name"`
	Designation string `json:"designation,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Role        string `json:"role,omitempty"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string    `json:"id"`
	StorageKey string    `json:"storage_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// PaginationMeta describes a list page.
type PaginationMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Count    int `json:"count"`
}
