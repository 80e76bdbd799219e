package handlers

import (
	"github.com/spec-kit/change-request-service/internal/api/dto"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/workflow"
)

func changeRequestSummary(cr *domain.ChangeRequest) dto.ChangeRequestSummary {
	return dto.ChangeRequestSummary{
		ID:            cr.ID,
		CRNumber:      cr.CRNumber,
		Title:         cr.Title,
		ChangeType:    cr.ChangeType,
		Priority:      cr.Priority,
		CurrentStage:  cr.CurrentStage,
		CurrentStatus: cr.CurrentStatus,
		RequestedBy:   cr.RequestedBy,
		LineManagerID: cr.LineManagerID,
		Version:       cr.Version,
		CreatedAt:     cr.CreatedAt,
		UpdatedAt:     cr.UpdatedAt,
	}
}

func changeRequestResponse(cr *domain.ChangeRequest, perms *workflow.Permissions) dto.ChangeRequestResponse {
	systems := cr.AffectedSystems
	if systems == nil {
		systems = []string{}
	}
	return dto.ChangeRequestResponse{
		ChangeRequestSummary:  changeRequestSummary(cr),
		Description:           cr.Description,
		Justification:         cr.Justification,
		AffectedSystems:       systems,
		PlannedStart:          cr.PlannedStart,
		PlannedEnd:            cr.PlannedEnd,
		AssignedITOfficerID:   cr.AssignedITOfficerID,
		ITAssessment:          cr.ITAssessment,
		RiskAccepted:          cr.RiskAccepted,
		DeploymentNotes:       cr.DeploymentNotes,
		DeploymentCompletedAt: cr.DeploymentCompletedAt,
		PostDeploymentNotes:   cr.PostDeploymentNotes,
		Closure:               cr.Closure,
		CompletedAt:           cr.CompletedAt,
		Permissions:           perms,
	}
}

func approvalResponse(a domain.Approval) dto.ApprovalResponse {
	return dto.ApprovalResponse{
		ID:           a.ID,
		Stage:        a.Stage,
		ApproverID:   a.ApproverID,
		ApproverRole: a.ApproverRole,
		Status:       a.Status,
		SignatureRef: a.SignatureRef,
		Comments:     a.Comments,
		RiskAccepted: a.RiskAccepted,
		IsEdit:       a.IsEdit,
		ApprovedAt:   a.ApprovedAt,
	}
}

func historyResponse(h domain.History) dto.HistoryResponse {
	return dto.HistoryResponse{
		ID:         h.ID,
		ChangedBy:  h.ChangedBy,
		Action:     h.Action,
		FromStage:  h.FromStage,
		ToStage:    h.ToStage,
		FromStatus: h.FromStatus,
		ToStatus:   h.ToStatus,
		Notes:      h.Notes,
		CreatedAt:  h.CreatedAt,
	}
}

func testingResultResponse(t domain.TestingResult) dto.TestingResultResponse {
	cases := t.TestCases
	if cases == nil {
		cases = []domain.TestCase{}
	}
	return dto.TestingResultResponse{
		ID:          t.ID,
		TestType:    t.TestType,
		TestCases:   cases,
		Checklist:   t.Checklist,
		Summary:     t.Summary,
		Passed:      t.Passed,
		Notes:       t.Notes,
		SubmittedBy: t.SubmittedBy,
		CreatedAt:   t.CreatedAt,
	}
}

func qaChecklistResponse(q domain.QAChecklist) dto.QAChecklistResponse {
	return dto.QAChecklistResponse{
		ID:          q.ID,
		QAOfficerID: q.QAOfficerID,
		Items:       q.Items,
		Validated:   q.Validated,
		Notes:       q.Notes,
		CreatedAt:   q.CreatedAt,
	}
}

func deploymentTeamMemberResponse(m domain.DeploymentTeamMember) dto.DeploymentTeamMemberResponse {
	return dto.DeploymentTeamMemberResponse{
		ID:          m.ID,
		MemberName:  m.MemberName,
		Designation: m.Designation,
		Contact:     m.Contact,
		Role:        m.Role,
	}
}

func attachmentResponse(a domain.Attachment) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:         a.ID,
		StorageKey: a.StorageKey,
		FileName:   a.FileName,
		MimeType:   a.MimeType,
		SizeBytes:  a.SizeBytes,
		UploadedBy: a.UploadedBy,
		CreatedAt:  a.CreatedAt,
	}
}

func mapAll[T, R any](rows []T, fn func(T) R) []R {
	out := make([]R, 0, len(rows))
	for _, row := range rows {
		out = append(out, fn(row))
	}
	return out
}
