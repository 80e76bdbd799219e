package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/change-request-service/internal/checklist"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/repository"
	apperrors "github.com/spec-kit/change-request-service/pkg/util/errorutil"
)

// StagePayload carries the data a stage decision writes. Only the part that
// belongs to the decided stage is read.
type StagePayload struct {
	AssignedITOfficerID string
	ITAssessment        *domain.ITAssessment
	UATResult           *TestingInput
	RequestorTest       *TestingInput
	QAValidation        *QAValidationInput
	RiskAccepted        *bool
	DeploymentTeam      []domain.DeploymentTeamMember
	DeploymentNotes     string
	PostDeploymentNotes string
}

// TestingInput is a submitted test run.
type TestingInput struct {
	TestCases []domain.TestCase
	Checklist *checklist.Submission
	Notes     string
}

// QAValidationInput is the QA officer's checklist plus the scheme matrix.
type QAValidationInput struct {
	Items     []domain.QAChecklistItem
	Checklist *checklist.Submission
	Notes     string
}

type appliedPayload struct {
	riskAccepted *bool
}

// applyStagePayload validates and writes the payload of stage onto cr. When
// required is false (decision edits) a missing payload is left untouched and
// identity fields stay fixed.
func (s *ChangeRequestService) applyStagePayload(ctx context.Context, tx repository.ChangeRequestTx, cr *domain.ChangeRequest, actor domain.Actor, stage domain.Stage, p StagePayload, now time.Time, required bool) (appliedPayload, error) {
	var out appliedPayload
	switch stage {
	case domain.StageHeadOfITApproval:
		if !required {
			return out, nil
		}
		officer := strings.TrimSpace(p.AssignedITOfficerID)
		if officer == "" {
			return out, missing("assigned_it_officer_id", "an IT officer must be assigned")
		}
		cr.AssignedITOfficerID = &officer

	case domain.StageITOfficerAssessment:
		if p.ITAssessment == nil {
			if required {
				return out, missing("it_assessment", "required")
			}
			return out, nil
		}
		assessment := *p.ITAssessment
		assessment.ImpactAnalysis = strings.TrimSpace(assessment.ImpactAnalysis)
		assessment.RollbackPlan = strings.TrimSpace(assessment.RollbackPlan)
		assessment.TestPlan = strings.TrimSpace(assessment.TestPlan)
		details := map[string]any{}
		if assessment.ImpactAnalysis == "" {
			details["it_assessment.impact_analysis"] = "required"
		}
		if assessment.RollbackPlan == "" {
			details["it_assessment.rollback_plan"] = "required"
		}
		if assessment.EstimatedDowntimeMinutes < 0 {
			details["it_assessment.estimated_downtime_minutes"] = "must not be negative"
		}
		if len(details) > 0 {
			return out, apperrors.NewValidationError("incomplete IT assessment", details)
		}
		if p.UATResult != nil {
			result, err := buildTestingResult(cr.ID, domain.TestTypeUAT, *p.UATResult, actor.ID, now)
			if err != nil {
				return out, err
			}
			if err := tx.InsertTestingResult(ctx, result); err != nil {
				return out, err
			}
		}
		cr.ITAssessment = &assessment

	case domain.StageRequestorTestConfirmation:
		if p.RequestorTest == nil {
			if required {
				return out, missing("requestor_test", "a requestor checklist is required")
			}
			return out, nil
		}
		if p.RequestorTest.Checklist == nil || p.RequestorTest.Checklist.Empty() {
			return out, missing("requestor_test.checklist", "at least one scheme or additional check is required")
		}
		result, err := buildTestingResult(cr.ID, domain.TestTypeRequestorConfirmation, *p.RequestorTest, actor.ID, now)
		if err != nil {
			return out, err
		}
		if !result.Passed {
			return out, apperrors.NewValidationError("requestor testing has failures, reject instead", summaryDetails(result.Summary))
		}
		if err := tx.InsertTestingResult(ctx, result); err != nil {
			return out, err
		}

	case domain.StageQAValidation:
		if p.QAValidation == nil {
			if required {
				return out, missing("qa_validation", "a QA checklist is required")
			}
			return out, nil
		}
		qa := p.QAValidation
		if len(qa.Items) == 0 {
			return out, missing("qa_validation.items", "at least one check item is required")
		}
		if qa.Checklist == nil || qa.Checklist.Empty() {
			return out, missing("qa_validation.checklist", "at least one scheme or additional check is required")
		}
		result, err := buildTestingResult(cr.ID, domain.TestTypeQAValidation, TestingInput{Checklist: qa.Checklist, Notes: qa.Notes}, actor.ID, now)
		if err != nil {
			return out, err
		}
		record := &domain.QAChecklist{
			ChangeRequestID: cr.ID,
			QAOfficerID:     actor.ID,
			Items:           append([]domain.QAChecklistItem(nil), qa.Items...),
			Notes:           strings.TrimSpace(qa.Notes),
			CreatedAt:       now,
		}
		record.Validated = result.Passed && record.AllChecked()
		if !record.Validated {
			details := summaryDetails(result.Summary)
			details["all_items_checked"] = record.AllChecked()
			return out, apperrors.NewValidationError("QA validation incomplete, reject instead", details)
		}
		if err := tx.InsertTestingResult(ctx, result); err != nil {
			return out, err
		}
		if err := tx.InsertQAChecklist(ctx, record); err != nil {
			return out, err
		}

	case domain.StageRiskAcceptance:
		if p.RiskAccepted == nil {
			if required {
				return out, missing("risk_accepted", "risk must be explicitly accepted")
			}
			return out, nil
		}
		if !*p.RiskAccepted {
			return out, missing("risk_accepted", "risk must be accepted to approve")
		}
		accepted := true
		cr.RiskAccepted = &accepted
		out.riskAccepted = &accepted

	case domain.StageDeployment:
		if len(p.DeploymentTeam) == 0 {
			if required {
				return out, missing("deployment_team", "at least one team member is required")
			}
			return out, nil
		}
		members := make([]domain.DeploymentTeamMember, 0, len(p.DeploymentTeam))
		for i, m := range p.DeploymentTeam {
			m.MemberName = strings.TrimSpace(m.MemberName)
			if m.MemberName == "" {
				return out, apperrors.NewValidationError("invalid deployment team", map[string]any{"deployment_team": map[string]any{"index": i, "member_name": "required"}})
			}
			m.Designation = strings.TrimSpace(m.Designation)
			m.Contact = strings.TrimSpace(m.Contact)
			m.Role = strings.TrimSpace(m.Role)
			members = append(members, m)
		}
		if err := tx.ReplaceDeploymentTeam(ctx, cr.ID, members); err != nil {
			return out, err
		}
		cr.DeploymentNotes = strings.TrimSpace(p.DeploymentNotes)
		if cr.DeploymentCompletedAt == nil {
			completed := now
			cr.DeploymentCompletedAt = &completed
		}

	case domain.StagePostDeploymentReview:
		if notes := strings.TrimSpace(p.PostDeploymentNotes); notes != "" {
			cr.PostDeploymentNotes = notes
		}
	}
	return out, nil
}

// buildTestingResult scores a submission. A run passes when every scripted
// case passed and the checklist, if any, has no failed cell.
func buildTestingResult(crID string, testType domain.TestType, in TestingInput, submittedBy string, now time.Time) (*domain.TestingResult, error) {
	for i, tc := range in.TestCases {
		if strings.TrimSpace(tc.TestCase) == "" {
			return nil, apperrors.NewValidationError("invalid test case", map[string]any{"test_cases": map[string]any{"index": i, "test_case": "required"}})
		}
	}
	result := &domain.TestingResult{
		ChangeRequestID: crID,
		TestType:        testType,
		TestCases:       append([]domain.TestCase(nil), in.TestCases...),
		Passed:          true,
		Notes:           strings.TrimSpace(in.Notes),
		SubmittedBy:     submittedBy,
		CreatedAt:       now,
	}
	for _, tc := range in.TestCases {
		if !tc.Passed {
			result.Passed = false
		}
	}
	if in.Checklist != nil {
		if key, ok := in.Checklist.Known(); !ok {
			return nil, apperrors.NewValidationError("unknown checklist entry", map[string]any{"checklist": key})
		}
		sub := *in.Checklist
		summary := checklist.Aggregate(sub)
		result.Checklist = &sub
		result.Summary = &summary
		result.Passed = result.Passed && summary.Validated
	}
	return result, nil
}

func summaryDetails(summary *checklist.Summary) map[string]any {
	if summary == nil {
		return map[string]any{}
	}
	return map[string]any{
		"total_tests": summary.TotalTests,
		"passed":      summary.Passed,
		"failed":      summary.Failed,
		"not_tested":  summary.NotTested,
	}
}

func missing(field, reason string) error {
	return apperrors.NewValidationError("incomplete stage payload", map[string]any{field: reason})
}
