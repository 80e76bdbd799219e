package service

import (
	"context"

	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/repository"
	"github.com/spec-kit/change-request-service/internal/workflow"
)

// GetByID fetches a change request.
func (s *ChangeRequestService) GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	cr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError("get", err)
	}
	return cr, nil
}

// GetByNumber fetches a change request by its CR number.
func (s *ChangeRequestService) GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error) {
	cr, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, s.storeError("get_by_number", err)
	}
	return cr, nil
}

// List returns change requests matching filter, most recently updated first.
func (s *ChangeRequestService) List(ctx context.Context, filter ListFilter) ([]domain.ChangeRequest, error) {
	crs, err := s.repo.ListWithFilter(ctx, repository.ChangeRequestFilter{
		Stage:         filter.Stage,
		Statuses:      filter.Statuses,
		RequestedBy:   filter.RequestedBy,
		LineManagerID: filter.LineManagerID,
		SearchTerm:    filter.SearchTerm,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	})
	if err != nil {
		return nil, s.storeError("list", err)
	}
	return crs, nil
}

// GetHistory returns the audit trail in insertion order.
func (s *ChangeRequestService) GetHistory(ctx context.Context, id string) ([]domain.History, error) {
	return listChildren(ctx, s, id, s.repo.ListHistory)
}

// GetApprovals returns every decision row, edits included.
func (s *ChangeRequestService) GetApprovals(ctx context.Context, id string) ([]domain.Approval, error) {
	return listChildren(ctx, s, id, s.repo.ListApprovals)
}

// GetTestingResults returns testing results, optionally of one type.
func (s *ChangeRequestService) GetTestingResults(ctx context.Context, id string, testType *domain.TestType) ([]domain.TestingResult, error) {
	return listChildren(ctx, s, id, func(ctx context.Context, crID string) ([]domain.TestingResult, error) {
		return s.repo.ListTestingResults(ctx, crID, testType)
	})
}

// GetLatestTestingResult returns the authoritative result of a type, or nil when none was submitted.
func (s *ChangeRequestService) GetLatestTestingResult(ctx context.Context, id string, testType domain.TestType) (*domain.TestingResult, error) {
	results, err := s.GetTestingResults(ctx, id, &testType)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	latest := results[len(results)-1]
	return &latest, nil
}

// GetQAChecklists returns the QA checklists in insertion order.
func (s *ChangeRequestService) GetQAChecklists(ctx context.Context, id string) ([]domain.QAChecklist, error) {
	return listChildren(ctx, s, id, s.repo.ListQAChecklists)
}

// GetDeploymentTeam returns the current deployment team.
func (s *ChangeRequestService) GetDeploymentTeam(ctx context.Context, id string) ([]domain.DeploymentTeamMember, error) {
	return listChildren(ctx, s, id, s.repo.ListDeploymentTeam)
}

// GetAttachments returns attachment references.
func (s *ChangeRequestService) GetAttachments(ctx context.Context, id string) ([]domain.Attachment, error) {
	return listChildren(ctx, s, id, s.repo.ListAttachments)
}

// ResolvePermissions reports what actor may do with the change request.
func (s *ChangeRequestService) ResolvePermissions(ctx context.Context, id string, actor domain.Actor) (*domain.ChangeRequest, workflow.Permissions, error) {
	cr, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, workflow.Permissions{}, err
	}
	return cr, workflow.Resolve(cr, actor), nil
}

func listChildren[T any](ctx context.Context, s *ChangeRequestService, id string, list func(context.Context, string) ([]T, error)) ([]T, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	rows, err := list(ctx, id)
	if err != nil {
		return nil, s.storeError("list_children", err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}
