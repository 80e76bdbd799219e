package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/change-request-service/internal/domain"
)

var (
	// ErrStaleState signals that the change request moved on since it was read.
	ErrStaleState = errors.New("change request version changed")
	// ErrDuplicateNumber signals a change request number collision.
	ErrDuplicateNumber = errors.New("change request number already exists")
)

// ChangeRequestFilter captures list parameters.
type ChangeRequestFilter struct {
	Stage         *domain.Stage
	Statuses      []domain.CRStatus
	RequestedBy   *string
	LineManagerID *string
	SearchTerm    *string
	Limit         int
	Offset        int
}

// ChangeRequestReader exposes reads shared by the store and an open transaction.
type ChangeRequestReader interface {
	GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error)
	GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error)
}

// ChangeRequestRepository owns the change request aggregate and its child collections.
type ChangeRequestRepository interface {
	ChangeRequestReader
	ListWithFilter(ctx context.Context, filter ChangeRequestFilter) ([]domain.ChangeRequest, error)
	ListApprovals(ctx context.Context, crID string) ([]domain.Approval, error)
	ListHistory(ctx context.Context, crID string) ([]domain.History, error)
	ListTestingResults(ctx context.Context, crID string, testType *domain.TestType) ([]domain.TestingResult, error)
	ListQAChecklists(ctx context.Context, crID string) ([]domain.QAChecklist, error)
	ListDeploymentTeam(ctx context.Context, crID string) ([]domain.DeploymentTeamMember, error)
	ListAttachments(ctx context.Context, crID string) ([]domain.Attachment, error)

	// InTx runs fn in a single transaction. Any error from fn rolls back every write.
	InTx(ctx context.Context, fn func(tx ChangeRequestTx) error) error
}

// ChangeRequestTx is the unit of work for one workflow mutation.
type ChangeRequestTx interface {
	ChangeRequestReader
	Create(ctx context.Context, cr *domain.ChangeRequest) error
	// Update persists cr only if the stored version still equals expectedVersion,
	// returning ErrStaleState otherwise. On success cr.Version is incremented.
	Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
	InsertApproval(ctx context.Context, approval *domain.Approval) error
	InsertHistory(ctx context.Context, entry *domain.History) error
	InsertTestingResult(ctx context.Context, result *domain.TestingResult) error
	InsertQAChecklist(ctx context.Context, qa *domain.QAChecklist) error
	ReplaceDeploymentTeam(ctx context.Context, crID string, members []domain.DeploymentTeamMember) error
	InsertAttachment(ctx context.Context, attachment *domain.Attachment) error
}
