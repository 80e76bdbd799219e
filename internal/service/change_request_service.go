package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/events"
	"github.com/spec-kit/change-request-service/internal/observability"
	"github.com/spec-kit/change-request-service/internal/repository"
	"github.com/spec-kit/change-request-service/internal/workflow"
	apperrors "github.com/spec-kit/change-request-service/pkg/util/errorutil"
)

// DefaultEarlyClosureWindow is how long a change must settle before the NOC
// may close it without a justification.
const DefaultEarlyClosureWindow = 48 * time.Hour

// maxNumberAttempts bounds number reallocation when two sequence sources disagree.
const maxNumberAttempts = 5

// ChangeRequestService is the only mutator of change request state.
type ChangeRequestService struct {
	repo               repository.ChangeRequestRepository
	numbers            *NumberGenerator
	dispatcher         events.Dispatcher
	metrics            *observability.Metrics
	logger             *zap.Logger
	now                func() time.Time
	earlyClosureWindow time.Duration
}

// ChangeRequestDependencies bundles collaborators of the service.
type ChangeRequestDependencies struct {
	Repo               repository.ChangeRequestRepository
	Numbers            *NumberGenerator
	Dispatcher         events.Dispatcher
	Metrics            *observability.Metrics
	Logger             *zap.Logger
	Clock              func() time.Time
	EarlyClosureWindow time.Duration
}

// CreateInput describes a new change request.
type CreateInput struct {
	Title           string
	Description     string
	Justification   string
	ChangeType      domain.ChangeType
	Priority        domain.Priority
	AffectedSystems []string
	PlannedStart    *time.Time
	PlannedEnd      *time.Time
	LineManagerID   string
}

// ApproveInput carries the approver's signature and the payload of the current stage.
type ApproveInput struct {
	SignatureRef    string
	Comments        string
	ExpectedVersion *int64
	Payload         StagePayload
}

// RejectInput carries the rejection reason.
type RejectInput struct {
	Reason          string
	SignatureRef    string
	ExpectedVersion *int64
}

// CloseInput carries the NOC closure record.
type CloseInput struct {
	Closure         domain.Closure
	ExpectedVersion *int64
}

// EditDecisionInput corrects the decision that moved the request into its current stage.
type EditDecisionInput struct {
	Stage           domain.Stage
	Decision        domain.DecisionStatus
	SignatureRef    string
	Comments        string
	ExpectedVersion *int64
	Payload         StagePayload
}

// AttachmentInput references a file already held by external storage.
type AttachmentInput struct {
	StorageKey      string
	FileName        string
	MimeType        string
	SizeBytes       int64
	ExpectedVersion *int64
}

// ListFilter describes list parameters.
type ListFilter struct {
	Stage         *domain.Stage
	Statuses      []domain.CRStatus
	RequestedBy   *string
	LineManagerID *string
	SearchTerm    *string
	Limit         int
	Offset        int
}

// NewChangeRequestService constructs the service.
func NewChangeRequestService(deps ChangeRequestDependencies) *ChangeRequestService {
	svc := &ChangeRequestService{
		repo:               deps.Repo,
		numbers:            deps.Numbers,
		dispatcher:         deps.Dispatcher,
		metrics:            deps.Metrics,
		logger:             deps.Logger,
		now:                deps.Clock,
		earlyClosureWindow: deps.EarlyClosureWindow,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.earlyClosureWindow <= 0 {
		svc.earlyClosureWindow = DefaultEarlyClosureWindow
	}
	return svc
}

// Create opens a draft change request for the requester.
func (s *ChangeRequestService) Create(ctx context.Context, actor domain.Actor, input CreateInput) (*domain.ChangeRequest, error) {
	if actor.ID == "" || !actor.Roles.Has(domain.RoleRequester) {
		return nil, apperrors.NewForbiddenTransition("only requesters may raise change requests", nil)
	}
	cr, err := s.newDraft(actor, input)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = s.insertDraft(ctx, cr, actor)
		if !errors.Is(err, repository.ErrDuplicateNumber) || attempt == maxNumberAttempts {
			break
		}
		s.logger.Warn("change request number already taken, reallocating",
			zap.String("cr_number", cr.CRNumber),
			zap.Int("attempt", attempt),
		)
		if syncErr := s.numbers.Resync(ctx, cr.CreatedAt); syncErr != nil {
			s.logger.Warn("resync change request numbers", zap.Error(syncErr))
		}
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateNumber) {
			return nil, apperrors.NewConflict("change request number already allocated, retry", map[string]any{"cr_number": cr.CRNumber})
		}
		return nil, err
	}

	s.committed(ctx, domain.HistoryCreated, cr, actor, 0, events.Event{
		Type: events.EventChangeRequestCreated,
		Payload: events.CreatedPayload{
			Title:         cr.Title,
			Priority:      cr.Priority,
			LineManagerID: cr.LineManagerID,
		},
	})
	return cr, nil
}

// insertDraft allocates a number and stores cr with its creation history row.
func (s *ChangeRequestService) insertDraft(ctx context.Context, cr *domain.ChangeRequest, actor domain.Actor) error {
	number, err := s.numbers.Next(ctx, cr.CreatedAt)
	if err != nil {
		s.logger.Error("allocate change request number", zap.Error(err))
		return apperrors.NewInternalError(err)
	}
	cr.CRNumber = number

	err = s.repo.InTx(ctx, func(tx repository.ChangeRequestTx) error {
		if err := tx.Create(ctx, cr); err != nil {
			return err
		}
		return tx.InsertHistory(ctx, &domain.History{
			ChangeRequestID: cr.ID,
			ChangedBy:       actor.ID,
			Action:          domain.HistoryCreated,
			ToStage:         cr.CurrentStage,
			ToStatus:        cr.CurrentStatus,
			Notes:           "change request created",
			CreatedAt:       cr.CreatedAt,
		})
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateNumber) {
		return s.storeError("create", err)
	}
	return err
}

func (s *ChangeRequestService) newDraft(actor domain.Actor, input CreateInput) (*domain.ChangeRequest, error) {
	details := map[string]any{}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		details["title"] = "required"
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		details["description"] = "required"
	}
	lineManager := strings.TrimSpace(input.LineManagerID)
	switch {
	case lineManager == "":
		details["line_manager_id"] = "required"
	case lineManager == actor.ID:
		details["line_manager_id"] = "requester cannot be their own line manager"
	}
	changeType := input.ChangeType
	if changeType == "" {
		changeType = domain.ChangeTypeNormal
	}
	if !changeType.Valid() {
		details["change_type"] = "unknown change type"
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if input.PlannedStart != nil && input.PlannedEnd != nil && input.PlannedEnd.Before(*input.PlannedStart) {
		details["planned_end"] = "must not precede planned_start"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid change request", details)
	}

	now := s.now()
	systems := make([]string, 0, len(input.AffectedSystems))
	for _, sys := range input.AffectedSystems {
		if sys = strings.TrimSpace(sys); sys != "" {
			systems = append(systems, sys)
		}
	}
	return &domain.ChangeRequest{
		Title:           title,
		Description:     description,
		Justification:   strings.TrimSpace(input.Justification),
		ChangeType:      changeType,
		Priority:        priority,
		AffectedSystems: systems,
		PlannedStart:    input.PlannedStart,
		PlannedEnd:      input.PlannedEnd,
		CurrentStage:    domain.StageDraft,
		CurrentStatus:   workflow.StatusFor(domain.StageDraft),
		RequestedBy:     actor.ID,
		LineManagerID:   lineManager,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Approve records an approval at the current stage and advances the request.
func (s *ChangeRequestService) Approve(ctx context.Context, crID string, actor domain.Actor, input ApproveInput) (*domain.ChangeRequest, error) {
	return s.mutate(ctx, crID, actor, input.ExpectedVersion, domain.HistoryApproved, func(tx repository.ChangeRequestTx, cr *domain.ChangeRequest, now time.Time) (string, error) {
		if cr.IsTerminal() {
			return "", terminalError(cr)
		}
		if cr.CurrentStage == domain.StageClosure {
			return "", apperrors.NewInvalidState("closure stage is completed through close", map[string]any{"stage": cr.CurrentStage})
		}
		rule, _ := workflow.RuleFor(cr.CurrentStage)
		if !rule.Allows(cr, actor) {
			return "", forbiddenAt(cr)
		}
		if strings.TrimSpace(input.SignatureRef) == "" {
			return "", apperrors.NewValidationError("signature is required", map[string]any{"signature_ref": "required"})
		}

		stage := cr.CurrentStage
		applied, err := s.applyStagePayload(ctx, tx, cr, actor, stage, input.Payload, now, true)
		if err != nil {
			return "", err
		}
		approval := &domain.Approval{
			ChangeRequestID: cr.ID,
			Stage:           stage,
			ApproverID:      actor.ID,
			ApproverRole:    approverRole(rule, actor),
			Status:          domain.DecisionApproved,
			SignatureRef:    strings.TrimSpace(input.SignatureRef),
			Comments:        strings.TrimSpace(input.Comments),
			RiskAccepted:    applied.riskAccepted,
			ApprovedAt:      now,
		}
		if err := tx.InsertApproval(ctx, approval); err != nil {
			return "", err
		}

		next, _ := workflow.Next(stage)
		cr.CurrentStage = next
		cr.CurrentStatus = workflow.StatusFor(next)
		return approval.Comments, nil
	})
}

// Reject records a rejection at the current stage and freezes the request.
func (s *ChangeRequestService) Reject(ctx context.Context, crID string, actor domain.Actor, input RejectInput) (*domain.ChangeRequest, error) {
	return s.mutate(ctx, crID, actor, input.ExpectedVersion, domain.HistoryRejected, func(tx repository.ChangeRequestTx, cr *domain.ChangeRequest, now time.Time) (string, error) {
		if cr.IsTerminal() {
			return "", terminalError(cr)
		}
		rule, _ := workflow.RuleFor(cr.CurrentStage)
		if !rule.Allows(cr, actor) {
			return "", forbiddenAt(cr)
		}
		details := map[string]any{}
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			details["reason"] = "required"
		}
		if strings.TrimSpace(input.SignatureRef) == "" {
			details["signature_ref"] = "required"
		}
		if len(details) > 0 {
			return "", apperrors.NewValidationError("invalid rejection", details)
		}

		if err := tx.InsertApproval(ctx, &domain.Approval{
			ChangeRequestID: cr.ID,
			Stage:           cr.CurrentStage,
			ApproverID:      actor.ID,
			ApproverRole:    approverRole(rule, actor),
			Status:          domain.DecisionRejected,
			SignatureRef:    strings.TrimSpace(input.SignatureRef),
			Comments:        reason,
			ApprovedAt:      now,
		}); err != nil {
			return "", err
		}
		cr.CurrentStatus = domain.StatusRejected
		return reason, nil
	})
}

// Close completes a request waiting at the closure stage.
func (s *ChangeRequestService) Close(ctx context.Context, crID string, actor domain.Actor, input CloseInput) (*domain.ChangeRequest, error) {
	return s.mutate(ctx, crID, actor, input.ExpectedVersion, domain.HistoryClosed, func(tx repository.ChangeRequestTx, cr *domain.ChangeRequest, now time.Time) (string, error) {
		if cr.IsTerminal() {
			return "", terminalError(cr)
		}
		if cr.CurrentStage != domain.StageClosure || cr.CurrentStatus != domain.StatusWaitingForClosure {
			return "", apperrors.NewInvalidState("change request is not waiting for closure", map[string]any{
				"stage":  cr.CurrentStage,
				"status": cr.CurrentStatus,
			})
		}
		rule, _ := workflow.RuleFor(domain.StageClosure)
		if !rule.Allows(cr, actor) {
			return "", forbiddenAt(cr)
		}

		closure := normalizeClosure(input.Closure)
		details := map[string]any{}
		if closure.NOCClosureNotes == "" {
			details["noc_closure_notes"] = "required"
		}
		if closure.IncidentTriggered && closure.IncidentDetails == "" {
			details["incident_details"] = "required when an incident was triggered"
		}
		if closure.RollbackTriggered && closure.RollbackDetails == "" {
			details["rollback_details"] = "required when a rollback was triggered"
		}
		if elapsed := now.Sub(cr.UpdatedAt); elapsed < s.earlyClosureWindow && closure.EarlyClosureJustification == "" {
			details["early_closure_justification"] = "required when closing within " + s.earlyClosureWindow.String() + " of the last transition"
		}
		if len(details) > 0 {
			return "", apperrors.NewValidationError("invalid closure", details)
		}

		cr.Closure = &closure
		cr.CurrentStatus = domain.StatusCompleted
		completed := now
		cr.CompletedAt = &completed
		return closure.NOCClosureNotes, nil
	})
}

// EditDecision corrects the decision of the stage preceding the current one.
// The current stage never moves; a rejected edit freezes the request.
func (s *ChangeRequestService) EditDecision(ctx context.Context, crID string, actor domain.Actor, input EditDecisionInput) (*domain.ChangeRequest, error) {
	return s.mutate(ctx, crID, actor, input.ExpectedVersion, domain.HistoryDecisionEdited, func(tx repository.ChangeRequestTx, cr *domain.ChangeRequest, now time.Time) (string, error) {
		if cr.IsTerminal() {
			return "", terminalError(cr)
		}
		if !workflow.CanEditDecision(cr, actor) {
			return "", apperrors.NewForbiddenTransition("actor may not edit decisions of this change request", map[string]any{"stage": cr.CurrentStage})
		}
		if input.Stage != cr.CurrentStage-1 {
			return "", apperrors.NewInvalidState("only the decision that moved the request into its current stage can be edited", map[string]any{
				"stage":          input.Stage,
				"editable_stage": cr.CurrentStage - 1,
			})
		}
		details := map[string]any{}
		if !input.Decision.Valid() {
			details["decision"] = "must be approved or rejected"
		}
		if strings.TrimSpace(input.SignatureRef) == "" {
			details["signature_ref"] = "required"
		}
		comments := strings.TrimSpace(input.Comments)
		if input.Decision == domain.DecisionRejected && comments == "" {
			details["comments"] = "a reason is required when rejecting"
		}
		if len(details) > 0 {
			return "", apperrors.NewValidationError("invalid decision edit", details)
		}

		approval := &domain.Approval{
			ChangeRequestID: cr.ID,
			Stage:           input.Stage,
			ApproverID:      actor.ID,
			ApproverRole:    editorRole(cr.CurrentStage),
			Status:          input.Decision,
			SignatureRef:    strings.TrimSpace(input.SignatureRef),
			Comments:        comments,
			IsEdit:          true,
			ApprovedAt:      now,
		}
		if input.Decision == domain.DecisionApproved {
			applied, err := s.applyStagePayload(ctx, tx, cr, actor, input.Stage, input.Payload, now, false)
			if err != nil {
				return "", err
			}
			approval.RiskAccepted = applied.riskAccepted
		} else {
			cr.CurrentStatus = domain.StatusRejected
		}
		if err := tx.InsertApproval(ctx, approval); err != nil {
			return "", err
		}
		notes := "stage " + stageLabel(input.Stage) + " decision changed to " + string(input.Decision)
		if comments != "" {
			notes += ": " + comments
		}
		return notes, nil
	})
}

// AddAttachment links an externally stored file to the request.
func (s *ChangeRequestService) AddAttachment(ctx context.Context, crID string, actor domain.Actor, input AttachmentInput) (*domain.Attachment, error) {
	var attachment *domain.Attachment
	_, err := s.mutate(ctx, crID, actor, input.ExpectedVersion, domain.HistoryAttachmentAdded, func(tx repository.ChangeRequestTx, cr *domain.ChangeRequest, now time.Time) (string, error) {
		if cr.IsTerminal() {
			return "", terminalError(cr)
		}
		if !actor.Is(cr.RequestedBy) && !workflow.CanDecide(cr, actor) && !workflow.CanEditDecision(cr, actor) {
			return "", apperrors.NewForbiddenTransition("actor may not attach files to this change request", nil)
		}
		details := map[string]any{}
		if strings.TrimSpace(input.StorageKey) == "" {
			details["storage_key"] = "required"
		}
		if strings.TrimSpace(input.FileName) == "" {
			details["file_name"] = "required"
		}
		if input.SizeBytes < 0 {
			details["size_bytes"] = "must not be negative"
		}
		if len(details) > 0 {
			return "", apperrors.NewValidationError("invalid attachment", details)
		}
		attachment = &domain.Attachment{
			ChangeRequestID: cr.ID,
			StorageKey:      strings.TrimSpace(input.StorageKey),
			FileName:        strings.TrimSpace(input.FileName),
			MimeType:        strings.TrimSpace(input.MimeType),
			SizeBytes:       input.SizeBytes,
			UploadedBy:      actor.ID,
			CreatedAt:       now,
		}
		if err := tx.InsertAttachment(ctx, attachment); err != nil {
			return "", err
		}
		return attachment.FileName, nil
	})
	if err != nil {
		return nil, err
	}
	return attachment, nil
}

// Delete removes the request and every child row.
func (s *ChangeRequestService) Delete(ctx context.Context, crID string, actor domain.Actor, expectedVersion *int64) error {
	var deleted *domain.ChangeRequest
	err := s.repo.InTx(ctx, func(tx repository.ChangeRequestTx) error {
		cr, err := tx.GetByID(ctx, crID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != cr.Version {
			return staleError(cr.Version, *expectedVersion)
		}
		if cr.IsTerminal() {
			return terminalError(cr)
		}
		if !workflow.Resolve(cr, actor).CanDelete {
			return apperrors.NewForbiddenTransition("actor may not delete this change request", map[string]any{"stage": cr.CurrentStage})
		}
		deleted = cr
		return tx.Delete(ctx, cr.ID, cr.Version)
	})
	if err != nil {
		return s.storeError("delete", err)
	}
	s.committed(ctx, "deleted", deleted, actor, deleted.CurrentStage, events.Event{
		Type: events.EventChangeRequestDeleted,
	})
	return nil
}

// mutation applies a workflow change to cr in place and returns history notes.
type mutation func(tx repository.ChangeRequestTx, cr *domain.ChangeRequest, now time.Time) (string, error)

// mutate runs fn in one transaction and persists the change request with a
// version check plus exactly one history entry.
func (s *ChangeRequestService) mutate(ctx context.Context, crID string, actor domain.Actor, expectedVersion *int64, action domain.HistoryAction, fn mutation) (*domain.ChangeRequest, error) {
	var (
		result *domain.ChangeRequest
		entry  *domain.History
	)
	err := s.repo.InTx(ctx, func(tx repository.ChangeRequestTx) error {
		cr, err := tx.GetByID(ctx, crID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != cr.Version {
			return staleError(cr.Version, *expectedVersion)
		}
		loadedVersion := cr.Version
		fromStage, fromStatus := cr.CurrentStage, cr.CurrentStatus

		now := s.now()
		notes, err := fn(tx, cr, now)
		if err != nil {
			return err
		}
		cr.UpdatedAt = now
		if err := tx.Update(ctx, cr, loadedVersion); err != nil {
			return err
		}
		entry = &domain.History{
			ChangeRequestID: cr.ID,
			ChangedBy:       actor.ID,
			Action:          action,
			FromStage:       fromStage,
			ToStage:         cr.CurrentStage,
			FromStatus:      fromStatus,
			ToStatus:        cr.CurrentStatus,
			Notes:           notes,
			CreatedAt:       now,
		}
		if err := tx.InsertHistory(ctx, entry); err != nil {
			return err
		}
		result = cr
		return nil
	})
	if err != nil {
		return nil, s.storeError(string(action), err)
	}

	s.committed(ctx, action, result, actor, entry.FromStage, events.Event{
		Type: eventFor(action),
		Payload: events.TransitionPayload{
			FromStage:  entry.FromStage,
			ToStage:    entry.ToStage,
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			Notes:      entry.Notes,
		},
	})
	return result, nil
}

// committed records metrics, logs and publishes the event of a committed mutation.
func (s *ChangeRequestService) committed(ctx context.Context, action domain.HistoryAction, cr *domain.ChangeRequest, actor domain.Actor, fromStage domain.Stage, event events.Event) {
	s.metrics.RecordTransition(string(action), int(fromStage))
	s.logger.Info("change request transition",
		zap.String("cr_number", cr.CRNumber),
		zap.String("action", string(action)),
		zap.String("actor_id", actor.ID),
		zap.Int("from_stage", int(fromStage)),
		zap.Int("stage", int(cr.CurrentStage)),
		zap.String("status", string(cr.CurrentStatus)),
		zap.Int64("version", cr.Version),
	)
	event.ChangeRequestID = cr.ID
	event.CRNumber = cr.CRNumber
	event.RequestedBy = cr.RequestedBy
	event.LineManagerID = cr.LineManagerID
	event.Actor = events.Actor{ID: actor.ID, Roles: actor.Roles.Strings()}
	s.publishEvent(ctx, event)
}

func (s *ChangeRequestService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

// storeError translates repository failures into domain errors.
func (s *ChangeRequestService) storeError(op string, err error) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repository.ErrStaleState):
		return apperrors.NewStaleState("change request was modified concurrently, reload and retry", nil)
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("change request", nil)
	}
	s.logger.Error("change request store failure", zap.String("op", op), zap.Error(err))
	return apperrors.NewInternalError(err)
}

func staleError(current, expected int64) error {
	return apperrors.NewStaleState("change request was modified since it was read", map[string]any{
		"current_version":  current,
		"expected_version": expected,
	})
}

func terminalError(cr *domain.ChangeRequest) error {
	return apperrors.NewInvalidState("change request is "+strings.ToLower(string(cr.CurrentStatus)), map[string]any{"status": cr.CurrentStatus})
}

func forbiddenAt(cr *domain.ChangeRequest) error {
	rule, _ := workflow.RuleFor(cr.CurrentStage)
	return apperrors.NewForbiddenTransition("actor may not decide stage "+rule.Name, map[string]any{"stage": cr.CurrentStage})
}

func eventFor(action domain.HistoryAction) events.EventType {
	switch action {
	case domain.HistoryApproved:
		return events.EventChangeRequestApproved
	case domain.HistoryRejected:
		return events.EventChangeRequestRejected
	case domain.HistoryClosed:
		return events.EventChangeRequestClosed
	case domain.HistoryDecisionEdited:
		return events.EventDecisionEdited
	case domain.HistoryAttachmentAdded:
		return events.EventAttachmentAdded
	}
	return events.EventChangeRequestCreated
}

// approverRole is the role a decision is recorded under. Identity-gated
// stages without roles are decided by the requester.
func approverRole(rule workflow.StageRule, actor domain.Actor) domain.Role {
	if len(rule.Roles) == 0 {
		return domain.RoleRequester
	}
	return actor.PrimaryRole(rule.Roles...)
}

// editorRole is the role an edit is recorded under, following the edit rules.
func editorRole(current domain.Stage) domain.Role {
	switch {
	case current == domain.StageLineManagerApproval:
		return domain.RoleRequester
	case current == domain.StageHeadOfITApproval:
		return domain.RoleLineManager
	default:
		return domain.RoleHeadOfIT
	}
}

func stageLabel(stage domain.Stage) string {
	if rule, ok := workflow.RuleFor(stage); ok {
		return rule.Name
	}
	return "unknown"
}

func normalizeClosure(c domain.Closure) domain.Closure {
	c.NOCClosureNotes = strings.TrimSpace(c.NOCClosureNotes)
	c.IncidentDetails = strings.TrimSpace(c.IncidentDetails)
	c.RollbackDetails = strings.TrimSpace(c.RollbackDetails)
	c.EarlyClosureJustification = strings.TrimSpace(c.EarlyClosureJustification)
	return c
}
