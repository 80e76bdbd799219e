package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-request-service/internal/api/dto"
	"github.com/spec-kit/change-request-service/internal/auth"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/repository"
	"github.com/spec-kit/change-request-service/internal/service"
	"github.com/spec-kit/change-request-service/internal/workflow"
	apperrors "github.com/spec-kit/change-request-service/pkg/util/errorutil"
)

// ChangeRequestsHandler exposes the change request workflow.
type ChangeRequestsHandler struct {
	service *service.ChangeRequestService
}

// NewChangeRequestsHandler constructs handler.
func NewChangeRequestsHandler(crService *service.ChangeRequestService) *ChangeRequestsHandler {
	return &ChangeRequestsHandler{service: crService}
}

// Create POST /change-requests.
func (h *ChangeRequestsHandler) Create(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateChangeRequestRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cr, err := h.service.Create(c.UserContext(), actor, req.ToInput())
	if err != nil {
		return err
	}
	return respondChangeRequest(c, http.StatusCreated, cr, nil)
}

// List GET /change-requests.
func (h *ChangeRequestsHandler) List(c *fiber.Ctx) error {
	filter, page, pageSize, err := parseListQuery(c)
	if err != nil {
		return err
	}
	crs, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.ChangeRequestSummary, 0, len(crs))
	for i := range crs {
		items = append(items, changeRequestSummary(&crs[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": dto.PaginationMeta{Page: page, PageSize: pageSize, Count: len(items)},
	})
}

// Get GET /change-requests/:id. The caller's permissions are embedded.
func (h *ChangeRequestsHandler) Get(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	cr, perms, err := h.service.ResolvePermissions(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return respondChangeRequest(c, http.StatusOK, cr, &perms)
}

// GetByNumber GET /change-requests/number/:number.
func (h *ChangeRequestsHandler) GetByNumber(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	cr, err := h.service.GetByNumber(c.UserContext(), c.Params("number"))
	if err != nil {
		return err
	}
	_, perms, err := h.service.ResolvePermissions(c.UserContext(), cr.ID, actor)
	if err != nil {
		return err
	}
	return respondChangeRequest(c, http.StatusOK, cr, &perms)
}

// Permissions GET /change-requests/:id/permissions.
func (h *ChangeRequestsHandler) Permissions(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	_, perms, err := h.service.ResolvePermissions(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": perms})
}

// Delete DELETE /change-requests/:id.
func (h *ChangeRequestsHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	version, err := expectedVersion(c, nil)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), c.Params("id"), actor, version); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Approve POST /change-requests/:id/approve.
func (h *ChangeRequestsHandler) Approve(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ApproveRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return err
	}
	cr, err := h.service.Approve(c.UserContext(), c.Params("id"), actor, service.ApproveInput{
		SignatureRef:    req.SignatureRef,
		Comments:        req.Comments,
		ExpectedVersion: version,
		Payload:         req.ToPayload(),
	})
	if err != nil {
		return err
	}
	return respondChangeRequest(c, http.StatusOK, cr, nil)
}

// Reject POST /change-requests/:id/reject.
func (h *ChangeRequestsHandler) Reject(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.RejectRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return err
	}
	cr, err := h.service.Reject(c.UserContext(), c.Params("id"), actor, service.RejectInput{
		Reason:          req.Reason,
		SignatureRef:    req.SignatureRef,
		ExpectedVersion: version,
	})
	if err != nil {
		return err
	}
	return respondChangeRequest(c, http.StatusOK, cr, nil)
}

// Close POST /change-requests/:id/close.
func (h *ChangeRequestsHandler) Close(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CloseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return err
	}
	cr, err := h.service.Close(c.UserContext(), c.Params("id"), actor, service.CloseInput{
		Closure:         req.ToClosure(),
		ExpectedVersion: version,
	})
	if err != nil {
		return err
	}
	return respondChangeRequest(c, http.StatusOK, cr, nil)
}

// EditDecision POST /change-requests/:id/edit-decision.
func (h *ChangeRequestsHandler) EditDecision(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.EditDecisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return err
	}
	cr, err := h.service.EditDecision(c.UserContext(), c.Params("id"), actor, service.EditDecisionInput{
		Stage:           req.Stage,
		Decision:        req.Decision,
		SignatureRef:    req.SignatureRef,
		Comments:        req.Comments,
		ExpectedVersion: version,
		Payload:         req.ToPayload(),
	})
	if err != nil {
		return err
	}
	return respondChangeRequest(c, http.StatusOK, cr, nil)
}

// AddAttachment POST /change-requests/:id/attachments.
func (h *ChangeRequestsHandler) AddAttachment(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.AddAttachmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return err
	}
	att, err := h.service.AddAttachment(c.UserContext(), c.Params("id"), actor, service.AttachmentInput{
		StorageKey:      req.StorageKey,
		FileName:        req.FileName,
		MimeType:        req.MimeType,
		SizeBytes:       req.SizeBytes,
		ExpectedVersion: version,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": attachmentResponse(*att)})
}

// History GET /change-requests/:id/history.
func (h *ChangeRequestsHandler) History(c *fiber.Ctx) error {
	rows, err := h.service.GetHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mapAll(rows, historyResponse)})
}

// Approvals GET /change-requests/:id/approvals.
func (h *ChangeRequestsHandler) Approvals(c *fiber.Ctx) error {
	rows, err := h.service.GetApprovals(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mapAll(rows, approvalResponse)})
}

// TestingResults GET /change-requests/:id/testing-results?type=&latest=.
func (h *ChangeRequestsHandler) TestingResults(c *fiber.Ctx) error {
	var testType *domain.TestType
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		t := domain.TestType(raw)
		if !t.Valid() {
			return apperrors.NewValidationError("invalid test type", map[string]any{"type": raw})
		}
		testType = &t
	}
	if c.QueryBool("latest") {
		if testType == nil {
			return apperrors.NewValidationError("latest requires a test type", map[string]any{"type": "required"})
		}
		latest, err := h.service.GetLatestTestingResult(c.UserContext(), c.Params("id"), *testType)
		if err != nil {
			return err
		}
		if latest == nil {
			return c.JSON(fiber.Map{"data": nil})
		}
		return c.JSON(fiber.Map{"data": testingResultResponse(*latest)})
	}
	rows, err := h.service.GetTestingResults(c.UserContext(), c.Params("id"), testType)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mapAll(rows, testingResultResponse)})
}

// QAChecklists GET /change-requests/:id/qa-checklists.
func (h *ChangeRequestsHandler) QAChecklists(c *fiber.Ctx) error {
	rows, err := h.service.GetQAChecklists(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mapAll(rows, qaChecklistResponse)})
}

// DeploymentTeam GET /change-requests/:id/deployment-team.
func (h *ChangeRequestsHandler) DeploymentTeam(c *fiber.Ctx) error {
	rows, err := h.service.GetDeploymentTeam(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mapAll(rows, deploymentTeamMemberResponse)})
}

// Attachments GET /change-requests/:id/attachments.
func (h *ChangeRequestsHandler) Attachments(c *fiber.Ctx) error {
	rows, err := h.service.GetAttachments(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mapAll(rows, attachmentResponse)})
}

// respondChangeRequest exposes the version as an ETag so clients can echo it in If-Match.
func respondChangeRequest(c *fiber.Ctx, status int, cr *domain.ChangeRequest, perms *workflow.Permissions) error {
	c.Set(fiber.HeaderETag, strconv.Quote(strconv.FormatInt(cr.Version, 10)))
	return c.Status(status).JSON(fiber.Map{"data": changeRequestResponse(cr, perms)})
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	return dto.Validate(req)
}

// expectedVersion prefers the If-Match header over the body field.
func expectedVersion(c *fiber.Ctx, fromBody *int64) (*int64, error) {
	raw := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	if raw == "" {
		return fromBody, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		return nil, apperrors.NewValidationError("invalid If-Match header", map[string]any{"if_match": raw})
	}
	return &version, nil
}

func parseListQuery(c *fiber.Ctx) (service.ListFilter, int, int, error) {
	filter := service.ListFilter{}
	if raw := c.Query("stage"); raw != "" {
		n, err := strconv.Atoi(raw)
		stage := domain.Stage(n)
		if err != nil || !stage.Valid() {
			return filter, 0, 0, apperrors.NewValidationError("invalid stage", map[string]any{"stage": raw})
		}
		filter.Stage = &stage
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, domain.CRStatus(part))
			}
		}
	}
	if v := strings.TrimSpace(c.Query("requested_by")); v != "" {
		filter.RequestedBy = &v
	}
	if v := strings.TrimSpace(c.Query("line_manager_id")); v != "" {
		filter.LineManagerID = &v
	}
	if v := strings.TrimSpace(c.Query("search")); v != "" {
		filter.SearchTerm = &v
	}
	page := parseInt(c.Query("page"), 1)
	pageSize, _ := repository.NormalizePage(parseInt(c.Query("page_size"), repository.DefaultPageSize), 0)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, page, pageSize, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
