package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-request-service/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const changeRequestColumns = `id, cr_number, title, description, justification, change_type, priority,
        affected_systems, planned_start, planned_end, current_stage, current_status, requested_by,
        line_manager_id, assigned_it_officer_id, it_assessment, risk_accepted, deployment_notes,
        post_deployment_notes, closure, deployment_completed_at, version, created_at, updated_at, completed_at`

type changeRequestRepository struct {
	pool *pgxpool.Pool
}

// NewChangeRequestRepository instantiates the Postgres-backed store.
func NewChangeRequestRepository(pool *pgxpool.Pool) ChangeRequestRepository {
	return &changeRequestRepository{pool: pool}
}

func (r *changeRequestRepository) GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	return getByID(ctx, r.pool, id)
}

func (r *changeRequestRepository) GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error) {
	return getByNumber(ctx, r.pool, number)
}

func (r *changeRequestRepository) InTx(ctx context.Context, fn func(tx ChangeRequestTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgChangeRequestTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// NextSequence bumps the per-day counter, never returning a value at or below
// the highest number already stored for the day.
func (r *changeRequestRepository) NextSequence(ctx context.Context, scope string) (int64, error) {
	const query = `
		INSERT INTO cr_number_counters (day, last_value)
		VALUES ($1::text, (
			SELECT COALESCE(MAX(split_part(cr_number, '-', 3)::BIGINT), 0) + 1
			FROM change_requests
			WHERE cr_number LIKE 'CR-' || $1::text || '-%'
		))
		ON CONFLICT (day) DO UPDATE
		SET last_value = GREATEST(cr_number_counters.last_value + 1, EXCLUDED.last_value)
		RETURNING last_value`

	var n int64
	err := r.pool.QueryRow(ctx, query, scope).Scan(&n)
	return n, err
}

// HighestSequence returns the largest sequence among stored numbers of the day.
func (r *changeRequestRepository) HighestSequence(ctx context.Context, scope string) (int64, error) {
	const query = `
		SELECT COALESCE(MAX(split_part(cr_number, '-', 3)::BIGINT), 0)
		FROM change_requests
		WHERE cr_number LIKE 'CR-' || $1::text || '-%'`

	var n int64
	err := r.pool.QueryRow(ctx, query, scope).Scan(&n)
	return n, err
}

// AdvanceSequence raises the day's counter to at least floor.
func (r *changeRequestRepository) AdvanceSequence(ctx context.Context, scope string, floor int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cr_number_counters (day, last_value) VALUES ($1, $2)
		ON CONFLICT (day) DO UPDATE SET last_value = GREATEST(cr_number_counters.last_value, EXCLUDED.last_value)`,
		scope, floor)
	return err
}

func (r *changeRequestRepository) ListWithFilter(ctx context.Context, filter ChangeRequestFilter) ([]domain.ChangeRequest, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Stage != nil {
		args = append(args, int(*filter.Stage))
		clauses = append(clauses, fmt.Sprintf("current_stage=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("current_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequestedBy != nil {
		args = append(args, *filter.RequestedBy)
		clauses = append(clauses, fmt.Sprintf("requested_by=$%d", len(args)))
	}
	if filter.LineManagerID != nil {
		args = append(args, *filter.LineManagerID)
		clauses = append(clauses, fmt.Sprintf("line_manager_id=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(cr_number) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := NormalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM change_requests WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		changeRequestColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cr)
	}
	return result, rows.Err()
}

func (r *changeRequestRepository) ListApprovals(ctx context.Context, crID string) ([]domain.Approval, error) {
	if !validID(crID) {
		return nil, nil
	}
	const query = `
        SELECT id, change_request_id, stage, approver_id, approver_role, status, signature_ref,
               comments, risk_accepted, is_edit, approved_at
        FROM cr_approvals WHERE change_request_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, crID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Approval
	for rows.Next() {
		var a domain.Approval
		if err := rows.Scan(
			&a.ID,
			&a.ChangeRequestID,
			&a.Stage,
			&a.ApproverID,
			&a.ApproverRole,
			&a.Status,
			&a.SignatureRef,
			&a.Comments,
			&a.RiskAccepted,
			&a.IsEdit,
			&a.ApprovedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *changeRequestRepository) ListHistory(ctx context.Context, crID string) ([]domain.History, error) {
	if !validID(crID) {
		return nil, nil
	}
	const query = `
        SELECT id, change_request_id, changed_by, action, from_stage, to_stage, from_status, to_status, notes, created_at
        FROM cr_history WHERE change_request_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, crID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.History
	for rows.Next() {
		var h domain.History
		if err := rows.Scan(
			&h.ID,
			&h.ChangeRequestID,
			&h.ChangedBy,
			&h.Action,
			&h.FromStage,
			&h.ToStage,
			&h.FromStatus,
			&h.ToStatus,
			&h.Notes,
			&h.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (r *changeRequestRepository) ListTestingResults(ctx context.Context, crID string, testType *domain.TestType) ([]domain.TestingResult, error) {
	if !validID(crID) {
		return nil, nil
	}
	query := `
        SELECT id, change_request_id, test_type, test_cases, checklist, summary, passed, notes, submitted_by, created_at
        FROM cr_testing_results WHERE change_request_id=$1`
	args := []any{crID}
	if testType != nil {
		args = append(args, string(*testType))
		query += " AND test_type=$2"
	}
	query += " ORDER BY seq ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TestingResult
	for rows.Next() {
		var (
			t                         domain.TestingResult
			cases, checklist, summary []byte
		)
		if err := rows.Scan(
			&t.ID,
			&t.ChangeRequestID,
			&t.TestType,
			&cases,
			&checklist,
			&summary,
			&t.Passed,
			&t.Notes,
			&t.SubmittedBy,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeJSON(cases, &t.TestCases); err != nil {
			return nil, err
		}
		if err := decodeJSON(checklist, &t.Checklist); err != nil {
			return nil, err
		}
		if err := decodeJSON(summary, &t.Summary); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *changeRequestRepository) ListQAChecklists(ctx context.Context, crID string) ([]domain.QAChecklist, error) {
	if !validID(crID) {
		return nil, nil
	}
	const query = `
        SELECT id, change_request_id, qa_officer_id, items, validated, notes, created_at
        FROM cr_qa_checklists WHERE change_request_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, crID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QAChecklist
	for rows.Next() {
		var (
			qa    domain.QAChecklist
			items []byte
		)
		if err := rows.Scan(&qa.ID, &qa.ChangeRequestID, &qa.QAOfficerID, &items, &qa.Validated, &qa.Notes, &qa.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(items, &qa.Items); err != nil {
			return nil, err
		}
		result = append(result, qa)
	}
	return result, rows.Err()
}

func (r *changeRequestRepository) ListDeploymentTeam(ctx context.Context, crID string) ([]domain.DeploymentTeamMember, error) {
	if !validID(crID) {
		return nil, nil
	}
	const query = `
        SELECT id, change_request_id, member_name, designation, contact, role
        FROM cr_deployment_team_members WHERE change_request_id=$1 ORDER BY member_name ASC`
	rows, err := r.pool.Query(ctx, query, crID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeploymentTeamMember
	for rows.Next() {
		var m domain.DeploymentTeamMember
		if err := rows.Scan(&m.ID, &m.ChangeRequestID, &m.MemberName, &m.Designation, &m.Contact, &m.Role); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *changeRequestRepository) ListAttachments(ctx context.Context, crID string) ([]domain.Attachment, error) {
	if !validID(crID) {
		return nil, nil
	}
	const query = `
        SELECT id, change_request_id, storage_key, file_name, mime_type, size_bytes, uploaded_by, created_at
        FROM cr_attachments WHERE change_request_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, crID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.ChangeRequestID, &a.StorageKey, &a.FileName, &a.MimeType, &a.SizeBytes, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

type pgChangeRequestTx struct {
	tx pgx.Tx
}

func (t *pgChangeRequestTx) GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	return getByID(ctx, t.tx, id)
}

func (t *pgChangeRequestTx) GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error) {
	return getByNumber(ctx, t.tx, number)
}

func (t *pgChangeRequestTx) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	assessment, closure, err := encodePayloads(cr)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO change_requests (cr_number, title, description, justification, change_type, priority,
            affected_systems, planned_start, planned_end, current_stage, current_status, requested_by,
            line_manager_id, assigned_it_officer_id, it_assessment, risk_accepted, deployment_notes,
            post_deployment_notes, closure, deployment_completed_at, version, created_at, updated_at, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
        RETURNING id`
	err = t.tx.QueryRow(ctx, query,
		cr.CRNumber,
		cr.Title,
		cr.Description,
		cr.Justification,
		string(cr.ChangeType),
		string(cr.Priority),
		nonNilStrings(cr.AffectedSystems),
		cr.PlannedStart,
		cr.PlannedEnd,
		int(cr.CurrentStage),
		string(cr.CurrentStatus),
		cr.RequestedBy,
		cr.LineManagerID,
		cr.AssignedITOfficerID,
		assessment,
		cr.RiskAccepted,
		cr.DeploymentNotes,
		cr.PostDeploymentNotes,
		closure,
		cr.DeploymentCompletedAt,
		cr.Version,
		cr.CreatedAt,
		cr.UpdatedAt,
		cr.CompletedAt,
	).Scan(&cr.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateNumber
	}
	return err
}

func (t *pgChangeRequestTx) Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64) error {
	assessment, closure, err := encodePayloads(cr)
	if err != nil {
		return err
	}
	const query = `
        UPDATE change_requests SET title=$1, description=$2, justification=$3, change_type=$4, priority=$5,
            affected_systems=$6, planned_start=$7, planned_end=$8, current_stage=$9, current_status=$10,
            assigned_it_officer_id=$11, it_assessment=$12, risk_accepted=$13, deployment_notes=$14,
            post_deployment_notes=$15, closure=$16, deployment_completed_at=$17, updated_at=$18,
            completed_at=$19, version=version+1
        WHERE id=$20 AND version=$21`
	cmd, err := t.tx.Exec(ctx, query,
		cr.Title,
		cr.Description,
		cr.Justification,
		string(cr.ChangeType),
		string(cr.Priority),
		nonNilStrings(cr.AffectedSystems),
		cr.PlannedStart,
		cr.PlannedEnd,
		int(cr.CurrentStage),
		string(cr.CurrentStatus),
		cr.AssignedITOfficerID,
		assessment,
		cr.RiskAccepted,
		cr.DeploymentNotes,
		cr.PostDeploymentNotes,
		closure,
		cr.DeploymentCompletedAt,
		cr.UpdatedAt,
		cr.CompletedAt,
		cr.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleState
	}
	cr.Version = expectedVersion + 1
	return nil
}

func (t *pgChangeRequestTx) Delete(ctx context.Context, id string, expectedVersion int64) error {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM change_requests WHERE id=$1 AND version=$2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (t *pgChangeRequestTx) InsertApproval(ctx context.Context, a *domain.Approval) error {
	const query = `
        INSERT INTO cr_approvals (change_request_id, stage, approver_id, approver_role, status, signature_ref,
            comments, risk_accepted, is_edit, approved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id`
	return t.tx.QueryRow(ctx, query,
		a.ChangeRequestID,
		int(a.Stage),
		a.ApproverID,
		string(a.ApproverRole),
		string(a.Status),
		a.SignatureRef,
		a.Comments,
		a.RiskAccepted,
		a.IsEdit,
		a.ApprovedAt,
	).Scan(&a.ID)
}

func (t *pgChangeRequestTx) InsertHistory(ctx context.Context, h *domain.History) error {
	const query = `
        INSERT INTO cr_history (change_request_id, changed_by, action, from_stage, to_stage, from_status, to_status, notes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id`
	return t.tx.QueryRow(ctx, query,
		h.ChangeRequestID,
		h.ChangedBy,
		string(h.Action),
		int(h.FromStage),
		int(h.ToStage),
		string(h.FromStatus),
		string(h.ToStatus),
		h.Notes,
		h.CreatedAt,
	).Scan(&h.ID)
}

func (t *pgChangeRequestTx) InsertTestingResult(ctx context.Context, result *domain.TestingResult) error {
	cases, err := json.Marshal(nonNilCases(result.TestCases))
	if err != nil {
		return err
	}
	checklist, err := encodeJSON(result.Checklist)
	if err != nil {
		return err
	}
	summary, err := encodeJSON(result.Summary)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO cr_testing_results (change_request_id, test_type, test_cases, checklist, summary, passed, notes, submitted_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id`
	return t.tx.QueryRow(ctx, query,
		result.ChangeRequestID,
		string(result.TestType),
		cases,
		checklist,
		summary,
		result.Passed,
		result.Notes,
		result.SubmittedBy,
		result.CreatedAt,
	).Scan(&result.ID)
}

func (t *pgChangeRequestTx) InsertQAChecklist(ctx context.Context, qa *domain.QAChecklist) error {
	items, err := json.Marshal(qa.Items)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO cr_qa_checklists (change_request_id, qa_officer_id, items, validated, notes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return t.tx.QueryRow(ctx, query, qa.ChangeRequestID, qa.QAOfficerID, items, qa.Validated, qa.Notes, qa.CreatedAt).Scan(&qa.ID)
}

func (t *pgChangeRequestTx) ReplaceDeploymentTeam(ctx context.Context, crID string, members []domain.DeploymentTeamMember) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cr_deployment_team_members WHERE change_request_id=$1`, crID); err != nil {
		return err
	}
	const query = `
        INSERT INTO cr_deployment_team_members (change_request_id, member_name, designation, contact, role)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	for i := range members {
		members[i].ChangeRequestID = crID
		if err := t.tx.QueryRow(ctx, query,
			crID,
			members[i].MemberName,
			members[i].Designation,
			members[i].Contact,
			members[i].Role,
		).Scan(&members[i].ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgChangeRequestTx) InsertAttachment(ctx context.Context, a *domain.Attachment) error {
	const query = `
        INSERT INTO cr_attachments (change_request_id, storage_key, file_name, mime_type, size_bytes, uploaded_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return t.tx.QueryRow(ctx, query,
		a.ChangeRequestID,
		a.StorageKey,
		a.FileName,
		a.MimeType,
		a.SizeBytes,
		a.UploadedBy,
		a.CreatedAt,
	).Scan(&a.ID)
}

func getByID(ctx context.Context, q querier, id string) (*domain.ChangeRequest, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	query := fmt.Sprintf(`SELECT %s FROM change_requests WHERE id=$1`, changeRequestColumns)
	return scanChangeRequest(q.QueryRow(ctx, query, id))
}

func getByNumber(ctx context.Context, q querier, number string) (*domain.ChangeRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM change_requests WHERE cr_number=$1`, changeRequestColumns)
	return scanChangeRequest(q.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(number))))
}

func scanChangeRequest(row pgx.Row) (*domain.ChangeRequest, error) {
	var (
		cr                   domain.ChangeRequest
		changeType, priority string
		assessment, closure  []byte
	)
	if err := row.Scan(
		&cr.ID,
		&cr.CRNumber,
		&cr.Title,
		&cr.Description,
		&cr.Justification,
		&changeType,
		&priority,
		&cr.AffectedSystems,
		&cr.PlannedStart,
		&cr.PlannedEnd,
		&cr.CurrentStage,
		&cr.CurrentStatus,
		&cr.RequestedBy,
		&cr.LineManagerID,
		&cr.AssignedITOfficerID,
		&assessment,
		&cr.RiskAccepted,
		&cr.DeploymentNotes,
		&cr.PostDeploymentNotes,
		&closure,
		&cr.DeploymentCompletedAt,
		&cr.Version,
		&cr.CreatedAt,
		&cr.UpdatedAt,
		&cr.CompletedAt,
	); err != nil {
		return nil, err
	}
	cr.ChangeType = domain.ChangeType(changeType)
	cr.Priority = domain.Priority(priority)
	if err := decodeJSON(assessment, &cr.ITAssessment); err != nil {
		return nil, err
	}
	if err := decodeJSON(closure, &cr.Closure); err != nil {
		return nil, err
	}
	return &cr, nil
}

func encodePayloads(cr *domain.ChangeRequest) (assessment, closure []byte, err error) {
	if assessment, err = encodeJSON(cr.ITAssessment); err != nil {
		return nil, nil, err
	}
	if closure, err = encodeJSON(cr.Closure); err != nil {
		return nil, nil, err
	}
	return assessment, closure, nil
}

// encodeJSON returns nil for nil pointers so the column is stored as NULL.
func encodeJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilCases(v []domain.TestCase) []domain.TestCase {
	if v == nil {
		return []domain.TestCase{}
	}
	return v
}

// Page size bounds applied to every listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// NormalizePage applies the default and maximum page size and clamps a negative offset.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
