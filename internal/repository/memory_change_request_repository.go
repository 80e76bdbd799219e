package repository

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/change-request-service/internal/domain"
)

// memoryState holds committed rows. Maps are copied per transaction and child
// slices are never appended in place, so a discarded copy leaves no trace.
type memoryState struct {
	crs         map[string]*domain.ChangeRequest
	numbers     map[string]string
	approvals   map[string][]domain.Approval
	history     map[string][]domain.History
	testing     map[string][]domain.TestingResult
	qa          map[string][]domain.QAChecklist
	team        map[string][]domain.DeploymentTeamMember
	attachments map[string][]domain.Attachment
}

func newMemoryState() *memoryState {
	return &memoryState{
		crs:         map[string]*domain.ChangeRequest{},
		numbers:     map[string]string{},
		approvals:   map[string][]domain.Approval{},
		history:     map[string][]domain.History{},
		testing:     map[string][]domain.TestingResult{},
		qa:          map[string][]domain.QAChecklist{},
		team:        map[string][]domain.DeploymentTeamMember{},
		attachments: map[string][]domain.Attachment{},
	}
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		crs:         copyMap(s.crs),
		numbers:     copyMap(s.numbers),
		approvals:   copyMap(s.approvals),
		history:     copyMap(s.history),
		testing:     copyMap(s.testing),
		qa:          copyMap(s.qa),
		team:        copyMap(s.team),
		attachments: copyMap(s.attachments),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func appendCopy[T any](s []T, v T) []T {
	out := make([]T, 0, len(s)+1)
	out = append(out, s...)
	return append(out, v)
}

// MemoryChangeRequestRepository is an in-process store used when no database
// is configured and by tests. Transactions buffer writes and apply them
// atomically on commit, re-checking versions under the write lock.
type MemoryChangeRequestRepository struct {
	mu        sync.RWMutex
	state     *memoryState
	sequences map[string]int64
}

var _ ChangeRequestRepository = (*MemoryChangeRequestRepository)(nil)

// NewMemoryChangeRequestRepository builds an empty store.
func NewMemoryChangeRequestRepository() *MemoryChangeRequestRepository {
	return &MemoryChangeRequestRepository{state: newMemoryState(), sequences: map[string]int64{}}
}

// NextSequence returns a per-scope counter starting at 1. The counter never
// falls behind numbers already stored for the scope, so numbers issued by
// another source are skipped.
func (r *MemoryChangeRequestRepository) NextSequence(_ context.Context, scope string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := max(r.sequences[scope], r.highestLocked(scope)) + 1
	r.sequences[scope] = next
	return next, nil
}

// HighestSequence returns the largest sequence among stored numbers of scope.
func (r *MemoryChangeRequestRepository) HighestSequence(_ context.Context, scope string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.highestLocked(scope), nil
}

func (r *MemoryChangeRequestRepository) highestLocked(scope string) int64 {
	prefix := "CR-" + scope + "-"
	var highest int64
	for number := range r.state.numbers {
		suffix, ok := strings.CutPrefix(number, prefix)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

func (r *MemoryChangeRequestRepository) GetByID(_ context.Context, id string) (*domain.ChangeRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cr, ok := r.state.crs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cr.Clone(), nil
}

func (r *MemoryChangeRequestRepository) GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error) {
	r.mu.RLock()
	id, ok := r.state.numbers[strings.ToUpper(strings.TrimSpace(number))]
	r.mu.RUnlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryChangeRequestRepository) ListWithFilter(_ context.Context, filter ChangeRequestFilter) ([]domain.ChangeRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.ChangeRequest
	for _, cr := range r.state.crs {
		if !matchesFilter(cr, filter) {
			continue
		}
		result = append(result, *cr.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].CRNumber > result[j].CRNumber
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	limit, offset := NormalizePage(filter.Limit, filter.Offset)
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func matchesFilter(cr *domain.ChangeRequest, filter ChangeRequestFilter) bool {
	if filter.Stage != nil && cr.CurrentStage != *filter.Stage {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if cr.CurrentStatus == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.RequestedBy != nil && cr.RequestedBy != *filter.RequestedBy {
		return false
	}
	if filter.LineManagerID != nil && cr.LineManagerID != *filter.LineManagerID {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(cr.Title), term) && !strings.Contains(strings.ToLower(cr.CRNumber), term) {
			return false
		}
	}
	return true
}

func (r *MemoryChangeRequestRepository) ListApprovals(_ context.Context, crID string) ([]domain.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Approval(nil), r.state.approvals[crID]...), nil
}

func (r *MemoryChangeRequestRepository) ListHistory(_ context.Context, crID string) ([]domain.History, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.History(nil), r.state.history[crID]...), nil
}

func (r *MemoryChangeRequestRepository) ListTestingResults(_ context.Context, crID string, testType *domain.TestType) ([]domain.TestingResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TestingResult
	for _, t := range r.state.testing[crID] {
		if testType != nil && t.TestType != *testType {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *MemoryChangeRequestRepository) ListQAChecklists(_ context.Context, crID string) ([]domain.QAChecklist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.QAChecklist(nil), r.state.qa[crID]...), nil
}

func (r *MemoryChangeRequestRepository) ListDeploymentTeam(_ context.Context, crID string) ([]domain.DeploymentTeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := append([]domain.DeploymentTeamMember(nil), r.state.team[crID]...)
	sort.Slice(members, func(i, j int) bool { return members[i].MemberName < members[j].MemberName })
	return members, nil
}

func (r *MemoryChangeRequestRepository) ListAttachments(_ context.Context, crID string) ([]domain.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Attachment(nil), r.state.attachments[crID]...), nil
}

func (r *MemoryChangeRequestRepository) InTx(ctx context.Context, fn func(tx ChangeRequestTx) error) error {
	tx := &memoryTx{repo: r, pending: map[string]*domain.ChangeRequest{}, deleted: map[string]bool{}}
	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	for _, op := range tx.ops {
		if err := op(staged); err != nil {
			return err
		}
	}
	r.state = staged
	return nil
}

type memoryOp func(s *memoryState) error

type memoryTx struct {
	repo    *MemoryChangeRequestRepository
	ops     []memoryOp
	pending map[string]*domain.ChangeRequest
	deleted map[string]bool
}

func (t *memoryTx) GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	if t.deleted[id] {
		return nil, pgx.ErrNoRows
	}
	if cr, ok := t.pending[id]; ok {
		return cr.Clone(), nil
	}
	return t.repo.GetByID(ctx, id)
}

func (t *memoryTx) GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	for id, cr := range t.pending {
		if cr.CRNumber == number && !t.deleted[id] {
			return cr.Clone(), nil
		}
	}
	return t.repo.GetByNumber(ctx, number)
}

func (t *memoryTx) Create(_ context.Context, cr *domain.ChangeRequest) error {
	cr.ID = uuid.NewString()
	row := cr.Clone()
	t.pending[cr.ID] = row
	t.ops = append(t.ops, func(s *memoryState) error {
		if _, taken := s.numbers[row.CRNumber]; taken {
			return ErrDuplicateNumber
		}
		s.crs[row.ID] = row
		s.numbers[row.CRNumber] = row.ID
		return nil
	})
	return nil
}

func (t *memoryTx) Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64) error {
	current, err := t.GetByID(ctx, cr.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return ErrStaleState
	}
	cr.Version = expectedVersion + 1
	row := cr.Clone()
	t.pending[cr.ID] = row
	t.ops = append(t.ops, func(s *memoryState) error {
		stored, ok := s.crs[row.ID]
		if !ok || stored.Version != expectedVersion {
			return ErrStaleState
		}
		s.crs[row.ID] = row
		return nil
	})
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, id string, expectedVersion int64) error {
	current, err := t.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return ErrStaleState
	}
	t.deleted[id] = true
	t.ops = append(t.ops, func(s *memoryState) error {
		stored, ok := s.crs[id]
		if !ok || stored.Version != expectedVersion {
			return ErrStaleState
		}
		delete(s.numbers, stored.CRNumber)
		delete(s.crs, id)
		delete(s.approvals, id)
		delete(s.history, id)
		delete(s.testing, id)
		delete(s.qa, id)
		delete(s.team, id)
		delete(s.attachments, id)
		return nil
	})
	return nil
}

func (t *memoryTx) InsertApproval(_ context.Context, a *domain.Approval) error {
	a.ID = uuid.NewString()
	row := *a
	t.ops = append(t.ops, func(s *memoryState) error {
		if _, ok := s.crs[row.ChangeRequestID]; !ok {
			return pgx.ErrNoRows
		}
		s.approvals[row.ChangeRequestID] = appendCopy(s.approvals[row.ChangeRequestID], row)
		return nil
	})
	return nil
}

func (t *memoryTx) InsertHistory(_ context.Context, h *domain.History) error {
	h.ID = uuid.NewString()
	row := *h
	t.ops = append(t.ops, func(s *memoryState) error {
		if _, ok := s.crs[row.ChangeRequestID]; !ok {
			return pgx.ErrNoRows
		}
		s.history[row.ChangeRequestID] = appendCopy(s.history[row.ChangeRequestID], row)
		return nil
	})
	return nil
}

func (t *memoryTx) InsertTestingResult(_ context.Context, result *domain.TestingResult) error {
	result.ID = uuid.NewString()
	row := *result
	row.TestCases = append([]domain.TestCase(nil), result.TestCases...)
	t.ops = append(t.ops, func(s *memoryState) error {
		if _, ok := s.crs[row.ChangeRequestID]; !ok {
			return pgx.ErrNoRows
		}
		s.testing[row.ChangeRequestID] = appendCopy(s.testing[row.ChangeRequestID], row)
		return nil
	})
	return nil
}

func (t *memoryTx) InsertQAChecklist(_ context.Context, qa *domain.QAChecklist) error {
	qa.ID = uuid.NewString()
	row := *qa
	row.Items = append([]domain.QAChecklistItem(nil), qa.Items...)
	t.ops = append(t.ops, func(s *memoryState) error {
		if _, ok := s.crs[row.ChangeRequestID]; !ok {
			return pgx.ErrNoRows
		}
		s.qa[row.ChangeRequestID] = appendCopy(s.qa[row.ChangeRequestID], row)
		return nil
	})
	return nil
}

func (t *memoryTx) ReplaceDeploymentTeam(_ context.Context, crID string, members []domain.DeploymentTeamMember) error {
	rows := make([]domain.DeploymentTeamMember, len(members))
	for i := range members {
		members[i].ID = uuid.NewString()
		members[i].ChangeRequestID = crID
		rows[i] = members[i]
	}
	t.ops = append(t.ops, func(s *memoryState) error {
		if _, ok := s.crs[crID]; !ok {
			return pgx.ErrNoRows
		}
		s.team[crID] = rows
		return nil
	})
	return nil
}

func (t *memoryTx) InsertAttachment(_ context.Context, a *domain.Attachment) error {
	a.ID = uuid.NewString()
	row := *a
	t.ops = append(t.ops, func(s *memoryState) error {
		if _, ok := s.crs[row.ChangeRequestID]; !ok {
			return pgx.ErrNoRows
		}
		s.attachments[row.ChangeRequestID] = appendCopy(s.attachments[row.ChangeRequestID], row)
		return nil
	})
	return nil
}
