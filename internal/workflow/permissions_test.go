package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/change-request-service/internal/domain"
)

func TestResolveEditRules(t *testing.T) {
	tests := []struct {
		name  string
		stage domain.Stage
		actor domain.Actor
		want  bool
	}{
		{"draft never editable", domain.StageDraft, actor("u-req", "requester"), false},
		{"stage 2 by requester", domain.StageLineManagerApproval, actor("u-req"), true},
		{"stage 2 not by line manager", domain.StageLineManagerApproval, actor("u-lm", "line_manager"), false},
		{"stage 3 by any line manager", domain.StageHeadOfITApproval, actor("another-lm", "line_manager"), true},
		{"stage 3 not by head of it", domain.StageHeadOfITApproval, actor("boss", "head_of_it"), false},
		{"stage 4 by head of it", domain.StageITOfficerAssessment, actor("boss", "head_of_it"), true},
		{"stage 9 by head of it", domain.StagePostDeploymentReview, actor("boss", "head_of_it"), true},
		{"stage 6 not by qa", domain.StageQAValidation, actor("qa", "qa_officer"), false},
		{"stage 10 never editable", domain.StageClosure, actor("boss", "head_of_it", "noc"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Resolve(crAt(tc.stage), tc.actor)
			assert.Equal(t, tc.want, p.CanEdit)
			assert.Equal(t, p.CanEdit, p.CanDelete)
		})
	}
}

func TestResolveDecideAndEditDiverge(t *testing.T) {
	cr := crAt(domain.StageHeadOfITApproval)

	boss := Resolve(cr, actor("boss", "head_of_it"))
	assert.True(t, boss.CanActOnCurrentStage)
	assert.False(t, boss.CanEdit)

	lm := Resolve(cr, actor("u-lm", "line_manager"))
	assert.False(t, lm.CanActOnCurrentStage)
	assert.True(t, lm.CanEdit)
}

func TestResolveTerminalGrantsNothing(t *testing.T) {
	for _, status := range []domain.CRStatus{domain.StatusCompleted, domain.StatusRejected} {
		for s := domain.FirstStage; s <= domain.LastStage; s++ {
			cr := crAt(s)
			cr.CurrentStatus = status
			for _, a := range []domain.Actor{
				actor("u-req", "requester"),
				actor("u-lm", "line_manager"),
				actor("boss", "head_of_it", "it_officer", "qa_officer", "noc"),
			} {
				assert.Equal(t, Permissions{}, Resolve(cr, a), "status %s stage %d", status, s)
			}
		}
	}
}

func TestResolveClosureStageActors(t *testing.T) {
	cr := crAt(domain.StageClosure)
	assert.True(t, Resolve(cr, actor("n1", "noc")).CanActOnCurrentStage)
	assert.False(t, Resolve(cr, actor("boss", "head_of_it")).CanActOnCurrentStage)
}
