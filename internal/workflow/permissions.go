package workflow

import "github.com/spec-kit/change-request-service/internal/domain"

// Permissions is what an actor may do with a change request in its current state.
type Permissions struct {
	CanActOnCurrentStage bool `json:"can_act_on_current_stage"`
	CanEdit              bool `json:"can_edit"`
	CanDelete            bool `json:"can_delete"`
}

// Resolve derives permissions from the stage and edit rule tables.
func Resolve(cr *domain.ChangeRequest, actor domain.Actor) Permissions {
	canEdit := CanEditDecision(cr, actor)
	return Permissions{
		CanActOnCurrentStage: CanDecide(cr, actor),
		CanEdit:              canEdit,
		CanDelete:            canEdit,
	}
}
