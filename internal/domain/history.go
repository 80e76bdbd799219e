package domain

import "time"

// HistoryAction names the workflow mutation captured by a history entry.
type HistoryAction string

const (
	HistoryCreated         HistoryAction = "created"
	HistoryApproved        HistoryAction = "approved"
	HistoryRejected        HistoryAction = "rejected"
	HistoryDecisionEdited  HistoryAction = "decision_edited"
	HistoryClosed          HistoryAction = "closed"
	HistoryAttachmentAdded HistoryAction = "attachment_added"
)

// History is an immutable audit trail entry. FromStage is zero for the creation entry.
type History struct {
	ID              string
	ChangeRequestID string
	ChangedBy       string
	Action          HistoryAction
	FromStage       Stage
	ToStage         Stage
	FromStatus      CRStatus
	ToStatus        CRStatus
	Notes           string
	CreatedAt       time.Time
}
