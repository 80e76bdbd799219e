package events

import (
	"time"

	"github.com/spec-kit/change-request-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventChangeRequestCreated  EventType = "change_request_created"
	EventChangeRequestApproved EventType = "change_request_approved"
	EventChangeRequestRejected EventType = "change_request_rejected"
	EventChangeRequestClosed   EventType = "change_request_closed"
	EventDecisionEdited        EventType = "change_request_decision_edited"
	EventAttachmentAdded       EventType = "change_request_attachment_added"
	EventChangeRequestDeleted  EventType = "change_request_deleted"
)

// ChangeRequestEvents lists every event type the workflow emits.
var ChangeRequestEvents = []EventType{
	EventChangeRequestCreated,
	EventChangeRequestApproved,
	EventChangeRequestRejected,
	EventChangeRequestClosed,
	EventDecisionEdited,
	EventAttachmentAdded,
	EventChangeRequestDeleted,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// Event represents a domain event emitted after a workflow transaction commits.
type Event struct {
	ID              string      `json:"id"`
	Type            EventType   `json:"type"`
	ChangeRequestID string      `json:"change_request_id"`
	CRNumber        string      `json:"cr_number"`
	RequestedBy     string      `json:"requested_by"`
	LineManagerID   string      `json:"line_manager_id"`
	Actor           Actor       `json:"actor"`
	Timestamp       time.Time   `json:"timestamp"`
	Payload         interface{} `json:"payload"`
}

// TransitionPayload describes the stage/status delta of a workflow mutation.
type TransitionPayload struct {
	FromStage  domain.Stage    `json:"from_stage"`
	ToStage    domain.Stage    `json:"to_stage"`
	FromStatus domain.CRStatus `json:"from_status"`
	ToStatus   domain.CRStatus `json:"to_status"`
	Notes      string          `json:"notes,omitempty"`
}

// CreatedPayload payload.
type CreatedPayload struct {
	Title         string          `json:"title"`
	Priority      domain.Priority `json:"priority"`
	LineManagerID string          `json:"line_manager_id"`
}

// AttachmentAddedPayload payload.
type AttachmentAddedPayload struct {
	AttachmentID string `json:"attachment_id"`
	FileName     string `json:"file_name"`
}
