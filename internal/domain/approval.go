package domain

import "time"

// DecisionStatus is the outcome recorded on an approval row.
type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
)

// Valid reports whether the decision is a known outcome.
func (d DecisionStatus) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Approval records one decision event. A stage may hold several rows when a decision is edited.
type Approval struct {
	ID              string
	ChangeRequestID string
	Stage           Stage
	ApproverID      string
	ApproverRole    Role
	Status          DecisionStatus
	SignatureRef    string
	Comments        string
	RiskAccepted    *bool
	IsEdit          bool
	ApprovedAt      time.Time
}
