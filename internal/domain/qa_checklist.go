package domain

import "time"

// QAChecklistItem is one line of the QA officer's checklist.
type QAChecklistItem struct {
	CheckItem string `json:"check_item"`
	Checked   bool   `json:"checked"`
	Remarks   string `json:"remarks,omitempty"`
}

// QAChecklist is recorded when the QA officer validates a change.
type QAChecklist struct {
	ID              string
	ChangeRequestID string
	QAOfficerID     string
	Items           []QAChecklistItem
	Validated       bool
	Notes           string
	CreatedAt       time.Time
}

// AllChecked reports whether every item is ticked. An empty list is not considered checked.
func (q *QAChecklist) AllChecked() bool {
	if len(q.Items) == 0 {
		return false
	}
	for _, item := range q.Items {
		if !item.Checked {
			return false
		}
	}
	return true
}
