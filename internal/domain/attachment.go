package domain

import "time"

// Attachment references a file held by the external storage collaborator.
type Attachment struct {
	ID              string
	ChangeRequestID string
	StorageKey      string
	FileName        string
	MimeType        string
	SizeBytes       int64
	UploadedBy      string
	CreatedAt       time.Time
}
