package models

import (
	"time"

	"github.com/google/uuid"
)

// Note is one uploaded subject-notes PDF. At most one note per subject is
// retained per device; uploading another for the same subject replaces it.
type Note struct {
	ID            uuid.UUID `json:"id"`
	DeviceID      uuid.UUID `json:"device_id"`
	Subject       Subject   `json:"subject"`
	Filename      string    `json:"filename"`
	FilePath      string    `json:"-"`
	Status        string    `json:"status"` // "pending" | "processing" | "completed" | "failed"
	ExtractedText *string   `json:"extracted_text,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}
