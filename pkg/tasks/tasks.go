// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ExtractionTask represents a queued text extraction for one document.
// The job row identified by JobID is the source of truth; the message only points at it.
type ExtractionTask struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
}
