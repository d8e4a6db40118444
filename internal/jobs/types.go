package jobs

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload describes one unit of transcription work. Language is
// empty for transcript-only jobs; when set, the worker translates the
// chapter after transcribing it.
type JobPayload struct {
	BookID    string `json:"book_id"`
	MediaPath string `json:"media_path"`
	Chapter   int    `json:"chapter"`
	Language  string `json:"language,omitempty"`
	Force     bool   `json:"force"`
}

type TranscriptionJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DedupeKey collapses duplicate work for the same chapter and target
// language while a job is still pending or running.
func DedupeKey(bookID string, chapter int, language string) string {
	return fmt.Sprintf("%s|%d|%s", bookID, chapter, language)
}
