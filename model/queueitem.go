package model

import "time"

// QueueItem is one persisted, retryable delivery attempt. Items are owned
// exclusively by the submission queue: they are created when a delivery
// fails, survive process restarts, and are deleted on successful delivery or
// explicit removal.
type QueueItem struct {
	ID         string       `json:"id"`
	Payload    FencePayload `json:"payload"`
	EnqueuedAt time.Time    `json:"enqueuedAt"`
	Attempts   int          `json:"attempts"`
	LastError  string       `json:"lastError"`
}
