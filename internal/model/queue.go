package model

import "time"

// QueueStatus indicates where a queue entry is in the pipeline.
type QueueStatus string

// Queue status constants.
const (
	StatusPending   QueueStatus = "pending"
	StatusProcessed QueueStatus = "processed"
	StatusError     QueueStatus = "error"
)

// QueueEntry is one product awaiting, undergoing, or done with
// classification. There is at most one entry per external product id.
type QueueEntry struct {
	CreatedAt    time.Time
	ProcessedAt  *time.Time
	ProductID    string
	Title        string
	Description  string
	Status       QueueStatus
	ErrorMessage string
	Assigned     []AssignedCategory
	Confidences  []float64
	ID           int64
	RetryCount   int
	Applied      bool
}

// AssignedCategory is a single model-assigned collection with its
// confidence score.
type AssignedCategory struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
}
