package delivery

import "github.com/google/uuid"

// Outcome is the terminal state of an upload task.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"   // Retry budget exhausted.
	OutcomeFatal     Outcome = "fatal"    // Credential/permission failure.
	OutcomeRejected  Outcome = "rejected" // Over the size cap; never sent.
)

// Media is the video metadata attached to user-channel uploads.
type Media struct {
	Duration float64
	Width    int
	Height   int
}

// Task is one artifact's delivery through one channel, including retries.
// It lives only until its outcome is recorded.
type Task struct {
	ID           string
	ArtifactPath string
	SizeBytes    int64
	Caption      string
	Channel      Kind
	Media        Media
	Attempts     int
	Outcome      Outcome
	MessageID    int
}

// NewTask creates a pending task for an artifact.
func NewTask(path, caption string, media Media) *Task {
	return &Task{
		ID:           uuid.New().String(),
		ArtifactPath: path,
		Caption:      caption,
		Media:        media,
		Outcome:      OutcomePending,
	}
}
