package state

import "time"

// Status is an asset's position in the processing lifecycle.
type Status string

const (
	StatusPending   Status = "pending"   // Seen, nothing produced yet.
	StatusProcessed Status = "processed" // Every artifact exists on disk.
	StatusUploaded  Status = "uploaded"  // Every artifact was delivered.
	StatusFailed    Status = "failed"    // Last attempt failed; see LastError.
)

// AssetRecord is the persisted status of one source file.
type AssetRecord struct {
	Path      string `gorm:"primaryKey"`
	Title     string
	Key       string `gorm:"column:title_key;index"` // Normalized title.
	Stem      string `gorm:"index"`                  // Artifact stem claimed by this asset.
	Status    Status `gorm:"index;not null;default:pending"`
	Channel   string
	Parts     int
	LastError string
	RunID     string
	UpdatedAt time.Time
}

// ArtifactRecord is one produced file of an asset and its delivery state.
type ArtifactRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SourcePath string `gorm:"uniqueIndex:idx_artifact_part;not null"`
	PartIndex  int    `gorm:"uniqueIndex:idx_artifact_part"`
	Path       string `gorm:"not null"`
	SizeBytes  int64
	Channel    string
	Delivered  bool
	MessageID  int
	UpdatedAt  time.Time
}

// RemoteCaption is one caption seen in the channel history. The table is
// rebuilt on every reconcile and never trusted on its own.
type RemoteCaption struct {
	Key       string `gorm:"column:title_key;primaryKey"`
	Caption   string
	MessageID int
	SeenAt    time.Time
}

// RunRecord summarizes one invocation.
type RunRecord struct {
	ID         string `gorm:"primaryKey"`
	Command    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Total      int
	Succeeded  int
	Skipped    int
	Failed     int
}
