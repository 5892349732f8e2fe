package types

import "time"

// ConversionJobStatus is the lifecycle of a format-conversion job.
type ConversionJobStatus string

const (
	ConversionJobPending ConversionJobStatus = "PENDING"
	ConversionJobRunning ConversionJobStatus = "RUNNING"
	ConversionJobDone    ConversionJobStatus = "DONE"
	ConversionJobError   ConversionJobStatus = "ERROR"
)

// ConversionJob is a durable queue row driving the image conversion worker
// pool (spec.md §4.2, §9 "Conversion as a job queue, not ad-hoc background
// tasks"). ImageID is unique and serves as the idempotency key: re-running
// a completed job for the same image is a no-op.
type ConversionJob struct {
	ID             string `gorm:"primaryKey"`
	ImageID        string `gorm:"uniqueIndex"` // idempotency key
	SourcePath     string
	SourceFormat   ImageFormat
	DestPath       string
	Status         ConversionJobStatus
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ConversionJob) TableName() string { return "conversion_jobs" }
