package models

import (
	"time"

	"gorm.io/datatypes"
)

// Media job processing states.
const (
	JobStatusSubmitting = "submitting"
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusError      = "error"
)

// Media operations proxied to the toolkit.
const (
	OperationVideoCut         = "video_cut"
	OperationVideoSplit       = "video_split"
	OperationVideoConcatenate = "video_concatenate"
	OperationAudioConcatenate = "audio_concatenate"
	OperationImageToVideo     = "image_to_video"
	OperationVideoCaption     = "video_caption"
)

// Job tracks one asynchronous media-processing request. Rows are written in
// the submitting state before the toolkit is called and are keyed by
// (workspace, idempotency key) so retries never create a second upstream job.
type Job struct {
	ID               string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	WorkspaceID      string         `gorm:"type:varchar(64);not null;index:ux_media_jobs_workspace_key,unique,priority:1" json:"workspace_id"`
	IdempotencyKey   string         `gorm:"type:varchar(128);not null;index:ux_media_jobs_workspace_key,unique,priority:2" json:"idempotency_key"`
	Operation        string         `gorm:"type:varchar(32);not null;index" json:"operation"`
	ExternalJobID    *string        `gorm:"type:varchar(191);uniqueIndex:ux_media_jobs_external" json:"external_job_id,omitempty"`
	CustomID         string         `gorm:"type:varchar(191);default:''" json:"custom_id"`
	ProcessingStatus string         `gorm:"type:varchar(16);not null;default:'submitting';index" json:"processing_status"`
	RequestPayload   datatypes.JSON `json:"request_payload,omitempty"`
	ResponsePayload  datatypes.JSON `json:"response_payload,omitempty"`
	StatusCode       int            `gorm:"default:0" json:"status_code"`
	Message          string         `gorm:"type:text" json:"message"`
	LastError        string         `gorm:"type:text" json:"last_error,omitempty"`
	WebhookCount     int            `gorm:"default:0" json:"webhook_count"`
	RunTime          float64        `gorm:"default:0" json:"run_time"`
	QueueTime        float64        `gorm:"default:0" json:"queue_time"`
	TotalTime        float64        `gorm:"default:0" json:"total_time"`
	SubmittedAt      *time.Time     `json:"submitted_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Job) TableName() string { return "media_jobs" }

// jobStatusRank orders states; a job only ever moves to a higher rank.
var jobStatusRank = map[string]int{
	JobStatusSubmitting: 0,
	JobStatusPending:    1,
	JobStatusProcessing: 2,
	JobStatusCompleted:  3,
	JobStatusFailed:     3,
	JobStatusError:      3,
}

// IsTerminalJobStatus reports whether status is final.
func IsTerminalJobStatus(status string) bool {
	return jobStatusRank[status] == 3
}

// CanTransitionJobStatus reports whether a job in from may move to to.
func CanTransitionJobStatus(from, to string) bool {
	fr, ok := jobStatusRank[from]
	if !ok {
		return false
	}
	tr, ok := jobStatusRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// JobStatusesBefore lists every status that may transition to to.
func JobStatusesBefore(to string) []string {
	var out []string
	for _, s := range []string{JobStatusSubmitting, JobStatusPending, JobStatusProcessing} {
		if CanTransitionJobStatus(s, to) {
			out = append(out, s)
		}
	}
	return out
}

// IsActive reports whether the job still occupies a workspace slot.
func (j *Job) IsActive() bool {
	return !IsTerminalJobStatus(j.ProcessingStatus)
}
