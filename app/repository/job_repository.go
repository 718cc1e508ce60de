package repository

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/MediaDash/app/models"
)

const maxJobPageSize = 100

// jobRepository implements the JobRepository interface
type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new media job repository instance
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

// CreateSubmitting inserts job unless a row with the same (workspace,
// idempotency key) exists. It reports whether a new row was written and
// returns the stored row either way.
func (r *jobRepository) CreateSubmitting(job *models.Job) (bool, *models.Job, error) {
	job.ProcessingStatus = models.JobStatusSubmitting
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "workspace_id"},
			{Name: "idempotency_key"},
		},
		DoNothing: true,
	}).Create(job)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Job
	if err := r.db.Where("workspace_id = ? AND idempotency_key = ?", job.WorkspaceID, job.IdempotencyKey).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *jobRepository) GetByID(id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) GetByIDForWorkspace(id, workspaceID string) (*models.Job, error) {
	var job models.Job
	if err := r.db.Where("id = ? AND workspace_id = ?", id, workspaceID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) GetByIdempotencyKey(workspaceID, key string) (*models.Job, error) {
	var job models.Job
	if err := r.db.Where("workspace_id = ? AND idempotency_key = ?", workspaceID, key).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) GetByExternalID(externalJobID string) (*models.Job, error) {
	var job models.Job
	if err := r.db.Where("external_job_id = ?", externalJobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns a page of jobs, newest first, plus the total match count.
func (r *jobRepository) List(filter JobFilter) ([]models.Job, int64, error) {
	query := r.db.Model(&models.Job{}).Where("workspace_id = ?", filter.WorkspaceID)
	if filter.Status != "" {
		query = query.Where("processing_status = ?", filter.Status)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxJobPageSize {
		limit = maxJobPageSize
	}
	var jobs []models.Job
	err := query.Omit("request_payload").
		Order("created_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&jobs).Error
	return jobs, total, err
}

func (r *jobRepository) CountActiveByWorkspace(workspaceID string) (int64, error) {
	var n int64
	err := r.db.Model(&models.Job{}).
		Where("workspace_id = ? AND processing_status IN ?", workspaceID, models.JobStatusesBefore(models.JobStatusCompleted)).
		Count(&n).Error
	return n, err
}

// MarkProcessing records upstream acceptance. Returns false when the job had
// already moved past submitting; the external id is still attached if missing.
func (r *jobRepository) MarkProcessing(id, externalJobID, message string, response datatypes.JSON) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"processing_status": models.JobStatusProcessing,
		"external_job_id":   externalJobID,
		"message":           message,
		"submitted_at":      &now,
	}
	if len(response) > 0 {
		updates["response_payload"] = response
	}
	tx := r.db.Model(&models.Job{}).
		Where("id = ? AND processing_status IN ?", id, models.JobStatusesBefore(models.JobStatusProcessing)).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}
	err := r.db.Model(&models.Job{}).
		Where("id = ? AND external_job_id IS NULL", id).
		Update("external_job_id", externalJobID).Error
	return false, err
}

// MarkTerminal moves a non-terminal job to a final state. Returns false when
// the job is unknown or already final.
func (r *jobRepository) MarkTerminal(id string, update JobTerminalUpdate) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"processing_status": update.Status,
		"status_code":       update.StatusCode,
		"message":           update.Message,
		"last_error":        update.LastError,
		"run_time":          update.RunTime,
		"queue_time":        update.QueueTime,
		"total_time":        update.TotalTime,
		"completed_at":      &now,
	}
	if len(update.Response) > 0 {
		updates["response_payload"] = update.Response
	}
	tx := r.db.Model(&models.Job{}).
		Where("id = ? AND processing_status IN ?", id, models.JobStatusesBefore(update.Status)).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

// ReopenSubmission moves a job whose submission was rejected back to
// submitting. Only errored jobs with failedMessage and no external id qualify;
// returns false when another request reopened it first.
func (r *jobRepository) ReopenSubmission(id, failedMessage string) (bool, error) {
	tx := r.db.Model(&models.Job{}).
		Where("id = ? AND processing_status = ? AND external_job_id IS NULL AND message = ?",
			id, models.JobStatusError, failedMessage).
		Updates(map[string]interface{}{
			"processing_status": models.JobStatusSubmitting,
			"status_code":       0,
			"message":           "",
			"last_error":        "",
			"completed_at":      nil,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *jobRepository) RecordWebhookDelivery(id string) error {
	return r.db.Model(&models.Job{}).
		Where("id = ?", id).
		UpdateColumn("webhook_count", gorm.Expr("webhook_count + ?", 1)).Error
}

// ListStale returns jobs sitting in status since before updatedBefore, oldest first.
func (r *jobRepository) ListStale(status string, updatedBefore time.Time, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = maxJobPageSize
	}
	var jobs []models.Job
	err := r.db.Where("processing_status = ? AND updated_at < ?", status, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
