package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/pkg/models"
)

var ErrJobNotFound = errors.New("job not found")

// JobTracker keeps BatchJob progress records in Redis. Records expire after
// the configured TTL; a finished job stays readable until then. Cancellation
// is a flag on the stored record so any process holding the job id can
// request it.
type JobTracker struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewJobTracker(redisClient *redis.Client, cfg *config.JobsConfig, logger *logrus.Logger) *JobTracker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JobTracker{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// CreateJob registers a queued job for a batch of the given size.
func (t *JobTracker) CreateJob(ctx context.Context, totalQuotes int) (*models.BatchJob, error) {
	now := time.Now()
	job := &models.BatchJob{
		ID:          uuid.New(),
		Status:      models.JobStatusQueued,
		TotalQuotes: totalQuotes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := t.save(ctx, job); err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"job_id":       job.ID,
		"total_quotes": totalQuotes,
	}).Info("Batch job created")

	return job, nil
}

// GetJob loads a job record. Expired or unknown ids yield ErrJobNotFound.
func (t *JobTracker) GetJob(ctx context.Context, jobID uuid.UUID) (*models.BatchJob, error) {
	data, err := t.redis.Get(ctx, jobKey(jobID)).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job models.BatchJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// UpdateProgress writes the batch counters onto the stored record and returns
// the fresh record. Reading before writing preserves a cancel flag set by
// another process since the last update.
func (t *JobTracker) UpdateProgress(ctx context.Context, jobID uuid.UUID, processed, matchesCreated int, batchErrors []models.BatchError) (*models.BatchJob, error) {
	job, err := t.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatusProcessing
	job.ProcessedQuotes = processed
	job.MatchesCreated = matchesCreated
	job.Errors = batchErrors
	job.UpdatedAt = time.Now()

	if err := t.save(ctx, job); err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"processed": processed,
		"progress":  job.Progress(),
	}).Debug("Batch job progress updated")

	return job, nil
}

// SetStatus moves a job to the given status, keeping counters intact.
func (t *JobTracker) SetStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus) (*models.BatchJob, error) {
	job, err := t.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.Status = status
	job.UpdatedAt = time.Now()

	if err := t.save(ctx, job); err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"status": status,
	}).Info("Batch job status changed")

	return job, nil
}

// RequestCancel flags a queued or processing job for cancellation. The
// orchestrator honors the flag between quotes; jobs already in a terminal
// state are returned unchanged.
func (t *JobTracker) RequestCancel(ctx context.Context, jobID uuid.UUID) (*models.BatchJob, error) {
	job, err := t.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusProcessing {
		return job, nil
	}

	job.CancelRequested = true
	job.UpdatedAt = time.Now()

	if err := t.save(ctx, job); err != nil {
		return nil, err
	}

	t.logger.WithField("job_id", job.ID).Info("Batch job cancellation requested")
	return job, nil
}

func (t *JobTracker) save(ctx context.Context, job *models.BatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := t.redis.Set(ctx, jobKey(job.ID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func jobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("batch_job:%s", jobID.String())
}
