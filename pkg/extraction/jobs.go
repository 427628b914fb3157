package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/common/models"
	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/observability/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrJobNotFinished = errors.New("dataset job has not completed")

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

type JobRecord struct {
	ID             uuid.UUID      `gorm:"primaryKey;column:id"`
	DefinitionHash string         `gorm:"column:definition_hash;index"`
	Source         string         `gorm:"column:source"`
	Request        datatypes.JSON `gorm:"column:request"`
	Columns        datatypes.JSON `gorm:"column:columns"`
	Status         string         `gorm:"column:status"`
	RowCount       int            `gorm:"column:row_count"`
	Result         datatypes.JSON `gorm:"column:result"`
	ErrorMessage   string         `gorm:"column:error_message"`
	RequestedBy    string         `gorm:"column:requested_by"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	StartedAt      *time.Time     `gorm:"column:started_at"`
	CompletedAt    *time.Time     `gorm:"column:completed_at"`
}

func (JobRecord) TableName() string {
	return "dataset_jobs"
}

type JobStore interface {
	Create(ctx context.Context, job *JobRecord) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	Get(ctx context.Context, id uuid.UUID) (*JobRecord, error)
	List(ctx context.Context, limit int) ([]JobRecord, error)
}

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&JobRecord{})
}

func (r *JobRepository) Create(ctx context.Context, job *JobRecord) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&JobRecord{}).Where("id = ?", id).Updates(updates).Error
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*JobRecord, error) {
	var job JobRecord
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) List(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []JobRecord
	if err := r.db.WithContext(ctx).Omit("result").Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func jobToDomain(job *JobRecord) models.DatasetJob {
	var columns []string
	if len(job.Columns) > 0 {
		_ = json.Unmarshal(job.Columns, &columns)
	}
	return models.DatasetJob{
		ID:             job.ID,
		DefinitionHash: job.DefinitionHash,
		Source:         job.Source,
		Status:         job.Status,
		Columns:        columns,
		RowCount:       job.RowCount,
		ErrorMessage:   job.ErrorMessage,
		RequestedBy:    job.RequestedBy,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
}

// Runner executes dataset jobs in the background with at most maxWorkers
// generations in flight.
type Runner struct {
	store   JobStore
	service *Service
	workers chan struct{}
	wg      sync.WaitGroup
}

func NewRunner(store JobStore, svc *Service, maxWorkers int) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Runner{
		store:   store,
		service: svc,
		workers: make(chan struct{}, maxWorkers),
	}
}

// Enqueue validates the definition synchronously, records a queued job and
// starts it.
func (r *Runner) Enqueue(ctx context.Context, req models.DatasetRequest) (models.DatasetJob, error) {
	job, err := r.create(ctx, req)
	if err != nil {
		return models.DatasetJob{}, err
	}

	r.wg.Add(1)
	go r.run(job.ID, req)

	return jobToDomain(job), nil
}

// Execute records a job and runs it before returning. The returned error is
// the generation error, if any; the job row records it as well.
func (r *Runner) Execute(ctx context.Context, req models.DatasetRequest) (models.DatasetJob, error) {
	job, err := r.create(ctx, req)
	if err != nil {
		return models.DatasetJob{}, err
	}
	genErr := r.execute(ctx, job.ID, req)
	done, err := r.Get(ctx, job.ID.String())
	if err != nil {
		return jobToDomain(job), errors.Join(genErr, err)
	}
	return done, genErr
}

// HandleEvent runs dataset.requested events as recorded jobs so their output
// can be fetched later.
func (r *Runner) HandleEvent(ctx context.Context, event models.Event) error {
	return handleRequest(ctx, event, func(ctx context.Context, req models.DatasetRequest) error {
		job, err := r.Execute(ctx, req)
		if err == nil {
			logger.Log.WithFields(map[string]interface{}{
				"event_id": event.ID,
				"job_id":   job.ID,
				"rows":     job.RowCount,
			}).Info("Dataset request completed")
		}
		return err
	})
}

func (r *Runner) create(ctx context.Context, req models.DatasetRequest) (*JobRecord, error) {
	ds, err := r.service.Resolve(req.Definition)
	if err != nil {
		return nil, err
	}
	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	columnsJSON, _ := json.Marshal(columnNames(ds))

	job := &JobRecord{
		ID:             uuid.New(),
		DefinitionHash: ds.Hash(),
		Source:         req.Source,
		Request:        datatypes.JSON(requestJSON),
		Columns:        datatypes.JSON(columnsJSON),
		Status:         JobStatusQueued,
		RequestedBy:    req.RequestedBy,
		CreatedAt:      time.Now().UTC(),
	}
	if job.Source == "" {
		job.Source = models.SourceDummy
	}
	if err := r.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (r *Runner) Get(ctx context.Context, id string) (models.DatasetJob, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return models.DatasetJob{}, ErrNotFound
	}
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return models.DatasetJob{}, err
	}
	return jobToDomain(job), nil
}

// Result returns the dataset produced by a completed job.
func (r *Runner) Result(ctx context.Context, id string) (*engine.Result, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusCompleted {
		return nil, fmt.Errorf("job %s is %s: %w", job.ID, job.Status, ErrJobNotFinished)
	}
	var result engine.Result
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("decoding result of job %s: %w", job.ID, err)
	}
	if err := result.RestoreTypes(); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *Runner) List(ctx context.Context, limit int) ([]models.DatasetJob, error) {
	jobs, err := r.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := make([]models.DatasetJob, 0, len(jobs))
	for i := range jobs {
		result = append(result, jobToDomain(&jobs[i]))
	}
	return result, nil
}

// Wait blocks until every enqueued job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(jobID uuid.UUID, req models.DatasetRequest) {
	defer r.wg.Done()
	_ = r.execute(context.Background(), jobID, req)
}

func (r *Runner) execute(ctx context.Context, jobID uuid.UUID, req models.DatasetRequest) error {
	r.workers <- struct{}{}
	defer func() { <-r.workers }()

	metrics.JobStarted()
	defer metrics.JobFinished()

	started := time.Now().UTC()
	if err := r.store.Update(ctx, jobID, map[string]interface{}{
		"status":     JobStatusRunning,
		"started_at": started,
	}); err != nil {
		logger.Log.WithError(err).WithField("job_id", jobID).Warn("Failed to mark dataset job running")
	}

	gen, err := r.service.Generate(ctx, req)
	if err != nil {
		r.fail(ctx, jobID, err)
		return err
	}
	resultJSON, err := json.Marshal(gen.Result)
	if err != nil {
		r.fail(ctx, jobID, err)
		return err
	}

	completed := time.Now().UTC()
	if err := r.store.Update(ctx, jobID, map[string]interface{}{
		"status":        JobStatusCompleted,
		"row_count":     gen.Summary.RowCount,
		"result":        datatypes.JSON(resultJSON),
		"completed_at":  completed,
		"error_message": "",
	}); err != nil {
		logger.Log.WithError(err).WithField("job_id", jobID).Error("Failed to record dataset job completion")
		return err
	}

	r.service.publish(ctx, models.EventDatasetJobCompleted, map[string]interface{}{
		"job_id":          jobID.String(),
		"definition_hash": gen.Summary.DefinitionHash,
		"source":          gen.Summary.Source,
		"row_count":       gen.Summary.RowCount,
	})
	return nil
}

func (r *Runner) fail(ctx context.Context, jobID uuid.UUID, err error) {
	logger.Log.WithError(err).WithField("job_id", jobID).Error("Dataset job failed")
	completed := time.Now().UTC()
	if uerr := r.store.Update(ctx, jobID, map[string]interface{}{
		"status":        JobStatusFailed,
		"error_message": err.Error(),
		"completed_at":  completed,
	}); uerr != nil {
		logger.Log.WithError(uerr).WithField("job_id", jobID).Error("Failed to record dataset job failure")
	}
}
