package extraction

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studydata/pkg/common/models"
	"gorm.io/datatypes"
)

type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]JobRecord
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[uuid.UUID]JobRecord)}
}

func (s *memoryJobStore) Create(ctx context.Context, job *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memoryJobStore) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			job.Status = value.(string)
		case "row_count":
			job.RowCount = value.(int)
		case "result":
			job.Result = value.(datatypes.JSON)
		case "error_message":
			job.ErrorMessage = value.(string)
		case "started_at":
			ts := value.(time.Time)
			job.StartedAt = &ts
		case "completed_at":
			ts := value.(time.Time)
			job.CompletedAt = &ts
		}
	}
	s.jobs[id] = job
	return nil
}

func (s *memoryJobStore) Get(ctx context.Context, id uuid.UUID) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *memoryJobStore) List(ctx context.Context, limit int) ([]JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]JobRecord, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func TestRunnerCompletesJob(t *testing.T) {
	store := newMemoryJobStore()
	runner := NewRunner(store, newTestService(), 2)

	job, err := runner.Enqueue(context.Background(), models.DatasetRequest{PopulationSize: 12, RequestedBy: "analyst"})
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, models.SourceDummy, job.Source)
	assert.Equal(t, studyColumns, job.Columns)

	runner.Wait()

	done, err := runner.Get(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, done.Status)
	assert.Equal(t, 12, done.RowCount)
	assert.Equal(t, "analyst", done.RequestedBy)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := newMemoryJobStore()
	runner := NewRunner(store, newTestService(), 1)

	// Definition is valid, the source is not configured.
	job, err := runner.Enqueue(context.Background(), models.DatasetRequest{Source: models.SourcePostgres})
	require.NoError(t, err)
	runner.Wait()

	failed, err := runner.Get(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "postgres source not configured")
}

func TestRunnerRejectsInvalidDefinition(t *testing.T) {
	runner := NewRunner(newMemoryJobStore(), newTestService(), 1)

	_, err := runner.Enqueue(context.Background(), models.DatasetRequest{Definition: "population: ["})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	jobs, err := runner.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRunnerGetUnknownJob(t *testing.T) {
	runner := NewRunner(newMemoryJobStore(), newTestService(), 1)

	_, err := runner.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = runner.Get(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunnerList(t *testing.T) {
	runner := NewRunner(newMemoryJobStore(), newTestService(), 3)
	for i := 0; i < 3; i++ {
		_, err := runner.Enqueue(context.Background(), models.DatasetRequest{Seed: uint64(i + 1)})
		require.NoError(t, err)
	}
	runner.Wait()

	jobs, err := runner.List(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, JobStatusCompleted, job.Status)
	}
}

func TestRunnerKeepsResult(t *testing.T) {
	runner := NewRunner(newMemoryJobStore(), newTestService(WithPostgres(clinicSource())), 1)

	job, err := runner.Enqueue(context.Background(), models.DatasetRequest{Source: models.SourcePostgres})
	require.NoError(t, err)
	runner.Wait()

	result, err := runner.Result(context.Background(), job.ID.String())
	require.NoError(t, err)
	require.Equal(t, 3, result.Len())

	diabetes, ok := result.Value("1", "has_diabetes")
	require.True(t, ok)
	assert.Equal(t, true, diabetes)
	dob, ok := result.Value("2", "date_of_birth")
	require.True(t, ok)
	assert.Equal(t, time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC), dob)
	_, ok = result.Value("4", "has_hypertension")
	assert.False(t, ok)
}

func TestRunnerResultOfFailedJob(t *testing.T) {
	runner := NewRunner(newMemoryJobStore(), newTestService(), 1)

	job, err := runner.Enqueue(context.Background(), models.DatasetRequest{Source: models.SourcePostgres})
	require.NoError(t, err)
	runner.Wait()

	_, err = runner.Result(context.Background(), job.ID.String())
	assert.ErrorIs(t, err, ErrJobNotFinished)

	_, err = runner.Result(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunnerExecute(t *testing.T) {
	pub := &recordingPublisher{}
	runner := NewRunner(newMemoryJobStore(), newTestService(WithPublisher(pub)), 1)

	job, err := runner.Execute(context.Background(), models.DatasetRequest{PopulationSize: 4})
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 4, job.RowCount)
	assert.Equal(t, []string{models.EventDatasetGenerated, models.EventDatasetJobCompleted}, pub.types())

	result, err := runner.Result(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Len())
}

func TestRunnerHandleEventRecordsJob(t *testing.T) {
	runner := NewRunner(newMemoryJobStore(), newTestService(), 1)

	err := runner.HandleEvent(context.Background(), models.Event{
		ID:   "evt-1",
		Type: models.EventDatasetRequested,
		Data: map[string]interface{}{"population_size": 6, "seed": 9},
	})
	require.NoError(t, err)

	jobs, err := runner.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, JobStatusCompleted, jobs[0].Status)

	result, err := runner.Result(context.Background(), jobs[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, 6, result.Len())

	// Invalid requests are acknowledged and leave no job behind.
	err = runner.HandleEvent(context.Background(), models.Event{
		Type: models.EventDatasetRequested,
		Data: map[string]interface{}{"definition": "population: ["},
	})
	require.NoError(t, err)
	jobs, err = runner.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
