package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/testutil"
)

func TestJobRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	job := &model.GradingJob{
		Name:     "History essays week 12",
		Provider: "openai",
		Prompt:   "Grade this essay out of 100.",
		Status:   model.StatusPending,
	}

	err := repo.Create(job)
	require.NoError(t, err)
	assert.NotZero(t, job.ID)
}

func TestJobRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	created := testutil.TestJob(t, db)

	found, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, model.StatusPending, found.Status)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	_, err := repo.GetByID(99999)
	assert.Error(t, err)
}

func TestJobRepository_GetPendingByBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	batch := testutil.TestBatch(t, db)

	first := testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID))
	testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusCompleted))
	second := testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID))
	testutil.TestJob(t, db) // 无批次，不应出现

	jobs, err := repo.GetPendingByBatch(batch.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// 创建序
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)
}

func TestJobRepository_CountByBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	batch := testutil.TestBatch(t, db)

	testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusCompleted))
	testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusCompleted))
	testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusFailed))
	testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusProcessing))
	testutil.TestJob(t, db, testutil.WithJobBatch(batch.ID))

	total, completed, failed, processing, err := repo.CountByBatch(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, int64(2), completed)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, int64(1), processing)
}
