package jobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glance/internal/models"
)

func newJob(id string, widths ...int) models.Job {
	return models.Job{
		ID: id,
		Request: models.RenderRequest{
			DocumentID:     "doc1",
			ContentHash:    "abc",
			Widths:         widths,
			MimeType:       "image/png",
			SourceLocation: "uploads/doc1.png",
		},
	}
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.CreateJob(ctx, newJob("job1", 96, 240, 480)))

	statuses, err := store.GetStatuses(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, st := range statuses {
		assert.Equal(t, models.StatusQueued, st.Status)
		assert.Equal(t, "doc1", st.DocumentID)
	}

	require.NoError(t, store.MarkProcessing(ctx, "job1"))
	statuses, err = store.GetStatuses(ctx, "job1")
	require.NoError(t, err)
	for _, st := range statuses {
		assert.Equal(t, models.StatusProcessing, st.Status)
	}

	require.NoError(t, store.MarkVariant(ctx, "job1", 240, models.StatusSuccess, true, ""))
	require.NoError(t, store.MarkVariant(ctx, "job1", 480, models.StatusFailed, false, "PDF_RENDER_FAILURE"))

	statuses, err = store.GetStatuses(ctx, "job1")
	require.NoError(t, err)

	byWidth := map[int]models.JobStatus{}
	for _, st := range statuses {
		byWidth[st.Width] = st
	}
	assert.Equal(t, models.StatusProcessing, byWidth[96].Status)
	assert.Equal(t, models.StatusSuccess, byWidth[240].Status)
	assert.True(t, byWidth[240].Skipped)
	assert.Equal(t, models.StatusFailed, byWidth[480].Status)
	assert.Equal(t, "PDF_RENDER_FAILURE", byWidth[480].ErrorCode)

	assert.False(t, models.Complete(statuses))
	require.NoError(t, store.MarkVariant(ctx, "job1", 96, models.StatusSuccess, false, ""))
	statuses, _ = store.GetStatuses(ctx, "job1")
	assert.True(t, models.Complete(statuses))
}

func TestMemoryUnknownJob(t *testing.T) {
	store := NewMemory()
	_, err := store.GetStatuses(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryDuplicateCreateIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.CreateJob(ctx, newJob("job1", 96)))
	require.NoError(t, store.MarkVariant(ctx, "job1", 96, models.StatusSuccess, false, ""))
	require.NoError(t, store.CreateJob(ctx, newJob("job1", 96)))

	statuses, err := store.GetStatuses(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, statuses[0].Status)
}

func TestMemoryNormalizesWidths(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.CreateJob(ctx, newJob("job1", 480, 96, 480, 240)))

	statuses, err := store.GetStatuses(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, 96, statuses[0].Width)
	assert.Equal(t, 240, statuses[1].Width)
	assert.Equal(t, 480, statuses[2].Width)
}
