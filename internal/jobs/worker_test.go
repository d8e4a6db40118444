package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)

	var seen JobPayload
	q.Start(func(_ context.Context, job *TranscriptionJob) error {
		seen = job.Payload
		return nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: DedupeKey("book1", 2, "fr"),
		Payload:   JobPayload{BookID: "book1", MediaPath: "/books/b.m4b", Chapter: 2, Language: "fr", Force: true},
	})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		if !ok || got == nil {
			return false
		}
		return got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "book1", seen.BookID)
	assert.Equal(t, 2, seen.Chapter)
	assert.Equal(t, "fr", seen.Language)
	assert.True(t, seen.Force)
}

func TestQueue_Worker_RecordsError(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *TranscriptionJob) error { return assert.AnError })
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "err-key"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusFailed && got.Error != ""
	}, time.Second, 10*time.Millisecond)
}
