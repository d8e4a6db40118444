package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lmeyer/audioscribe/pkg/log"
)

// Executor performs the actual transcription (and optional
// translation) work for one job. It is called from a worker goroutine.
type Executor func(ctx context.Context, job *TranscriptionJob) error

// retainedJobs bounds how many finished jobs stay queryable before the
// oldest are evicted.
const retainedJobs = 1000

// Queue schedules chapter transcription work across a fixed worker
// pool. A dedupe key identifies the (book, chapter, language) unit of
// work: enqueueing while a job for the same key is still pending or
// running hands back that job instead of queueing the chapter twice.
//
// When built over a Store the queue reloads persisted jobs on
// construction. Jobs recorded as running belonged to a previous
// process, so they restart as pending.
type Queue struct {
	workerCount int
	store       Store

	mu       sync.RWMutex
	jobs     map[string]*TranscriptionJob
	inflight map[string]string // dedupe key -> live job ID
	started  bool
	workCh   chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(workerCount int, store Store) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &Queue{
		workerCount: workerCount,
		store:       store,
		jobs:        make(map[string]*TranscriptionJob),
		inflight:    make(map[string]string),
		workCh:      make(chan string, 1024),
		stopCh:      make(chan struct{}),
	}
	q.restore(context.Background())
	return q
}

// Enqueue registers a job, or returns the live job already covering
// the same dedupe key. The second return value reports whether a new
// job was created.
func (q *Queue) Enqueue(req EnqueueRequest) (*TranscriptionJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.inflight[req.DedupeKey]; ok {
		if live, exists := q.jobs[id]; exists {
			ret := snapshotJob(live)
			q.mu.Unlock()
			return ret, false
		}
		// Stale mapping left by an evicted job.
		delete(q.inflight, req.DedupeKey)
	}

	job := &TranscriptionJob{
		ID:        uuid.NewString(),
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[job.ID] = job
	if req.DedupeKey != "" {
		q.inflight[req.DedupeKey] = job.ID
	}
	started := q.started
	ret := snapshotJob(job)
	q.mu.Unlock()

	q.persist(ret)
	if started {
		q.dispatch(job.ID)
	}
	return ret, true
}

func (q *Queue) Get(id string) (*TranscriptionJob, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return snapshotJob(job), true
}

func (q *Queue) List() []*TranscriptionJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*TranscriptionJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, snapshotJob(job))
	}
	return ret
}

// Start launches the worker pool and feeds it every job that was
// pending before the pool existed. Calling Start twice is a no-op.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	backlog := make([]string, 0)
	for id, job := range q.jobs {
		if job.Status == StatusPending {
			backlog = append(backlog, id)
		}
	}
	q.mu.Unlock()

	for _, id := range backlog {
		q.dispatch(id)
	}

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.workCh:
			job, ok := q.claim(id)
			if !ok {
				continue
			}
			q.finish(id, exec(context.Background(), job))
		}
	}
}

// dispatch hands a pending job ID to the pool without ever blocking
// the caller; a full channel falls back to a goroutine.
func (q *Queue) dispatch(id string) {
	select {
	case q.workCh <- id:
	default:
		go func() { q.workCh <- id }()
	}
}

// claim transitions a job from pending to running. It returns false
// when the job was evicted or already picked up by another worker.
func (q *Queue) claim(id string) (*TranscriptionJob, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	ret := snapshotJob(job)
	q.mu.Unlock()

	q.persist(ret)
	return ret, true
}

// finish records the executor's outcome, frees the dedupe key so the
// chapter can be re-queued, and evicts the oldest finished jobs past
// the retention bound.
func (q *Queue) finish(id string, execErr error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	if execErr != nil {
		job.Status = StatusFailed
		job.Error = execErr.Error()
	} else {
		job.Status = StatusSuccess
		job.Error = ""
	}
	job.UpdatedAt = time.Now()
	q.releaseKeyLocked(job)
	evicted := q.evictFinishedLocked()
	ret := snapshotJob(job)
	q.mu.Unlock()

	q.persist(ret)
	q.forget(evicted)
}

func (q *Queue) releaseKeyLocked(job *TranscriptionJob) {
	if job.DedupeKey == "" {
		return
	}
	if id, ok := q.inflight[job.DedupeKey]; ok && id == job.ID {
		delete(q.inflight, job.DedupeKey)
	}
}

// evictFinishedLocked drops the oldest terminal jobs until the map
// fits the retention bound again. Pending and running jobs are never
// evicted.
func (q *Queue) evictFinishedLocked() []string {
	excess := len(q.jobs) - retainedJobs
	if excess <= 0 {
		return nil
	}

	finished := make([]*TranscriptionJob, 0, excess)
	for _, job := range q.jobs {
		if job.Status == StatusSuccess || job.Status == StatusFailed {
			finished = append(finished, job)
		}
	}
	slices.SortFunc(finished, func(a, b *TranscriptionJob) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if excess > len(finished) {
		excess = len(finished)
	}

	evicted := make([]string, 0, excess)
	for _, job := range finished[:excess] {
		q.releaseKeyLocked(job)
		delete(q.jobs, job.ID)
		evicted = append(evicted, job.ID)
	}
	return evicted
}

// restore reloads persisted jobs. Running jobs restart as pending;
// their dedupe keys stay claimed so a duplicate cannot slip in before
// the pool picks them back up.
func (q *Queue) restore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	requeued := make([]*TranscriptionJob, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := snapshotJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			requeued = append(requeued, snapshotJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.inflight[job.DedupeKey] = job.ID
		}
	}
	q.mu.Unlock()

	for _, job := range requeued {
		q.persist(job)
	}
}

func (q *Queue) persist(job *TranscriptionJob) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (q *Queue) forget(ids []string) {
	if q.store == nil {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete evicted job %s from store: %v", id, err)
		}
	}
}

func snapshotJob(job *TranscriptionJob) *TranscriptionJob {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
