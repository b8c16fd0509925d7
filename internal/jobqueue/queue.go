package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"needledrop/internal/logging"
	"needledrop/internal/services"
)

// Settings bounds one queue's retry and retention behavior.
type Settings struct {
	// Attempts is the total number of tries a job gets, first run
	// included.
	Attempts int
	// BackoffMillis is the initial retry delay; it doubles per failed
	// attempt.
	BackoffMillis int
	// KeepCompleted / KeepFailed cap how many finished jobs stay
	// inspectable before trimming.
	KeepCompleted int
	KeepFailed    int
}

func (s Settings) withDefaults() Settings {
	if s.Attempts <= 0 {
		s.Attempts = 1
	}
	if s.BackoffMillis <= 0 {
		s.BackoffMillis = 1000
	}
	if s.KeepCompleted <= 0 {
		s.KeepCompleted = 10
	}
	if s.KeepFailed <= 0 {
		s.KeepFailed = 50
	}
	return s
}

// Queue is one named, durable job queue.
//
// Redis layout under the "jobs:<name>:" prefix: a hash per job, a
// "waiting" zset scored by priority-then-arrival, a "delayed" zset scored
// by ready-at time, an "active" set, and "completed"/"failed" lists in
// finish order.
type Queue struct {
	name     string
	client   redis.Cmdable
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueue binds a queue to its Redis namespace.
func NewQueue(name string, client redis.Cmdable, settings Settings, logger *slog.Logger) (*Queue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("queue name required")
	}
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		name:     name,
		client:   client,
		settings: settings.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "queue").With(logging.String(logging.FieldQueue, name)),
		now:      time.Now,
	}, nil
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) key(part string) string {
	return "jobs:" + q.name + ":" + part
}

func (q *Queue) jobKey(id string) string {
	return q.key("job:" + id)
}

// waitingScore packs priority above a monotonically increasing arrival
// sequence so ZPopMin yields strict priority order with FIFO ties. The
// sequence occupies the low 40 bits; both halves stay inside float64's
// exact-integer range.
func (q *Queue) waitingScore(ctx context.Context, priority int) (float64, error) {
	seq, err := q.client.Incr(ctx, q.key("seq")).Result()
	if err != nil {
		return 0, err
	}
	return float64(int64(priority)<<40 + seq), nil
}

// Enqueue stores a job and makes it eligible for dequeue. Priority
// follows the package constants; zero means PriorityNormal.
func (q *Queue) Enqueue(ctx context.Context, jobName string, payload any, priority int) (*Job, error) {
	if priority <= 0 {
		priority = PriorityNormal
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "encode payload", err)
	}

	job := &Job{
		ID:          uuid.NewString(),
		Name:        jobName,
		Data:        data,
		Priority:    priority,
		State:       StateWaiting,
		MaxAttempts: q.settings.Attempts,
		CreatedAt:   q.now().UnixMilli(),
	}
	if err := q.client.HSet(ctx, q.jobKey(job.ID), job.hashFields()).Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "enqueue", "store job", err)
	}
	score, err := q.waitingScore(ctx, priority)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "enqueue", "assign arrival sequence", err)
	}
	if err := q.client.ZAdd(ctx, q.key("waiting"), redis.Z{Score: score, Member: job.ID}).Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "enqueue", "push waiting", err)
	}
	q.logger.Debug("job enqueued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("job_name", jobName),
		logging.Int("priority", priority))
	return job, nil
}

// Dequeue leases the next eligible job, or returns (nil, nil) when the
// queue is idle. ZPopMin removes the entry atomically, so each job is
// delivered to exactly one worker.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}
	popped, err := q.client.ZPopMin(ctx, q.key("waiting"), 1).Result()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "dequeue", "pop waiting", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}
	id := fmt.Sprint(popped[0].Member)

	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.State = StateActive
	job.AttemptsMade++
	job.ProcessedOn = q.now().UnixMilli()
	if err := q.client.HSet(ctx, q.jobKey(id), map[string]any{
		"state":         job.State,
		"attempts_made": job.AttemptsMade,
		"processed_on":  job.ProcessedOn,
	}).Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "dequeue", "mark active", err)
	}
	if err := q.client.SAdd(ctx, q.key("active"), id).Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "dequeue", "track active", err)
	}
	return job, nil
}

// promoteDelayed moves due jobs from the delayed zset back into waiting.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", q.now().UnixMilli()),
	}).Result()
	if err != nil {
		return services.Wrap(services.ErrTransient, "queue", "dequeue", "scan delayed", err)
	}
	for _, id := range due {
		removed, err := q.client.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return services.Wrap(services.ErrTransient, "queue", "dequeue", "promote delayed", err)
		}
		if removed == 0 {
			// Another worker promoted it first.
			continue
		}
		priority := atoi(q.client.HGet(ctx, q.jobKey(id), "priority").Val())
		if priority <= 0 {
			priority = PriorityNormal
		}
		score, err := q.waitingScore(ctx, priority)
		if err != nil {
			return services.Wrap(services.ErrTransient, "queue", "dequeue", "assign arrival sequence", err)
		}
		pipe := q.client.Pipeline()
		pipe.HSet(ctx, q.jobKey(id), "state", StateWaiting)
		pipe.ZAdd(ctx, q.key("waiting"), redis.Z{Score: score, Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return services.Wrap(services.ErrTransient, "queue", "dequeue", "promote delayed", err)
		}
	}
	return nil
}

// RequeueActive moves every job in the active set back to waiting and
// returns how many were moved. Safe only while no worker holds a lease;
// the pool runs it on startup so jobs stranded by a crash or a hard
// shutdown re-enter the state machine instead of sitting active forever.
func (q *Queue) RequeueActive(ctx context.Context) (int, error) {
	ids, err := q.client.SMembers(ctx, q.key("active")).Result()
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "queue", "requeue", "scan active", err)
	}
	moved := 0
	for _, id := range ids {
		removed, err := q.client.SRem(ctx, q.key("active"), id).Result()
		if err != nil {
			return moved, services.Wrap(services.ErrTransient, "queue", "requeue", "release lease", err)
		}
		if removed == 0 {
			continue
		}
		priority := atoi(q.client.HGet(ctx, q.jobKey(id), "priority").Val())
		if priority <= 0 {
			priority = PriorityNormal
		}
		score, err := q.waitingScore(ctx, priority)
		if err != nil {
			return moved, services.Wrap(services.ErrTransient, "queue", "requeue", "assign arrival sequence", err)
		}
		pipe := q.client.Pipeline()
		pipe.HSet(ctx, q.jobKey(id), "state", StateWaiting)
		pipe.ZAdd(ctx, q.key("waiting"), redis.Z{Score: score, Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, services.Wrap(services.ErrTransient, "queue", "requeue", "restore waiting", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.Warn("requeued stranded active jobs", logging.Int("count", moved))
	}
	return moved, nil
}

// Complete marks an active job successful and records its return value.
func (q *Queue) Complete(ctx context.Context, job *Job, returnValue any) error {
	encoded, err := json.Marshal(returnValue)
	if err != nil {
		return services.Wrap(services.ErrValidation, "queue", "complete", "encode return value", err)
	}
	pipe := q.client.Pipeline()
	pipe.SRem(ctx, q.key("active"), job.ID)
	pipe.HSet(ctx, q.jobKey(job.ID), map[string]any{
		"state":        StateCompleted,
		"progress":     100,
		"return_value": string(encoded),
		"finished_on":  q.now().UnixMilli(),
	})
	pipe.LPush(ctx, q.key("completed"), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "queue", "complete", "record completion", err)
	}
	return q.trim(ctx, "completed", q.settings.KeepCompleted)
}

// Fail records a failed attempt. Retryable jobs go back through the
// delayed zset with exponential backoff; terminal errors and exhausted
// attempts park the job in the failed list. Returns true when the job
// will run again.
func (q *Queue) Fail(ctx context.Context, job *Job, failErr error) (bool, error) {
	reason := "unknown failure"
	if failErr != nil {
		reason = failErr.Error()
	}
	retryable := !services.IsTerminal(failErr) && job.AttemptsMade < job.MaxAttempts

	if retryable {
		delay := time.Duration(q.settings.BackoffMillis) * time.Millisecond
		for i := 1; i < job.AttemptsMade; i++ {
			delay *= 2
		}
		readyAt := q.now().Add(delay).UnixMilli()
		pipe := q.client.Pipeline()
		pipe.SRem(ctx, q.key("active"), job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID), map[string]any{
			"state":         StateDelayed,
			"failed_reason": reason,
		})
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt), Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return false, services.Wrap(services.ErrTransient, "queue", "fail", "schedule retry", err)
		}
		q.logger.Warn("job attempt failed, retry scheduled",
			logging.String(logging.FieldJobID, job.ID),
			logging.Int("attempt", job.AttemptsMade),
			logging.Duration("delay", delay),
			logging.String("reason", reason))
		return true, nil
	}

	pipe := q.client.Pipeline()
	pipe.SRem(ctx, q.key("active"), job.ID)
	pipe.HSet(ctx, q.jobKey(job.ID), map[string]any{
		"state":         StateFailed,
		"failed_reason": reason,
		"finished_on":   q.now().UnixMilli(),
	})
	pipe.LPush(ctx, q.key("failed"), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, services.Wrap(services.ErrTransient, "queue", "fail", "record failure", err)
	}
	q.logger.Error("job failed",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("attempts", job.AttemptsMade),
		logging.String("reason", reason))
	return false, q.trim(ctx, "failed", q.settings.KeepFailed)
}

// trim drops the oldest finished jobs beyond keep, hash included.
func (q *Queue) trim(ctx context.Context, list string, keep int) error {
	evicted, err := q.client.LRange(ctx, q.key(list), int64(keep), -1).Result()
	if err != nil {
		return services.Wrap(services.ErrTransient, "queue", "trim", "scan retention overflow", err)
	}
	if len(evicted) == 0 {
		return nil
	}
	pipe := q.client.Pipeline()
	pipe.LTrim(ctx, q.key(list), 0, int64(keep)-1)
	for _, id := range evicted {
		pipe.Del(ctx, q.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "queue", "trim", "drop evicted jobs", err)
	}
	return nil
}

// UpdateProgress raises a job's progress. Progress is monotonic; a lower
// value than the stored one is ignored.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	current := atoi(q.client.HGet(ctx, q.jobKey(jobID), "progress").Val())
	if progress <= current {
		return nil
	}
	if err := q.client.HSet(ctx, q.jobKey(jobID), "progress", progress).Err(); err != nil {
		return services.Wrap(services.ErrTransient, "queue", "progress", "store progress", err)
	}
	return nil
}

// GetJob reads one job by id.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "get", "read job", err)
	}
	if len(fields) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get", fmt.Sprintf("job %s not found", jobID), nil)
	}
	return jobFromHash(fields), nil
}

// Counts reports the queue's per-state population.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, q.key("waiting"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	active := pipe.SCard(ctx, q.key("active"))
	completed := pipe.LLen(ctx, q.key("completed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, services.Wrap(services.ErrTransient, "queue", "counts", "read state sizes", err)
	}
	counts := Counts{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	counts.Total = counts.Waiting + counts.Delayed + counts.Active + counts.Completed + counts.Failed
	return counts, nil
}

// List returns every job currently tracked by the queue, newest finished
// first within each state; waiting jobs come in dequeue order.
func (q *Queue) List(ctx context.Context) ([]*Job, error) {
	var ids []string
	waiting, err := q.client.ZRange(ctx, q.key("waiting"), 0, -1).Result()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "list", "scan waiting", err)
	}
	ids = append(ids, waiting...)
	delayed, err := q.client.ZRange(ctx, q.key("delayed"), 0, -1).Result()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "list", "scan delayed", err)
	}
	ids = append(ids, delayed...)
	active, err := q.client.SMembers(ctx, q.key("active")).Result()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "list", "scan active", err)
	}
	ids = append(ids, active...)
	for _, list := range []string{"completed", "failed"} {
		finished, err := q.client.LRange(ctx, q.key(list), 0, -1).Result()
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "queue", "list", "scan "+list, err)
		}
		ids = append(ids, finished...)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, services.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Clear removes every job and queue structure in this namespace.
func (q *Queue) Clear(ctx context.Context) error {
	jobs, err := q.List(ctx)
	if err != nil {
		return err
	}
	pipe := q.client.Pipeline()
	for _, job := range jobs {
		pipe.Del(ctx, q.jobKey(job.ID))
	}
	for _, part := range []string{"waiting", "delayed", "active", "completed", "failed", "seq"} {
		pipe.Del(ctx, q.key(part))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "queue", "clear", "drop queue keys", err)
	}
	return nil
}
