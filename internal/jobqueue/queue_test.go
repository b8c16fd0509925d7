package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"needledrop/internal/logging"
	"needledrop/internal/services"
)

func newTestQueue(t *testing.T, settings Settings) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	queue, err := NewQueue("test-queue", client, settings, logging.NewNop())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return queue, mr
}

type payload struct {
	TrackID  string `json:"track_id"`
	FriendID int    `json:"friend_id"`
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{Attempts: 3})
	ctx := context.Background()

	enqueued, err := queue.Enqueue(ctx, "download", payload{TrackID: "T1", FriendID: 7}, PriorityNormal)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if enqueued.State != StateWaiting || enqueued.MaxAttempts != 3 {
		t.Fatalf("unexpected enqueued job %+v", enqueued)
	}

	job, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job == nil || job.ID != enqueued.ID {
		t.Fatalf("expected job %s, got %+v", enqueued.ID, job)
	}
	if job.State != StateActive || job.AttemptsMade != 1 {
		t.Fatalf("lease not recorded: %+v", job)
	}
	var got payload
	if err := job.UnmarshalData(&got); err != nil {
		t.Fatalf("UnmarshalData: %v", err)
	}
	if got.TrackID != "T1" || got.FriendID != 7 {
		t.Fatalf("payload mangled: %+v", got)
	}

	again, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if again != nil {
		t.Fatalf("leased job delivered twice: %+v", again)
	}
}

func TestDequeueHonorsPriorityThenArrival(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{})
	ctx := context.Background()

	first, _ := queue.Enqueue(ctx, "download", payload{TrackID: "normal-1"}, PriorityNormal)
	second, _ := queue.Enqueue(ctx, "download", payload{TrackID: "normal-2"}, PriorityNormal)
	urgent, _ := queue.Enqueue(ctx, "download", payload{TrackID: "urgent"}, PriorityHigh)
	relaxed, _ := queue.Enqueue(ctx, "download", payload{TrackID: "relaxed"}, PriorityLow)

	wantOrder := []string{urgent.ID, first.ID, second.ID, relaxed.ID}
	for i, want := range wantOrder {
		job, err := queue.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue %d: %v", i, err)
		}
		if job == nil || job.ID != want {
			t.Fatalf("position %d: got %+v, want id %s", i, job, want)
		}
	}
}

func TestFailSchedulesRetryWithBackoff(t *testing.T) {
	queue, mr := newTestQueue(t, Settings{Attempts: 3, BackoffMillis: 2000})
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	queue.now = func() time.Time { return base }

	if _, err := queue.Enqueue(ctx, "download", payload{TrackID: "T1"}, PriorityNormal); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, _ := queue.Dequeue(ctx)

	retrying, err := queue.Fail(ctx, job, errors.New("tool exploded"))
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if !retrying {
		t.Fatal("first failure of three attempts must retry")
	}

	stored, _ := queue.GetJob(ctx, job.ID)
	if stored.State != StateDelayed {
		t.Fatalf("state = %q, want delayed", stored.State)
	}

	// Not due yet.
	if job, _ := queue.Dequeue(ctx); job != nil {
		t.Fatalf("job delivered before backoff elapsed: %+v", job)
	}

	// Past the 2s initial backoff.
	queue.now = func() time.Time { return base.Add(2100 * time.Millisecond) }
	mr.FastForward(2100 * time.Millisecond)
	job, err = queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue after backoff: %v", err)
	}
	if job == nil || job.AttemptsMade != 2 {
		t.Fatalf("expected second attempt, got %+v", job)
	}
}

func TestFailExhaustsAttempts(t *testing.T) {
	queue, mr := newTestQueue(t, Settings{Attempts: 2, BackoffMillis: 1})
	ctx := context.Background()

	enqueued, _ := queue.Enqueue(ctx, "download", payload{TrackID: "T1"}, PriorityNormal)

	job, _ := queue.Dequeue(ctx)
	if retrying, _ := queue.Fail(ctx, job, errors.New("boom")); !retrying {
		t.Fatal("attempt 1 of 2 must retry")
	}
	mr.FastForward(10 * time.Millisecond)
	queue.now = func() time.Time { return time.Now().Add(time.Second) }

	job, err := queue.Dequeue(ctx)
	if err != nil || job == nil {
		t.Fatalf("Dequeue retry: %v %+v", err, job)
	}
	retrying, err := queue.Fail(ctx, job, errors.New("boom again"))
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if retrying {
		t.Fatal("attempt 2 of 2 must not retry")
	}

	stored, _ := queue.GetJob(ctx, enqueued.ID)
	if stored.State != StateFailed || stored.FailedReason != "boom again" {
		t.Fatalf("unexpected terminal job %+v", stored)
	}
}

func TestFailTerminalErrorSkipsRetry(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{Attempts: 5})
	ctx := context.Background()

	queue.Enqueue(ctx, "download", payload{TrackID: "T1"}, PriorityNormal)
	job, _ := queue.Dequeue(ctx)

	terminal := services.Wrap(services.ErrValidation, "download", "fetch", "no source urls", nil)
	retrying, err := queue.Fail(ctx, job, terminal)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if retrying {
		t.Fatal("validation failures must not retry")
	}
	stored, _ := queue.GetJob(ctx, job.ID)
	if stored.State != StateFailed {
		t.Fatalf("state = %q, want failed", stored.State)
	}
}

func TestCompleteRecordsReturnValue(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{})
	ctx := context.Background()

	queue.Enqueue(ctx, "download", payload{TrackID: "T1"}, PriorityNormal)
	job, _ := queue.Dequeue(ctx)

	if err := queue.Complete(ctx, job, map[string]string{"playback": "audio_1.m4a"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	stored, _ := queue.GetJob(ctx, job.ID)
	if stored.State != StateCompleted || stored.Progress != 100 {
		t.Fatalf("unexpected completed job %+v", stored)
	}
	if string(stored.ReturnValue) != `{"playback":"audio_1.m4a"}` {
		t.Fatalf("return value = %s", stored.ReturnValue)
	}
	if stored.FinishedOn == 0 {
		t.Fatal("finished_on not set")
	}
}

func TestRetentionTrimsOldJobs(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{KeepCompleted: 2})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		queue.Enqueue(ctx, "download", payload{TrackID: "T"}, PriorityNormal)
		job, _ := queue.Dequeue(ctx)
		queue.Complete(ctx, job, nil)
		ids = append(ids, job.ID)
	}

	counts, err := queue.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Completed != 2 {
		t.Fatalf("completed = %d, want 2", counts.Completed)
	}
	// Oldest hashes are gone, newest survive.
	if _, err := queue.GetJob(ctx, ids[0]); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("evicted job still readable: %v", err)
	}
	if _, err := queue.GetJob(ctx, ids[3]); err != nil {
		t.Fatalf("retained job unreadable: %v", err)
	}
}

func TestUpdateProgressIsMonotonic(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{})
	ctx := context.Background()

	job, _ := queue.Enqueue(ctx, "download", payload{TrackID: "T1"}, PriorityNormal)

	if err := queue.UpdateProgress(ctx, job.ID, 30); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := queue.UpdateProgress(ctx, job.ID, 10); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	stored, _ := queue.GetJob(ctx, job.ID)
	if stored.Progress != 30 {
		t.Fatalf("progress = %d, want 30 (monotonic)", stored.Progress)
	}
}

func TestCountsAndList(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{Attempts: 1})
	ctx := context.Background()

	queue.Enqueue(ctx, "download", payload{TrackID: "waiting"}, PriorityNormal)
	queue.Enqueue(ctx, "download", payload{TrackID: "done"}, PriorityHigh)
	job, _ := queue.Dequeue(ctx)
	queue.Complete(ctx, job, nil)
	queue.Enqueue(ctx, "download", payload{TrackID: "dead"}, PriorityHigh)
	job, _ = queue.Dequeue(ctx)
	queue.Fail(ctx, job, errors.New("no luck"))

	counts, err := queue.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := Counts{Waiting: 1, Completed: 1, Failed: 1, Total: 3}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}

	jobs, err := queue.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("list len = %d, want 3", len(jobs))
	}
}

func TestRequeueActiveRestoresStrandedJobs(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{Attempts: 3})
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "download", payload{TrackID: "T1"}, PriorityNormal); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	urgent, err := queue.Enqueue(ctx, "download", payload{TrackID: "T2"}, PriorityHigh)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := queue.Dequeue(ctx); err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
	}

	moved, err := queue.RequeueActive(ctx)
	if err != nil {
		t.Fatalf("RequeueActive: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}

	counts, err := queue.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Active != 0 || counts.Waiting != 2 {
		t.Fatalf("counts = %+v, want 0 active / 2 waiting", counts)
	}

	// Priority ordering survives the round trip.
	next, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if next.ID != urgent.ID {
		t.Fatalf("dequeued %s first, want high-priority %s", next.ID, urgent.ID)
	}
	if next.AttemptsMade != 2 {
		t.Fatalf("attempts_made = %d, want 2", next.AttemptsMade)
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	queue, _ := newTestQueue(t, Settings{})
	ctx := context.Background()

	job, _ := queue.Enqueue(ctx, "download", payload{TrackID: "T1"}, PriorityNormal)
	queue.Enqueue(ctx, "download", payload{TrackID: "T2"}, PriorityNormal)

	if err := queue.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	counts, _ := queue.Counts(ctx)
	if counts.Total != 0 {
		t.Fatalf("counts after clear = %+v", counts)
	}
	if _, err := queue.GetJob(ctx, job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("job hash survived clear: %v", err)
	}
}
