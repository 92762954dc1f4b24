package maintenance

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/pos-inventory-backend/pkg/lock"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/pos-inventory-backend/pkg/redis"
)

type testJob struct {
	name string
	err  error
	runs int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "maintenance-test", Output: io.Discard})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "failing", err: errors.New("boom")}
	last := &testJob{name: "last"}
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Locker: lock.Noop{},
		Jobs:   []Job{ok, nil, failing, last},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if got := len(svc.Jobs()); got != 3 {
		t.Fatalf("expected nil jobs dropped, got %d", got)
	}

	err = svc.RunOnce(context.Background())
	if err == nil || !errors.Is(err, failing.err) {
		t.Fatalf("expected combined job error, got %v", err)
	}
	for _, job := range []*testJob{ok, failing, last} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}
}

func TestRunOnceSkipsWhenAnotherReplicaHoldsTheLock(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := pkgredis.NewWithRaw(raw)

	locker, err := lock.NewRedisLocker(client, time.Minute, nil)
	if err != nil {
		t.Fatalf("locker: %v", err)
	}
	job := &testJob{name: "drift"}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Locker: locker, Jobs: []Job{job}, LockID: "test"})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = locker.WithLock(context.Background(), lockScope, "test", func(ctx context.Context) error {
		return svc.RunOnce(ctx)
	})
	if err != nil {
		t.Fatalf("expected skipped cycle without error, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job not to run while locked, ran %d", job.runs)
	}

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected job to run after release, ran %d", job.runs)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	job := &testJob{name: "tick"}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Locker: lock.Noop{}, Jobs: []Job{job}, Interval: time.Hour})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the immediate cycle to run, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLoggerAndLocker(t *testing.T) {
	if _, err := NewService(ServiceParams{Locker: lock.Noop{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected locker error")
	}
}
