package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscope/pkg/ulid"
)

type fakeRunner struct {
	mu       sync.Mutex
	seen     []ulid.ULID
	delay    time.Duration
	failIDs  map[ulid.ULID]bool
	done     chan struct{}
	doneWant int
}

func newFakeRunner(wantDone int) *fakeRunner {
	return &fakeRunner{failIDs: make(map[ulid.ULID]bool), done: make(chan struct{}, wantDone), doneWant: wantDone}
}

func (f *fakeRunner) Run(ctx context.Context, id ulid.ULID) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.seen = append(f.seen, id)
	fail := f.failIDs[id]
	f.mu.Unlock()

	f.done <- struct{}{}

	if fail {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeRunner) waitAll(t *testing.T) {
	t.Helper()
	for i := 0; i < f.doneWant; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for runner invocations")
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolProcessesSubmittedWork(t *testing.T) {
	runner := newFakeRunner(3)
	pool := New(Config{Name: "test", Runner: runner, Workers: 2, Logger: testLogger()})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	ids := []ulid.ULID{ulid.New(), ulid.New(), ulid.New()}
	for _, id := range ids {
		require.NoError(t, pool.Submit(id))
	}

	runner.waitAll(t)
	time.Sleep(10 * time.Millisecond) // let process() finish bookkeeping after Run returns

	processed, failed := pool.Stats()
	assert.EqualValues(t, 3, processed)
	assert.EqualValues(t, 0, failed)
}

func TestPoolCountsFailures(t *testing.T) {
	id := ulid.New()
	runner := newFakeRunner(1)
	runner.failIDs[id] = true

	pool := New(Config{Name: "test", Runner: runner, Workers: 1, Logger: testLogger()})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.NoError(t, pool.Submit(id))
	runner.waitAll(t)
	time.Sleep(10 * time.Millisecond)

	processed, failed := pool.Stats()
	assert.EqualValues(t, 0, processed)
	assert.EqualValues(t, 1, failed)
}

func TestPoolDedupesInFlightSubmissions(t *testing.T) {
	id := ulid.New()
	runner := newFakeRunner(1)
	runner.delay = 50 * time.Millisecond

	pool := New(Config{Name: "test", Runner: runner, Workers: 1, Logger: testLogger()})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.NoError(t, pool.Submit(id))
	// Submitted again while the first is still in flight; must be a no-op.
	require.NoError(t, pool.Submit(id))

	runner.waitAll(t)
	time.Sleep(20 * time.Millisecond)

	runner.mu.Lock()
	seenCount := len(runner.seen)
	runner.mu.Unlock()
	assert.Equal(t, 1, seenCount)
}

func TestPoolStartTwiceErrors(t *testing.T) {
	runner := newFakeRunner(0)
	pool := New(Config{Name: "test", Runner: runner, Workers: 1, Logger: testLogger()})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	assert.Error(t, pool.Start(context.Background()))
}

func TestPoolSubmitAfterQueueFullReportsError(t *testing.T) {
	runner := newFakeRunner(0)
	// Pool is never Started, so nothing drains the queue: the buffer fills
	// deterministically after QueueDepth submissions.
	pool := New(Config{Name: "test", Runner: runner, Workers: 1, QueueDepth: 2, Logger: testLogger()})

	require.NoError(t, pool.Submit(ulid.New()))
	require.NoError(t, pool.Submit(ulid.New()))
	assert.Error(t, pool.Submit(ulid.New()))
}
