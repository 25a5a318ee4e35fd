package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueRunsWork(t *testing.T) {
	p, err := New(Config{NumThreads: 2})
	require.NoError(t, err)
	defer p.Release()

	var ran int32
	done := make(chan struct{}, 1)
	err = p.Enqueue(func() {
		atomic.AddInt32(&ran, 1)
	}, func() {
		done <- struct{}{}
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("work item never completed")
	}

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected work to run exactly once, ran=%d", ran)
	}
}

func TestEnqueueNilWork(t *testing.T) {
	p, err := New(Config{NumThreads: 1})
	require.NoError(t, err)
	defer p.Release()

	if err := p.Enqueue(nil, nil); err != ErrNilWork {
		t.Fatalf("expected ErrNilWork, got %v", err)
	}
}

func TestWaitBlocksUntilQueueDrains(t *testing.T) {
	p, err := New(Config{NumThreads: 4})
	require.NoError(t, err)
	defer p.Release()

	const n = 50
	var completed int32
	for i := 0; i < n; i++ {
		require.NoError(t, p.Enqueue(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&completed, 1)
		}, nil))
	}

	p.Wait()

	if got := atomic.LoadInt32(&completed); got != n {
		t.Fatalf("expected all %d jobs to complete before Wait returned, got %d", n, got)
	}
	if pending := p.PendingJobs(); pending != 0 {
		t.Fatalf("expected PendingJobs()==0 after Wait, got %d", pending)
	}
}

// TestBatchSuppressesWakeup exercises spec.md scenario 6: workers stay
// asleep while a batch is being queued, and wake up only once EndBatch is
// called.
func TestBatchSuppressesWakeup(t *testing.T) {
	p, err := New(Config{NumThreads: 4})
	require.NoError(t, err)
	defer p.Release()

	p.BeginBatch()

	const n = 100
	var started int32
	for i := 0; i < n; i++ {
		require.NoError(t, p.Enqueue(func() {
			atomic.AddInt32(&started, 1)
			time.Sleep(2 * time.Millisecond)
		}, nil))
	}

	time.Sleep(5 * time.Millisecond)
	if got := atomic.LoadInt32(&started); got != 0 {
		t.Fatalf("expected no work to start before EndBatch, got %d started", got)
	}
	if queued := p.QueuedJobs(); queued != n {
		t.Fatalf("expected all %d items queued, got %d", n, queued)
	}

	p.EndBatch()
	p.Wait()

	if got := atomic.LoadInt32(&started); got != n {
		t.Fatalf("expected all %d jobs to run after EndBatch, got %d", n, got)
	}
}

func TestWaitPendingTarget(t *testing.T) {
	p, err := New(Config{NumThreads: 1})
	require.NoError(t, err)
	defer p.Release()

	release := make(chan struct{})
	require.NoError(t, p.Enqueue(func() {
		<-release
	}, nil))
	require.NoError(t, p.Enqueue(func() {
		<-release
	}, nil))

	go func() {
		time.Sleep(5 * time.Millisecond)
		release <- struct{}{}
	}()

	p.WaitPending(1)
	if pending := p.PendingJobs(); pending > 1 {
		t.Fatalf("expected pending <= 1, got %d", pending)
	}
	close(release)
	p.Wait()
}

func TestTimedWaitReturnsOnTimeout(t *testing.T) {
	p, err := New(Config{NumThreads: 1})
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, p.Enqueue(func() {
		<-block
	}, nil))

	elapsed := p.TimedWait(20 * time.Millisecond)
	if elapsed < 15*time.Millisecond {
		t.Fatalf("expected TimedWait to block close to the timeout, elapsed=%s", elapsed)
	}
	if pending := p.PendingJobs(); pending == 0 {
		t.Fatalf("expected the blocked job to still be pending")
	}
}

func TestRefcountReleasesPoolAtZero(t *testing.T) {
	p, err := New(Config{NumThreads: 1})
	require.NoError(t, err)

	if n := p.AddRef(); n != 2 {
		t.Fatalf("expected refcount 2, got %d", n)
	}
	if n := p.Release(); n != 1 {
		t.Fatalf("expected refcount 1 after first release, got %d", n)
	}
	if n := p.Release(); n != 0 {
		t.Fatalf("expected refcount 0 after second release, got %d", n)
	}

	// pool is torn down; further enqueues must not panic, and the queue
	// must have been cleared rather than drained.
	_ = p.Enqueue(func() {}, nil)
}

func TestConcurrentEnqueueIsSafe(t *testing.T) {
	p, err := New(Config{NumThreads: 8})
	require.NoError(t, err)
	defer p.Release()

	var wg sync.WaitGroup
	var total int64
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = p.Enqueue(func() {
					atomic.AddInt64(&total, 1)
				}, nil)
			}
		}()
	}
	wg.Wait()
	p.Wait()

	if total != 200 {
		t.Fatalf("expected 200 completed jobs, got %d", total)
	}
}

func TestWaitFDAllocates(t *testing.T) {
	p, err := New(Config{NumThreads: 1})
	require.NoError(t, err)
	defer p.Release()

	fd, err := p.WaitFD()
	if err == ErrUnsupported {
		t.Skip("WaitFD unsupported on this platform")
	}
	require.NoError(t, err)
	_ = fd // exercising allocation is enough on platforms this test runs on
}
