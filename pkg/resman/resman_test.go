package resman

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func waitForPoll(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.Poll()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestBasicLoad(t *testing.T) {
	var loadCalls, doneCalls int32

	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 {
			atomic.AddInt32(&loadCalls, 1)
			return 0
		},
		Done: func(id int) int32 {
			atomic.AddInt32(&doneCalls, 1)
			return 0
		},
	}})
	require.NoError(t, err)
	defer m.Close()

	id := m.Add("a", nil)
	m.WaitAll()

	waitForPoll(t, m, func() bool { return atomic.LoadInt32(&doneCalls) == 1 })

	require.Equal(t, int32(1), atomic.LoadInt32(&loadCalls))
	require.Equal(t, 1, m.GetResLoadCount(id))
}

func TestDeduplication(t *testing.T) {
	var loadCalls int32

	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 {
			atomic.AddInt32(&loadCalls, 1)
			return 0
		},
	}})
	require.NoError(t, err)
	defer m.Close()

	id1 := m.Add("a", nil)
	id2 := m.Add("a", nil)
	require.Equal(t, id1, id2)

	m.WaitAll()
	m.Poll()
	require.Equal(t, int32(1), atomic.LoadInt32(&loadCalls))
}

func TestFirstLoadFailureWithoutDoneCallback(t *testing.T) {
	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 { return -1 },
	}})
	require.NoError(t, err)
	defer m.Close()

	m.Add("x", nil)
	m.WaitAll()
	m.Poll()
	m.Poll()

	require.Equal(t, -1, m.Find("x"))
}

func TestReloadOnModify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var doneCount int32
	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 { return 0 },
		Done: func(id int) int32 {
			atomic.AddInt32(&doneCount, 1)
			return 0
		},
	}})
	require.NoError(t, err)
	defer m.Close()

	id := m.Add(path, nil)
	m.WaitAll()
	waitForPoll(t, m, func() bool { return atomic.LoadInt32(&doneCount) == 1 })

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("v2")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	waitForPoll(t, m, func() bool { return m.GetResLoadCount(id) == 2 })
}

func TestWaitEventsWakesOnWatchedModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 { return 0 },
	}})
	require.NoError(t, err)
	defer m.Close()

	id := m.Add(path, nil)
	m.WaitAll()
	m.Poll() // with no Done callback the worker armed the watch after the first successful load

	require.Eventually(t, func() bool {
		return len(m.GetWaitFDs()) > 0 || len(m.GetWaitHandles()) > 0
	}, time.Second, 5*time.Millisecond, "no wait descriptor exposed once a watch is armed")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("v2")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.WaitEvents(ctx), "WaitEvents must wake on a watched file's modification, not just on job completion")

	waitForPoll(t, m, func() bool { return m.GetResLoadCount(id) == 2 })
}

func TestRemoveReapsOnNextPoll(t *testing.T) {
	release := make(chan struct{})
	var destroyed int32

	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 {
			<-release
			return 0
		},
		Destroy: func(id int) { atomic.AddInt32(&destroyed, 1) },
	}})
	require.NoError(t, err)
	defer m.Close()

	id := m.Add("slow", nil)
	require.NoError(t, m.Remove(id))

	m.Poll() // load still pending, must not reap yet
	require.Equal(t, int32(0), atomic.LoadInt32(&destroyed))

	close(release)
	m.WaitAll()

	waitForPoll(t, m, func() bool { return atomic.LoadInt32(&destroyed) == 1 })
	require.Equal(t, -1, m.Find("slow"))
}

func TestConcurrentAddDeduplicates(t *testing.T) {
	var loadCalls int32

	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 {
			atomic.AddInt32(&loadCalls, 1)
			return 0
		},
	}})
	require.NoError(t, err)
	defer m.Close()

	var g errgroup.Group
	ids := make([]int, 32)
	for i := range ids {
		i := i
		g.Go(func() error {
			ids[i] = m.Add("shared", nil)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}

	m.WaitAll()
	m.Poll()
	require.Equal(t, int32(1), atomic.LoadInt32(&loadCalls))
}

func TestPendingJobsDecreasesAsWorkCompletes(t *testing.T) {
	release := make(chan struct{})
	m, err := New(Config{Callbacks: Callbacks{
		Load: func(path string, id int) int32 {
			<-release
			return 0
		},
	}})
	require.NoError(t, err)
	defer m.Close()

	m.Add("a", nil)
	m.Add("b", nil)
	require.Equal(t, 2, m.Pending())

	close(release)
	m.WaitAll()
	require.Equal(t, 0, m.Pending())
}
