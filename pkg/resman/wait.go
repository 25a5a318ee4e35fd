package resman

import (
	"context"

	"github.com/jtsiomb/goresman/pkg/threadpool"
)

// WaitJob blocks until id's current load (if any) completes.
func (m *Manager) WaitJob(id int) error {
	res, err := m.lookupByID(id)
	if err != nil {
		return err
	}

	for {
		res.mu.Lock()
		pending := res.pending
		res.mu.Unlock()
		if !pending {
			return nil
		}
		cur := m.pool.PendingJobs()
		m.pool.WaitPending(cur - 1)
	}
}

// WaitAny blocks until at least one outstanding job completes (or until
// there are none left).
func (m *Manager) WaitAny() {
	cur := m.pool.PendingJobs()
	if cur == 0 {
		return
	}
	m.pool.WaitPending(cur - 1)
}

// WaitAll blocks until every outstanding job has completed.
func (m *Manager) WaitAll() {
	m.pool.Wait()
}

// GetWaitFDs returns every POSIX descriptor an application-owned event loop
// should poll for readability to learn Poll has work to do: the shared
// pool's completion pipe plus the watcher's own fd, mirroring the original
// library's get_wait_fds, which pushes exactly these two sources into
// rman->wait_fds (original_source/src/filewatch_linux.c:38 adds the inotify
// fd; original_source/src/resman.c's resman_get_wait_fds adds the pool's).
// Empty on Windows.
func (m *Manager) GetWaitFDs() []uintptr {
	var fds []uintptr
	if fd, err := m.pool.WaitFD(); err == nil {
		fds = append(fds, fd)
	}
	if fd, err := m.watcher.WaitFD(); err == nil {
		fds = append(fds, fd)
	}
	return fds
}

// GetWaitHandles returns every Win32 event handle an application-owned
// event loop should pass to WaitForMultipleObjects to learn Poll has work
// to do: the shared pool's completion event plus one event per directory
// the watcher has open, mirroring resman_get_wait_handles /
// filewatch_win32.c's own watch_handles array. Empty on POSIX.
func (m *Manager) GetWaitHandles() []threadpool.Handle {
	var handles []threadpool.Handle
	if h, err := m.pool.WaitHandle(); err == nil {
		handles = append(handles, h)
	}
	if hs, err := m.watcher.WaitHandles(); err == nil {
		for _, h := range hs {
			handles = append(handles, threadpool.Handle(h))
		}
	}
	return handles
}

// WaitEvents blocks until any event source has data available: the shared
// pool's completion notifier, or the watcher's own descriptor(s) — the
// union Poll would otherwise need an idle sleep loop to notice. It returns
// early if ctx is canceled.
//
// This is distinct from WaitJob/WaitAny/WaitAll: those wait for background
// job completion, this waits for something Poll would have work to do
// about. The original library names both "wait", one on the registry and
// one (never implemented) per-job; here they get different names instead.
func (m *Manager) WaitEvents(ctx context.Context) error {
	if fds := m.GetWaitFDs(); len(fds) > 0 {
		return waitReadable(ctx, fds)
	}
	if handles := m.GetWaitHandles(); len(handles) > 0 {
		return waitHandles(ctx, handles)
	}
	// Neither a pollable fd nor a waitable handle is available: fall back
	// to a context-bounded wait on whatever job is outstanding, the
	// closest equivalent without an OS-level multiplex.
	return m.waitEventsFallback(ctx)
}

func (m *Manager) waitEventsFallback(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.WaitAny()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
