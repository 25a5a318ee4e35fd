//go:build windows

package resman

import (
	"context"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/jtsiomb/goresman/pkg/threadpool"
)

// waitReadable is never actually reached on Windows: GetWaitFDs is always
// empty on this platform, since both the pool and the watcher report their
// POSIX-only descriptors as unsupported here.
func waitReadable(ctx context.Context, fds []uintptr) error {
	return threadpool.ErrUnsupported
}

// waitHandles blocks until any handle is signaled or ctx is canceled,
// polling WaitForMultipleObjects in short timeout slices the same way
// waitReadable slices unix.Poll on POSIX, so cancellation is noticed
// promptly. Mirrors resman_wait's WaitForMultipleObjectsEx(..., INFINITE,
// TRUE) call (original_source/src/resman.c:412), sliced instead of
// infinite so ctx cancellation doesn't need its own dedicated event.
func waitHandles(ctx context.Context, handles []threadpool.Handle) error {
	hs := make([]windows.Handle, len(handles))
	for i, h := range handles {
		hs[i] = windows.Handle(h)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, err := windows.WaitForMultipleObjects(hs, false, 50)
		if err != nil {
			if errno, ok := err.(syscall.Errno); ok && errno == windows.WAIT_TIMEOUT {
				continue
			}
			return err
		}
		return nil
	}
}
