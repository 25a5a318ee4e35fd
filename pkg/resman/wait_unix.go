//go:build !windows

package resman

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jtsiomb/goresman/pkg/threadpool"
)

// waitReadable blocks until any of fds is readable or ctx is canceled,
// polling in short slices so cancellation is noticed promptly without
// needing a separate wakeup pipe for ctx.Done itself.
func waitReadable(ctx context.Context, fds []uintptr) error {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := unix.Poll(pfds, 50)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n > 0 {
			return nil
		}
	}
}

// waitHandles is never reached on POSIX: GetWaitHandles is always empty
// here, since both the pool and the watcher report their Windows-only
// handles as unsupported on this platform.
func waitHandles(ctx context.Context, handles []threadpool.Handle) error {
	return threadpool.ErrUnsupported
}
