package threadpool

import "errors"

// ErrNilWork is returned by Enqueue when the work callback is nil.
var ErrNilWork = errors.New("threadpool: work callback must not be nil")

// ErrUnsupported is returned by the half of the completion-notifier surface
// (WaitFD on Windows, WaitHandle on POSIX) that doesn't exist on the running
// platform, mirroring the original library's "does nothing" warnings on the
// non-native accessor rather than failing to compile one side out.
var ErrUnsupported = errors.New("threadpool: operation not supported on this platform")

// ErrStartup reports a worker pool that could not be started. Starting a
// worker goroutine cannot fail, so New in this package never returns it.
var ErrStartup = errors.New("threadpool: failed to start worker pool")
