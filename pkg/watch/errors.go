package watch

import "errors"

// ErrUnsupported is returned by the half of the wait-descriptor surface
// (WaitFD on Windows, WaitHandles on POSIX) that doesn't exist on the
// running platform, and by both on the no-op backend.
var ErrUnsupported = errors.New("watch: operation not supported on this platform")
