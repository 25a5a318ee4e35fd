// Package watch arms and polls filesystem watches on individual files,
// reporting which watched ids need a reload.
//
// The design mirrors the original library's filewatch_linux.c /
// filewatch_win32.c split: one backend per platform behind a common
// Watcher interface, with a no-op backend for anything else. Debounce
// state (the deferred-reload timer a rapid-fire editor write arms and then
// cancels on close) lives entirely inside the backend; callers only ever
// see a ready-to-reload id show up in CheckWatch's return value.
package watch

import "time"

// modifyDebounce is how long a bare write (IN_MODIFY, with no matching
// close-write) is held pending before CheckWatch reports it anyway. Editors
// that do several small writes before closing a file would otherwise cause
// a reload per write; deferring and canceling on close-write collapses
// those into one.
const modifyDebounce = 128 * time.Millisecond

// Watcher arms and polls watches on individual file paths, identified by
// caller-chosen ids (the resource id they belong to).
type Watcher interface {
	// StartWatch arms a watch on path under id. Calling StartWatch again
	// for an id that is already watched replaces its path.
	StartWatch(id int, path string) error

	// StopWatch disarms the watch for id. Stopping an id that was never
	// started, or was already stopped, is not an error.
	StopWatch(id int) error

	// CheckWatch returns the ids whose path has changed (including ids
	// whose debounce timer has expired) since the last call, and clears
	// them from its pending state. It never blocks.
	CheckWatch() ([]int, error)

	// WaitFD returns the backend's own poll-ready descriptor on POSIX
	// platforms — the single inotify fd every armed watch multiplexes
	// onto — for an application-owned select/poll loop to wait on
	// alongside the thread pool's completion fd. Returns ErrUnsupported
	// on Windows and on the no-op backend.
	WaitFD() (uintptr, error)

	// WaitHandles returns one signaled-on-change event per open
	// directory handle on Windows, for WaitForMultipleObjects. Returns
	// ErrUnsupported on POSIX and on the no-op backend.
	WaitHandles() ([]Handle, error)

	// Close releases any backend resources (inotify fd, directory
	// handles, ...). No further calls may be made after Close.
	Close() error
}

// Handle is a Win32 event handle, kept as its own type here (rather than
// importing pkg/threadpool's) so this package stays free of a dependency
// on the pool it is otherwise unrelated to.
type Handle uintptr

// New returns the Watcher backend for the current platform.
func New() (Watcher, error) {
	return newPlatformWatcher()
}
