package threadpool

// Handle is a platform completion-event handle (a Windows HANDLE on
// Windows, unused elsewhere), wrapped in a plain integer type so the cross
// platform Pool API doesn't need to import golang.org/x/sys/windows on
// non-Windows builds just to name the return type of WaitHandle.
type Handle uintptr

// completionWaker is the cross-platform "completion waker" design note from
// spec.md §9: signal() is called by a worker goroutine once a job
// completes, and waitFD/waitHandle expose the primitive an external event
// loop can select/wait on. Exactly one of waitFD/waitHandle does real work
// on any given platform; the other returns ErrUnsupported, matching the
// original library's behavior of printing a warning and returning a zero
// value from the non-native accessor rather than omitting it.
type completionWaker interface {
	signal()
	waitFD() (uintptr, error)
	waitHandle() (Handle, error)
	drain()
	close()
}
