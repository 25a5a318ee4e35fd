//go:build !linux && !windows

package watch

// noopWatcher is used on platforms with no native file-modification
// notification backend wired up. Resources can still be added and reloaded
// explicitly; they just never reload automatically on external edits.
type noopWatcher struct{}

func newPlatformWatcher() (Watcher, error) {
	return noopWatcher{}, nil
}

func (noopWatcher) StartWatch(id int, path string) error { return nil }
func (noopWatcher) StopWatch(id int) error                { return nil }
func (noopWatcher) CheckWatch() ([]int, error)            { return nil, nil }
func (noopWatcher) WaitFD() (uintptr, error)              { return 0, ErrUnsupported }
func (noopWatcher) WaitHandles() ([]Handle, error)        { return nil, ErrUnsupported }
func (noopWatcher) Close() error                          { return nil }
