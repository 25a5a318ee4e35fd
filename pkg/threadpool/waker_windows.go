//go:build windows

package threadpool

import (
	"sync"

	"golang.org/x/sys/windows"
)

// eventWaker backs the completion notifier with a Win32 auto-reset event,
// created lazily on first use.
type eventWaker struct {
	mu         sync.Mutex
	handle     windows.Handle
	created    bool
	createFail error
}

func newWaker() completionWaker {
	return &eventWaker{}
}

func (w *eventWaker) ensure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.created {
		return w.createFail
	}
	w.created = true

	h, err := windows.CreateEvent(nil, 0, 0, nil) // auto-reset, initially unsignaled
	if err != nil {
		w.createFail = err
		return err
	}
	w.handle = h
	return nil
}

// signal sets the event only once it exists: it is created by waitHandle,
// not by job completion.
func (w *eventWaker) signal() {
	w.mu.Lock()
	h := w.handle
	w.mu.Unlock()
	if h != 0 {
		windows.SetEvent(h)
	}
}

func (w *eventWaker) waitFD() (uintptr, error) {
	return 0, ErrUnsupported
}

func (w *eventWaker) waitHandle() (Handle, error) {
	if err := w.ensure(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return Handle(w.handle), nil
}

// drain is a no-op on Windows: the auto-reset event is cleared by whatever
// wait call consumes it, there is nothing for a poller to explicitly empty.
func (w *eventWaker) drain() {}

func (w *eventWaker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handle != 0 {
		windows.CloseHandle(w.handle)
		w.handle = 0
	}
}
