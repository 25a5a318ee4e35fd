//go:build !windows

package threadpool

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pipeWaker backs the completion notifier with a pipe, created lazily on
// first use, whose read end is put in nonblocking mode so a consumer's
// drain-by-read never stalls the polling thread.
type pipeWaker struct {
	mu         sync.Mutex
	readFD     int
	writeFD    int
	created    bool
	createFail error
}

func newWaker() completionWaker {
	return &pipeWaker{readFD: -1, writeFD: -1}
}

func (w *pipeWaker) ensure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.created {
		return w.createFail
	}
	w.created = true

	var fdpair [2]int
	if err := unix.Pipe2(fdpair[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		w.createFail = err
		return err
	}
	w.readFD, w.writeFD = fdpair[0], fdpair[1]
	return nil
}

// signal writes only once the pipe exists: it is created by waitFD, not
// by job completion.
func (w *pipeWaker) signal() {
	w.mu.Lock()
	fd := w.writeFD
	w.mu.Unlock()
	if fd >= 0 {
		// One byte per completed job; the reader coalesces writes and never
		// depends on counting them, so a short/failed write is harmless.
		unix.Write(fd, []byte{0})
	}
}

func (w *pipeWaker) waitFD() (uintptr, error) {
	if err := w.ensure(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return uintptr(w.readFD), nil
}

func (w *pipeWaker) waitHandle() (Handle, error) {
	return 0, ErrUnsupported
}

// drain empties the pipe's buffered bytes without blocking. It is a
// no-op if the pipe was never created.
func (w *pipeWaker) drain() {
	w.mu.Lock()
	fd := w.readFD
	w.mu.Unlock()
	if fd < 0 {
		return
	}
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
}

func (w *pipeWaker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readFD >= 0 {
		unix.Close(w.readFD)
		w.readFD = -1
	}
	if w.writeFD >= 0 {
		unix.Close(w.writeFD)
		w.writeFD = -1
	}
}
