//go:build linux

package watch

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// entry tracks one armed watch: its inotify descriptor, the path it last
// watched (needed to re-arm after IN_IGNORED), and a deferred-reload
// deadline set by a bare IN_MODIFY and cleared by IN_CLOSE_WRITE.
type entry struct {
	id            int
	path          string
	wd            int32
	reloadTimeout int64 // milliseconds since watcher creation, 0 = none
}

type inotifyWatcher struct {
	mu      sync.Mutex
	fd      int
	file    *os.File
	byID    map[int]*entry
	byWD    map[int32]*entry
	start   time.Time
	pending map[int]struct{}
}

func newPlatformWatcher() (Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("watch: inotify_init1: %w", err)
	}
	return &inotifyWatcher{
		fd:      fd,
		file:    os.NewFile(uintptr(fd), ""),
		byID:    make(map[int]*entry),
		byWD:    make(map[int32]*entry),
		start:   time.Now(),
		pending: make(map[int]struct{}),
	}, nil
}

func (w *inotifyWatcher) nowMillis() int64 {
	return time.Since(w.start).Milliseconds()
}

func (w *inotifyWatcher) StartWatch(id int, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startWatchLocked(id, path)
}

func (w *inotifyWatcher) startWatchLocked(id int, path string) error {
	if e, ok := w.byID[id]; ok {
		w.unarmLocked(e)
	}

	wd, err := unix.InotifyAddWatch(w.fd, path, unix.IN_MODIFY|unix.IN_CLOSE_WRITE)
	if err != nil {
		return fmt.Errorf("watch: inotify_add_watch %q: %w", path, err)
	}

	e := &entry{id: id, path: path, wd: int32(wd)}
	w.byID[id] = e
	w.byWD[int32(wd)] = e
	return nil
}

func (w *inotifyWatcher) unarmLocked(e *entry) {
	delete(w.byWD, e.wd)
	if e.wd >= 0 {
		unix.InotifyRmWatch(w.fd, uint32(e.wd))
	}
}

func (w *inotifyWatcher) StopWatch(id int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[id]
	if !ok {
		return nil
	}
	w.unarmLocked(e)
	delete(w.byID, id)
	delete(w.pending, id)
	return nil
}

// CheckWatch drains every pending inotify event, folds it into per-entry
// debounce state the same way resman_check_watch does, then reports every
// id whose debounce timer has now expired alongside ids closed this pass.
func (w *inotifyWatcher) CheckWatch() ([]int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var buf [unix.SizeofInotifyEvent * 64]byte
	for {
		n, err := w.file.Read(buf[:])
		if err != nil {
			// EAGAIN/EWOULDBLOCK (surfaced as a plain read error on the
			// nonblocking fd) just means there is nothing more to drain.
			break
		}
		if n < unix.SizeofInotifyEvent {
			break
		}
		w.consume(buf[:n])
	}

	now := w.nowMillis()
	for id, e := range w.byID {
		if e.reloadTimeout != 0 && now >= e.reloadTimeout {
			w.pending[id] = struct{}{}
			e.reloadTimeout = 0
		}
	}

	ids := make([]int, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	w.pending = make(map[int]struct{})
	return ids, nil
}

// WaitFD returns the inotify fd itself: every armed watch multiplexes onto
// this one descriptor, so a single poll/select entry covers all of them,
// the same fd original_source/src/filewatch_linux.c:38 pushes into
// rman->wait_fds.
func (w *inotifyWatcher) WaitFD() (uintptr, error) {
	return uintptr(w.fd), nil
}

// WaitHandles is unsupported on this backend; Windows has its own backend.
func (w *inotifyWatcher) WaitHandles() ([]Handle, error) {
	return nil, ErrUnsupported
}

func (w *inotifyWatcher) consume(buf []byte) {
	now := w.nowMillis()

	var offset uint32
	n := uint32(len(buf))
	for offset+unix.SizeofInotifyEvent <= n {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		mask := uint32(raw.Mask)
		nameLen := uint32(raw.Len)
		wd := raw.Wd

		e, known := w.byWD[wd]

		switch {
		case mask&unix.IN_MODIFY != 0:
			// Defer: wait for a matching close-write instead of reloading
			// on every intermediate write.
			if known {
				e.reloadTimeout = now + modifyDebounce.Milliseconds()
			}

		case mask&unix.IN_CLOSE_WRITE != 0:
			if known {
				w.pending[e.id] = struct{}{}
				e.reloadTimeout = 0
			}

		case mask&unix.IN_IGNORED != 0:
			// The kernel dropped the watch out from under us, almost always
			// because the file was deleted. Editors like vim replace a file
			// by renaming a temp file over it, so try re-arming on the same
			// path before giving up on the watch entirely.
			if known {
				delete(w.byWD, wd)
				if err := w.startWatchLocked(e.id, e.path); err != nil {
					delete(w.byID, e.id)
				} else {
					w.pending[e.id] = struct{}{}
				}
			}
		}

		offset += unix.SizeofInotifyEvent + nameLen
	}
}

func (w *inotifyWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.byID {
		w.unarmLocked(e)
	}
	w.byID = nil
	w.byWD = nil
	return w.file.Close()
}
