// Package resman implements the resource registry: path-deduplicated,
// id-addressed, background-loaded, watch-reloaded data files with a
// two-stage load/done dispatch split between worker goroutines and a
// single polling goroutine.
//
// Only the goroutine that calls Poll may observe Done/Destroy callbacks;
// everything else may be called from any goroutine.
package resman

import (
	"os"
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/jtsiomb/goresman/pkg/logging"
	"github.com/jtsiomb/goresman/pkg/threadpool"
	"github.com/jtsiomb/goresman/pkg/watch"
)

// Option selects a tunable registry setting. The only one defined is
// OptTimeslice; unknown options are silently ignored by SetOpt/GetOpt,
// matching the original's "if out of range, do nothing" behavior.
type Option int

const (
	// OptTimeslice caps, in milliseconds, how long a single Poll call may
	// spend dispatching Done callbacks before deferring the rest to the
	// next call. Default 16ms.
	OptTimeslice Option = iota
	numOptions
)

// Callbacks are the three application-supplied hooks. Load runs on a
// worker goroutine; Done and Destroy run only from the goroutine calling
// Poll.
type Callbacks struct {
	// Load reads and parses path, returning a negative result code on
	// failure. It typically calls Manager.SetResData to attach the
	// parsed artifact.
	Load func(path string, id int) int32

	// Done is invoked once a load (or reload) completes. Returning -1 on
	// a resource that has never loaded successfully destroys it; on any
	// other call it is kept and stays armed for a future reload. May be
	// nil, in which case failures are judged by Load's result alone.
	Done func(id int) int32

	// Destroy releases whatever artifact SetResData attached, right
	// before a resource's slot is freed. May be nil.
	Destroy func(id int)
}

// Config configures a new Manager.
type Config struct {
	Callbacks Callbacks

	// Logger receives watcher-arm failures and similar non-fatal events.
	// Defaults to a discarding logger.
	Logger *logging.Logger
}

// Manager is a resource registry: one shared thread pool reference, one
// file watcher, and a dense, hole-reusing array of resources indexed by id.
type Manager struct {
	callbacks Callbacks
	logger    *logging.Logger

	pool    *threadpool.Pool
	watcher watch.Watcher

	mu  sync.Mutex
	res []*resource

	pathIndex *xsync.MapOf[string, int]

	opts [numOptions]int

	closed bool
}

// New creates a registry, taking a reference on the process-wide shared
// thread pool (created lazily by the first Manager, sized by RESMAN_THREADS)
// and starting a platform file watcher.
func New(cfg Config) (*Manager, error) {
	pool, err := acquireSharedPool()
	if err != nil {
		return nil, newError(KindThreadPoolStartup, "New", err)
	}

	w, err := watch.New()
	if err != nil {
		releaseSharedPool()
		return nil, newError(KindAllocation, "New", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	m := &Manager{
		callbacks: cfg.Callbacks,
		logger:    logger,
		pool:      pool,
		watcher:   w,
		pathIndex: xsync.NewMapOf[string, int](),
	}
	m.opts[OptTimeslice] = 16
	return m, nil
}

// SetLoadFunc, SetDoneFunc and SetDestroyFunc register or replace a single
// callback, for callers that build the Callbacks struct up incrementally
// instead of passing it to New all at once.
func (m *Manager) SetLoadFunc(f func(path string, id int) int32) { m.callbacks.Load = f }
func (m *Manager) SetDoneFunc(f func(id int) int32)               { m.callbacks.Done = f }
func (m *Manager) SetDestroyFunc(f func(id int))                  { m.callbacks.Destroy = f }

// SetOpt tunes a registry option. Out-of-range options are ignored.
func (m *Manager) SetOpt(opt Option, val int) {
	if opt < 0 || opt >= numOptions {
		return
	}
	m.opts[opt] = val
}

// GetOpt reads a registry option. Out-of-range options read back as 0.
func (m *Manager) GetOpt(opt Option) int {
	if opt < 0 || opt >= numOptions {
		return 0
	}
	return m.opts[opt]
}

// Add registers path, deduplicating by path: a second Add for a path
// already known returns the same id without starting a new load. A new
// path gets an id (reusing an empty slot left by a prior Remove if one
// exists, or appending) and an immediate background load is enqueued.
// Lookup is a backward-compatible alias.
func (m *Manager) Add(path string, data any) int {
	if id, ok := m.pathIndex.Load(path); ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.pathIndex.Load(path); ok {
		return id
	}

	res := &resource{path: path, data: data}

	idx := -1
	for i, r := range m.res {
		if r == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = len(m.res)
		m.res = append(m.res, res)
	} else {
		m.res[idx] = res
	}
	res.id = idx

	m.pathIndex.Store(path, idx)
	m.reload(res)
	return idx
}

// Lookup is a backward-compatible alias for Add.
func (m *Manager) Lookup(path string, data any) int { return m.Add(path, data) }

// Find returns path's id, or -1 if it is not registered. Never blocks on
// the registry mutex: the common lookup path is a lock-free map read.
func (m *Manager) Find(path string) int {
	if id, ok := m.pathIndex.Load(path); ok {
		return id
	}
	return -1
}

// Remove marks id for deletion. Destruction happens on the next Poll call
// once the resource is no longer pending a load.
func (m *Manager) Remove(id int) error {
	res, err := m.lookupByID(id)
	if err != nil {
		return err
	}
	res.mu.Lock()
	res.deletePending = true
	res.mu.Unlock()
	return nil
}

// Pending returns the total number of queued plus active background jobs
// across every resource in the registry (they share one pool).
func (m *Manager) Pending() int {
	return m.pool.PendingJobs()
}

func (m *Manager) lookupByID(id int) (*resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.res) || m.res[id] == nil {
		return nil, ErrUnknownResource
	}
	return m.res[id], nil
}

// GetResName returns id's path, or "" if id is unknown.
func (m *Manager) GetResName(id int) string {
	res, err := m.lookupByID(id)
	if err != nil {
		return ""
	}
	return res.path
}

// SetResData attaches arbitrary user data to id, typically called by a
// Load callback with the parsed artifact.
func (m *Manager) SetResData(id int, data any) {
	res, err := m.lookupByID(id)
	if err != nil {
		return
	}
	res.mu.Lock()
	res.data = data
	res.mu.Unlock()
}

// GetResData returns id's attached data, or nil if id is unknown.
func (m *Manager) GetResData(id int) any {
	res, err := m.lookupByID(id)
	if err != nil {
		return nil
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	return res.data
}

// GetResResult returns id's last Load result code, or -1 if id is unknown.
func (m *Manager) GetResResult(id int) int32 {
	res, err := m.lookupByID(id)
	if err != nil {
		return -1
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	return res.result
}

// GetResLoadCount returns the number of successful loads recorded for id,
// or -1 if id is unknown.
func (m *Manager) GetResLoadCount(id int) int {
	res, err := m.lookupByID(id)
	if err != nil {
		return -1
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	return res.numLoads
}

// reload enqueues a background load for res. The work item is taken from
// the registry's own recycler, distinct from the pool's internal job free
// list.
func (m *Manager) reload(res *resource) {
	w := getWorkItem(res)

	res.mu.Lock()
	res.pending = true
	res.mu.Unlock()

	m.pool.Enqueue(func() { m.workFunc(w) }, nil)
}

// workFunc is the pool work callback that runs Load on a worker goroutine.
func (m *Manager) workFunc(w *workItem) {
	res := w.res
	putWorkItem(w)

	result := int32(-1)
	if m.callbacks.Load != nil {
		result = m.callbacks.Load(res.path, res.id)
	}

	res.mu.Lock()
	res.result = result
	res.pending = false

	if m.callbacks.Done == nil {
		if result < 0 {
			if res.numLoads == 0 {
				res.deletePending = true
			}
		} else {
			res.numLoads++
			m.armWatch(res)
		}
	} else {
		res.donePending = true
	}
	res.mu.Unlock()
}

// armWatch starts a file-modification watch on res.path, idempotently.
// Must be called with res.mu held.
func (m *Manager) armWatch(res *resource) {
	if res.watching {
		return
	}
	if err := m.watcher.StartWatch(res.id, res.path); err != nil {
		m.logger.Warnf("resman: failed to watch %q for modification: %v", res.path, err)
		return
	}
	res.watching = true
}

// Close runs Destroy for every remaining resource, releases the registry's
// reference on the shared pool, and tears down its watcher. No further
// calls may be made on the Manager afterward.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	live := make([]*resource, len(m.res))
	copy(live, m.res)
	m.mu.Unlock()

	// Destroy runs without the registry mutex held, so it may call back
	// into the Manager (GetResData, GetResName, ...) for its resource.
	for id, res := range live {
		if res == nil {
			continue
		}
		if m.callbacks.Destroy != nil {
			m.callbacks.Destroy(id)
		}
	}

	m.mu.Lock()
	m.res = nil
	m.mu.Unlock()

	m.watcher.Close()
	releaseSharedPool()
	return nil
}

var (
	sharedPoolMu   sync.Mutex
	sharedPool     *threadpool.Pool
	sharedPoolRefs int
)

// acquireSharedPool returns the process-wide shared pool, creating it on
// the first call. Pool size is read from RESMAN_THREADS (0 or unset means
// auto-detect), the same environment variable and fallback the original
// library's resman_init reads.
func acquireSharedPool() (*threadpool.Pool, error) {
	sharedPoolMu.Lock()
	defer sharedPoolMu.Unlock()

	if sharedPool == nil {
		n := 0
		if env := os.Getenv("RESMAN_THREADS"); env != "" {
			if v, err := strconv.Atoi(env); err == nil {
				n = v
			}
		}
		p, err := threadpool.New(threadpool.Config{NumThreads: n})
		if err != nil {
			return nil, err
		}
		sharedPool = p
		sharedPoolRefs = 0
	} else {
		sharedPool.AddRef()
	}
	sharedPoolRefs++
	return sharedPool, nil
}

// releaseSharedPool drops this Manager's reference on the shared pool,
// tearing it down once the last registry in the process releases it so a
// future Manager can create a fresh one (tests rely on this for isolation;
// there is no true process-wide singleton).
func releaseSharedPool() {
	sharedPoolMu.Lock()
	defer sharedPoolMu.Unlock()

	if sharedPool == nil {
		return
	}
	sharedPoolRefs--
	sharedPool.Release()
	if sharedPoolRefs <= 0 {
		sharedPool = nil
		sharedPoolRefs = 0
	}
}
