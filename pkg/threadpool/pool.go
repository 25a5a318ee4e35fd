// Package threadpool implements the shared worker pool that backs the
// resource registry's background loads: a FIFO work queue served by a fixed
// set of worker goroutines, with batch submission, reference counting,
// pending-job accounting, blocking/timed waits, and a cross-platform
// completion notifier an application's own event loop can select/wait on.
//
// It is a direct generalization of the original library's tpool.c: the
// linked-list FIFO, the (qsize, nactive) accounting pair, and the two
// condition variables (work-available, job-done) are all kept; raw function
// pointer + closure-argument pairs become plain closures.
package threadpool

import (
	"runtime"
	"sync"
	"time"
)

// Config configures a Pool. Mirrors the teacher's workers.Config shape:
// a plain struct with intelligent zero-value defaults, not functional
// options.
type Config struct {
	// NumThreads is the number of persistent worker goroutines to start.
	// Zero or negative means auto-detect (runtime.NumCPU()).
	NumThreads int
}

// Pool is a FIFO work queue served by a fixed set of worker goroutines.
type Pool struct {
	mu            sync.Mutex
	workAvailable *sync.Cond
	jobDone       *sync.Cond

	head, tail *job
	qsize      int
	nactive    int

	shouldQuit bool
	inBatch    bool

	wg sync.WaitGroup

	nrefMu sync.Mutex
	nref   int

	waker completionWaker
}

// New creates a pool with the given configuration and starts its worker
// goroutines immediately. The returned pool has a reference count of 1.
func New(cfg Config) (*Pool, error) {
	n := cfg.NumThreads
	if n <= 0 {
		if n = runtime.NumCPU(); n < 1 {
			n = 1
		}
	}

	p := &Pool{nref: 1, waker: newWaker()}
	p.workAvailable = sync.NewCond(&p.mu)
	p.jobDone = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.workerLoop()
	}
	return p, nil
}

// AddRef increments the pool's reference count and returns the new count.
func (p *Pool) AddRef() int {
	p.nrefMu.Lock()
	defer p.nrefMu.Unlock()
	p.nref++
	return p.nref
}

// Release decrements the pool's reference count. When the count reaches
// zero the pool is torn down: the queue is cleared, every worker goroutine
// is signaled to quit and joined, and any external waiter on WaitFD/
// WaitHandle is woken up one last time.
func (p *Pool) Release() int {
	p.nrefMu.Lock()
	p.nref--
	n := p.nref
	p.nrefMu.Unlock()

	if n <= 0 {
		p.shutdown()
	}
	return n
}

func (p *Pool) shutdown() {
	p.mu.Lock()
	p.head, p.tail, p.qsize = nil, nil, 0
	p.shouldQuit = true
	p.mu.Unlock()
	p.workAvailable.Broadcast()

	p.wg.Wait()

	p.mu.Lock()
	p.nactive = 0
	p.mu.Unlock()
	p.jobDone.Broadcast()
	p.waker.signal()
	p.waker.close()
}

// BeginBatch suppresses the work-available wakeup for subsequent Enqueue
// calls until EndBatch is called, so a large batch can be submitted without
// waking idle workers one broadcast at a time.
func (p *Pool) BeginBatch() {
	p.mu.Lock()
	p.inBatch = true
	p.mu.Unlock()
}

// EndBatch resumes normal wakeup behavior and wakes any worker that was left
// sleeping while the batch was being queued.
func (p *Pool) EndBatch() {
	p.mu.Lock()
	p.inBatch = false
	p.mu.Unlock()
	p.workAvailable.Broadcast()
}

// Enqueue appends a work item to the tail of the FIFO. work runs on a
// worker goroutine; done, if non-nil, runs immediately afterward on the same
// goroutine. Enqueue never blocks.
func (p *Pool) Enqueue(work func(), done func()) error {
	if work == nil {
		return ErrNilWork
	}

	j := getJob()
	j.work, j.done, j.next = work, done, nil

	p.mu.Lock()
	if p.tail != nil {
		p.tail.next = j
		p.tail = j
	} else {
		p.head, p.tail = j, j
	}
	p.qsize++
	inBatch := p.inBatch
	p.mu.Unlock()

	if !inBatch {
		p.workAvailable.Broadcast()
	}
	return nil
}

// QueuedJobs returns the number of items waiting in the queue.
func (p *Pool) QueuedJobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.qsize
}

// ActiveJobs returns the number of workers currently executing a job.
func (p *Pool) ActiveJobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nactive
}

// PendingJobs returns QueuedJobs()+ActiveJobs(), the total amount of
// outstanding work.
func (p *Pool) PendingJobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.qsize + p.nactive
}

// Wait blocks until the queue is empty and no worker is active.
func (p *Pool) Wait() {
	p.mu.Lock()
	for p.qsize+p.nactive > 0 {
		p.jobDone.Wait()
	}
	p.mu.Unlock()
}

// WaitPending blocks until the amount of pending work (queued+active) is at
// most target.
func (p *Pool) WaitPending(target int) {
	p.mu.Lock()
	for p.qsize+p.nactive > target {
		p.jobDone.Wait()
	}
	p.mu.Unlock()
}

// TimedWait behaves like Wait but gives up once timeout has elapsed. It
// returns the actual time spent waiting.
//
// sync.Cond has no native deadline-wait; the original library relies on
// pthread_cond_timedwait with an absolute deadline. The equivalent idiom
// here is a time.AfterFunc that rebroadcasts jobDone once the deadline
// passes, so a sleeping waiter always wakes up to re-check the deadline.
func (p *Pool) TimedWait(timeout time.Duration) time.Duration {
	start := time.Now()
	deadline := start.Add(timeout)

	timer := time.AfterFunc(timeout, func() {
		p.mu.Lock()
		p.jobDone.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()

	p.mu.Lock()
	for p.qsize+p.nactive > 0 && time.Now().Before(deadline) {
		p.jobDone.Wait()
	}
	p.mu.Unlock()

	return time.Since(start)
}

// WaitFD returns the read end of the pool's completion-notification pipe on
// POSIX platforms, creating it lazily on first call. One byte is written to
// the pipe each time a job finishes; reads should be nonblocking (the fd is
// already put in O_NONBLOCK mode) since the notifier coalesces writes and
// correctness never depends on counting them. Returns ErrUnsupported on
// Windows.
func (p *Pool) WaitFD() (uintptr, error) {
	return p.waker.waitFD()
}

// WaitHandle returns an auto-reset event signaled once per completed job on
// Windows, creating it lazily on first call. Returns ErrUnsupported on
// POSIX.
func (p *Pool) WaitHandle() (Handle, error) {
	return p.waker.waitHandle()
}

// DrainNotifications empties any buffered completion-pipe bytes without
// blocking. It is a no-op if WaitFD has never been called, and a no-op
// entirely on Windows. A consumer that owns its own select/poll loop around
// WaitFD should call this after waking up.
func (p *Pool) DrainNotifications() {
	p.waker.drain()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()

	p.mu.Lock()
	for !p.shouldQuit {
		if p.head == nil {
			p.workAvailable.Wait()
			continue
		}

		for !p.shouldQuit && p.head != nil {
			j := p.head
			p.head = j.next
			if p.head == nil {
				p.tail = nil
			}
			p.nactive++
			p.qsize--
			p.mu.Unlock()

			j.work()
			if j.done != nil {
				j.done()
			}
			putJob(j)

			p.mu.Lock()
			p.nactive--
			p.jobDone.Broadcast()
			p.waker.signal()
		}
	}
	p.mu.Unlock()
}
