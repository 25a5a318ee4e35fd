package threadpool

import "sync"

// job is a single queued work item: a background work callback and an
// optional completion callback run immediately after it, still on the
// worker goroutine. Recycled through a sync.Pool instead of the hand-rolled,
// mutex-guarded, 64-item-capped free list the original C thread pool uses
// for the same purpose (see DESIGN.md) — sync.Pool already does per-P local
// recycling without a hard cap, which is what this module's teacher reaches
// for whenever it needs to recycle fixed-shape allocations.
type job struct {
	work func()
	done func()
	next *job
}

var jobPool = sync.Pool{New: func() interface{} { return &job{} }}

func getJob() *job {
	return jobPool.Get().(*job)
}

func putJob(j *job) {
	j.work, j.done, j.next = nil, nil, nil
	jobPool.Put(j)
}
