package resman

import "sync"

// workItem is the registry's own recyclable node, distinct from the pool's
// internal job struct: it carries only the resource a background load is
// for, the same separation of concerns alloc_work_item/free_work_item kept
// from the pool's own work-item free list in the original library.
type workItem struct {
	res *resource
}

var workItemPool = sync.Pool{New: func() interface{} { return &workItem{} }}

func getWorkItem(res *resource) *workItem {
	w := workItemPool.Get().(*workItem)
	w.res = res
	return w
}

func putWorkItem(w *workItem) {
	w.res = nil
	workItemPool.Put(w)
}
