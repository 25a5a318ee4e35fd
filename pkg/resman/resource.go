package resman

import "sync"

// resource mirrors the original library's struct resource field for field:
// a stable id, an owned path, opaque user data, the last load result, three
// lifecycle flags, a load counter, and a mutex serializing everything
// above between the worker that loads it and the polling thread that
// dispatches done/destroy and drives reload.
type resource struct {
	mu sync.Mutex

	id       int
	path     string
	data     any
	result   int32
	numLoads int

	pending       bool
	donePending   bool
	deletePending bool

	// watching is set once a watch has been armed on path, so re-arming
	// after every successful load stays idempotent the way
	// resman_start_watch's `if(res->nfd > 0) return 0` guard does.
	watching bool
}
