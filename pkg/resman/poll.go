package resman

import "github.com/jtsiomb/goresman/pkg/clock"

// Poll drives the registry from the calling goroutine, which becomes, for
// the duration of this call, "the polling thread": the only place Done and
// Destroy are ever invoked. It performs, in order:
//
//  1. Free every resource marked for deletion whose load has finished.
//  2. Check the watcher for modified files (including those whose
//     deferred-reload, IN_MODIFY-only timeout has expired inside the
//     watcher) and enqueue reloads for them.
//  3. Drain any buffered pool completion notifications.
//  4. Return early if no Done callback is registered.
//  5. Dispatch Done for every resource whose load has completed, honoring
//     the per-call OptTimeslice budget.
func (m *Manager) Poll() {
	m.reapDeleted()

	m.checkWatch()

	m.pool.DrainNotifications()

	if m.callbacks.Done == nil {
		return
	}

	m.dispatchDone()
}

// reapDeleted frees every resource that is both marked for deletion and no
// longer pending a background load.
func (m *Manager) reapDeleted() {
	m.mu.Lock()
	var ready []*resource
	for _, res := range m.res {
		if res == nil {
			continue
		}
		res.mu.Lock()
		if res.deletePending && !res.pending {
			ready = append(ready, res)
		}
		res.mu.Unlock()
	}
	m.mu.Unlock()

	// Destroy runs without the registry mutex held, so it may call back
	// into the Manager (GetResData, GetResName, ...) for its resource.
	for _, res := range ready {
		id := res.id
		if m.callbacks.Destroy != nil {
			m.callbacks.Destroy(id)
		}
		if res.watching {
			m.watcher.StopWatch(id)
		}
		m.mu.Lock()
		m.pathIndex.Delete(res.path)
		m.res[id] = nil
		m.mu.Unlock()
	}
}

// checkWatch asks the watcher which ids need a reload and enqueues one for
// each that is still live.
func (m *Manager) checkWatch() {
	ids, err := m.watcher.CheckWatch()
	if err != nil || len(ids) == 0 {
		return
	}

	for _, id := range ids {
		res, err := m.lookupByID(id)
		if err != nil {
			continue
		}
		m.reload(res)
	}
}

// dispatchDone runs Done for every resource with a completed load,
// capped by OptTimeslice milliseconds of wall-clock time per call.
func (m *Manager) dispatchDone() {
	m.mu.Lock()
	resources := make([]*resource, len(m.res))
	copy(resources, m.res)
	m.mu.Unlock()

	startTime := clock.NowMillis()
	timeslice := int64(m.GetOpt(OptTimeslice))

	for id, res := range resources {
		if res == nil {
			continue
		}

		res.mu.Lock()
		if !res.donePending {
			res.mu.Unlock()
			continue
		}
		res.donePending = false
		res.mu.Unlock()

		result := m.callbacks.Done(id)
		if result < 0 {
			res.mu.Lock()
			noPriorSuccess := res.numLoads == 0
			res.mu.Unlock()
			if noPriorSuccess {
				m.markDeleted(res)
				continue
			}
		}

		res.mu.Lock()
		res.numLoads++
		m.armWatch(res)
		res.mu.Unlock()

		if timeslice > 0 && clock.NowMillis()-startTime > timeslice {
			break
		}
	}
}

// markDeleted flags res for removal on a future Poll, used when Done
// returns -1 on a resource that has never loaded successfully.
func (m *Manager) markDeleted(res *resource) {
	res.mu.Lock()
	res.deletePending = true
	res.mu.Unlock()
}
