// Package clock provides the monotonic millisecond timestamp source that
// resman's Poll uses to enforce its OptTimeslice budget.
package clock

import (
	"sync"
	"time"
)

var (
	epochOnce sync.Once
	epoch     time.Time
)

// NowMillis returns milliseconds elapsed since the first call to NowMillis
// in this process. The first call establishes the epoch and returns 0,
// mirroring resman_get_time_msec's relative-timestamp behavior.
func NowMillis() int64 {
	epochOnce.Do(func() {
		epoch = time.Now()
	})
	return time.Since(epoch).Milliseconds()
}
