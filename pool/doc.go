// Package pool provides a bounded pool of reusable scratch objects.
//
// A Pool keeps at most MaxSize idle instances. Acquire always hands out an
// instance in its reset state: reused instances pass through Reset, new ones
// come straight from New. Memory pressure handling calls Trim to shrink the
// idle list back to InitialSize and Clear to drop it entirely.
//
//	timers := pool.NewTimerPool(4, 32)
//	t := timers.Acquire()
//	t.Reset(backoff)
//	<-t.C
//	timers.Release(t)
package pool
