// Package memory keeps batch extraction inside the container's memory
// budget.
//
// [Configure] derives GOMEMLIMIT from the container limit (the
// memory_limit and memory_ratio configuration keys, usually fed from the
// Kubernetes Downward API). An explicit GOMEMLIMIT always wins.
//
// A [Monitor] samples heap usage and, above the critical water mark, holds
// back new extractions until usage drops below the high water mark:
//
//	m := memory.NewMonitor(memory.DefaultConfig())
//	m.Start()
//	defer m.Stop()
//
//	if err := m.Wait(ctx); err != nil {
//	    return err
//	}
//
// Decoded frames are held only for the duration of one capture, so the
// monitor gates whole sources rather than individual offsets.
package memory
