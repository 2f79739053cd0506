package concurrent

import "sync"

type recorder struct {
	mu     sync.Mutex
	values []int64
}

func (r *recorder) OnProgress(done, total int64) {
	r.mu.Lock()
	r.values = append(r.values, done)
	r.mu.Unlock()
}
