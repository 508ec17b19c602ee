package pipeline

import "sync"

// errAgg aggregates row-level error messages: it counts all of them and keeps
// the first limit for the run summary.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int64
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if len(a.first) < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

func (a *errAgg) snapshot() (int64, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count, append([]string(nil), a.first...)
}
