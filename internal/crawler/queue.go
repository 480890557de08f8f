package crawler

import "sync"

// PageQueue hands out the page numbers of one batch to workers in order
type PageQueue struct {
	mu      sync.Mutex
	pages   []int
	stopped bool
}

// NewPageQueue creates a queue holding pages start..start+count-1
func NewPageQueue(start, count int) *PageQueue {
	pages := make([]int, 0, count)
	for i := 0; i < count; i++ {
		pages = append(pages, start+i)
	}
	return &PageQueue{pages: pages}
}

// Pop removes and returns the lowest pending page.
// Returns (0, false) once the queue is drained or stopped.
func (q *PageQueue) Pop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || len(q.pages) == 0 {
		return 0, false
	}

	page := q.pages[0]
	q.pages = q.pages[1:]
	return page, true
}

// Stop drops every pending page and returns how many were dropped.
// Pages already popped are not affected.
func (q *PageQueue) Stop() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.pages)
	q.pages = nil
	q.stopped = true
	return dropped
}

// Len returns the number of pending pages
func (q *PageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pages)
}
