// Package queue holds the crawl frontier: a FIFO of work items that admits
// each URL at most once per run.
package queue

import (
	"sync"

	"github.com/sells-group/bizcrawl/internal/model"
)

// Memory is an in-process, insert-if-absent FIFO queue. It is safe for
// concurrent use.
type Memory struct {
	mu        sync.Mutex
	items     []model.WorkItem
	seen      map[string]struct{}
	maxDetail int
	details   int
	inFlight  int
	dropped   int
}

// NewMemory creates a queue. maxDetail caps the number of DETAIL items ever
// admitted; zero or less means unlimited.
func NewMemory(maxDetail int) *Memory {
	return &Memory{seen: make(map[string]struct{}), maxDetail: maxDetail}
}

// Push enqueues items whose key has not been seen and returns how many
// were admitted. Items without a URL are dropped. Once the DETAIL cap is
// reached every further item is dropped as well, since another search page
// could only yield details that no longer fit. Labels are not checked here;
// the consumer decides what to do with an unknown one.
func (q *Memory) Push(items ...model.WorkItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := 0
	for _, it := range items {
		key := it.Key()
		if key == "" {
			q.dropped++
			continue
		}
		if _, ok := q.seen[key]; ok {
			continue
		}
		if q.full() {
			q.dropped++
			continue
		}
		q.seen[key] = struct{}{}
		if it.Label == model.LabelDetail {
			q.details++
		}
		q.items = append(q.items, it)
		added++
	}
	return added
}

func (q *Memory) full() bool {
	return q.maxDetail > 0 && q.details >= q.maxDetail
}

// Pop removes the oldest item. Every successful Pop must be matched by a
// Done once the item has been processed. SEARCH items still queued when the
// DETAIL cap fills are discarded instead of returned.
func (q *Memory) Pop() (model.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 {
		it := q.items[0]
		q.items[0] = model.WorkItem{}
		q.items = q.items[1:]
		if it.Label == model.LabelSearch && q.full() {
			q.dropped++
			continue
		}
		q.inFlight++
		return it, true
	}
	return model.WorkItem{}, false
}

// Done marks a popped item as processed.
func (q *Memory) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight > 0 {
		q.inFlight--
	}
}

// Drained reports whether nothing is queued and nothing is in flight, so
// no further items can appear.
func (q *Memory) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && q.inFlight == 0
}

// Len returns the number of queued items.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns the number of distinct URLs admitted and the number of
// items dropped for lacking a URL or arriving after the DETAIL cap.
func (q *Memory) Stats() (admitted, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seen), q.dropped
}
