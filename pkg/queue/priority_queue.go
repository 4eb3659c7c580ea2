// Package queue holds the crawl frontier: a blocking priority queue that
// hands out shallower pages first.
package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/models"
)

type pqItem struct {
	work  *models.WorkItem
	seq   uint64 // insertion order; breaks ties between equal depths
	index int
}

// itemHeap implements heap.Interface ordered by depth, then insertion order
type itemHeap []*pqItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].work.Depth != h[j].work.Depth {
		return h[i].work.Depth < h[j].work.Depth
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// ThreadSafePriorityQueue is a blocking min-depth queue shared by workers
type ThreadSafePriorityQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  itemHeap
	seq    uint64
	closed bool
	log    *logrus.Entry
}

// NewThreadSafePriorityQueue creates an empty, open queue
func NewThreadSafePriorityQueue(log *logrus.Entry) *ThreadSafePriorityQueue {
	q := &ThreadSafePriorityQueue{log: log}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.items)
	return q
}

// Add enqueues item. Items added after Close are dropped and Add returns false.
func (q *ThreadSafePriorityQueue) Add(item *models.WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Debugf("Dropping item added to closed queue: %s", item.URL)
		return false
	}
	q.seq++
	heap.Push(&q.items, &pqItem{work: item, seq: q.seq})
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed and drained.
// It returns false only in the latter case.
func (q *ThreadSafePriorityQueue) Pop() (*models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
	return heap.Pop(&q.items).(*pqItem).work, true
}

// Close stops further Adds and wakes every waiting Pop. Items already queued
// are still handed out. Safe to call more than once.
func (q *ThreadSafePriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}

// Drain removes and returns every queued item without blocking
func (q *ThreadSafePriorityQueue) Drain() []*models.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.WorkItem, 0, len(q.items))
	for len(q.items) > 0 {
		out = append(out, heap.Pop(&q.items).(*pqItem).work)
	}
	return out
}

// Len returns the number of queued items
func (q *ThreadSafePriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
