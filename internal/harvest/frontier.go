package harvest

import "sync"

// Frontier holds the shared mutable crawl state: a bounded FIFO of
// pending entries, the set of titles already queued, and the set of
// titles already attempted. All methods are safe for concurrent use;
// every mutation happens under one mutex so the dedup invariant holds
// across dequeue, visited-check and enqueue.
type Frontier struct {
	mu      sync.Mutex
	queue   []FrontierEntry
	queued  map[string]struct{}
	visited map[string]struct{}
	maxSize int
}

// NewFrontier creates a Frontier bounded at maxSize queued entries.
func NewFrontier(maxSize int) *Frontier {
	return &Frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
		maxSize: maxSize,
	}
}

// EnqueueIfNew offers an entry to the queue. It returns false without
// queuing when the title was already queued or visited, or when the
// queue is at capacity. A full queue dropping links is the backpressure
// policy, not an error.
func (f *Frontier) EnqueueIfNew(entry FrontierEntry) bool {
	if entry.Title == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.visited[entry.Title]; seen {
		return false
	}
	if _, pending := f.queued[entry.Title]; pending {
		return false
	}
	if len(f.queue) >= f.maxSize {
		return false
	}
	f.queue = append(f.queue, entry)
	f.queued[entry.Title] = struct{}{}
	return true
}

// TryDequeue pops the oldest entry. The second return is false when the
// queue is empty.
func (f *Frontier) TryDequeue() (FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return FrontierEntry{}, false
	}
	entry := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.queued, entry.Title)
	return entry, true
}

// ClaimVisit marks the title visited and reports whether this caller is
// the first to do so. Workers call it after dequeue to close the
// dequeue-after-enqueue race window: only the first claimant proceeds.
func (f *Frontier) ClaimVisit(title string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.visited[title]; seen {
		return false
	}
	f.visited[title] = struct{}{}
	return true
}

// MarkVisited records titles as visited without dequeuing them. Used to
// preload the visited set from already-stored articles.
func (f *Frontier) MarkVisited(titles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range titles {
		if t != "" {
			f.visited[t] = struct{}{}
		}
	}
}

// Depth returns the number of queued entries.
func (f *Frontier) Depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// VisitedCount returns how many titles have been marked visited.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
