package crawler

import "sync"

// Frontier tracks pending and visited URLs for a single crawl run.
// A URL is never in both sets, and enqueueing a known URL is a no-op.
// Pending URLs come back out in the order they were first enqueued.
type Frontier struct {
	mu      sync.Mutex
	order   []string
	head    int
	pending map[string]struct{}
	claimed map[string]struct{}
	visited map[string]struct{}
}

// NewFrontier returns an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		pending: make(map[string]struct{}),
		claimed: make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// Enqueue adds url to pending unless it is already pending or visited.
// It reports whether the URL was added.
func (f *Frontier) Enqueue(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.visited[url]; ok {
		return false
	}
	if _, ok := f.pending[url]; ok {
		return false
	}
	f.pending[url] = struct{}{}
	f.order = append(f.order, url)
	return true
}

// Dequeue returns the oldest pending URL without removing it.
func (f *Frontier) Dequeue() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compact()
	if f.head == len(f.order) {
		return "", false
	}
	return f.order[f.head], true
}

// Claim returns the oldest pending URL not already claimed and records the
// claim. The URL stays pending until MarkVisited.
func (f *Frontier) Claim() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compact()
	for _, url := range f.order[f.head:] {
		if _, ok := f.pending[url]; !ok {
			continue
		}
		if _, ok := f.claimed[url]; ok {
			continue
		}
		f.claimed[url] = struct{}{}
		return url, true
	}
	return "", false
}

// MarkVisited moves url from pending (if present) to visited. It is idempotent.
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, url)
	delete(f.claimed, url)
	f.visited[url] = struct{}{}
}

// Visited reports whether url has been marked visited.
func (f *Frontier) Visited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Pending reports whether url is waiting to be processed.
func (f *Frontier) Pending(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[url]
	return ok
}

// Size returns the visited and pending counts.
func (f *Frontier) Size() (visited, pending int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited), len(f.pending)
}

// compact advances head past entries that are no longer pending and
// reclaims the dead prefix once it covers half of order.
// Callers must hold f.mu.
func (f *Frontier) compact() {
	for f.head < len(f.order) {
		if _, ok := f.pending[f.order[f.head]]; ok {
			break
		}
		f.order[f.head] = ""
		f.head++
	}
	if f.head > 0 && f.head*2 >= len(f.order) {
		f.order = append(f.order[:0], f.order[f.head:]...)
		f.head = 0
	}
}
