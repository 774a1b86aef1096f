package crawler

// Frontier is the FIFO queue of discovered URLs plus the set of visited ones.
// A URL is pending at most once and is never re-enqueued after it has been
// marked visited. It is not safe for concurrent use.
type Frontier struct {
	queue   []string
	head    int
	pending map[string]struct{}
	visited map[string]struct{}
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		pending: make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// Enqueue appends url unless it is already pending or visited.
// It reports whether url was added.
func (f *Frontier) Enqueue(url string) bool {
	if f.HasVisited(url) || f.IsPending(url) {
		return false
	}
	f.queue = append(f.queue, url)
	f.pending[url] = struct{}{}
	return true
}

// Offer passes at most limit URLs, in order, to Enqueue and drops the rest.
// It returns how many were actually added.
func (f *Frontier) Offer(urls []string, limit int) int {
	if limit >= 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	added := 0
	for _, u := range urls {
		if f.Enqueue(u) {
			added++
		}
	}
	return added
}

// Dequeue removes and returns the oldest pending URL
func (f *Frontier) Dequeue() (string, bool) {
	for f.head < len(f.queue) {
		url := f.queue[f.head]
		f.queue[f.head] = ""
		f.head++
		f.compact()

		if _, ok := f.pending[url]; !ok {
			// dropped by MarkVisited while still queued
			continue
		}
		delete(f.pending, url)
		return url, true
	}
	return "", false
}

// MarkVisited records url as processed
func (f *Frontier) MarkVisited(url string) {
	delete(f.pending, url)
	f.visited[url] = struct{}{}
}

// HasVisited reports whether url was processed
func (f *Frontier) HasVisited(url string) bool {
	_, ok := f.visited[url]
	return ok
}

// IsPending reports whether url is waiting in the queue
func (f *Frontier) IsPending(url string) bool {
	_, ok := f.pending[url]
	return ok
}

// Len returns the number of pending URLs
func (f *Frontier) Len() int {
	return len(f.pending)
}

// VisitedCount returns the number of visited URLs
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// compact releases the consumed prefix once it dominates the slice
func (f *Frontier) compact() {
	if f.head > 1024 && f.head*2 > len(f.queue) {
		f.queue = append([]string(nil), f.queue[f.head:]...)
		f.head = 0
	}
}
