package crawler

// frontierEntry is one unit of pending traversal work.
type frontierEntry struct {
	url   string
	depth int
}

// Frontier is the FIFO queue of pending (URL, depth) pairs. Breadth-first
// order falls out of strict FIFO discipline: every entry discovered at
// depth n is dequeued before any entry discovered at depth n+1.
// Not safe for concurrent use; the engine drains it sequentially.
type Frontier struct {
	entries []frontierEntry
}

// NewFrontier returns an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{}
}

// Push appends an entry at the tail.
func (f *Frontier) Push(url string, depth int) {
	f.entries = append(f.entries, frontierEntry{url: url, depth: depth})
}

// Pop removes and returns the head entry.
func (f *Frontier) Pop() (frontierEntry, bool) {
	if len(f.entries) == 0 {
		return frontierEntry{}, false
	}
	head := f.entries[0]
	f.entries = f.entries[1:]
	return head, true
}

// Len returns the number of pending entries.
func (f *Frontier) Len() int {
	return len(f.entries)
}

// VisitedSet tracks normalized URLs that have been dequeued for fetching.
// Membership grows monotonically for the lifetime of one crawl run; there
// is no cross-run persistence.
type VisitedSet struct {
	seen map[string]struct{}
}

// NewVisitedSet returns an empty visited set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// Seen reports whether the URL was already marked.
func (v *VisitedSet) Seen(normalized string) bool {
	_, ok := v.seen[normalized]
	return ok
}

// Mark records the URL. Marking twice is harmless.
func (v *VisitedSet) Mark(normalized string) {
	v.seen[normalized] = struct{}{}
}

// Len returns the number of distinct URLs marked.
func (v *VisitedSet) Len() int {
	return len(v.seen)
}
