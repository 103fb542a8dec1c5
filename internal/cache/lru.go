// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package cache

// lruNode is one entry in the recency list.
type lruNode[V any] struct {
	key   Key
	entry Entry[V]
	prev  *lruNode[V]
	next  *lruNode[V]
}

// lru is a capacity-bounded least-recently-used map with a secondary index
// by content hash so that every variant and modifier combination of one
// piece of content can be dropped together. Entries never expire.
//
// lru is not safe for concurrent use; AttributeCache serializes access.
type lru[V any] struct {
	capacity int
	items    map[Key]*lruNode[V]

	// byContent indexes keys by content hash.
	byContent map[string]map[Key]struct{}

	// head.next is the most recently used, tail.prev the least.
	head *lruNode[V]
	tail *lruNode[V]
}

func newLRU[V any](capacity int) *lru[V] {
	if capacity <= 0 {
		capacity = 10000
	}
	l := &lru[V]{
		capacity:  capacity,
		items:     make(map[Key]*lruNode[V], capacity),
		byContent: make(map[string]map[Key]struct{}),
		head:      &lruNode[V]{},
		tail:      &lruNode[V]{},
	}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

func (l *lru[V]) get(k Key) (Entry[V], bool) {
	n, ok := l.items[k]
	if !ok {
		var zero Entry[V]
		return zero, false
	}
	l.moveToFront(n)
	return n.entry, true
}

// put inserts or replaces k and returns how many entries were pushed out
// by the capacity bound.
func (l *lru[V]) put(k Key, e Entry[V]) int {
	if n, ok := l.items[k]; ok {
		n.entry = e
		l.moveToFront(n)
		return 0
	}

	n := &lruNode[V]{key: k, entry: e}
	l.addToFront(n)
	l.items[k] = n
	keys, ok := l.byContent[k.ContentHash]
	if !ok {
		keys = make(map[Key]struct{})
		l.byContent[k.ContentHash] = keys
	}
	keys[k] = struct{}{}

	evicted := 0
	for len(l.items) > l.capacity {
		oldest := l.tail.prev
		if oldest == l.head {
			break
		}
		l.remove(oldest)
		evicted++
	}
	return evicted
}

// removeContent drops every entry for contentHash.
func (l *lru[V]) removeContent(contentHash string) int {
	keys := l.byContent[contentHash]
	removed := 0
	for k := range keys {
		if n, ok := l.items[k]; ok {
			l.remove(n)
			removed++
		}
	}
	return removed
}

func (l *lru[V]) len() int {
	return len(l.items)
}

func (l *lru[V]) addToFront(n *lruNode[V]) {
	n.prev = l.head
	n.next = l.head.next
	l.head.next.prev = n
	l.head.next = n
}

func (l *lru[V]) moveToFront(n *lruNode[V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	l.addToFront(n)
}

func (l *lru[V]) remove(n *lruNode[V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	delete(l.items, n.key)
	if keys, ok := l.byContent[n.key.ContentHash]; ok {
		delete(keys, n.key)
		if len(keys) == 0 {
			delete(l.byContent, n.key.ContentHash)
		}
	}
}
