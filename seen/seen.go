// Package seen is a bounded record of recently observed event ids, used to
// deduplicate a stream merged from several relays. Once the capacity is
// reached the oldest entry is evicted first, so the capacity is also the
// retention window: an id can be delivered again after enough newer ids have
// displaced it.
package seen

// T holds up to a fixed number of ids in insertion order. It is not safe for
// concurrent use, a merged stream has a single consumer that owns it.
type T struct {
	m     map[string]struct{}
	order []string
	head  int
}

// New creates a seen set holding at most capacity ids. A capacity below one
// is raised to one.
func New(capacity int) (s *T) {
	if capacity < 1 {
		capacity = 1
	}
	return &T{
		m:     make(map[string]struct{}, capacity),
		order: make([]string, 0, capacity),
	}
}

// Seen records an id and reports whether it was already present. When the set
// is full the oldest recorded id is evicted to make room.
func (s *T) Seen(id []byte) (already bool) {
	k := string(id)
	if _, already = s.m[k]; already {
		return
	}
	if len(s.order) < cap(s.order) {
		s.order = append(s.order, k)
	} else {
		delete(s.m, s.order[s.head])
		s.order[s.head] = k
		s.head++
		if s.head == len(s.order) {
			s.head = 0
		}
	}
	s.m[k] = struct{}{}
	return
}

// Len returns the number of ids currently held.
func (s *T) Len() int { return len(s.m) }

// Cap returns the retention capacity.
func (s *T) Cap() int { return cap(s.order) }
