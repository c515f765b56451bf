package rtxp

import "container/list"

// stash is the bounded FIFO of unprocessed messages buffered while the
// publisher awaits a single external result (Funding/FundingReplacement
// transitions), replayed in arrival order once that result lands.
// Spec.md §5: "design minimum 100".
type stash struct {
	buf   *list.List
	limit int
}

func newStash(limit int) *stash {
	if limit < 100 {
		limit = 100
	}
	return &stash{buf: list.New(), limit: limit}
}

// push appends msg, dropping the oldest entry if the stash is full
// rather than blocking the publisher's single goroutine — a full stash
// means a collaborator is taking unusually long, and backpressure here
// would deadlock the actor rather than protect it.
func (s *stash) push(msg interface{}) (dropped bool) {
	if s.buf.Len() >= s.limit {
		s.buf.Remove(s.buf.Front())
		dropped = true
	}
	s.buf.PushBack(msg)
	return dropped
}

// drain removes and returns every stashed message in arrival order,
// leaving the stash empty.
func (s *stash) drain() []interface{} {
	out := make([]interface{}, 0, s.buf.Len())
	for e := s.buf.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	s.buf.Init()
	return out
}

func (s *stash) len() int { return s.buf.Len() }
