package telegram

// seenSet remembers recently processed message ids in insertion order. When
// it grows past max entries it keeps only the most recent keep, enough
// history to catch provider redeliveries while bounding memory.
type seenSet struct {
	max  int
	keep int

	ids   map[int64]struct{}
	order []int64
}

func newSeenSet(max, keep int) *seenSet {
	return &seenSet{
		max:  max,
		keep: keep,
		ids:  make(map[int64]struct{}),
	}
}

// Mark records id and reports whether it was new. Duplicates return false
// without touching the set.
func (s *seenSet) Mark(id int64) bool {
	if _, dup := s.ids[id]; dup {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > s.max {
		cut := s.order[:len(s.order)-s.keep]
		for _, old := range cut {
			delete(s.ids, old)
		}
		s.order = append([]int64(nil), s.order[len(s.order)-s.keep:]...)
	}
	return true
}

// Len returns the number of remembered ids.
func (s *seenSet) Len() int { return len(s.order) }
