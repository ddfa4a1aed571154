package algo

// orderSet tracks outstanding order ids for one leg: insertion-ordered and
// unique by id, so the timeout path can always cancel the oldest quote.
type orderSet struct {
	ids   []string
	index map[string]struct{}
}

func newOrderSet() *orderSet {
	return &orderSet{index: make(map[string]struct{})}
}

func (s *orderSet) Add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *orderSet) Remove(id string) {
	if _, ok := s.index[id]; !ok {
		return
	}
	delete(s.index, id)
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

func (s *orderSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Oldest returns the earliest-inserted id still outstanding.
func (s *orderSet) Oldest() (string, bool) {
	if len(s.ids) == 0 {
		return "", false
	}
	return s.ids[0], true
}

func (s *orderSet) Len() int { return len(s.ids) }
