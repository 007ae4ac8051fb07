package feed

import (
	"sort"
	"sync"

	"coach-chat/internal/models"
)

// Store is the ordered, deduplicated message list of one scope.
// Iteration order is non-decreasing by CreatedAt.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	index    map[string]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]struct{})}
}

// Initialize replaces the store contents. Records are expected oldest first; records
// repeating an id are dropped.
func (s *Store) Initialize(records []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]models.Message, 0, len(records))
	s.index = make(map[string]struct{}, len(records))
	for _, m := range records {
		if _, ok := s.index[m.ID]; ok {
			continue
		}
		s.index[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

// Merge inserts m unless a message with the same id is present.
func (s *Store) Merge(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[m.ID]; ok {
		return false
	}
	s.index[m.ID] = struct{}{}

	n := len(s.messages)
	if n == 0 || !m.CreatedAt.Before(s.messages[n-1].CreatedAt) {
		s.messages = append(s.messages, m)
		return true
	}

	// first position holding a strictly newer message
	pos := sort.Search(n, func(i int) bool {
		return s.messages[i].CreatedAt.After(m.CreatedAt)
	})
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = m
	return true
}

// Remove deletes the message with the given id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the message with the given id.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.index[id]; !ok {
		return models.Message{}, false
	}
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// MarkReadFrom flags every unread message authored by authorID as read and returns
// how many changed.
func (s *Store) MarkReadFrom(authorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.messages {
		if s.messages[i].AuthorID == authorID && !s.messages[i].Read {
			s.messages[i].Read = true
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the messages, oldest first.
func (s *Store) Snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.Initialize(nil)
}
