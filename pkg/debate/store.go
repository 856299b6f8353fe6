package debate

import (
	"errors"
	"sync"

	"github.com/ffneuron/neuron/pkg/models"
)

// ErrNotFound is returned for an unknown debate id.
var ErrNotFound = errors.New("debate not found")

// Store keeps debates in memory. Callers get copies.
type Store struct {
	mu      sync.RWMutex
	debates map[string]*models.Debate
	locks   map[string]*sync.Mutex
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		debates: make(map[string]*models.Debate),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Save stores d, replacing any debate with the same id.
func (s *Store) Save(d *models.Debate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debates[d.ID] = clone(d)
	if s.locks[d.ID] == nil {
		s.locks[d.ID] = &sync.Mutex{}
	}
}

// Get returns a copy of the debate.
func (s *Store) Get(id string) (*models.Debate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.debates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(d), nil
}

// Len returns the number of stored debates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.debates)
}

// lock serializes updates to one debate.
func (s *Store) lock(id string) (unlock func(), err error) {
	s.mu.RLock()
	m, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	m.Lock()
	return m.Unlock, nil
}

func clone(d *models.Debate) *models.Debate {
	c := *d
	c.Agents = append([]string(nil), d.Agents...)
	c.Turns = append([]models.Turn(nil), d.Turns...)
	return &c
}
