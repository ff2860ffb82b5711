package estd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tacrodose/pkengine/internal/estimation"
	"github.com/tacrodose/pkengine/pkg/config"
	"github.com/tacrodose/pkengine/pkg/utils"
)

var (
	ErrEstimateNotFound = errors.New("estimate not found")
	ErrEstimateExists   = errors.New("estimate already exists")
	ErrInvalidRequest   = errors.New("invalid request")
)

// EstimateRecord is a processed case kept for later retrieval
type EstimateRecord struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Case      *config.Case       `json:"case"`
	Report    *estimation.Report `json:"report"`
}

// EstimateStore keeps estimates in memory in creation order
type EstimateStore struct {
	mu    sync.RWMutex
	byID  map[string]*EstimateRecord
	order []string
}

func NewEstimateStore() *EstimateStore {
	return &EstimateStore{
		byID: make(map[string]*EstimateRecord),
	}
}

// Create stores a report under id, generating an ID when id is empty
func (s *EstimateStore) Create(id string, c *config.Case, report *estimation.Report) (*EstimateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = utils.GenerateEstimateID()
	} else if !utils.ValidateID(id) {
		return nil, fmt.Errorf("%w: estimate id %q cannot contain '/', ':' or whitespace", ErrInvalidRequest, id)
	}
	if _, exists := s.byID[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrEstimateExists, id)
	}

	rec := &EstimateRecord{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Case:      c,
		Report:    report,
	}
	s.byID[id] = rec
	s.order = append(s.order, id)
	return rec, nil
}

func (s *EstimateStore) Get(id string) (*EstimateRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// Exists reports whether id is taken
func (s *EstimateStore) Exists(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// List returns up to limit records, oldest first, skipping offset records
func (s *EstimateStore) List(limit, offset int) []*EstimateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 || offset >= len(s.order) {
		return []*EstimateRecord{}
	}
	end := offset + limit
	if end > len(s.order) {
		end = len(s.order)
	}
	out := make([]*EstimateRecord, 0, end-offset)
	for _, id := range s.order[offset:end] {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of stored estimates
func (s *EstimateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
