// Package memory keeps candidates in process memory. It backs local runs
// without PostgreSQL (STORE_DRIVER=memory) and store-level tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/repository/live"
)

type candidateRepository struct {
	mu     sync.Mutex
	rows   map[int64]domain.Candidate
	nextID int64
	hub    *live.Hub[[]domain.Candidate]
}

func NewCandidateRepository() domain.CandidateStore {
	r := &candidateRepository{
		rows:   make(map[int64]domain.Candidate),
		nextID: 1,
		hub:    live.NewHub[[]domain.Candidate](),
	}
	r.hub.Publish([]domain.Candidate{})
	return r
}

func (r *candidateRepository) Upsert(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.IsNew() {
		c.ID = r.nextID
		r.nextID++
	} else if c.ID >= r.nextID {
		r.nextID = c.ID + 1
	}
	c.PhotoURI = copyString(c.PhotoURI)
	r.rows[c.ID] = c
	r.publishLocked()
	return c, nil
}

func (r *candidateRepository) GetByID(ctx context.Context, id int64) (*domain.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	c.PhotoURI = copyString(c.PhotoURI)
	return &c, nil
}

func (r *candidateRepository) StreamAll(ctx context.Context) (<-chan []domain.Candidate, error) {
	return r.hub.Subscribe(ctx, nil), nil
}

func (r *candidateRepository) StreamFavorites(ctx context.Context) (<-chan []domain.Candidate, error) {
	return r.hub.Subscribe(ctx, onlyFavorites), nil
}

func (r *candidateRepository) SetFavorite(ctx context.Context, id int64, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return nil
	}
	c.IsFavorite = value
	r.rows[id] = c
	r.publishLocked()
	return nil
}

func (r *candidateRepository) Delete(ctx context.Context, c domain.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[c.ID]; !ok {
		return nil
	}
	delete(r.rows, c.ID)
	r.publishLocked()
	return nil
}

func (r *candidateRepository) publishLocked() {
	snapshot := make([]domain.Candidate, 0, len(r.rows))
	for _, c := range r.rows {
		c.PhotoURI = copyString(c.PhotoURI)
		snapshot = append(snapshot, c)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	r.hub.Publish(snapshot)
}

func onlyFavorites(in []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		if c.IsFavorite {
			out = append(out, c)
		}
	}
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
