package marker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pinpoint/internal/app/models"
	"pinpoint/internal/pkg/geo"
)

var _ Repository = (*MemoryRepository)(nil)

type storedMarker struct {
	marker models.Marker
	likes  map[string]struct{}
	seq    int
}

// MemoryRepository is an in-process marker store used by tests and by the
// memory backend. Reads take a snapshot under the read lock, so a concurrent
// purge can never expose a torn record.
type MemoryRepository struct {
	mu      sync.RWMutex
	markers map[string]*storedMarker
	nextSeq int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{markers: make(map[string]*storedMarker)}
}

func (r *MemoryRepository) snapshot(s *storedMarker) models.Marker {
	m := s.marker
	m.Likes = make([]string, 0, len(s.likes))
	for id := range s.likes {
		m.Likes = append(m.Likes, id)
	}
	sort.Strings(m.Likes)
	return m
}

func (r *MemoryRepository) Insert(_ context.Context, m *models.Marker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markers[m.ID]; ok {
		return fmt.Errorf("marker %s already exists: %w", m.ID, models.ErrConflict)
	}
	stored := &storedMarker{marker: *m, likes: make(map[string]struct{}), seq: r.nextSeq}
	r.nextSeq++
	for _, id := range m.Likes {
		stored.likes[id] = struct{}{}
	}
	stored.marker.Likes = nil
	r.markers[m.ID] = stored
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Marker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.markers[id]
	if !ok {
		return nil, fmt.Errorf("marker %s not found: %w", id, models.ErrNotFound)
	}
	m := r.snapshot(stored)
	return &m, nil
}

func (r *MemoryRepository) AppendLike(_ context.Context, id, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.markers[id]
	if !ok {
		return false, fmt.Errorf("marker %s not found: %w", id, models.ErrNotFound)
	}
	if _, liked := stored.likes[accountID]; liked {
		return false, nil
	}
	stored.likes[accountID] = struct{}{}
	return true, nil
}

func (r *MemoryRepository) RemoveLike(_ context.Context, id, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.markers[id]
	if !ok {
		return false, fmt.Errorf("marker %s not found: %w", id, models.ErrNotFound)
	}
	if _, liked := stored.likes[accountID]; !liked {
		return false, nil
	}
	delete(stored.likes, accountID)
	return true, nil
}

func (r *MemoryRepository) list(filter func(*storedMarker) bool) []models.Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := make([]*storedMarker, 0, len(r.markers))
	for _, s := range r.markers {
		if filter(s) {
			stored = append(stored, s)
		}
	}
	// insertion order
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })
	markers := make([]models.Marker, 0, len(stored))
	for _, s := range stored {
		markers = append(markers, r.snapshot(s))
	}
	return markers
}

func (r *MemoryRepository) QueryNear(_ context.Context, lat, lon, radiusKm float64, now time.Time) ([]models.Marker, error) {
	return r.list(func(s *storedMarker) bool {
		if s.marker.Expired(now) {
			return false
		}
		return geo.DistanceKm(lat, lon, s.marker.Latitude, s.marker.Longitude) <= radiusKm
	}), nil
}

func (r *MemoryRepository) ListByAuthor(_ context.Context, authorID string, now time.Time) ([]models.Marker, error) {
	return r.list(func(s *storedMarker) bool {
		return s.marker.AuthorID == authorID && !s.marker.Expired(now)
	}), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markers[id]; !ok {
		return fmt.Errorf("marker %s not found: %w", id, models.ErrNotFound)
	}
	delete(r.markers, id)
	return nil
}

func (r *MemoryRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, s := range r.markers {
		if s.marker.Expired(now) {
			delete(r.markers, id)
			purged++
		}
	}
	return purged, nil
}

func (r *MemoryRepository) CountActive(_ context.Context, now time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, s := range r.markers {
		if !s.marker.Expired(now) {
			count++
		}
	}
	return count, nil
}
