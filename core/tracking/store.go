// Package tracking keeps the last known position of each vehicle.
package tracking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/routecast/core/model"
)

// Status captures the last known state of a vehicle.
type Status struct {
	VehicleID  string           `json:"vehicle_id"`
	TripID     string           `json:"trip_id,omitempty"`
	Coordinate model.Coordinate `json:"coordinate"`
	ReportedAt time.Time        `json:"reported_at"`
	ReceivedAt time.Time        `json:"received_at"`
	Updates    uint64           `json:"updates"`
}

type Filter struct {
	TripID string
	// Since drops vehicles that have not reported after this instant.
	Since time.Time
}

type Store interface {
	Record(model.VehicleLocationUpdate)
	Get(vehicleID string) (Status, bool)
	List(Filter) []Status
	Prune(before time.Time) int
}

// Snapshotter persists statuses across restarts.
type Snapshotter interface {
	Save(ctx context.Context, statuses []Status) error
	Load(ctx context.Context) ([]Status, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}, now: time.Now}
}

// Record stores u unless an update with a later timestamp is already known.
func (s *MemoryStore) Record(u model.VehicleLocationUpdate) {
	if u.VehicleID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.data[u.VehicleID]
	st.Updates++
	if !u.Timestamp.IsZero() && u.Timestamp.Before(st.ReportedAt) {
		s.data[u.VehicleID] = st
		return
	}
	st.VehicleID = u.VehicleID
	st.TripID = u.TripID
	st.Coordinate = u.Coordinate
	st.ReportedAt = u.Timestamp
	st.ReceivedAt = s.now()
	s.data[u.VehicleID] = st
}

func (s *MemoryStore) Get(id string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[id]
	return st, ok
}

func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.TripID != "" && st.TripID != f.TripID {
			continue
		}
		if !f.Since.IsZero() && st.ReceivedAt.Before(f.Since) {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VehicleID < res[j].VehicleID })
	return res
}

// Prune forgets vehicles last heard from before the given instant and
// returns how many were removed.
func (s *MemoryStore) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, st := range s.data {
		if st.ReceivedAt.Before(before) {
			delete(s.data, id)
			n++
		}
	}
	return n
}

// Restore loads statuses from a snapshot. Entries already known with a later
// ReceivedAt are kept.
func (s *MemoryStore) Restore(statuses []Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range statuses {
		if st.VehicleID == "" {
			continue
		}
		if cur, ok := s.data[st.VehicleID]; ok && cur.ReceivedAt.After(st.ReceivedAt) {
			continue
		}
		s.data[st.VehicleID] = st
	}
}
