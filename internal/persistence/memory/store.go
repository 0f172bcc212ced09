// Package memory provides an in-memory usage store. It backs tests and dry
// runs where no database is available.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

// Store holds usage records and history points in process memory.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[domain.Key]domain.UsageRecord
	history map[string][]domain.HistoryPoint
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]map[domain.Key]domain.UsageRecord),
		history: make(map[string][]domain.HistoryPoint),
	}
}

// Seed loads existing records, so a dry run plans against the same prior
// state a real run would.
func (s *Store) Seed(records []domain.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		byKey := s.records[rec.ActionName]
		if byKey == nil {
			byKey = make(map[domain.Key]domain.UsageRecord)
			s.records[rec.ActionName] = byKey
		}
		byKey[rec.Key()] = rec
	}
}

// ReadActiveKeys implements domain.Store.
func (s *Store) ReadActiveKeys(_ context.Context, action string) (map[domain.Key]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[domain.Key]struct{})
	for key, rec := range s.records[action] {
		if rec.IsActive {
			keys[key] = struct{}{}
		}
	}
	return keys, nil
}

// ReadKnownKeys implements domain.Store.
func (s *Store) ReadKnownKeys(_ context.Context, action string) (map[domain.Key]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[domain.Key]struct{})
	for key := range s.records[action] {
		keys[key] = struct{}{}
	}
	return keys, nil
}

// ApplyReconciliation implements domain.Store.
func (s *Store) ApplyReconciliation(_ context.Context, plan domain.Plan) (domain.RunStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records[plan.Action]
	if records == nil {
		records = make(map[domain.Key]domain.UsageRecord)
		s.records[plan.Action] = records
	}

	for _, rec := range plan.Inserts {
		records[rec.Key()] = rec
	}
	for _, occ := range plan.Updates {
		rec, ok := records[occ.Key()]
		if !ok {
			continue
		}
		rec.LastSeen = plan.RunDate
		rec.IsActive = true
		rec.Version = occ.Version
		rec.Stars = occ.Stars
		rec.IsFork = occ.IsFork
		rec.IsPrivate = occ.IsPrivate
		rec.DefaultBranch = occ.DefaultBranch
		rec.Language = occ.Language
		rec.Description = occ.Description
		rec.UpdatedAt = plan.RunTime
		records[occ.Key()] = rec
	}
	for _, key := range plan.Deactivations {
		rec, ok := records[key]
		if !ok {
			continue
		}
		rec.IsActive = false
		rec.LastSeen = plan.RunDate
		rec.UpdatedAt = plan.RunTime
		records[key] = rec
	}

	if plan.History != nil {
		points := s.history[plan.Action]
		replaced := false
		for i, p := range points {
			if p.Date.Equal(plan.History.Date) {
				points[i] = *plan.History
				replaced = true
				break
			}
		}
		if !replaced {
			points = append(points, *plan.History)
		}
		s.history[plan.Action] = points
	}

	return plan.Stats(), nil
}

// Records returns the action's records sorted by key, for assertions and
// dry-run output.
func (s *Store) Records(action string) []domain.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.UsageRecord, 0, len(s.records[action]))
	for _, rec := range s.records[action] {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].RepoFullName != records[j].RepoFullName {
			return records[i].RepoFullName < records[j].RepoFullName
		}
		return records[i].WorkflowPath < records[j].WorkflowPath
	})
	return records
}

// History returns the action's history points in date order.
func (s *Store) History(action string) []domain.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := append([]domain.HistoryPoint(nil), s.history[action]...)
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}
