package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fieldvisit/internal/domain"

	"github.com/google/uuid"
)

// MemoryVisitsRepo: 内存拜访表，自然键 (entry, vendor_key, date) 唯一
type MemoryVisitsRepo struct {
	mu     sync.RWMutex
	visits map[string]domain.Visit
	seq    int64
}

func NewMemoryVisitsRepo() *MemoryVisitsRepo {
	return &MemoryVisitsRepo{visits: map[string]domain.Visit{}}
}

var _ VisitsRepository = (*MemoryVisitsRepo)(nil)

// matchesVendor mirrors vendorPredicate.
func matchesVendor(rowID, rowName string, vendor domain.VendorMatch) bool {
	if vendor.ID != "" && rowID == vendor.ID {
		return true
	}
	return rowID == "" && vendor.Name != "" &&
		strings.EqualFold(strings.TrimSpace(rowName), strings.TrimSpace(vendor.Name))
}

func (r *MemoryVisitsRepo) sorted() []domain.Visit {
	out := make([]domain.Visit, 0, len(r.visits))
	for _, v := range r.visits {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VisitDate.Equal(out[j].VisitDate) {
			return out[i].VisitDate.Before(out[j].VisitDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryVisitsRepo) GetVisit(_ context.Context, visitID string) (*domain.Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.visits[visitID]
	if !ok {
		return nil, fmt.Errorf("visit %s: %w", visitID, domain.ErrNotFound)
	}
	return &v, nil
}

func (r *MemoryVisitsRepo) InsertVisitIgnore(_ context.Context, v *domain.Visit) (string, bool, error) {
	if v.EntryID == "" {
		return "", false, fmt.Errorf("entry_id is required: %w", domain.ErrValidation)
	}
	if v.VendorID == "" && v.VendorName == "" {
		return "", false, fmt.Errorf("vendor is required: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.VendorKey(v.VendorID, v.VendorName)
	for _, existing := range r.visits {
		if existing.EntryID == v.EntryID &&
			domain.SameDay(existing.VisitDate, v.VisitDate) &&
			domain.VendorKey(existing.VendorID, existing.VendorName) == key {
			return existing.VisitID, false, nil
		}
	}

	v.VisitID = uuid.NewString()
	v.VisitDate = domain.DateOnly(v.VisitDate)
	v.CreatedAt = nextCreatedAt(&r.seq)
	r.visits[v.VisitID] = *v
	return v.VisitID, true, nil
}

func (r *MemoryVisitsRepo) FindVisit(_ context.Context, entryID string, vendor domain.VendorMatch, date time.Time) (*domain.Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.sorted() {
		if v.EntryID == entryID && domain.SameDay(v.VisitDate, date) && matchesVendor(v.VendorID, v.VendorName, vendor) {
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

// openVisit returns the row for a guarded update.
func (r *MemoryVisitsRepo) openVisit(visitID string) (domain.Visit, error) {
	v, ok := r.visits[visitID]
	if !ok {
		return v, fmt.Errorf("visit %s: %w", visitID, domain.ErrNotFound)
	}
	if v.IsCompleted() {
		return v, domain.ErrVisitCompleted
	}
	return v, nil
}

func (r *MemoryVisitsRepo) UpdateAssignment(_ context.Context, visitID string, a Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.openVisit(visitID)
	if err != nil {
		return err
	}
	v.VisitDate = domain.DateOnly(a.VisitDate)
	v.VendorID = a.VendorID
	v.VendorName = a.VendorName
	v.RouteID = a.RouteID
	r.visits[visitID] = v
	return nil
}

func (r *MemoryVisitsRepo) UpdateTimeWindow(_ context.Context, visitID string, timeWindow, options string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.openVisit(visitID)
	if err != nil {
		return err
	}
	v.TimeWindow = timeWindow
	v.TimeWindowOptions = options
	r.visits[visitID] = v
	return nil
}

func (r *MemoryVisitsRepo) Complete(_ context.Context, visitID string, c Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.openVisit(visitID)
	if err != nil {
		return err
	}
	at := c.CompletedAt
	v.CompletedAt = &at
	if c.LifeCount != nil {
		n := *c.LifeCount
		v.LifeCount = &n
	}
	v.NotVisitedReason = c.NotVisitedReason
	if c.TimeWindow != "" {
		v.TimeWindow = c.TimeWindow
	}
	if !v.Consistent() {
		return fmt.Errorf("inconsistent completion: %w", domain.ErrValidation)
	}
	r.visits[visitID] = v
	return nil
}

func (r *MemoryVisitsRepo) DeleteVisit(_ context.Context, visitID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.visits[visitID]; !ok {
		return fmt.Errorf("visit not found: %w", domain.ErrNotFound)
	}
	delete(r.visits, visitID)
	return nil
}

func (r *MemoryVisitsRepo) ListOpenVisitsByEntries(_ context.Context, entryIDs []string) ([]*domain.Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		want[id] = true
	}
	var out []*domain.Visit
	for _, v := range r.sorted() {
		if want[v.EntryID] && !v.IsCompleted() {
			v := v
			out = append(out, &v)
		}
	}
	return out, nil
}

func (r *MemoryVisitsRepo) CountVisitsByEntry(_ context.Context, entryID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, v := range r.visits {
		if v.EntryID == entryID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryVisitsRepo) CountOpenVisits(_ context.Context, vendor domain.VendorMatch, date time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, v := range r.visits {
		if !v.IsCompleted() && domain.SameDay(v.VisitDate, date) && matchesVendor(v.VendorID, v.VendorName, vendor) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryVisitsRepo) ListVendorVisits(_ context.Context, vendor domain.VendorMatch, from, to time.Time) ([]*domain.Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lo, hi := dateKey(from), dateKey(to)
	var out []*domain.Visit
	for _, v := range r.sorted() {
		k := dateKey(v.VisitDate)
		if k < lo || k > hi || !matchesVendor(v.VendorID, v.VendorName, vendor) {
			continue
		}
		v := v
		out = append(out, &v)
	}
	return out, nil
}

func (r *MemoryVisitsRepo) ListCompletedCounts(_ context.Context, offset, limit int) ([]CompletedCount, error) {
	if limit <= 0 {
		limit = BulkPageSize
	}

	r.mu.RLock()
	var all []domain.Visit
	for _, v := range r.visits {
		if v.CompletedAt != nil && v.LifeCount != nil {
			all = append(all, v)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CompletedAt.Equal(*all[j].CompletedAt) {
			return all[i].CompletedAt.After(*all[j].CompletedAt)
		}
		return all[i].VisitID < all[j].VisitID
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]CompletedCount, 0, end-offset)
	for _, v := range all[offset:end] {
		out = append(out, CompletedCount{EntryID: v.EntryID, LifeCount: *v.LifeCount, CompletedAt: *v.CompletedAt})
	}
	return out, nil
}
