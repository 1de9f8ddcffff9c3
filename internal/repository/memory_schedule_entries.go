package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/identity"
	"fieldvisit/internal/timewindow"

	"github.com/google/uuid"
)

// MemoryScheduleEntriesRepo: 内存排程网格，dedupe_key 唯一
type MemoryScheduleEntriesRepo struct {
	mu      sync.RWMutex
	entries map[string]domain.ScheduleEntry // entryID -> entry
	byKey   map[string]string               // dedupe_key -> entryID
	seq     int64
}

func NewMemoryScheduleEntriesRepo() *MemoryScheduleEntriesRepo {
	return &MemoryScheduleEntriesRepo{
		entries: map[string]domain.ScheduleEntry{},
		byKey:   map[string]string{},
	}
}

var _ ScheduleEntriesRepository = (*MemoryScheduleEntriesRepo)(nil)

func (r *MemoryScheduleEntriesRepo) GetEntry(_ context.Context, entryID string) (*domain.ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("schedule entry %s: %w", entryID, domain.ErrNotFound)
	}
	return &e, nil
}

func (r *MemoryScheduleEntriesRepo) InsertEntryIgnore(_ context.Context, e *domain.ScheduleEntry) (string, bool, error) {
	if err := prepareEntry(e); err != nil {
		return "", false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[e.DedupeKey]; ok {
		return id, false, nil
	}
	e.EntryID = uuid.NewString()
	e.CreatedAt = nextCreatedAt(&r.seq)
	r.entries[e.EntryID] = *e
	r.byKey[e.DedupeKey] = e.EntryID
	return e.EntryID, true, nil
}

func (r *MemoryScheduleEntriesRepo) UpdateEntry(_ context.Context, entryID string, e *domain.ScheduleEntry) error {
	e.DedupeKey = ""
	if err := prepareEntry(e); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.entries[entryID]
	if !ok {
		return fmt.Errorf("schedule entry not found: %w", domain.ErrNotFound)
	}
	if owner, ok := r.byKey[e.DedupeKey]; ok && owner != entryID {
		return fmt.Errorf("failed to update schedule entry: duplicate dedupe_key %q", e.DedupeKey)
	}
	delete(r.byKey, old.DedupeKey)

	e.EntryID = entryID
	e.CreatedAt = old.CreatedAt
	e.VisitGenerated = old.VisitGenerated
	r.entries[entryID] = *e
	r.byKey[e.DedupeKey] = entryID
	return nil
}

func (r *MemoryScheduleEntriesRepo) sorted() []domain.ScheduleEntry {
	out := make([]domain.ScheduleEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryScheduleEntriesRepo) FindEntriesByCode(_ context.Context, codeKey string) ([]*domain.ScheduleEntry, error) {
	if codeKey == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.ScheduleEntry
	for _, e := range r.sorted() {
		if identity.CodeKey(e.Code) == codeKey {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *MemoryScheduleEntriesRepo) FindEntriesByKey(_ context.Context, dedupeKey string) ([]*domain.ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[dedupeKey]
	if !ok {
		return nil, nil
	}
	e := r.entries[id]
	return []*domain.ScheduleEntry{&e}, nil
}

func (r *MemoryScheduleEntriesRepo) GetEntriesByIDs(_ context.Context, entryIDs []string) ([]*domain.ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		want[id] = true
	}
	var out []*domain.ScheduleEntry
	for _, e := range r.sorted() {
		if want[e.EntryID] {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *MemoryScheduleEntriesRepo) SetVisitGenerated(_ context.Context, entryID string, generated bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entryID]
	if !ok {
		return fmt.Errorf("schedule entry not found: %w", domain.ErrNotFound)
	}
	e.VisitGenerated = generated
	r.entries[entryID] = e
	return nil
}

func (r *MemoryScheduleEntriesRepo) SetLastVisitDate(_ context.Context, entryID string, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entryID]
	if !ok {
		return fmt.Errorf("schedule entry not found: %w", domain.ErrNotFound)
	}
	d := domain.DateOnly(date)
	if e.LastVisitDate == nil || d.After(*e.LastVisitDate) {
		e.LastVisitDate = &d
	}
	r.entries[entryID] = e
	return nil
}

// entryText 按列名取文本值
func entryText(e *domain.ScheduleEntry, column string) string {
	switch column {
	case "code":
		return e.Code
	case "legal_name":
		return e.LegalName
	case "trade_name":
		return e.TradeName
	case "time_window":
		return e.TimeWindow
	case "postal_code":
		return e.PostalCode
	case "street":
		return e.Street
	case "neighborhood":
		return e.Neighborhood
	case "city":
		return e.City
	case "region":
		return e.Region
	case "status":
		return string(e.Status)
	case "vendor_name":
		return e.VendorName
	case "supervisor":
		return e.Supervisor
	case "group_name":
		return e.GroupName
	case "contract_notes":
		return e.ContractNotes
	}
	return ""
}

func entryDate(e *domain.ScheduleEntry, column string) *time.Time {
	switch column {
	case "last_visit_date":
		return e.LastVisitDate
	case "created_at":
		t := e.CreatedAt
		return &t
	}
	return nil
}

func dateKey(t time.Time) string {
	return t.Format(domain.DateLayout)
}

// matchCondition mirrors the SQL rendered by buildScheduleWhere.
func matchCondition(e *domain.ScheduleEntry, c Condition) bool {
	switch c.Kind {
	case CondIn:
		v := entryText(e, c.Column)
		for _, want := range c.Values {
			if v != "" && v == want {
				return true
			}
		}
		return false
	case CondTag:
		v := entryText(e, c.Column)
		if v == "" {
			return false
		}
		tag := timewindow.Tag(v)
		for _, want := range c.Values {
			if tag == timewindow.Tag(want) {
				return true
			}
		}
		return false
	case CondSearch:
		needle := strings.ToLower(c.Text)
		for _, col := range c.Columns {
			if strings.Contains(strings.ToLower(entryText(e, col)), needle) {
				return true
			}
		}
		return false
	case CondDateOutsideOrNull:
		d := entryDate(e, c.Column)
		if d == nil {
			return true
		}
		k := dateKey(*d)
		return k < dateKey(c.From) || k > dateKey(c.To)
	case CondDateWithin:
		d := entryDate(e, c.Column)
		if d == nil {
			return false
		}
		k := dateKey(*d)
		return k >= dateKey(c.From) && k <= dateKey(c.To)
	}
	return false
}

func lessBy(a, b *domain.ScheduleEntry, column string) (less, equal bool) {
	if DateColumns[column] {
		da, db := entryDate(a, column), entryDate(b, column)
		switch {
		case da == nil && db == nil:
			return false, true
		case da == nil:
			return false, false
		case db == nil:
			return true, false
		}
		return da.Before(*db), da.Equal(*db)
	}
	va, vb := entryText(a, column), entryText(b, column)
	switch {
	case va == vb:
		return false, true
	case va == "":
		return false, false
	case vb == "":
		return true, false
	}
	return va < vb, false
}

func (r *MemoryScheduleEntriesRepo) QueryEntries(_ context.Context, q *ScheduleQuery) ([]*domain.ScheduleEntry, int, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}
	q.Normalize()
	if q.RestrictIDs && len(q.EntryIDs) == 0 {
		return []*domain.ScheduleEntry{}, 0, nil
	}

	allow := map[string]bool{}
	for _, id := range q.EntryIDs {
		allow[id] = true
	}

	r.mu.RLock()
	var matched []*domain.ScheduleEntry
	for _, e := range r.sorted() {
		e := e
		if q.RestrictIDs && !allow[e.EntryID] {
			continue
		}
		ok := true
		for _, c := range q.Conditions {
			if !matchCondition(&e, c) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, &e)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		less, equal := lessBy(matched[i], matched[j], q.SortBy)
		if equal {
			return matched[i].EntryID < matched[j].EntryID
		}
		if q.SortDesc {
			// NULLS LAST in both directions
			if entryText(matched[i], q.SortBy) == "" && entryDate(matched[i], q.SortBy) == nil {
				return false
			}
			if entryText(matched[j], q.SortBy) == "" && entryDate(matched[j], q.SortBy) == nil {
				return true
			}
			return !less
		}
		return less
	})

	total := len(matched)
	start := (q.Page - 1) * q.Size
	if start >= total {
		return []*domain.ScheduleEntry{}, total, nil
	}
	end := start + q.Size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryScheduleEntriesRepo) DistinctValues(_ context.Context, column string) ([]string, error) {
	if !TextColumns[column] {
		return nil, fmt.Errorf("unknown column %s: %w", column, domain.ErrValidation)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, e := range r.entries {
		e := e
		v := entryText(&e, column)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}
