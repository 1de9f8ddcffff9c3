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

	"github.com/google/uuid"
)

// MemoryClientsRepo: DB 未启用时（本地联调/单元测试）使用的客户登记
type MemoryClientsRepo struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
	seq     int64
}

func NewMemoryClientsRepo() *MemoryClientsRepo {
	return &MemoryClientsRepo{clients: map[string]domain.Client{}}
}

var _ ClientsRepository = (*MemoryClientsRepo)(nil)

// nextCreatedAt keeps insertion order stable when the clock does not advance.
func nextCreatedAt(seq *int64) time.Time {
	*seq++
	return time.Now().UTC().Add(time.Duration(*seq) * time.Microsecond)
}

func (r *MemoryClientsRepo) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
	}
	return &c, nil
}

func (r *MemoryClientsRepo) sorted() []domain.Client {
	out := make([]domain.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryClientsRepo) ListClients(_ context.Context, filters *ClientFilters, page, size int) ([]*domain.Client, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Client
	for _, c := range r.sorted() {
		if filters != nil {
			if filters.Status != "" && string(c.Status) != filters.Status {
				continue
			}
			if s := strings.ToLower(strings.TrimSpace(filters.Search)); s != "" {
				if !strings.Contains(strings.ToLower(c.LegalName), s) &&
					!strings.Contains(strings.ToLower(c.TradeName), s) &&
					!strings.Contains(strings.ToLower(c.Code), s) {
					continue
				}
			}
			if filters.MissingAddress && !c.NeedsGeocoding() {
				continue
			}
		}
		c := c
		matched = append(matched, &c)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	total := len(matched)
	start := (page - 1) * size
	if start >= total {
		return []*domain.Client{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryClientsRepo) FindClient(_ context.Context, lookup identity.Lookup) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sorted()
	if lookup.CodeKey != "" {
		for _, c := range all {
			if identity.CodeKey(c.Code) == lookup.CodeKey {
				return &c, nil
			}
		}
	}
	if lookup.NameKey != "" {
		for _, c := range all {
			if identity.NameKey(c.LegalName, c.TradeName) == lookup.NameKey {
				return &c, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryClientsRepo) CreateClient(_ context.Context, c *domain.Client) (string, error) {
	if !c.HasName() {
		return "", fmt.Errorf("legal_name or trade_name is required: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Status == "" {
		c.Status = domain.StatusActive
	}
	c.ClientID = uuid.NewString()
	c.CreatedAt = nextCreatedAt(&r.seq)
	r.clients[c.ClientID] = *c
	return c.ClientID, nil
}

func (r *MemoryClientsRepo) UpdateClient(_ context.Context, clientID string, c *domain.Client) error {
	if !c.HasName() {
		return fmt.Errorf("legal_name or trade_name is required: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.clients[clientID]
	if !ok {
		return fmt.Errorf("client not found: %w", domain.ErrNotFound)
	}
	if c.Status == "" {
		c.Status = domain.StatusActive
	}
	c.ClientID = clientID
	c.CreatedAt = old.CreatedAt
	r.clients[clientID] = *c
	return nil
}

func (r *MemoryClientsRepo) DeleteClient(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[clientID]; !ok {
		return fmt.Errorf("client not found: %w", domain.ErrNotFound)
	}
	delete(r.clients, clientID)
	return nil
}
