package service

import (
	"context"
	"strings"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/identity"
	"fieldvisit/internal/repository"
	"fieldvisit/internal/timewindow"

	"go.uber.org/zap"
)

// ClientService 客户登记：规范记录，变更下发到排程网格和开放拜访
type ClientService struct {
	clients  repository.ClientsRepository
	schedule *ScheduleService
	cache    *OptionsCache
	feed     ChangeFeed
	logger   *zap.Logger
}

func NewClientService(clients repository.ClientsRepository, schedule *ScheduleService, cache *OptionsCache, feed ChangeFeed, logger *zap.Logger) *ClientService {
	if feed == nil {
		feed = NopChangeFeed{}
	}
	return &ClientService{clients: clients, schedule: schedule, cache: cache, feed: feed, logger: logger}
}

// ClientRequest 客户写入请求
type ClientRequest struct {
	Code         string   `json:"code"`
	LegalName    string   `json:"legal_name"`
	TradeName    string   `json:"trade_name"`
	PostalCode   string   `json:"postal_code"`
	Street       string   `json:"street"`
	Neighborhood string   `json:"neighborhood"`
	City         string   `json:"city"`
	Region       string   `json:"region"`
	Status       string   `json:"status"`
	TimeWindow   string   `json:"time_window"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

func (req ClientRequest) toClient() *domain.Client {
	return &domain.Client{
		Code:         strings.TrimSpace(req.Code),
		LegalName:    strings.TrimSpace(req.LegalName),
		TradeName:    strings.TrimSpace(req.TradeName),
		PostalCode:   strings.TrimSpace(req.PostalCode),
		Street:       strings.TrimSpace(req.Street),
		Neighborhood: strings.TrimSpace(req.Neighborhood),
		City:         strings.TrimSpace(req.City),
		Region:       strings.TrimSpace(req.Region),
		Status:       NormalizeStatus(req.Status),
		TimeWindow:   timewindow.Normalize(req.TimeWindow),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	}
}

// ClientResponse 客户写入响应
type ClientResponse struct {
	Client *domain.Client `json:"client"`
	Sync   *SyncReport    `json:"sync,omitempty"`
}

// ListClientsRequest 客户列表请求
type ListClientsRequest struct {
	Status         string `json:"status"`
	Search         string `json:"search"`
	MissingAddress bool   `json:"missing_address"`
	Page           int    `json:"page"`
	Size           int    `json:"size"`
}

// ListClientsResponse 客户列表响应
type ListClientsResponse struct {
	Items []*domain.Client `json:"items"`
	Total int              `json:"total"`
}

// CreateClient registers a client and syncs it to the grid.
func (s *ClientService) CreateClient(ctx context.Context, req ClientRequest) (*ClientResponse, error) {
	c := req.toClient()
	if !c.HasName() {
		return nil, invalid("legal_name or trade_name is required")
	}

	id, err := s.clients.CreateClient(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ClientID = id

	resp := &ClientResponse{Client: c}
	resp.Sync = s.propagate(ctx, c, nil)
	s.publish(ctx, EventClientCreated, c)
	return resp, nil
}

// UpdateClient 更新客户并下发
func (s *ClientService) UpdateClient(ctx context.Context, clientID string, req ClientRequest) (*ClientResponse, error) {
	c := req.toClient()
	if !c.HasName() {
		return nil, invalid("legal_name or trade_name is required")
	}
	return s.save(ctx, clientID, c)
}

func (s *ClientService) save(ctx context.Context, clientID string, c *domain.Client) (*ClientResponse, error) {
	previous, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if c.Latitude == nil && c.Longitude == nil {
		c.Latitude, c.Longitude = previous.Latitude, previous.Longitude
	}
	if err := s.clients.UpdateClient(ctx, clientID, c); err != nil {
		return nil, err
	}
	c.ClientID = clientID
	c.CreatedAt = previous.CreatedAt

	resp := &ClientResponse{Client: c}
	resp.Sync = s.propagate(ctx, c, previous)
	s.publish(ctx, EventClientUpdated, c)
	return resp, nil
}

// DeleteClient removes the registry row. Grid rows and visits keep their
// own copies of the client's fields.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.clients.DeleteClient(ctx, clientID); err != nil {
		return err
	}
	s.publish(ctx, EventClientDeleted, map[string]string{"client_id": clientID})
	return nil
}

func (s *ClientService) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.clients.GetClient(ctx, clientID)
}

// FindClient 按 code 优先、名称对其次查找
func (s *ClientService) FindClient(ctx context.Context, code, legalName, tradeName string) (*domain.Client, error) {
	lookup := identity.NewLookup(code, legalName, tradeName)
	if lookup.Empty() {
		return nil, invalid("code, legal_name or trade_name is required")
	}
	return s.clients.FindClient(ctx, lookup)
}

func (s *ClientService) ListClients(ctx context.Context, req ListClientsRequest) (*ListClientsResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	items, total, err := s.clients.ListClients(ctx, &repository.ClientFilters{
		Status:         req.Status,
		Search:         strings.TrimSpace(req.Search),
		MissingAddress: req.MissingAddress,
	}, req.Page, req.Size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.Client{}
	}
	return &ListClientsResponse{Items: items, Total: total}, nil
}

// propagate 同步失败只记录日志，客户写入本身已成功
func (s *ClientService) propagate(ctx context.Context, c *domain.Client, previous *domain.Client) *SyncReport {
	report, err := s.schedule.SyncFromClient(ctx, c, previous)
	if err != nil {
		s.logger.Warn("Failed to sync client to schedule",
			zap.String("client_id", c.ClientID),
			zap.Error(err),
		)
		report = &SyncReport{Failed: 1}
	}
	s.cache.Invalidate(ctx)
	return report
}

func (s *ClientService) publish(ctx context.Context, eventType string, data any) {
	if err := s.feed.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn("Failed to publish client change",
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}
