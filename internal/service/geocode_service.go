package service

import (
	"context"
	"errors"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/geocode"
	"fieldvisit/internal/repository"

	"go.uber.org/zap"
)

// Geocoder is satisfied by geocode.Client.
type Geocoder interface {
	Geocode(ctx context.Context, q geocode.Query) (*geocode.Result, error)
}

var _ Geocoder = (*geocode.Client)(nil)

// BackfillReport 地址补全结果
type BackfillReport struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	NoData  int `json:"no_data"`
	Failed  int `json:"failed"`
}

// GeocodeService 补全客户缺失的街区/城市/州/邮编
type GeocodeService struct {
	clients  repository.ClientsRepository
	registry *ClientService
	geocoder Geocoder
	logger   *zap.Logger
}

func NewGeocodeService(clients repository.ClientsRepository, registry *ClientService, geocoder Geocoder, logger *zap.Logger) *GeocodeService {
	return &GeocodeService{clients: clients, registry: registry, geocoder: geocoder, logger: logger}
}

// Backfill geocodes up to limit clients with missing address parts, one at a
// time. Fields stay unset when the service has no data. Only a cancelled
// context stops the run early.
func (s *GeocodeService) Backfill(ctx context.Context, limit int) (*BackfillReport, error) {
	if limit <= 0 {
		limit = 200
	}
	clients, _, err := s.clients.ListClients(ctx, &repository.ClientFilters{MissingAddress: true}, 1, limit)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{}
	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		res, err := s.geocoder.Geocode(ctx, geocode.Query{
			Street:     c.Street,
			City:       c.City,
			Region:     c.Region,
			PostalCode: c.PostalCode,
		})
		if err != nil {
			switch {
			case errors.Is(err, geocode.ErrNoMatch):
				report.NoData++
			case ctx.Err() != nil:
				return report, ctx.Err()
			default:
				report.Failed++
				s.logger.Warn("Geocode failed", zap.String("client_id", c.ClientID), zap.Error(err))
			}
			continue
		}

		if !fillAddress(c, res) {
			report.NoData++
			continue
		}
		if _, err := s.registry.save(ctx, c.ClientID, c); err != nil {
			report.Failed++
			s.logger.Warn("Failed to save geocoded client", zap.String("client_id", c.ClientID), zap.Error(err))
			continue
		}
		report.Updated++
	}

	s.logger.Info("Geocode backfill finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("no_data", report.NoData),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// fillAddress sets only the empty fields and reports whether anything changed.
func fillAddress(c *domain.Client, res *geocode.Result) bool {
	changed := false
	set := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	set(&c.Street, res.Street)
	set(&c.Neighborhood, res.Neighborhood)
	set(&c.City, res.City)
	set(&c.Region, res.Region)
	set(&c.PostalCode, res.PostalCode)
	if c.Latitude == nil && res.Latitude != nil && res.Longitude != nil {
		c.Latitude, c.Longitude = res.Latitude, res.Longitude
		changed = true
	}
	return changed
}
