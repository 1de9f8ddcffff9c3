package service

import (
	"context"
	"errors"
	"fmt"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/repository"

	"go.uber.org/zap"
)

// invalid wraps a message as a validation error.
func invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrValidation)...)
}

// VendorRoster 把 VendorRef 对照当前名册解析为查询用的 VendorMatch
type VendorRoster struct {
	vendors repository.VendorsRepository
	logger  *zap.Logger
}

func NewVendorRoster(vendors repository.VendorsRepository, logger *zap.Logger) *VendorRoster {
	return &VendorRoster{vendors: vendors, logger: logger}
}

// Resolve reconciles a reference against the roster:
//   - ByID: the roster's display name is attached when the id is known
//   - ByName: the id of the matching vendor (active first) is attached
//
// Unknown vendors still resolve, carrying only what the caller gave.
func (r *VendorRoster) Resolve(ctx context.Context, ref domain.VendorRef) (domain.VendorMatch, error) {
	if ref.IsZero() {
		return domain.VendorMatch{}, invalid("vendor is required")
	}

	switch ref.Kind() {
	case domain.VendorRefByID:
		v, err := r.vendors.GetVendor(ctx, ref.Value())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				r.logger.Debug("vendor id not in roster", zap.String("vendor_id", ref.Value()))
				return domain.VendorMatch{ID: ref.Value()}, nil
			}
			return domain.VendorMatch{}, fmt.Errorf("failed to resolve vendor: %w", err)
		}
		return domain.VendorMatch{ID: v.VendorID, Name: v.DisplayName}, nil

	default:
		vendors, err := r.vendors.FindVendorsByName(ctx, ref.Value())
		if err != nil {
			return domain.VendorMatch{}, fmt.Errorf("failed to resolve vendor: %w", err)
		}
		if len(vendors) == 0 {
			return domain.VendorMatch{Name: ref.Value()}, nil
		}
		if len(vendors) > 1 {
			r.logger.Warn("vendor name is ambiguous, using first match",
				zap.String("vendor_name", ref.Value()),
				zap.Int("matches", len(vendors)),
			)
		}
		return domain.VendorMatch{ID: vendors[0].VendorID, Name: vendors[0].DisplayName}, nil
	}
}
