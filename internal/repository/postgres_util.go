package repository

import (
	"database/sql"
	"fmt"
	"time"

	"fieldvisit/internal/domain"
)

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(domain.DateLayout)
}

// expectAffected turns a zero-row update/delete into domain.ErrNotFound.
func expectAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %w", what, domain.ErrNotFound)
	}
	return nil
}

// vendorPredicate matches rows for a vendor: by id, or by name on rows that
// carry no id. argN is the next free placeholder.
func vendorPredicate(vendor domain.VendorMatch, argN int) (string, []any) {
	switch {
	case vendor.ID != "" && vendor.Name != "":
		return fmt.Sprintf("(vendor_id = $%d OR (vendor_id IS NULL AND upper(btrim(vendor_name)) = upper(btrim($%d))))", argN, argN+1),
			[]any{vendor.ID, vendor.Name}
	case vendor.ID != "":
		return fmt.Sprintf("vendor_id = $%d", argN), []any{vendor.ID}
	default:
		return fmt.Sprintf("(vendor_id IS NULL AND upper(btrim(vendor_name)) = upper(btrim($%d)))", argN), []any{vendor.Name}
	}
}
