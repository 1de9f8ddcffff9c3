package domain

import (
	"fmt"
	"time"
)

// Route 路线（对应 routes 表），每个 (vendor, date) 至多一条
type Route struct {
	RouteID    string    `db:"route_id" json:"route_id"`       // UUID, PRIMARY KEY
	Name       string    `db:"name" json:"name"`               // VARCHAR(200), NOT NULL
	RouteDate  time.Time `db:"route_date" json:"route_date"`   // DATE, NOT NULL
	VendorID   string    `db:"vendor_id" json:"vendor_id"`     // UUID, nullable
	VendorName string    `db:"vendor_name" json:"vendor_name"` // VARCHAR(120), nullable
}

// RouteStop 路线站点（对应 route_stops 表），每个 (route, entry) 至多一个
type RouteStop struct {
	StopID    string `db:"stop_id" json:"stop_id"`       // UUID, PRIMARY KEY
	RouteID   string `db:"route_id" json:"route_id"`     // UUID, NOT NULL, FK to routes
	EntryID   string `db:"entry_id" json:"entry_id"`     // UUID, NOT NULL, FK to schedule_entries
	StopOrder int    `db:"stop_order" json:"stop_order"` // INTEGER, NOT NULL - 1-based
}

// RouteName builds the generated route name from the vendor label and date.
func RouteName(vendorLabel string, date time.Time) string {
	if vendorLabel == "" {
		vendorLabel = "Route"
	}
	return fmt.Sprintf("%s - %s", vendorLabel, date.Format(DateLayout))
}
