package domain

import "time"

// ClientStatus 客户状态
type ClientStatus string

const (
	StatusActive   ClientStatus = "Active"
	StatusInactive ClientStatus = "Inactive"
)

// Client 客户登记领域模型（对应 clients 表）
// Canonical registry entry; schedule entries and visits keep their own copies.
type Client struct {
	ClientID string `db:"client_id" json:"client_id"` // UUID, PRIMARY KEY

	Code      string `db:"code" json:"code"`             // VARCHAR(50), nullable - external identifier
	LegalName string `db:"legal_name" json:"legal_name"` // VARCHAR(255), nullable
	TradeName string `db:"trade_name" json:"trade_name"` // VARCHAR(255), nullable

	PostalCode   string `db:"postal_code" json:"postal_code"`   // VARCHAR(20), nullable
	Street       string `db:"street" json:"street"`             // VARCHAR(255), nullable
	Neighborhood string `db:"neighborhood" json:"neighborhood"` // VARCHAR(120), nullable
	City         string `db:"city" json:"city"`                 // VARCHAR(120), nullable
	Region       string `db:"region" json:"region"`             // VARCHAR(60), nullable

	Latitude  *float64 `db:"latitude" json:"latitude"`   // DOUBLE PRECISION, nullable - filled by geocoding backfill
	Longitude *float64 `db:"longitude" json:"longitude"` // DOUBLE PRECISION, nullable

	Status     ClientStatus `db:"status" json:"status"`           // VARCHAR(20), NOT NULL, DEFAULT 'Active'
	TimeWindow string       `db:"time_window" json:"time_window"` // TEXT, nullable - raw time-window text

	CreatedAt time.Time `db:"created_at" json:"created_at"` // TIMESTAMPTZ, NOT NULL, DEFAULT CURRENT_TIMESTAMP
}

// HasName reports whether at least one of legal/trade name is set.
func (c *Client) HasName() bool {
	return trimmed(c.LegalName) != "" || trimmed(c.TradeName) != ""
}

// NeedsGeocoding reports whether any address component the geocoder can fill is missing.
func (c *Client) NeedsGeocoding() bool {
	return c.Neighborhood == "" || c.City == "" || c.Region == "" || c.PostalCode == ""
}
