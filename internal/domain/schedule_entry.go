package domain

import "time"

// ScheduleEntry 排程网格行（对应 schedule_entries 表）
// One denormalized row per business, keyed by DedupeKey under upsert-ignore.
type ScheduleEntry struct {
	EntryID  string `db:"entry_id" json:"entry_id"`   // UUID, PRIMARY KEY
	ClientID string `db:"client_id" json:"client_id"` // UUID, nullable - back-reference, may outlive the client

	DedupeKey string `db:"dedupe_key" json:"dedupe_key"` // TEXT, NOT NULL, UNIQUE - normalized(legal)|normalized(trade)

	Code      string `db:"code" json:"code"`
	LegalName string `db:"legal_name" json:"legal_name"`
	TradeName string `db:"trade_name" json:"trade_name"`

	TimeWindow        string `db:"time_window" json:"time_window"`                 // TEXT, nullable
	TimeWindowOptions string `db:"time_window_options" json:"time_window_options"` // TEXT, nullable - joined list when multi-valued

	PostalCode   string `db:"postal_code" json:"postal_code"`
	Street       string `db:"street" json:"street"`
	Neighborhood string `db:"neighborhood" json:"neighborhood"`
	City         string `db:"city" json:"city"`
	Region       string `db:"region" json:"region"`

	Status ClientStatus `db:"status" json:"status"` // VARCHAR(20), NOT NULL, DEFAULT 'Active'

	// 排程字段
	VendorID      string     `db:"vendor_id" json:"vendor_id"`             // UUID, nullable
	VendorName    string     `db:"vendor_name" json:"vendor_name"`         // VARCHAR(120), nullable
	Supervisor    string     `db:"supervisor" json:"supervisor"`           // VARCHAR(120), nullable
	GroupName     string     `db:"group_name" json:"group_name"`           // VARCHAR(120), nullable
	LastVisitDate *time.Time `db:"last_visit_date" json:"last_visit_date"` // DATE, nullable
	ContractNotes string     `db:"contract_notes" json:"contract_notes"`   // TEXT, nullable

	VisitGenerated bool `db:"visit_generated" json:"visit_generated"` // BOOLEAN, NOT NULL, DEFAULT FALSE

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Vendor returns the entry's vendor reference, preferring the id.
func (e *ScheduleEntry) Vendor() VendorRef {
	return NewVendorRef(e.VendorID, e.VendorName)
}
