package domain

import (
	"strings"
	"time"
)

// VisitState 拜访状态
type VisitState string

const (
	VisitOpen               VisitState = "open"
	VisitCompletedWithCount VisitState = "completed_with_count"
	VisitCompletedNoVisit   VisitState = "completed_no_visit"
)

// Visit 拜访记录领域模型（对应 visits 表）
type Visit struct {
	VisitID string `db:"visit_id" json:"visit_id"` // UUID, PRIMARY KEY
	EntryID string `db:"entry_id" json:"entry_id"` // UUID, NOT NULL, FK to schedule_entries

	VisitDate time.Time `db:"visit_date" json:"visit_date"` // DATE, NOT NULL

	// 执行人：id 和/或显示名（历史数据可能只有名称）
	VendorID   string `db:"vendor_id" json:"vendor_id"`     // UUID, nullable
	VendorName string `db:"vendor_name" json:"vendor_name"` // VARCHAR(120), nullable

	TimeWindow        string `db:"time_window" json:"time_window"`
	TimeWindowOptions string `db:"time_window_options" json:"time_window_options"`

	RouteID string `db:"route_id" json:"route_id"` // UUID, nullable, FK to routes

	CompletedAt      *time.Time `db:"completed_at" json:"completed_at"`             // TIMESTAMPTZ, nullable - null means open
	LifeCount        *int       `db:"life_count" json:"life_count"`                 // INTEGER, nullable - only with completion
	NotVisitedReason string     `db:"not_visited_reason" json:"not_visited_reason"` // VARCHAR(50), nullable - exclusive with life_count

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// State derives the lifecycle state from the completion columns.
func (v *Visit) State() VisitState {
	switch {
	case v.CompletedAt == nil:
		return VisitOpen
	case v.LifeCount != nil:
		return VisitCompletedWithCount
	default:
		return VisitCompletedNoVisit
	}
}

// IsCompleted reports whether the visit reached a terminal state.
func (v *Visit) IsCompleted() bool {
	return v.CompletedAt != nil
}

// Consistent checks that the visit is in exactly one of the three states.
func (v *Visit) Consistent() bool {
	if v.CompletedAt == nil {
		return v.LifeCount == nil && v.NotVisitedReason == ""
	}
	if v.LifeCount != nil {
		return *v.LifeCount >= 0 && v.NotVisitedReason == ""
	}
	return v.NotVisitedReason != ""
}

// Vendor returns the visit's vendor reference.
func (v *Visit) Vendor() VendorRef {
	return NewVendorRef(v.VendorID, v.VendorName)
}

// NotVisitedReasons 未拜访原因（固定枚举）
var NotVisitedReasons = []string{
	"establishment_closed",
	"contact_absent",
	"refused_visit",
	"address_not_found",
	"rescheduled_by_client",
	"out_of_time",
	"other",
}

// IsNotVisitedReason checks membership in NotVisitedReasons.
func IsNotVisitedReason(reason string) bool {
	for _, r := range NotVisitedReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// DateOnly truncates t to midnight in its location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateLayout 日期格式
const DateLayout = "2006-01-02"

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
