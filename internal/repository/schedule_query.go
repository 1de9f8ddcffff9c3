package repository

import (
	"fmt"
	"time"
)

// ConditionKind 网格查询条件类型
type ConditionKind int

const (
	// CondIn column = ANY(values)
	CondIn ConditionKind = iota
	// CondTag timewindow.Tag(column) is one of Values
	CondTag
	// CondSearch any of Columns ILIKE %Text%
	CondSearch
	// CondDateOutsideOrNull column < From OR column > To OR column IS NULL
	CondDateOutsideOrNull
	// CondDateWithin From <= column <= To
	CondDateWithin
)

// Condition is one predicate of a schedule grid query. Conditions are ANDed;
// the values inside one condition are ORed.
type Condition struct {
	Kind    ConditionKind
	Column  string
	Values  []string
	Columns []string
	Text    string
	From    time.Time
	To      time.Time
}

// ScheduleQuery 网格查询
type ScheduleQuery struct {
	Conditions []Condition

	// RestrictIDs limits results to EntryIDs (the allow-list); an empty list
	// with RestrictIDs set matches nothing.
	RestrictIDs bool
	EntryIDs    []string

	SortBy   string
	SortDesc bool
	Page     int
	Size     int
}

// TextColumns 可按取值过滤的文本列
var TextColumns = map[string]bool{
	"code":           true,
	"legal_name":     true,
	"trade_name":     true,
	"time_window":    true,
	"postal_code":    true,
	"street":         true,
	"neighborhood":   true,
	"city":           true,
	"region":         true,
	"status":         true,
	"vendor_name":    true,
	"supervisor":     true,
	"group_name":     true,
	"contract_notes": true,
}

// DateColumns 可按日期范围过滤的列
var DateColumns = map[string]bool{
	"last_visit_date": true,
	"created_at":      true,
}

// SearchColumns 全局文本过滤覆盖的列
var SearchColumns = []string{
	"code", "legal_name", "trade_name", "street", "neighborhood", "city", "vendor_name", "group_name",
}

// SortColumns 允许排序的列
var SortColumns = map[string]bool{
	"legal_name":      true,
	"trade_name":      true,
	"code":            true,
	"city":            true,
	"neighborhood":    true,
	"vendor_name":     true,
	"group_name":      true,
	"status":          true,
	"last_visit_date": true,
	"created_at":      true,
}

// Validate rejects unknown columns before they reach SQL.
func (q *ScheduleQuery) Validate() error {
	for _, c := range q.Conditions {
		switch c.Kind {
		case CondIn, CondTag:
			if !TextColumns[c.Column] {
				return fmt.Errorf("unknown filter column: %s", c.Column)
			}
		case CondSearch:
			for _, col := range c.Columns {
				if !TextColumns[col] {
					return fmt.Errorf("unknown search column: %s", col)
				}
			}
		case CondDateOutsideOrNull, CondDateWithin:
			if !DateColumns[c.Column] {
				return fmt.Errorf("unknown date column: %s", c.Column)
			}
		default:
			return fmt.Errorf("unknown condition kind: %d", c.Kind)
		}
	}
	if q.SortBy != "" && !SortColumns[q.SortBy] {
		return fmt.Errorf("unknown sort column: %s", q.SortBy)
	}
	return nil
}

// Normalize fills paging defaults.
func (q *ScheduleQuery) Normalize() {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 {
		q.Size = 50
	}
	if q.Size > BulkPageSize {
		q.Size = BulkPageSize
	}
	if q.SortBy == "" {
		q.SortBy = "legal_name"
	}
}
