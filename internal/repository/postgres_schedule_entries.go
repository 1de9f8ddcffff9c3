package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/identity"
	"fieldvisit/internal/timewindow"

	"github.com/lib/pq"
)

// PostgresScheduleEntriesRepository 排程网格Repository实现
type PostgresScheduleEntriesRepository struct {
	db *sql.DB
}

// NewPostgresScheduleEntriesRepository 创建排程网格Repository
func NewPostgresScheduleEntriesRepository(db *sql.DB) *PostgresScheduleEntriesRepository {
	return &PostgresScheduleEntriesRepository{db: db}
}

// 确保实现了接口
var _ ScheduleEntriesRepository = (*PostgresScheduleEntriesRepository)(nil)

const entryColumns = `
			entry_id::text,
			client_id::text,
			dedupe_key,
			code,
			legal_name,
			trade_name,
			time_window,
			time_window_options,
			postal_code,
			street,
			neighborhood,
			city,
			region,
			status,
			vendor_id::text,
			vendor_name,
			supervisor,
			group_name,
			last_visit_date,
			contract_notes,
			visit_generated,
			created_at`

func scanEntry(row interface{ Scan(...any) error }) (*domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	var clientID, code, legalName, tradeName, timeWindow, timeWindowOptions sql.NullString
	var postalCode, street, neighborhood, city, region sql.NullString
	var vendorID, vendorName, supervisor, groupName, contractNotes sql.NullString
	var lastVisitDate sql.NullTime
	var status string

	if err := row.Scan(
		&e.EntryID,
		&clientID,
		&e.DedupeKey,
		&code,
		&legalName,
		&tradeName,
		&timeWindow,
		&timeWindowOptions,
		&postalCode,
		&street,
		&neighborhood,
		&city,
		&region,
		&status,
		&vendorID,
		&vendorName,
		&supervisor,
		&groupName,
		&lastVisitDate,
		&contractNotes,
		&e.VisitGenerated,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}

	e.ClientID = clientID.String
	e.Code = code.String
	e.LegalName = legalName.String
	e.TradeName = tradeName.String
	e.TimeWindow = timeWindow.String
	e.TimeWindowOptions = timeWindowOptions.String
	e.PostalCode = postalCode.String
	e.Street = street.String
	e.Neighborhood = neighborhood.String
	e.City = city.String
	e.Region = region.String
	e.Status = domain.ClientStatus(status)
	e.VendorID = vendorID.String
	e.VendorName = vendorName.String
	e.Supervisor = supervisor.String
	e.GroupName = groupName.String
	e.ContractNotes = contractNotes.String
	if lastVisitDate.Valid {
		d := lastVisitDate.Time
		e.LastVisitDate = &d
	}
	return &e, nil
}

func (r *PostgresScheduleEntriesRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*domain.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// prepareEntry fills derived keys; an entry with no name resolves to no key.
func prepareEntry(e *domain.ScheduleEntry) error {
	if e.DedupeKey == "" {
		e.DedupeKey = identity.NameKey(e.LegalName, e.TradeName)
	}
	if e.DedupeKey == "" {
		return fmt.Errorf("legal_name or trade_name is required: %w", domain.ErrValidation)
	}
	if e.Status == "" {
		e.Status = domain.StatusActive
	}
	return nil
}

// GetEntry 获取排程行
func (r *PostgresScheduleEntriesRepository) GetEntry(ctx context.Context, entryID string) (*domain.ScheduleEntry, error) {
	if entryID == "" {
		return nil, domain.ErrNotFound
	}
	query := `SELECT ` + entryColumns + ` FROM schedule_entries WHERE entry_id = $1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("schedule entry %s: %w", entryID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule entry: %w", err)
	}
	return e, nil
}

// InsertEntryIgnore 按 dedupe_key 插入；冲突时返回已有行的 id
func (r *PostgresScheduleEntriesRepository) InsertEntryIgnore(ctx context.Context, e *domain.ScheduleEntry) (string, bool, error) {
	if err := prepareEntry(e); err != nil {
		return "", false, err
	}

	query := `
		INSERT INTO schedule_entries (
			client_id, dedupe_key, code, code_key, legal_name, trade_name,
			time_window, time_window_options,
			postal_code, street, neighborhood, city, region, status,
			vendor_id, vendor_name, supervisor, group_name, last_visit_date, contract_notes,
			visit_generated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING entry_id::text
	`

	var entryID string
	err := r.db.QueryRowContext(ctx, query,
		nullString(e.ClientID),
		e.DedupeKey,
		nullString(e.Code),
		nullString(identity.CodeKey(e.Code)),
		nullString(e.LegalName),
		nullString(e.TradeName),
		nullString(e.TimeWindow),
		nullString(e.TimeWindowOptions),
		nullString(e.PostalCode),
		nullString(e.Street),
		nullString(e.Neighborhood),
		nullString(e.City),
		nullString(e.Region),
		string(e.Status),
		nullString(e.VendorID),
		nullString(e.VendorName),
		nullString(e.Supervisor),
		nullString(e.GroupName),
		nullDate(e.LastVisitDate),
		nullString(e.ContractNotes),
		e.VisitGenerated,
	).Scan(&entryID)
	if err == nil {
		e.EntryID = entryID
		return entryID, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("failed to insert schedule entry: %w", err)
	}

	// 冲突：返回已有行
	err = r.db.QueryRowContext(ctx,
		`SELECT entry_id::text FROM schedule_entries WHERE dedupe_key = $1`, e.DedupeKey,
	).Scan(&entryID)
	if err != nil {
		return "", false, fmt.Errorf("failed to get existing schedule entry: %w", err)
	}
	return entryID, false, nil
}

// UpdateEntry 更新排程行
func (r *PostgresScheduleEntriesRepository) UpdateEntry(ctx context.Context, entryID string, e *domain.ScheduleEntry) error {
	if entryID == "" {
		return fmt.Errorf("entry_id is required: %w", domain.ErrValidation)
	}
	e.DedupeKey = ""
	if err := prepareEntry(e); err != nil {
		return err
	}

	query := `
		UPDATE schedule_entries
		SET
			client_id = $2,
			dedupe_key = $3,
			code = $4,
			code_key = $5,
			legal_name = $6,
			trade_name = $7,
			time_window = $8,
			time_window_options = $9,
			postal_code = $10,
			street = $11,
			neighborhood = $12,
			city = $13,
			region = $14,
			status = $15,
			vendor_id = $16,
			vendor_name = $17,
			supervisor = $18,
			group_name = $19,
			last_visit_date = $20,
			contract_notes = $21
		WHERE entry_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, entryID,
		nullString(e.ClientID),
		e.DedupeKey,
		nullString(e.Code),
		nullString(identity.CodeKey(e.Code)),
		nullString(e.LegalName),
		nullString(e.TradeName),
		nullString(e.TimeWindow),
		nullString(e.TimeWindowOptions),
		nullString(e.PostalCode),
		nullString(e.Street),
		nullString(e.Neighborhood),
		nullString(e.City),
		nullString(e.Region),
		string(e.Status),
		nullString(e.VendorID),
		nullString(e.VendorName),
		nullString(e.Supervisor),
		nullString(e.GroupName),
		nullDate(e.LastVisitDate),
		nullString(e.ContractNotes),
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule entry: %w", err)
	}
	return expectAffected(result, "schedule entry")
}

// FindEntriesByCode 按 code 键查找
func (r *PostgresScheduleEntriesRepository) FindEntriesByCode(ctx context.Context, codeKey string) ([]*domain.ScheduleEntry, error) {
	if codeKey == "" {
		return nil, nil
	}
	query := `SELECT ` + entryColumns + ` FROM schedule_entries WHERE code_key = $1 ORDER BY created_at`
	entries, err := r.queryEntries(ctx, query, codeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule entries by code: %w", err)
	}
	return entries, nil
}

// FindEntriesByKey 按 dedupe_key 查找
func (r *PostgresScheduleEntriesRepository) FindEntriesByKey(ctx context.Context, dedupeKey string) ([]*domain.ScheduleEntry, error) {
	if dedupeKey == "" {
		return nil, nil
	}
	query := `SELECT ` + entryColumns + ` FROM schedule_entries WHERE dedupe_key = $1`
	entries, err := r.queryEntries(ctx, query, dedupeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule entries by key: %w", err)
	}
	return entries, nil
}

// GetEntriesByIDs 批量获取
func (r *PostgresScheduleEntriesRepository) GetEntriesByIDs(ctx context.Context, entryIDs []string) ([]*domain.ScheduleEntry, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + entryColumns + ` FROM schedule_entries WHERE entry_id = ANY($1::uuid[]) ORDER BY created_at`
	entries, err := r.queryEntries(ctx, query, pq.Array(entryIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule entries: %w", err)
	}
	return entries, nil
}

// SetVisitGenerated 设置/清除“已生成拜访”标记
func (r *PostgresScheduleEntriesRepository) SetVisitGenerated(ctx context.Context, entryID string, generated bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE schedule_entries SET visit_generated = $2 WHERE entry_id = $1`, entryID, generated)
	if err != nil {
		return fmt.Errorf("failed to set visit_generated: %w", err)
	}
	return expectAffected(result, "schedule entry")
}

// SetLastVisitDate 更新最近拜访日期（只前进不后退）
func (r *PostgresScheduleEntriesRepository) SetLastVisitDate(ctx context.Context, entryID string, date time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedule_entries
		SET last_visit_date = GREATEST(coalesce(last_visit_date, $2::date), $2::date)
		WHERE entry_id = $1`, entryID, date.Format(domain.DateLayout))
	if err != nil {
		return fmt.Errorf("failed to set last_visit_date: %w", err)
	}
	return expectAffected(result, "schedule entry")
}

// buildScheduleWhere renders the ANDed conditions. Column names are checked
// against the whitelists by ScheduleQuery.Validate before reaching here.
func buildScheduleWhere(q *ScheduleQuery) (string, []any) {
	where := []string{"TRUE"}
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, c := range q.Conditions {
		switch c.Kind {
		case CondIn:
			where = append(where, fmt.Sprintf("%s = ANY(%s)", c.Column, next(pq.Array(c.Values))))
		case CondTag:
			where = append(where, tagClause(c, next))
		case CondSearch:
			p := next("%" + escapeLike(c.Text) + "%")
			ors := make([]string, 0, len(c.Columns))
			for _, col := range c.Columns {
				ors = append(ors, fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, col, p))
			}
			where = append(where, "("+strings.Join(ors, " OR ")+")")
		case CondDateOutsideOrNull:
			from := next(c.From.Format(domain.DateLayout))
			to := next(c.To.Format(domain.DateLayout))
			where = append(where, fmt.Sprintf("(%s::date < %s::date OR %s::date > %s::date OR %s IS NULL)", c.Column, from, c.Column, to, c.Column))
		case CondDateWithin:
			from := next(c.From.Format(domain.DateLayout))
			to := next(c.To.Format(domain.DateLayout))
			where = append(where, fmt.Sprintf("(%s::date >= %s::date AND %s::date <= %s::date)", c.Column, from, c.Column, to))
		}
	}

	if q.RestrictIDs {
		where = append(where, fmt.Sprintf("entry_id = ANY(%s::uuid[])", next(pq.Array(q.EntryIDs))))
	}

	return strings.Join(where, " AND "), args
}

// QueryEntries 网格查询
func (r *PostgresScheduleEntriesRepository) QueryEntries(ctx context.Context, q *ScheduleQuery) ([]*domain.ScheduleEntry, int, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}
	q.Normalize()

	// 空白名单直接返回空结果
	if q.RestrictIDs && len(q.EntryIDs) == 0 {
		return []*domain.ScheduleEntry{}, 0, nil
	}

	whereClause, args := buildScheduleWhere(q)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_entries WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count schedule entries: %w", err)
	}

	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s
		FROM schedule_entries
		WHERE %s
		ORDER BY %s %s NULLS LAST, entry_id
		LIMIT $%d OFFSET $%d`, entryColumns, whereClause, q.SortBy, dir, n+1, n+2)
	args = append(args, q.Size, (q.Page-1)*q.Size)

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query schedule entries: %w", err)
	}
	if entries == nil {
		entries = []*domain.ScheduleEntry{}
	}
	return entries, total, nil
}

// DistinctValues 某列所有原始取值
func (r *PostgresScheduleEntriesRepository) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if !TextColumns[column] {
		return nil, fmt.Errorf("unknown column %s: %w", column, domain.ErrValidation)
	}

	query := fmt.Sprintf(`SELECT DISTINCT %s FROM schedule_entries WHERE coalesce(%s, '') <> '' ORDER BY 1`, column, column)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan distinct value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// tagClause renders the timewindow.Tag rule: the custom tag matches any clock
// time, presets match trimmed text in any case, other labels match trimmed text.
func tagClause(c Condition, next func(any) string) string {
	var presets, free []string
	var ors []string
	for _, v := range c.Values {
		v = timewindow.Normalize(v)
		if v == timewindow.TagCustom {
			ors = append(ors, fmt.Sprintf("%s ~ %s", c.Column, next(timewindow.ClockPattern)))
			continue
		}
		if p, ok := timewindow.PresetFold(v); ok {
			presets = append(presets, strings.ToLower(p))
			continue
		}
		free = append(free, v)
	}
	if len(presets) > 0 {
		ors = append(ors, fmt.Sprintf("lower(btrim(%s)) = ANY(%s)", c.Column, next(pq.Array(presets))))
	}
	if len(free) > 0 {
		ors = append(ors, fmt.Sprintf("btrim(%s) = ANY(%s)", c.Column, next(pq.Array(free))))
	}
	if len(ors) == 0 {
		return "FALSE"
	}
	return "(" + strings.Join(ors, " OR ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes search text match literally inside ILIKE.
func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}
