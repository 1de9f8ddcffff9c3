package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/identity"
)

// PostgresClientsRepository 客户Repository实现
type PostgresClientsRepository struct {
	db *sql.DB
}

// NewPostgresClientsRepository 创建客户Repository
func NewPostgresClientsRepository(db *sql.DB) *PostgresClientsRepository {
	return &PostgresClientsRepository{db: db}
}

// 确保实现了接口
var _ ClientsRepository = (*PostgresClientsRepository)(nil)

const clientColumns = `
			client_id::text,
			code,
			legal_name,
			trade_name,
			postal_code,
			street,
			neighborhood,
			city,
			region,
			latitude,
			longitude,
			status,
			time_window,
			created_at`

func scanClient(row interface{ Scan(...any) error }) (*domain.Client, error) {
	var c domain.Client
	var code, legalName, tradeName, postalCode, street, neighborhood, city, region, timeWindow sql.NullString
	var latitude, longitude sql.NullFloat64
	var status string

	if err := row.Scan(
		&c.ClientID,
		&code,
		&legalName,
		&tradeName,
		&postalCode,
		&street,
		&neighborhood,
		&city,
		&region,
		&latitude,
		&longitude,
		&status,
		&timeWindow,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}

	c.Code = code.String
	c.LegalName = legalName.String
	c.TradeName = tradeName.String
	c.PostalCode = postalCode.String
	c.Street = street.String
	c.Neighborhood = neighborhood.String
	c.City = city.String
	c.Region = region.String
	c.TimeWindow = timeWindow.String
	c.Status = domain.ClientStatus(status)
	if latitude.Valid {
		lat := latitude.Float64
		c.Latitude = &lat
	}
	if longitude.Valid {
		lon := longitude.Float64
		c.Longitude = &lon
	}
	return &c, nil
}

// GetClient 获取客户
func (r *PostgresClientsRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	if clientID == "" {
		return nil, domain.ErrNotFound
	}

	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE client_id = $1`

	c, err := scanClient(r.db.QueryRowContext(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// ListClients 批量查询客户（支持过滤和分页）
func (r *PostgresClientsRepository) ListClients(ctx context.Context, filters *ClientFilters, page, size int) ([]*domain.Client, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	argN := 1

	if filters != nil {
		if filters.Status != "" {
			where = append(where, fmt.Sprintf("status = $%d", argN))
			args = append(args, filters.Status)
			argN++
		}
		if s := strings.TrimSpace(filters.Search); s != "" {
			where = append(where, fmt.Sprintf(`(legal_name ILIKE $%d ESCAPE '\' OR trade_name ILIKE $%d ESCAPE '\' OR code ILIKE $%d ESCAPE '\')`, argN, argN, argN))
			args = append(args, "%"+escapeLike(s)+"%")
			argN++
		}
		if filters.MissingAddress {
			where = append(where, `(coalesce(neighborhood, '') = '' OR coalesce(city, '') = '' OR coalesce(region, '') = '' OR coalesce(postal_code, '') = '')`)
		}
	}

	queryCount := `SELECT COUNT(*) FROM clients WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count clients: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	argsList := append(args, size, offset)
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at, client_id
		LIMIT $` + fmt.Sprintf("%d", argN) + ` OFFSET $` + fmt.Sprintf("%d", argN+1)

	rows, err := r.db.QueryContext(ctx, query, argsList...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate clients: %w", err)
	}

	return clients, total, nil
}

// FindClient 先按 code_key，再按 name_key
func (r *PostgresClientsRepository) FindClient(ctx context.Context, lookup identity.Lookup) (*domain.Client, error) {
	if lookup.Empty() {
		return nil, domain.ErrNotFound
	}

	if lookup.CodeKey != "" {
		query := `SELECT ` + clientColumns + `
			FROM clients
			WHERE code_key = $1
			ORDER BY created_at
			LIMIT 1`
		c, err := scanClient(r.db.QueryRowContext(ctx, query, lookup.CodeKey))
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to find client by code: %w", err)
		}
	}

	if lookup.NameKey != "" {
		query := `SELECT ` + clientColumns + `
			FROM clients
			WHERE name_key = $1
			ORDER BY created_at
			LIMIT 1`
		c, err := scanClient(r.db.QueryRowContext(ctx, query, lookup.NameKey))
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to find client by name: %w", err)
		}
	}

	return nil, domain.ErrNotFound
}

// CreateClient 创建客户
func (r *PostgresClientsRepository) CreateClient(ctx context.Context, c *domain.Client) (string, error) {
	if !c.HasName() {
		return "", fmt.Errorf("legal_name or trade_name is required: %w", domain.ErrValidation)
	}
	if c.Status == "" {
		c.Status = domain.StatusActive
	}

	query := `
		INSERT INTO clients (
			code, code_key, legal_name, trade_name, name_key,
			postal_code, street, neighborhood, city, region,
			latitude, longitude, status, time_window
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING client_id::text, created_at
	`

	var clientID string
	err := r.db.QueryRowContext(ctx, query,
		nullString(c.Code),
		nullString(identity.CodeKey(c.Code)),
		nullString(c.LegalName),
		nullString(c.TradeName),
		identity.NameKey(c.LegalName, c.TradeName),
		nullString(c.PostalCode),
		nullString(c.Street),
		nullString(c.Neighborhood),
		nullString(c.City),
		nullString(c.Region),
		nullFloat(c.Latitude),
		nullFloat(c.Longitude),
		string(c.Status),
		nullString(c.TimeWindow),
	).Scan(&clientID, &c.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to create client: %w", err)
	}
	c.ClientID = clientID
	return clientID, nil
}

// UpdateClient 更新客户
func (r *PostgresClientsRepository) UpdateClient(ctx context.Context, clientID string, c *domain.Client) error {
	if clientID == "" {
		return fmt.Errorf("client_id is required: %w", domain.ErrValidation)
	}
	if !c.HasName() {
		return fmt.Errorf("legal_name or trade_name is required: %w", domain.ErrValidation)
	}
	if c.Status == "" {
		c.Status = domain.StatusActive
	}

	query := `
		UPDATE clients
		SET
			code = $2,
			code_key = $3,
			legal_name = $4,
			trade_name = $5,
			name_key = $6,
			postal_code = $7,
			street = $8,
			neighborhood = $9,
			city = $10,
			region = $11,
			latitude = $12,
			longitude = $13,
			status = $14,
			time_window = $15
		WHERE client_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, clientID,
		nullString(c.Code),
		nullString(identity.CodeKey(c.Code)),
		nullString(c.LegalName),
		nullString(c.TradeName),
		identity.NameKey(c.LegalName, c.TradeName),
		nullString(c.PostalCode),
		nullString(c.Street),
		nullString(c.Neighborhood),
		nullString(c.City),
		nullString(c.Region),
		nullFloat(c.Latitude),
		nullFloat(c.Longitude),
		string(c.Status),
		nullString(c.TimeWindow),
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return expectAffected(result, "client")
}

// DeleteClient 删除客户
func (r *PostgresClientsRepository) DeleteClient(ctx context.Context, clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client_id is required: %w", domain.ErrValidation)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE client_id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return expectAffected(result, "client")
}
