package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/identity"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ImportHeader 导入模板表头（显示顺序）
var ImportHeader = []string{
	"Code",
	"Legal Name",
	"Trade Name",
	"Time Window",
	"Postal Code",
	"Street",
	"Neighborhood",
	"City",
	"Region",
	"Status",
	"Vendor",
	"Supervisor",
	"Group",
	"Last Visit",
	"Contract Notes",
}

// importFields 规范化表头 → 字段名；同一字段允许多个别名
var importFields = map[string]string{
	"CODE":           "code",
	"CODIGO":         "code",
	"LEGAL NAME":     "legal_name",
	"RAZAO SOCIAL":   "legal_name",
	"TRADE NAME":     "trade_name",
	"NOME FANTASIA":  "trade_name",
	"TIME WINDOW":    "time_window",
	"HORARIO":        "time_window",
	"POSTAL CODE":    "postal_code",
	"CEP":            "postal_code",
	"STREET":         "street",
	"ENDERECO":       "street",
	"NEIGHBORHOOD":   "neighborhood",
	"BAIRRO":         "neighborhood",
	"CITY":           "city",
	"CIDADE":         "city",
	"REGION":         "region",
	"UF":             "region",
	"STATUS":         "status",
	"VENDOR":         "vendor_name",
	"VENDEDOR":       "vendor_name",
	"SUPERVISOR":     "supervisor",
	"GROUP":          "group_name",
	"GRUPO":          "group_name",
	"LAST VISIT":     "last_visit_date",
	"ULTIMA VISITA":  "last_visit_date",
	"CONTRACT NOTES": "contract_notes",
	"CONTRATO":       "contract_notes",
}

var importDateLayouts = []string{domain.DateLayout, "02/01/2006", "2/1/2006", "01-02-06"}

// ImportRowError 单行导入错误
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportReport 导入结果
type ImportReport struct {
	Total          int              `json:"total"`
	ClientsCreated int              `json:"clients_created"`
	ClientsUpdated int              `json:"clients_updated"`
	EntriesCreated int              `json:"entries_created"`
	Skipped        int              `json:"skipped"`
	Errors         []ImportRowError `json:"errors"`
}

// ImportService 批量导入客户与排程行（XLSX）
type ImportService struct {
	clients  *ClientService
	schedule *ScheduleService
	cache    *OptionsCache
	feed     ChangeFeed
	logger   *zap.Logger
}

func NewImportService(clients *ClientService, schedule *ScheduleService, cache *OptionsCache, feed ChangeFeed, logger *zap.Logger) *ImportService {
	if feed == nil {
		feed = NopChangeFeed{}
	}
	return &ImportService{clients: clients, schedule: schedule, cache: cache, feed: feed, logger: logger}
}

// ImportXLSX reads the first sheet. Each row registers or updates its client
// and upserts its grid row; row errors go to the report and never abort.
func (s *ImportService) ImportXLSX(ctx context.Context, r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, invalid("failed to parse Excel file: %v", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, invalid("Excel file has no sheets")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	report := &ImportReport{Errors: []ImportRowError{}}
	if len(rows) < 2 {
		return report, nil
	}

	columns := map[int]string{}
	for i, h := range rows[0] {
		if field, ok := importFields[identity.NormalizeText(h)]; ok {
			columns[i] = field
		}
	}
	if len(columns) == 0 {
		return nil, invalid("no known columns in header row")
	}

	for idx := 1; idx < len(rows); idx++ {
		rowNum := idx + 1
		values := map[string]string{}
		for i, cell := range rows[idx] {
			if field, ok := columns[i]; ok {
				if v := strings.TrimSpace(cell); v != "" {
					values[field] = v
				}
			}
		}
		if len(values) == 0 {
			report.Skipped++
			continue
		}
		report.Total++

		if err := s.importRow(ctx, values, report); err != nil {
			report.Errors = append(report.Errors, ImportRowError{Row: rowNum, Message: err.Error()})
			s.logger.Warn("Import row failed", zap.Int("row", rowNum), zap.Error(err))
		}
	}

	s.cache.Invalidate(ctx)
	if err := s.feed.Publish(ctx, EventImportDone, report); err != nil {
		s.logger.Warn("Failed to publish import event", zap.Error(err))
	}
	s.logger.Info("Import finished",
		zap.Int("total", report.Total),
		zap.Int("clients_created", report.ClientsCreated),
		zap.Int("clients_updated", report.ClientsUpdated),
		zap.Int("entries_created", report.EntriesCreated),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (s *ImportService) importRow(ctx context.Context, v map[string]string, report *ImportReport) error {
	if v["legal_name"] == "" && v["trade_name"] == "" {
		return errors.New("legal name or trade name is required")
	}

	var lastVisit *time.Time
	if raw := v["last_visit_date"]; raw != "" {
		d, err := parseImportDate(raw)
		if err != nil {
			return err
		}
		lastVisit = &d
	}

	clientReq := ClientRequest{
		Code:         v["code"],
		LegalName:    v["legal_name"],
		TradeName:    v["trade_name"],
		PostalCode:   v["postal_code"],
		Street:       v["street"],
		Neighborhood: v["neighborhood"],
		City:         v["city"],
		Region:       v["region"],
		Status:       v["status"],
		TimeWindow:   v["time_window"],
	}

	var clientID string
	var synced bool
	existing, err := s.clients.FindClient(ctx, clientReq.Code, clientReq.LegalName, clientReq.TradeName)
	switch {
	case err == nil:
		resp, err := s.clients.UpdateClient(ctx, existing.ClientID, clientReq)
		if err != nil {
			return err
		}
		clientID = resp.Client.ClientID
		synced = resp.Sync != nil && resp.Sync.EntryInserted
		report.ClientsUpdated++
	case errors.Is(err, domain.ErrNotFound):
		resp, err := s.clients.CreateClient(ctx, clientReq)
		if err != nil {
			return err
		}
		clientID = resp.Client.ClientID
		synced = resp.Sync != nil && resp.Sync.EntryInserted
		report.ClientsCreated++
	default:
		return err
	}

	// 客户同步已建立基础行；这里补充排程字段
	entry := EntryRequest{
		ClientID:      clientID,
		Code:          clientReq.Code,
		LegalName:     clientReq.LegalName,
		TradeName:     clientReq.TradeName,
		TimeWindow:    clientReq.TimeWindow,
		PostalCode:    clientReq.PostalCode,
		Street:        clientReq.Street,
		Neighborhood:  clientReq.Neighborhood,
		City:          clientReq.City,
		Region:        clientReq.Region,
		Status:        clientReq.Status,
		VendorName:    v["vendor_name"],
		Supervisor:    v["supervisor"],
		GroupName:     v["group_name"],
		LastVisitDate: lastVisit,
		ContractNotes: v["contract_notes"],
	}
	up, err := s.schedule.UpsertEntry(ctx, entry)
	if err != nil {
		return err
	}
	if up.Inserted || synced {
		report.EntriesCreated++
	}
	if up.Inserted {
		return nil
	}
	if _, err := s.schedule.UpdateEntry(ctx, up.EntryID, entry); err != nil {
		return err
	}
	return nil
}

func parseImportDate(raw string) (time.Time, error) {
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

// Template 生成导入模板（只含表头）
func (s *ImportService) Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Clients"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ImportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}
