package service

import (
	"bytes"
	"context"
	"testing"

	"fieldvisit/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook 生成测试用 XLSX
func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportService_ImportXLSX(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	buf := buildWorkbook(t, [][]any{
		{"Código", "Razão Social", "Nome Fantasia", "Horário", "Cidade", "Status", "Vendedor", "Última Visita", "Ignored"},
		{"C-1", "Padaria Sol Ltda", "Padaria Sol", "08:00 / 15:00", "Campinas", "ativo", "Ana", "15/02/2024", "x"},
		{" ", " ", "", "", "", "", "", "", ""},
		{"C-2", "", "", "", "", "", "", "", ""},
		{"C-1", "Padaria Sol Ltda", "Padaria Sol", "Morning", "Santos", "Inativo", "Ana", "", ""},
		{"C-3", "Bar Lua", "", "", "", "", "", "2024-13-40", ""},
	})

	report, err := env.imports.ImportXLSX(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.ClientsCreated)
	assert.Equal(t, 1, report.ClientsUpdated)
	assert.Equal(t, 1, report.EntriesCreated)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 4, report.Errors[0].Row)
	assert.Equal(t, 6, report.Errors[1].Row)

	c, err := env.clients.FindClient(ctx, "C-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Santos", c.City)
	assert.Equal(t, domain.StatusInactive, c.Status)

	e := findEntry(t, env, "Padaria Sol Ltda", "Padaria Sol")
	assert.Equal(t, c.ClientID, e.ClientID)
	assert.Equal(t, "Ana", e.VendorName)
	assert.Equal(t, "Morning", e.TimeWindow)
	assert.Equal(t, domain.StatusInactive, e.Status)
	require.NotNil(t, e.LastVisitDate)
	assert.True(t, domain.SameDay(day(2024, 2, 15), *e.LastVisitDate))

	assert.Contains(t, env.feed.Events(), EventImportDone)
}

func TestImportService_RejectsBadFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.imports.ImportXLSX(ctx, bytes.NewBufferString("not a spreadsheet"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	buf := buildWorkbook(t, [][]any{
		{"Foo", "Bar"},
		{"1", "2"},
	})
	_, err = env.imports.ImportXLSX(ctx, buf)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestImportService_Template(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data, err := env.imports.Template()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Clients")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ImportHeader, rows[0])

	// 每个表头都能被识别
	report, err := env.imports.ImportXLSX(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
}

func TestParseImportDate(t *testing.T) {
	for _, raw := range []string{"2024-02-15", "15/02/2024", "15/2/2024"} {
		d, err := parseImportDate(raw)
		require.NoError(t, err, raw)
		assert.True(t, domain.SameDay(day(2024, 2, 15), d), raw)
	}
	_, err := parseImportDate("yesterday")
	assert.Error(t, err)
}
