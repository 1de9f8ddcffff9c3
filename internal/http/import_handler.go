package httpapi

import (
	"net/http"

	"fieldvisit/internal/service"

	"go.uber.org/zap"
)

// ImportHandler XLSX 导入与模板下载
type ImportHandler struct {
	imports *service.ImportService
	logger  *zap.Logger
}

func NewImportHandler(imports *service.ImportService, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{imports: imports, logger: logger}
}

// ImportClients 导入客户与排程行
func (h *ImportHandler) ImportClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil { // 10MB max
		writeJSON(w, http.StatusOK, Fail("failed to parse form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("file not found in request"))
		return
	}
	defer file.Close()

	report, err := h.imports.ImportXLSX(r.Context(), file)
	if err != nil {
		h.logger.Error("ImportClients failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}

// Template 下载导入模板
func (h *ImportHandler) Template(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, err := h.imports.Template()
	if err != nil {
		h.logger.Error("Generate import template failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to generate template"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="clients_import_template.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
