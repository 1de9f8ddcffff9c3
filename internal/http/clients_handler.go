package httpapi

import (
	"net/http"
	"strings"

	"fieldvisit/internal/service"

	"go.uber.org/zap"
)

const clientsPath = "/api/v1/clients"

// ClientsHandler 客户登记 Handler
type ClientsHandler struct {
	clients *service.ClientService
	logger  *zap.Logger
}

func NewClientsHandler(clients *service.ClientService, logger *zap.Logger) *ClientsHandler {
	return &ClientsHandler{clients: clients, logger: logger}
}

func (h *ClientsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, clientsPath)
	switch {
	case id == "" && r.Method == http.MethodGet:
		h.ListClients(w, r)
	case id == "" && r.Method == http.MethodPost:
		h.CreateClient(w, r)
	case id != "" && rest == "" && r.Method == http.MethodGet:
		h.GetClient(w, r, id)
	case id != "" && rest == "" && r.Method == http.MethodPut:
		h.UpdateClient(w, r, id)
	case id != "" && rest == "" && r.Method == http.MethodDelete:
		h.DeleteClient(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListClients 查询客户列表
func (h *ClientsHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.clients.ListClients(r.Context(), service.ListClientsRequest{
		Status:         strings.TrimSpace(q.Get("status")),
		Search:         q.Get("search"),
		MissingAddress: q.Get("missing_address") == "true",
		Page:           parseInt(q.Get("page"), 1),
		Size:           parseInt(q.Get("size"), 50),
	})
	if err != nil {
		h.logger.Error("ListClients failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// CreateClient 创建客户
func (h *ClientsHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req service.ClientRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	resp, err := h.clients.CreateClient(r.Context(), req)
	if err != nil {
		h.logger.Error("CreateClient failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *ClientsHandler) GetClient(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.clients.GetClient(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

// UpdateClient 更新客户（同步到排程网格和开放拜访）
func (h *ClientsHandler) UpdateClient(w http.ResponseWriter, r *http.Request, id string) {
	var req service.ClientRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	resp, err := h.clients.UpdateClient(r.Context(), id, req)
	if err != nil {
		h.logger.Error("UpdateClient failed", zap.String("client_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *ClientsHandler) DeleteClient(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.clients.DeleteClient(r.Context(), id); err != nil {
		h.logger.Error("DeleteClient failed", zap.String("client_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"client_id": id}))
}
