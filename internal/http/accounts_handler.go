package httpapi

import (
	"context"
	"net/http"
	"strings"

	"fieldvisit/internal/accounts"

	"go.uber.org/zap"
)

// AccountsInvoker is satisfied by accounts.Client.
type AccountsInvoker interface {
	Invoke(ctx context.Context, action string, payload map[string]any) (*accounts.Profile, error)
}

// AccountsHandler 特权账号操作（仅 admin）
type AccountsHandler struct {
	accounts AccountsInvoker
	logger   *zap.Logger
}

func NewAccountsHandler(a AccountsInvoker, logger *zap.Logger) *AccountsHandler {
	return &AccountsHandler{accounts: a, logger: logger}
}

func (h *AccountsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !strings.EqualFold(strings.TrimSpace(r.Header.Get("X-User-Role")), "admin") {
		writeJSON(w, http.StatusForbidden, Fail("admin role required"))
		return
	}

	var p struct {
		Action  string         `json:"action"`
		Payload map[string]any `json:"payload"`
	}
	if err := readBodyJSON(r, 1<<20, &p); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	profile, err := h.accounts.Invoke(r.Context(), strings.ToLower(strings.TrimSpace(p.Action)), p.Payload)
	if err != nil {
		h.logger.Error("Account action failed", zap.String("action", p.Action), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(profile))
}
