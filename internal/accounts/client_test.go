package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req invokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if req.Action == ActionDelete {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":"caller is not admin"}`)
			return
		}
		fmt.Fprintf(w, `{"profile":{"user_id":"u-1","email":"%s","role":"vendor","active":true}}`, req.Payload["email"])
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", zap.NewNop())

	p, err := c.Invoke(context.Background(), ActionCreate, map[string]any{"email": "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "ana@example.com", p.Email)

	_, err = c.Invoke(context.Background(), ActionDelete, map[string]any{"user_id": "u-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caller is not admin")

	_, err = c.Invoke(context.Background(), "promote", nil)
	assert.True(t, errors.Is(err, ErrUnknownAction))
}
