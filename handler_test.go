package gatekit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	*fixture
	router http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	f := newFixture(t)
	r := chi.NewRouter()
	NewHandler(f.svc, WithUserIDExtractor(headerUser)).MountRoutes(r)
	return &handlerFixture{fixture: f, router: r}
}

func (h *handlerFixture) do(method, path, user, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// TestHandlerListItems tests the visible listing endpoint
func TestHandlerListItems(t *testing.T) {
	h := newHandlerFixture(t)
	h.addItem("open", StatusPublished)
	h.addItem("nurses-only", StatusPublished, restrictedTo("nurse"))
	h.addItem("draft", StatusDraft)

	w := h.do(http.MethodGet, "/items?kind=wiki&status=PUBLISHED", "nurse", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	items := decodeBody[[]itemResponse](t, w)
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []string{"open", "nurses-only"}, ids)

	w = h.do(http.MethodGet, "/items?kind=wiki", "outsider", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	tests := []struct {
		name, path, user string
		want             int
	}{
		{"missing kind", "/items", "nurse", http.StatusUnprocessableEntity},
		{"bad status", "/items?kind=wiki&status=LIVE", "nurse", http.StatusUnprocessableEntity},
		{"anonymous", "/items?kind=wiki", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodGet, tt.path, tt.user, "")
			assert.Equal(t, tt.want, w.Code)
			p := decodeBody[problem](t, w)
			assert.Equal(t, tt.want, p.Status)
			assert.NotEmpty(t, p.Detail)
		})
	}
}

// TestHandlerGetItem tests that hidden items are reported as missing
func TestHandlerGetItem(t *testing.T) {
	h := newHandlerFixture(t)
	h.addItem("nurses-only", StatusPublished, restrictedTo("nurse"))

	w := h.do(http.MethodGet, "/items/nurses-only", "nurse", "")
	require.Equal(t, http.StatusOK, w.Code)
	item := decodeBody[itemResponse](t, w)
	assert.Equal(t, "nurses-only", item.ID)
	assert.True(t, item.RestrictByRole)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/items/nurses-only", "author", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/items/missing", "nurse", "").Code)
}

// TestHandlerTransitions tests the review workflow over HTTP
func TestHandlerTransitions(t *testing.T) {
	h := newHandlerFixture(t)
	h.addItem("a1", StatusDraft)

	w := h.do(http.MethodPost, "/items/a1/transitions", "author", `{"from":"DRAFT","to":"IN_REVIEW"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[transitionResponse](t, w)
	assert.Equal(t, StatusInReview, res.Status)
	assert.Equal(t, ReviewPending, res.ReviewStatus)
	require.NotEmpty(t, res.ReviewID)

	w = h.do(http.MethodPost, "/reviews/"+res.ReviewID+"/claim", "reviewer", "")
	require.Equal(t, http.StatusOK, w.Code)
	review := decodeBody[reviewResponse](t, w)
	assert.Equal(t, ReviewInProgress, review.Status)
	require.NotNil(t, review.AssigneeID)
	assert.Equal(t, "reviewer", *review.AssigneeID)

	w = h.do(http.MethodPost, "/reviews/"+res.ReviewID+"/claim", "reviewer2", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/items/a1/transitions", "reviewer", `{"from":"IN_REVIEW","to":"DRAFT","intent":"reject"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Feedback is required when rejecting.", decodeBody[problem](t, w).Detail)

	w = h.do(http.MethodPost, "/items/a1/transitions", "reviewer", `{"from":"IN_REVIEW","to":"DRAFT","feedback":"Add sources","intent":"reject"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ReviewRejected, decodeBody[transitionResponse](t, w).ReviewStatus)

	tests := []struct {
		name, user, body string
		want             int
	}{
		{"stale from", "reviewer", `{"from":"IN_REVIEW","to":"PUBLISHED"}`, http.StatusConflict},
		{"not allowed", "author2", `{"from":"DRAFT","to":"IN_REVIEW"}`, http.StatusForbidden},
		{"anonymous", "", `{"from":"DRAFT","to":"IN_REVIEW"}`, http.StatusUnauthorized},
		{"unknown status", "author", `{"from":"DRAFT","to":"LIVE"}`, http.StatusUnprocessableEntity},
		{"unknown intent", "author", `{"from":"DRAFT","to":"IN_REVIEW","intent":"escalate"}`, http.StatusUnprocessableEntity},
		{"malformed body", "author", `{"from":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/items/a1/transitions", tt.user, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	t.Run("validation fields", func(t *testing.T) {
		w := h.do(http.MethodPost, "/items/a1/transitions", "author", `{"to":"LIVE"}`)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		p := decodeBody[problem](t, w)
		assert.Equal(t, map[string]string{"from": "required", "to": "oneof"}, p.Fields)
	})

	assert.Equal(t, StatusDraft, h.item("a1").Status)
}

// TestHandlerAdmin tests role and grant management endpoints
func TestHandlerAdmin(t *testing.T) {
	h := newHandlerFixture(t)

	w := h.do(http.MethodPost, "/users/nurse/roles", "manager", `{"role_id":"reviewer"}`)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/users/nurse/roles", "manager", `{"role_id":"reviewer"}`).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/users/nurse/roles", "reviewer", `{"role_id":"nurse"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/users/nurse/roles", "", `{"role_id":"nurse"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/users/nurse/roles", "manager", `{}`).Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/users/nurse/roles/reviewer", "manager", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/users/nurse/roles/reviewer", "manager", "").Code)

	w = h.do(http.MethodPut, "/users/nurse/permissions/wiki.view", "manager", `{"granted":false}`)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	ok, err := h.svc.HasPermission(h.ctx, "nurse", "wiki.view")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, http.StatusUnprocessableEntity,
		h.do(http.MethodPut, "/users/nurse/permissions/wiki.view", "manager", `{}`).Code, "granted is required")
	assert.Equal(t, http.StatusUnprocessableEntity,
		h.do(http.MethodPut, "/users/nurse/permissions/wiki.edit", "manager", `{"granted":true,"expires_at":"2020-01-01T00:00:00Z"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		h.do(http.MethodPut, "/users/nurse/permissions/wiki.fly", "manager", `{"granted":true}`).Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/users/nurse/permissions/wiki.view", "manager", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/users/nurse/permissions/wiki.view", "manager", "").Code)
}

// TestHandlerAuditLog tests the audit endpoint and its permission gate
func TestHandlerAuditLog(t *testing.T) {
	h := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/users/nurse/roles", strings.NewReader(`{"role_id":"reviewer"}`))
	req.Header.Set("X-User", "manager")
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodGet, "/audit?target=nurse", "manager", "")
	require.Equal(t, http.StatusOK, w.Code)
	logs := decodeBody[[]map[string]any](t, w)
	require.Len(t, logs, 1)
	assert.Equal(t, "role_assigned", logs[0]["action"])
	assert.Equal(t, "reviewer", logs[0]["subject"])
	assert.Equal(t, "198.51.100.4", logs[0]["ip_address"])
	assert.Equal(t, "req-42", logs[0]["request_id"])

	w = h.do(http.MethodGet, "/audit?target=author", "manager", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/audit", "nurse", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/audit", "", "").Code)
}
