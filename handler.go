package gatekit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler exposes the engine over HTTP. The identity provider runs in front
// of it and puts the user id in the request context (WithUserID) or the
// extractor configured with WithUserIDExtractor.
type Handler struct {
	service   *Service
	mw        *Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler. The middleware options also control how
// the user id is read and how errors are rendered.
//
// Example:
//
//	r := chi.NewRouter()
//	gatekit.NewHandler(svc).MountRoutes(r)
func NewHandler(service *Service, opts ...MiddlewareOption) *Handler {
	return &Handler{
		service:   service,
		mw:        NewMiddleware(service, opts...),
		validator: validator.New(),
	}
}

// Middleware returns the middleware the handler mounts its routes with.
func (h *Handler) Middleware() *Middleware {
	return h.mw
}

// MountRoutes registers content, review and admin routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.InjectAuditContext())

		r.Get("/items", h.listItems)
		r.Get("/items/{itemID}", h.getItem)
		r.Post("/items/{itemID}/transitions", h.requestTransition)
		r.Post("/reviews/{reviewID}/claim", h.claimReview)

		r.Post("/users/{userID}/roles", h.assignRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.deactivateRole)
		r.Put("/users/{userID}/permissions/{permissionID}", h.putDirectGrant)
		r.Delete("/users/{userID}/permissions/{permissionID}", h.removeDirectGrant)

		r.With(h.mw.RequirePermission(h.service.manage)).Get("/audit", h.auditLog)
	})
}

// ===== REQUESTS / RESPONSES =====

type transitionRequest struct {
	From     string `json:"from" validate:"required,oneof=DRAFT IN_REVIEW PUBLISHED ARCHIVED"`
	To       string `json:"to" validate:"required,oneof=DRAFT IN_REVIEW PUBLISHED ARCHIVED"`
	Feedback string `json:"feedback" validate:"max=10000"`
	Intent   string `json:"intent" validate:"omitempty,oneof=reject withdraw"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required,max=128"`
}

type directGrantRequest struct {
	Granted   *bool      `json:"granted" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type itemResponse struct {
	ID             string        `json:"id"`
	Kind           ContentKind   `json:"kind"`
	Title          string        `json:"title"`
	Slug           string        `json:"slug"`
	AuthorID       string        `json:"author_id"`
	Status         ContentStatus `json:"status"`
	RestrictByRole bool          `json:"restrict_by_role"`
	OpenReviewID   *string       `json:"open_review_id,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type transitionResponse struct {
	ItemID       string        `json:"item_id"`
	Status       ContentStatus `json:"status"`
	ReviewID     string        `json:"review_id,omitempty"`
	ReviewStatus ReviewStatus  `json:"review_status,omitempty"`
}

type reviewResponse struct {
	ID         string       `json:"id"`
	ItemID     string       `json:"item_id"`
	Status     ReviewStatus `json:"status"`
	AssigneeID *string      `json:"assignee_id,omitempty"`
}

type problem struct {
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func newItemResponse(item *ContentItem) itemResponse {
	return itemResponse{
		ID:             item.ID,
		Kind:           item.Kind,
		Title:          item.Title,
		Slug:           item.Slug,
		AuthorID:       item.AuthorID,
		Status:         item.Status,
		RestrictByRole: item.RestrictByRole,
		OpenReviewID:   item.OpenReviewID,
		UpdatedAt:      item.UpdatedAt,
	}
}

// ===== CONTENT =====

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ContentFilter{
		Kind:     ContentKind(q.Get("kind")),
		Status:   ContentStatus(q.Get("status")),
		AuthorID: q.Get("author"),
	}
	if filter.Kind != KindWiki && filter.Kind != KindCourse {
		h.fail(w, r, NewError(ErrValidation, "kind must be wiki or course."))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.fail(w, r, NewError(ErrValidation, "Unknown status."))
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, err := h.service.ListVisible(r.Context(), userID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]itemResponse, len(items))
	for i := range items {
		out[i] = newItemResponse(&items[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetVisibleItem(r.Context(), userID, chi.URLParam(r, "itemID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

// ===== WORKFLOW =====

func (h *Handler) requestTransition(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.RequestTransition(r.Context(), userID, chi.URLParam(r, "itemID"),
		ContentStatus(req.From), ContentStatus(req.To),
		TransitionPayload{Feedback: req.Feedback, Intent: TransitionIntent(req.Intent)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{
		ItemID:       res.ItemID,
		Status:       res.Status,
		ReviewID:     res.ReviewID,
		ReviewStatus: res.ReviewStatus,
	})
}

func (h *Handler) claimReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	review, err := h.service.ClaimReview(r.Context(), userID, chi.URLParam(r, "reviewID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponse{
		ID:         review.ID,
		ItemID:     review.ItemID,
		Status:     review.Status,
		AssigneeID: review.AssigneeID,
	})
}

// ===== ADMIN =====

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), chi.URLParam(r, "userID"), req.RoleID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeactivateRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) putDirectGrant(w http.ResponseWriter, r *http.Request) {
	var req directGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID, permissionID := chi.URLParam(r, "userID"), chi.URLParam(r, "permissionID")

	var err error
	if *req.Granted {
		err = h.service.GrantPermission(r.Context(), userID, permissionID, req.ExpiresAt)
	} else {
		err = h.service.DenyPermission(r.Context(), userID, permissionID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeDirectGrant(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveDirectGrant(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "permissionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := NewAuditLogFilter().
		WithActor(q.Get("actor")).
		WithTargetUser(q.Get("target")).
		WithSubject(q.Get("subject"))
	filter.Action = q.Get("action")
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	logs, err := h.service.GetAuditLog(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []AuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// ===== HELPERS =====

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := h.mw.getUserID(r)
	if userID == "" {
		h.fail(w, r, NewError(ErrUnauthorized, "You need to sign in to do that."))
		return "", false
	}
	return userID, true
}

// decode reads a JSON body into dst and validates it. On failure the
// response has been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, problem{
			Title:  http.StatusText(http.StatusBadRequest),
			Status: http.StatusBadRequest,
			Detail: "The request body is not valid JSON.",
		})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.fail(w, r, err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, problem{
			Title:  http.StatusText(http.StatusUnprocessableEntity),
			Status: http.StatusUnprocessableEntity,
			Detail: "Some required information is missing.",
			Fields: fields,
		})
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		h.service.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, problem{
		Title:  http.StatusText(status),
		Status: status,
		Detail: UserMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
