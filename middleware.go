package gatekit

import (
	"errors"
	"net/http"
	"strings"
)

// Middleware provides HTTP middleware for permission checking.
type Middleware struct {
	service      *Service
	getUserID    func(*http.Request) string
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := gatekit.NewMiddleware(svc,
//	    gatekit.WithUserIDExtractor(func(r *http.Request) string {
//	        return r.Header.Get("X-User-ID")
//	    }),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		getUserID:    defaultGetUserID,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithUserIDExtractor sets a custom function to extract user ID from request.
func WithUserIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getUserID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetUserID(r *http.Request) string {
	return GetUserID(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, UserMessage(err), StatusCode(err))
}

// StatusCode maps an engine error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsForbidden(err):
		return http.StatusForbidden
	case IsNotFound(err), errors.Is(err, ErrRoleNotAssigned):
		return http.StatusNotFound
	case IsInvalidTransition(err), errors.Is(err, ErrRoleAlreadyAssigned):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RequirePermission creates middleware that requires a specific permission.
// The resolved Principal is stored in the request context.
//
// Example:
//
//	router.With(mw.RequirePermission("wiki.review_articles")).
//	    Get("/reviews", reviewQueueHandler)
func (m *Middleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return m.requirePrincipal(func(p *Principal) bool {
		return p.HasPermission(permission)
	})
}

// RequireAnyPermission creates middleware that requires any of the specified permissions.
//
// Example:
//
//	router.With(mw.RequireAnyPermission([]string{"wiki.edit", "course.edit"})).
//	    Get("/editor", editorHandler)
func (m *Middleware) RequireAnyPermission(permissions []string) func(http.Handler) http.Handler {
	return m.requirePrincipal(func(p *Principal) bool {
		return p.HasAnyPermission(permissions...)
	})
}

func (m *Middleware) requirePrincipal(allowed func(*Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, NewError(ErrUnauthorized, "You need to sign in to do that."))
				return
			}

			p, err := m.service.LoadPrincipal(ctx, userID)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			if !allowed(p) {
				m.errorHandler(w, r, NewError(ErrForbidden, "You don't have permission to do that.").
					WithUser(userID))
				return
			}

			ctx = WithUserID(ctx, userID)
			ctx = WithPrincipal(ctx, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadPrincipal creates middleware that loads the user's Principal into context.
// Use this when you want to do permission checks in the handler rather than middleware.
//
// Example:
//
//	router.With(mw.LoadPrincipal()).Get("/dashboard", dashboardHandler)
//
//	func dashboardHandler(w http.ResponseWriter, r *http.Request) {
//	    p := gatekit.PrincipalFromContext(r.Context())
//	    if p != nil && p.HasPermission("wiki.review_articles") {
//	        // show the review queue
//	    }
//	}
func (m *Middleware) LoadPrincipal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := m.service.LoadPrincipal(ctx, userID)
			if err != nil {
				m.service.log.Warn().Err(err).Str("user_id", userID).Msg("principal load failed")
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithUserID(ctx, userID)
			ctx = WithPrincipal(ctx, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from the request
// and adds it to the context for use in admin operations.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := AuditContext{
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
				// Commonly set by an upstream request-id middleware.
				RequestID: r.Header.Get("X-Request-ID"),
			}

			ctx := r.Context()
			if userID := m.getUserID(r); userID != "" {
				ac.ActorID = userID
				ctx = WithUserID(ctx, userID)
			}
			ctx = WithAuditContext(ctx, ac)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP prefers proxy headers over the socket address. Only the
// originating client of an X-Forwarded-For chain is kept.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
