package gatekit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Service is the entry point of the engine. It wires the Resolver, the
// HierarchyGate, the AccessFilter and the Workflow over one Store.
//
// Every decision reads the store afresh; the Service holds no per-user state
// and is safe for concurrent use.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := gatekit.NewBunStore(db)
//	svc := gatekit.NewService(store,
//	    gatekit.WithLogger(log),
//	    gatekit.WithNotifier(notifier),
//	)
//	defer svc.Close()
type Service struct {
	store    Store
	catalog  *Catalog
	log      zerolog.Logger
	metrics  *Metrics
	now      Clock
	manage   string
	resolver *Resolver
	gate     *HierarchyGate
	filter   *AccessFilter
	workflow *Workflow
}

type serviceOptions struct {
	logger        zerolog.Logger
	clock         Clock
	notifier      Notifier
	metrics       *Metrics
	catalog       *Catalog
	exempt        []string
	notifyTimeout time.Duration
	manage        string
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = l
	}
}

// WithClock sets the time source used for grant expiry and timestamps.
func WithClock(c Clock) Option {
	return func(o *serviceOptions) {
		o.clock = c
	}
}

// WithNotifier sets the review outcome dispatcher. Without one no
// notification is sent.
func WithNotifier(n Notifier) Option {
	return func(o *serviceOptions) {
		o.notifier = n
	}
}

// WithMetrics records workflow metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// WithCatalog replaces DefaultCatalog.
func WithCatalog(c *Catalog) Option {
	return func(o *serviceOptions) {
		o.catalog = c
	}
}

// WithHierarchyExemptPermissions sets the permissions whose holders bypass
// hierarchy checks. Defaults to admin.bypass_hierarchy.
func WithHierarchyExemptPermissions(perms ...string) Option {
	return func(o *serviceOptions) {
		o.exempt = perms
	}
}

// WithNotifyTimeout bounds a single notification dispatch.
func WithNotifyTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.notifyTimeout = d
	}
}

// WithManagePermission sets the permission required for admin operations.
// Defaults to users.manage.
func WithManagePermission(perm string) Option {
	return func(o *serviceOptions) {
		o.manage = perm
	}
}

// NewService creates a Service over store.
func NewService(store Store, opts ...Option) *Service {
	o := serviceOptions{
		logger:        zerolog.Nop(),
		clock:         time.Now,
		exempt:        []string{PermissionBypassHierarchy},
		notifyTimeout: DefaultNotifyTimeout,
		manage:        PermissionManageUsers,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = DefaultCatalog()
	}

	resolver := NewResolver(store, o.clock)
	return &Service{
		store:    store,
		catalog:  o.catalog,
		log:      o.logger.With().Str("component", "gatekit").Logger(),
		metrics:  o.metrics,
		now:      o.clock,
		manage:   o.manage,
		resolver: resolver,
		gate:     NewHierarchyGate(resolver, store, o.exempt...),
		filter:   NewAccessFilter(resolver, store),
		workflow: NewWorkflow(resolver, store, WorkflowConfig{
			Notifier:      o.notifier,
			Logger:        o.logger,
			Metrics:       o.metrics,
			Clock:         o.clock,
			NotifyTimeout: o.notifyTimeout,
		}),
	}
}

// Catalog returns the permission catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Resolver returns the permission resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// ===== PERMISSIONS =====

// ResolvePermissions returns the effective permission set of userID.
func (s *Service) ResolvePermissions(ctx context.Context, userID string) (PermissionSet, error) {
	return s.resolver.Resolve(ctx, userID)
}

// HasPermission reports whether userID effectively holds permissionID.
func (s *Service) HasPermission(ctx context.Context, userID, permissionID string) (bool, error) {
	return s.resolver.HasPermission(ctx, userID, permissionID)
}

// LoadPrincipal resolves the request-scoped Principal of userID.
func (s *Service) LoadPrincipal(ctx context.Context, userID string) (*Principal, error) {
	return s.resolver.Principal(ctx, userID)
}

// ===== HIERARCHY =====

// CanManage reports whether actorID may manage targetID.
func (s *Service) CanManage(ctx context.Context, actorID, targetID string) (bool, error) {
	return s.gate.CanManage(ctx, actorID, targetID)
}

// EffectiveHierarchy returns the user's authority level; ok is false
// for users without an active role.
func (s *Service) EffectiveHierarchy(ctx context.Context, userID string) (int, bool, error) {
	return s.gate.EffectiveHierarchy(ctx, userID)
}

// ===== CONTENT =====

// IsContentVisible reports whether userID may see item.
func (s *Service) IsContentVisible(ctx context.Context, userID string, item *ContentItem) (bool, error) {
	return s.filter.IsVisible(ctx, userID, item)
}

// GetVisibleItem returns the item when userID may see it. Items that
// exist but are hidden are reported as ErrNotFound.
func (s *Service) GetVisibleItem(ctx context.Context, userID, itemID string) (*ContentItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(err, "The content could not be found.", itemID)
	}
	visible, err := s.filter.IsVisible(ctx, userID, item)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, NewError(ErrNotFound, "The content could not be found.").WithItem(itemID)
	}
	return item, nil
}

// ListVisible lists the content userID may see.
func (s *Service) ListVisible(ctx context.Context, userID string, filter ContentFilter) ([]ContentItem, error) {
	return s.filter.ListVisible(ctx, userID, filter)
}

// ===== WORKFLOW =====

// RequestTransition moves an item through the review workflow.
// See Workflow.RequestTransition.
func (s *Service) RequestTransition(ctx context.Context, userID, itemID string, from, to ContentStatus, payload TransitionPayload) (TransitionResult, error) {
	return s.workflow.RequestTransition(ctx, userID, itemID, from, to, payload)
}

// ClaimReview assigns a pending review to userID.
func (s *Service) ClaimReview(ctx context.Context, userID, reviewID string) (*ArticleReview, error) {
	return s.workflow.ClaimReview(ctx, userID, reviewID)
}

// ===== LIFECYCLE =====

// SeedCatalog stores every catalog permission that is not stored yet.
// Existing rows, including their active flag, are left untouched.
func (s *Service) SeedCatalog(ctx context.Context) error {
	perms := s.catalog.Permissions()
	if err := s.store.EnsurePermissions(ctx, perms); err != nil {
		return err
	}
	s.log.Info().Int("permissions", len(perms)).Msg("permission catalog seeded")
	return nil
}

// Healthy reports the store's health when it can report it.
func (s *Service) Healthy(ctx context.Context) bool {
	if hm, ok := s.store.(HealthMonitor); ok {
		return hm.IsHealthy(ctx)
	}
	return true
}

// Close waits for in-flight notifications.
func (s *Service) Close() {
	s.workflow.Wait()
}
