package gatekit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Clinic fixture
//
// User types (hierarchy level):
//
//	leadership (0)  superadmin
//	management (1)  clinic_manager
//	clinical   (2)  reviewer
//	staff      (3)  staff_writer, nurse
//
// Users: root(superadmin), manager(clinic_manager), reviewer, reviewer2,
// author(staff_writer), author2(staff_writer), nurse, outsider (no roles),
// inactive (staff_writer, deactivated account).

var fixtureNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *MemoryStore
	notifier *fakeNotifier
	svc      *Service
	now      time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    NewMemoryStore(),
		notifier: &fakeNotifier{},
		now:      fixtureNow,
	}
	f.store.now = f.clock
	require.NoError(t, f.store.EnsurePermissions(f.ctx, DefaultCatalog().Permissions()))

	for _, ut := range []UserType{
		{ID: "leadership", Name: "Leadership", HierarchyLevel: 0},
		{ID: "management", Name: "Management", HierarchyLevel: 1},
		{ID: "clinical", Name: "Clinical", HierarchyLevel: 2},
		{ID: "staff", Name: "Staff", HierarchyLevel: 3},
	} {
		require.NoError(t, f.store.AddUserType(ut))
	}

	f.store.AddRole(Role{ID: "superadmin", Name: "Super admin", UserTypeID: "leadership"},
		PermissionManageUsers, PermissionBypassHierarchy, "wiki.view", "course.view")
	f.store.AddRole(Role{ID: "clinic_manager", Name: "Clinic manager", UserTypeID: "management"},
		PermissionManageUsers, "wiki.view", "wiki.edit", "wiki.publish_directly", "course.view", "course.edit")
	f.store.AddRole(Role{ID: "reviewer", Name: "Reviewer", UserTypeID: "clinical"},
		"wiki.view", "wiki.review_articles", "course.view", "course.review_articles")
	f.store.AddRole(Role{ID: "staff_writer", Name: "Staff writer", UserTypeID: "staff"},
		"wiki.view", "wiki.submit_for_review", "course.view", "course.submit_for_review")
	f.store.AddRole(Role{ID: "nurse", Name: "Nurse", UserTypeID: "staff"}, "wiki.view")

	for _, u := range []struct {
		id, name, role string
		active         bool
	}{
		{"root", "Root", "superadmin", true},
		{"manager", "Dana Manager", "clinic_manager", true},
		{"reviewer", "Dr. Reyes", "reviewer", true},
		{"reviewer2", "Dr. Okafor", "reviewer", true},
		{"author", "Sam Author", "staff_writer", true},
		{"author2", "Lee Author", "staff_writer", true},
		{"nurse", "Nia Nurse", "nurse", true},
		{"outsider", "Out Sider", "", true},
		{"inactive", "Gone User", "staff_writer", false},
	} {
		f.store.AddUser(User{ID: u.id, Name: u.name, IsActive: u.active})
		if u.role != "" {
			require.NoError(t, f.store.AssignRole(f.ctx, u.id, u.role, "seed"))
		}
	}

	opts = append([]Option{WithClock(f.clock), WithNotifier(f.notifier)}, opts...)
	f.svc = NewService(f.store, opts...)
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) clock() time.Time {
	return f.now
}

// addItem stores a wiki item by author in status.
func (f *fixture) addItem(id string, status ContentStatus, mutate ...func(*ContentItem)) *ContentItem {
	item := ContentItem{
		ID:        id,
		Kind:      KindWiki,
		Title:     "Article " + id,
		Slug:      id,
		AuthorID:  "author",
		Status:    status,
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	for _, m := range mutate {
		m(&item)
	}
	f.store.AddItem(item)
	return &item
}

// submitted returns an item already IN_REVIEW with an open review.
func (f *fixture) submitted(id string) (*ContentItem, string) {
	f.t.Helper()
	f.addItem(id, StatusDraft)
	res, err := f.svc.RequestTransition(f.ctx, "author", id, StatusDraft, StatusInReview, TransitionPayload{})
	require.NoError(f.t, err)
	item, err := f.store.GetItem(f.ctx, id)
	require.NoError(f.t, err)
	return item, res.ReviewID
}

func (f *fixture) item(id string) *ContentItem {
	f.t.Helper()
	item, err := f.store.GetItem(f.ctx, id)
	require.NoError(f.t, err)
	return item
}

func (f *fixture) review(id string) *ArticleReview {
	f.t.Helper()
	r, err := f.store.GetReview(f.ctx, id)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) asActor(actorID string) context.Context {
	return WithActorID(f.ctx, actorID)
}

func withKind(kind ContentKind) func(*ContentItem) {
	return func(i *ContentItem) { i.Kind = kind }
}

func restrictedTo(roles ...string) func(*ContentItem) {
	return func(i *ContentItem) {
		i.RestrictByRole = true
		i.AllowedRoles = roles
	}
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu         sync.Mutex
	approvals  []notification
	rejections []notification
	err        error
	block      chan struct{}
}

type notification struct {
	Item     ContentRef
	AuthorID string
	Reviewer string
	Feedback string
}

func (n *fakeNotifier) NotifyApproval(ctx context.Context, item ContentRef, authorID, reviewerName string) error {
	if err := n.wait(ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, notification{Item: item, AuthorID: authorID, Reviewer: reviewerName})
	return n.err
}

func (n *fakeNotifier) NotifyRejection(ctx context.Context, item ContentRef, authorID, reviewerName, feedback string) error {
	if err := n.wait(ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejections = append(n.rejections, notification{Item: item, AuthorID: authorID, Reviewer: reviewerName, Feedback: feedback})
	return n.err
}

func (n *fakeNotifier) wait(ctx context.Context) error {
	if n.block == nil {
		return nil
	}
	select {
	case <-n.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *fakeNotifier) counts() (approvals, rejections int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.approvals), len(n.rejections)
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	Store
	failDirectGrants bool
	failApply        bool
	failAudit        bool
}

var errStoreDown = errors.New("store down")

func (s *failingStore) DirectGrants(ctx context.Context, userID string) ([]DirectGrant, error) {
	if s.failDirectGrants {
		return nil, errStoreDown
	}
	return s.Store.DirectGrants(ctx, userID)
}

func (s *failingStore) ApplyTransition(ctx context.Context, w TransitionWrite) error {
	if s.failApply {
		return errStoreDown
	}
	return s.Store.ApplyTransition(ctx, w)
}

func (s *failingStore) LogAudit(ctx context.Context, entry *AuditEntry) error {
	if s.failAudit {
		return errStoreDown
	}
	return s.Store.LogAudit(ctx, entry)
}
