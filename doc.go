// Package gatekit is the authorization and content workflow engine of a
// clinic staff portal.
//
// It answers four questions for every request: what a user may do, whom a
// user may manage, what content a user may see, and whether a content item
// may move to another status.
//
// # Core Concepts
//
// Permission: A dot-separated id such as "wiki.edit" or "users.manage".
// Content permissions are prefixed by the content kind ("wiki" or "course").
// Matching is exact; there are no wildcards.
//
// Role: A named set of permissions belonging to a user type. A user may hold
// several active roles; their permissions are a union.
//
// Direct grant: A per-user allow or deny of one permission. A deny always
// wins. An allow may carry an expiry instant, after which it no longer applies.
//
// Hierarchy level: Every user type has a level, 0 being the top. A user's
// effective level is the minimum across active roles, and a user may manage
// another only when strictly more senior, unless they hold an exempt
// permission such as "admin.bypass_hierarchy".
//
// Review: Submitting a draft opens an ArticleReview. At most one review per
// item is open at a time; approving, rejecting, withdrawing or archiving
// closes it.
//
// # Content Lifecycle
//
//	DRAFT ──submit──▶ IN_REVIEW ──approve──▶ PUBLISHED ──▶ ARCHIVED
//	  │  ◀──reject/withdraw──┘                                │
//	  ├──publish directly──▶ PUBLISHED                        │
//	  └──────────────────▶ ARCHIVED ──restore──▶ DRAFT ◀──────┘
//
// Every transition names the status the caller expects. The write is a
// conditional update, so when two reviewers act on the same review only one
// succeeds; the other receives ErrReviewAlreadyClosed.
//
// # Basic Usage
//
//	db, _ := dbkit.New(dbkit.Config{URL: os.Getenv("DATABASE_URL")})
//	store := gatekit.NewBunStore(db)
//	if _, err := store.Migrate(ctx); err != nil {
//	    return err
//	}
//
//	svc := gatekit.NewService(store,
//	    gatekit.WithLogger(log),
//	    gatekit.WithNotifier(notifier),
//	)
//	_ = svc.SeedCatalog(ctx)
//
//	// Permissions
//	ok, err := svc.HasPermission(ctx, userID, "wiki.review_articles")
//
//	// Visibility
//	items, err := svc.ListVisible(ctx, userID, gatekit.ContentFilter{Kind: gatekit.KindWiki})
//
//	// Workflow
//	res, err := svc.RequestTransition(ctx, reviewerID, itemID,
//	    gatekit.StatusInReview, gatekit.StatusPublished, gatekit.TransitionPayload{})
//
// # Middleware Usage
//
//	mw := gatekit.NewMiddleware(svc)
//
//	router.With(mw.RequirePermission("wiki.review_articles")).
//	    Get("/reviews", reviewQueueHandler)
//
// NewHandler mounts the complete JSON API on a chi router.
//
// # Errors
//
// Operations return errors matching one of the sentinels in errors.go.
// UserMessage turns any of them into text safe to show to end users, and
// StatusCode maps them to HTTP statuses.
//
// # Audit Log
//
// Role assignments and direct grants are logged with:
//   - Actor (who made the change)
//   - Target user
//   - Action and subject (role or permission id)
//   - Timestamp
//   - Request metadata (IP, user agent, request ID)
package gatekit
