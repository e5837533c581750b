package gatekit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransitionIntent distinguishes the two ways of leaving IN_REVIEW for DRAFT.
type TransitionIntent string

const (
	// IntentAuto infers the intent: the author withdraws unless they are
	// also a reviewer leaving feedback; anyone else rejects.
	IntentAuto     TransitionIntent = ""
	IntentReject   TransitionIntent = "reject"
	IntentWithdraw TransitionIntent = "withdraw"
)

// Notes stored on reviews closed without reviewer feedback.
const (
	WithdrawnNote = "Withdrawn by the author"
	ArchivedNote  = "Archived while in review"
)

// DefaultNotifyTimeout bounds a single notification dispatch.
const DefaultNotifyTimeout = 10 * time.Second

// TransitionPayload carries the caller's input for a transition.
type TransitionPayload struct {
	Feedback string
	Intent   TransitionIntent
}

// TransitionResult describes a committed transition.
type TransitionResult struct {
	ItemID       string
	Status       ContentStatus
	ReviewID     string
	ReviewStatus ReviewStatus
}

var transitionTable = map[ContentStatus][]ContentStatus{
	StatusDraft:     {StatusInReview, StatusPublished, StatusArchived},
	StatusInReview:  {StatusPublished, StatusDraft, StatusArchived},
	StatusPublished: {StatusArchived},
	StatusArchived:  {StatusDraft},
}

// AllowedTransitions returns the statuses reachable from from.
func AllowedTransitions(from ContentStatus) []ContentStatus {
	return append([]ContentStatus(nil), transitionTable[from]...)
}

// CanTransition reports whether from→to is in the transition table.
func CanTransition(from, to ContentStatus) bool {
	for _, s := range transitionTable[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WorkflowConfig wires the workflow's collaborators.
type WorkflowConfig struct {
	Notifier      Notifier
	Logger        zerolog.Logger
	Metrics       *Metrics
	Clock         Clock
	NotifyTimeout time.Duration
	NewID         func() string
}

// Workflow runs the content review state machine.
type Workflow struct {
	resolver      *Resolver
	store         ContentStore
	notifier      Notifier
	log           zerolog.Logger
	metrics       *Metrics
	now           Clock
	notifyTimeout time.Duration
	newID         func() string
	inflight      sync.WaitGroup
}

// NewWorkflow creates a Workflow.
func NewWorkflow(resolver *Resolver, store ContentStore, cfg WorkflowConfig) *Workflow {
	w := &Workflow{
		resolver:      resolver,
		store:         store,
		notifier:      cfg.Notifier,
		log:           cfg.Logger.With().Str("component", "workflow").Logger(),
		metrics:       cfg.Metrics,
		now:           cfg.Clock,
		notifyTimeout: cfg.NotifyTimeout,
		newID:         cfg.NewID,
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.notifyTimeout <= 0 {
		w.notifyTimeout = DefaultNotifyTimeout
	}
	if w.newID == nil {
		w.newID = uuid.NewString
	}
	return w
}

// plan is the outcome of guard evaluation for one request.
type plan struct {
	intent  TransitionIntent
	closure ReviewStatus
	note    string
}

// RequestTransition moves itemID from from to to on behalf of userID.
//
// The persisted status must equal from. The guard is evaluated against a
// freshly resolved principal, the payload is validated, and the change is
// written with a single conditional update. Approval and rejection
// notifications are dispatched asynchronously after commit.
//
// Example:
//
//	res, err := wf.RequestTransition(ctx, reviewerID, itemID,
//	    gatekit.StatusInReview, gatekit.StatusDraft,
//	    gatekit.TransitionPayload{Feedback: "Cite the dosage source", Intent: gatekit.IntentReject})
func (w *Workflow) RequestTransition(ctx context.Context, userID, itemID string, from, to ContentStatus, payload TransitionPayload) (TransitionResult, error) {
	start := time.Now()
	res, kind, err := w.requestTransition(ctx, userID, itemID, from, to, payload)
	w.metrics.ObserveTransition(kind, from, to, outcomeOf(err), time.Since(start))
	if err != nil {
		w.log.Debug().Err(err).
			Str("user_id", userID).
			Str("item_id", itemID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("transition refused")
		return TransitionResult{}, err
	}
	w.log.Info().
		Str("user_id", userID).
		Str("item_id", itemID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("review_id", res.ReviewID).
		Msg("transition committed")
	return res, nil
}

func (w *Workflow) requestTransition(ctx context.Context, userID, itemID string, from, to ContentStatus, payload TransitionPayload) (TransitionResult, ContentKind, error) {
	var kind ContentKind
	if userID == "" {
		return TransitionResult{}, kind, NewError(ErrUnauthorized, "You need to sign in to change content.")
	}
	if !CanTransition(from, to) {
		return TransitionResult{}, kind, NewError(ErrInvalidTransition,
			fmt.Sprintf("Content cannot move from %s to %s.", statusLabel(from), statusLabel(to))).
			WithItem(itemID).WithTransition(from, to)
	}

	item, err := w.store.GetItem(ctx, itemID)
	if err != nil {
		return TransitionResult{}, kind, notFoundOr(err, "The content could not be found.", itemID)
	}
	kind = item.Kind
	if item.Status != from {
		return TransitionResult{}, kind, NewError(ErrInvalidTransition,
			fmt.Sprintf("This %s is now %s, not %s. Refresh and try again.", item.Kind.noun(), statusLabel(item.Status), statusLabel(from))).
			WithItem(itemID).WithTransition(from, to)
	}

	p, err := w.resolver.Principal(ctx, userID)
	if err != nil {
		return TransitionResult{}, kind, err
	}

	pl, err := authorizeTransition(p, item, from, to, payload)
	if err != nil {
		return TransitionResult{}, kind, err
	}
	if pl.intent == IntentReject && strings.TrimSpace(payload.Feedback) == "" {
		return TransitionResult{}, kind, NewError(ErrValidation, "Feedback is required when rejecting.").
			WithUser(userID).WithItem(itemID).WithTransition(from, to)
	}

	now := w.now()
	write := TransitionWrite{ItemID: item.ID, From: from, To: to, ActorID: userID, At: now}
	result := TransitionResult{ItemID: item.ID, Status: to}

	switch {
	case to == StatusInReview:
		review := &ArticleReview{
			ID:          w.newID(),
			ItemID:      item.ID,
			SubmitterID: userID,
			Status:      ReviewPending,
			CreatedAt:   now,
		}
		write.OpenReview = review
		result.ReviewID, result.ReviewStatus = review.ID, review.Status
	case from == StatusInReview:
		if item.OpenReviewID == nil {
			if to == StatusPublished {
				return TransitionResult{}, kind, NewError(ErrNotFound, "There is no open review for this content.").
					WithItem(itemID)
			}
			break
		}
		write.CloseReview = &ReviewClosure{
			ReviewID:     *item.OpenReviewID,
			Status:       pl.closure,
			ResolvedByID: userID,
			Feedback:     pl.note,
		}
		result.ReviewID, result.ReviewStatus = *item.OpenReviewID, pl.closure
	}

	if err := w.store.ApplyTransition(ctx, write); err != nil {
		return TransitionResult{}, kind, transitionWriteError(err, item, from, to)
	}

	switch {
	case to == StatusPublished && from == StatusInReview:
		w.notifyApproval(ctx, item.Ref(), item.AuthorID, p.Name())
	case pl.intent == IntentReject:
		w.notifyRejection(ctx, item.Ref(), item.AuthorID, p.Name(), pl.note)
	}
	return result, kind, nil
}

// authorizeTransition evaluates the guard of from→to. The returned plan
// tells how an open review gets closed.
func authorizeTransition(p *Principal, item *ContentItem, from, to ContentStatus, payload TransitionPayload) (plan, error) {
	isAuthor := p.UserID() == item.AuthorID
	noun := item.Kind.noun()
	forbidden := func(reason, permission string) (plan, error) {
		return plan{}, NewError(ErrForbidden, reason).
			WithUser(p.UserID()).WithItem(item.ID).WithPermission(permission).WithTransition(from, to)
	}

	switch {
	case from == StatusDraft && to == StatusInReview:
		perm := item.Kind.Permission(ActionSubmitForReview)
		if !isAuthor {
			return forbidden(fmt.Sprintf("Only the author can submit their %s for review.", noun), "")
		}
		if !p.HasPermission(perm) {
			return forbidden(fmt.Sprintf("You don't have permission to submit %ss for review.", noun), perm)
		}
		return plan{}, nil

	case from == StatusDraft && to == StatusPublished:
		perm := item.Kind.Permission(ActionPublishDirectly)
		if !p.HasPermission(perm) {
			return forbidden(fmt.Sprintf("You don't have permission to publish a %s without review.", noun), perm)
		}
		return plan{}, nil

	case from == StatusInReview && to == StatusPublished:
		perm := item.Kind.Permission(ActionReviewArticles)
		if !p.HasPermission(perm) {
			return forbidden(fmt.Sprintf("Only reviewers can approve this %s.", noun), perm)
		}
		return plan{closure: ReviewApproved, note: strings.TrimSpace(payload.Feedback)}, nil

	case from == StatusInReview && to == StatusDraft:
		perm := item.Kind.Permission(ActionReviewArticles)
		intent := payload.Intent
		if intent == IntentAuto {
			intent = IntentReject
			if isAuthor && (strings.TrimSpace(payload.Feedback) == "" || !p.HasPermission(perm)) {
				intent = IntentWithdraw
			}
		}
		switch intent {
		case IntentWithdraw:
			if !isAuthor {
				return forbidden(fmt.Sprintf("Only the author can withdraw their %s from review.", noun), "")
			}
			note := strings.TrimSpace(payload.Feedback)
			if note == "" {
				note = WithdrawnNote
			}
			return plan{intent: IntentWithdraw, closure: ReviewRejected, note: note}, nil
		case IntentReject:
			if !p.HasPermission(perm) {
				return forbidden(fmt.Sprintf("Only reviewers can reject this %s.", noun), perm)
			}
			return plan{intent: IntentReject, closure: ReviewRejected, note: strings.TrimSpace(payload.Feedback)}, nil
		default:
			return plan{}, NewError(ErrValidation, fmt.Sprintf("Unknown intent %q.", intent)).WithItem(item.ID)
		}

	case to == StatusArchived, from == StatusArchived && to == StatusDraft:
		perm := item.Kind.Permission(ActionEdit)
		if !isAuthor && !p.HasPermission(perm) {
			verb := "archive"
			if from == StatusArchived {
				verb = "restore"
			}
			return forbidden(fmt.Sprintf("Only the author or an editor can %s this %s.", verb, noun), perm)
		}
		note := strings.TrimSpace(payload.Feedback)
		if note == "" {
			note = ArchivedNote
		}
		return plan{closure: ReviewRejected, note: note}, nil
	}

	return plan{}, NewError(ErrInvalidTransition,
		fmt.Sprintf("Content cannot move from %s to %s.", statusLabel(from), statusLabel(to))).
		WithItem(item.ID).WithTransition(from, to)
}

func transitionWriteError(err error, item *ContentItem, from, to ContentStatus) error {
	switch {
	case errors.Is(err, ErrReviewAlreadyClosed):
		return NewError(ErrReviewAlreadyClosed, "This review was already resolved by someone else.").
			WithItem(item.ID).WithTransition(from, to)
	case errors.Is(err, ErrStatusConflict):
		return NewError(ErrInvalidTransition,
			fmt.Sprintf("This %s changed while you were working on it. Refresh and try again.", item.Kind.noun())).
			WithItem(item.ID).WithTransition(from, to)
	case errors.Is(err, ErrNotFound):
		return NewError(ErrNotFound, "The content could not be found.").WithItem(item.ID)
	default:
		return NewError(ErrTransitionFailed, "The change could not be saved. Nothing was modified.").
			WithItem(item.ID).WithTransition(from, to).WithCause(err)
	}
}

// ClaimReview assigns an open, pending review to the calling reviewer.
func (w *Workflow) ClaimReview(ctx context.Context, userID, reviewID string) (*ArticleReview, error) {
	if userID == "" {
		return nil, NewError(ErrUnauthorized, "You need to sign in to review content.")
	}
	review, err := w.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, notFoundOr(err, "The review could not be found.", "")
	}
	if err := claimable(review); err != nil {
		return nil, err
	}
	item, err := w.store.GetItem(ctx, review.ItemID)
	if err != nil {
		return nil, notFoundOr(err, "The content could not be found.", review.ItemID)
	}

	p, err := w.resolver.Principal(ctx, userID)
	if err != nil {
		return nil, err
	}
	perm := item.Kind.Permission(ActionReviewArticles)
	if !p.HasPermission(perm) {
		return nil, NewError(ErrForbidden, "Only reviewers can pick up reviews.").
			WithUser(userID).WithReview(reviewID).WithPermission(perm)
	}

	claimed, err := w.store.ClaimReview(ctx, reviewID, userID, w.now())
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, NewError(ErrTransitionFailed, "The review could not be claimed.").
			WithReview(reviewID).WithCause(err)
	}
	w.log.Info().Str("user_id", userID).Str("review_id", reviewID).Msg("review claimed")
	return claimed, nil
}

func claimable(r *ArticleReview) error {
	switch r.Status {
	case ReviewPending:
		return nil
	case ReviewInProgress:
		return NewError(ErrReviewAlreadyClaimed, "Another reviewer is already working on this review.").WithReview(r.ID)
	default:
		return NewError(ErrReviewAlreadyClosed, "This review has already been resolved.").WithReview(r.ID)
	}
}

// Wait blocks until in-flight notifications have finished.
func (w *Workflow) Wait() {
	w.inflight.Wait()
}

func (w *Workflow) notifyApproval(ctx context.Context, item ContentRef, authorID, reviewer string) {
	w.dispatch(ctx, "approval", item.ID, func(ctx context.Context) error {
		return w.notifier.NotifyApproval(ctx, item, authorID, reviewer)
	})
}

func (w *Workflow) notifyRejection(ctx context.Context, item ContentRef, authorID, reviewer, feedback string) {
	w.dispatch(ctx, "rejection", item.ID, func(ctx context.Context) error {
		return w.notifier.NotifyRejection(ctx, item, authorID, reviewer, feedback)
	})
}

// dispatch runs fn detached from the request; a failure is logged and
// counted but never affects the committed transition.
func (w *Workflow) dispatch(parent context.Context, kind, itemID string, fn func(context.Context) error) {
	if w.notifier == nil {
		return
	}
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.notifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			w.metrics.ObserveNotification(kind, false)
			w.log.Warn().Err(err).Str("notification", kind).Str("item_id", itemID).Msg("notification dispatch failed")
			return
		}
		w.metrics.ObserveNotification(kind, true)
	}()
}

func notFoundOr(err error, message, itemID string) error {
	if errors.Is(err, ErrNotFound) {
		return NewError(ErrNotFound, message).WithItem(itemID)
	}
	return err
}

func (k ContentKind) noun() string {
	switch k {
	case KindWiki:
		return "article"
	case "":
		return "item"
	default:
		return string(k)
	}
}

func statusLabel(s ContentStatus) string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusInReview:
		return "in review"
	case StatusPublished:
		return "published"
	case StatusArchived:
		return "archived"
	}
	return strings.ToLower(string(s))
}
