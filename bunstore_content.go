package gatekit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

var openReviewStatuses = []ReviewStatus{ReviewPending, ReviewInProgress}

// ===== CONTENT =====

// GetItem implements ContentStore.
func (s *BunStore) GetItem(ctx context.Context, itemID string) (*ContentItem, error) {
	item := new(ContentItem)
	err := s.readOnly(ctx, func(tx dbkit.IDB) error {
		err := dbkit.WithErr1(tx.NewSelect().Model(item).Where("ci.id = ?", itemID).Limit(1).Scan(ctx), "GetItem").Err()
		if err != nil {
			return err
		}
		return dbkit.WithErr1(tx.NewSelect().
			Model((*ContentAllowedRole)(nil)).
			Column("role_id").
			Where("item_id = ?", itemID).
			Order("role_id").
			Scan(ctx, &item.AllowedRoles), "GetItemAllowedRoles").Err()
	})
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// GetReview implements ContentStore.
func (s *BunStore) GetReview(ctx context.Context, reviewID string) (*ArticleReview, error) {
	review := new(ArticleReview)
	err := dbkit.WithErr1(s.db.NewSelect().Model(review).Where("ar.id = ?", reviewID).Limit(1).Scan(ctx), "GetReview").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return review, nil
}

// ApplyTransition implements ContentStore.
//
// Inside one transaction: the open review is closed with
// "WHERE status IN (PENDING, IN_PROGRESS)", a new review is inserted, and
// the item is updated with "WHERE status = from". A statement touching no
// row aborts the whole transaction.
func (s *BunStore) ApplyTransition(ctx context.Context, w TransitionWrite) error {
	return s.transaction(ctx, func(tx dbkit.IDB) error {
		if c := w.CloseReview; c != nil {
			result, err := tx.NewUpdate().
				Table("article_reviews").
				Set("status = ?", c.Status).
				Set("feedback = ?", c.Feedback).
				Set("resolved_by_id = ?", c.ResolvedByID).
				Set("resolved_at = ?", w.At).
				Where("id = ?", c.ReviewID).
				Where("item_id = ?", w.ItemID).
				Where("status IN (?)", bun.In(openReviewStatuses)).
				Exec(ctx)
			if err := dbkit.WithErr(result, err, "CloseReview").Err(); err != nil {
				return err
			}
			if rows, _ := result.RowsAffected(); rows == 0 {
				return ErrReviewAlreadyClosed
			}
		}

		if w.OpenReview != nil {
			result, err := tx.NewInsert().Model(w.OpenReview).Exec(ctx)
			if err := dbkit.WithErr(result, err, "OpenReview").Err(); err != nil {
				if dbkit.IsDuplicate(err) {
					// another open review exists for the item
					return ErrStatusConflict
				}
				return err
			}
		}

		q := tx.NewUpdate().
			Table("content_items").
			Set("status = ?", w.To).
			Set("updated_at = ?", w.At)
		switch {
		case w.OpenReview != nil:
			q = q.Set("open_review_id = ?", w.OpenReview.ID)
		case w.CloseReview != nil:
			q = q.Set("open_review_id = NULL")
		}
		result, err := q.Where("id = ?", w.ItemID).Where("status = ?", w.From).Exec(ctx)
		if err := dbkit.WithErr(result, err, "UpdateItemStatus").Err(); err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrStatusConflict
		}
		return nil
	})
}

// ClaimReview implements ContentStore.
func (s *BunStore) ClaimReview(ctx context.Context, reviewID, assigneeID string, _ time.Time) (*ArticleReview, error) {
	result, err := s.db.NewUpdate().
		Table("article_reviews").
		Set("status = ?", ReviewInProgress).
		Set("assignee_id = ?", assigneeID).
		Where("id = ?", reviewID).
		Where("status = ?", ReviewPending).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "ClaimReview").Err(); err != nil {
		return nil, err
	}

	review, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if review.Status == ReviewInProgress {
			return nil, ErrReviewAlreadyClaimed
		}
		return nil, ErrReviewAlreadyClosed
	}
	return review, nil
}

// ListItems implements ContentStore. Visibility is part of the WHERE clause.
func (s *BunStore) ListItems(ctx context.Context, scope VisibilityScope, filter ContentFilter) ([]ContentItem, error) {
	items := []ContentItem{}
	err := s.readOnly(ctx, func(tx dbkit.IDB) error {
		q := tx.NewSelect().Model(&items)
		if scope.Kind == "" && filter.Kind != "" {
			q = q.Where("ci.kind = ?", filter.Kind)
		}
		if filter.Status != "" {
			q = q.Where("ci.status = ?", filter.Status)
		}
		if filter.AuthorID != "" {
			q = q.Where("ci.author_id = ?", filter.AuthorID)
		}
		q = ApplyVisibility(q, scope).
			OrderExpr("ci.updated_at DESC, ci.id ASC").
			Limit(filter.limit())
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
		if err := dbkit.WithErr1(q.Scan(ctx), "ListItems").Err(); err != nil {
			return err
		}
		return s.loadAllowedRoles(ctx, tx, items)
	})
	if err != nil {
		if dbkit.IsNotFound(err) {
			return []ContentItem{}, nil
		}
		return nil, err
	}
	return items, nil
}

func (s *BunStore) loadAllowedRoles(ctx context.Context, tx dbkit.IDB, items []ContentItem) error {
	var ids []string
	index := make(map[string]int, len(items))
	for i, item := range items {
		if item.RestrictByRole {
			ids = append(ids, item.ID)
			index[item.ID] = i
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var rows []ContentAllowedRole
	err := dbkit.WithErr1(tx.NewSelect().
		Model(&rows).
		Where("item_id IN (?)", bun.In(ids)).
		Order("item_id", "role_id").
		Scan(ctx), "ListAllowedRoles").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil
		}
		return err
	}
	for _, r := range rows {
		i := index[r.ItemID]
		items[i].AllowedRoles = append(items[i].AllowedRoles, r.RoleID)
	}
	return nil
}

// PutItem inserts or replaces a content item and its allowed roles.
// Status changes of existing items must go through ApplyTransition.
func (s *BunStore) PutItem(ctx context.Context, item *ContentItem) error {
	return s.transaction(ctx, func(tx dbkit.IDB) error {
		result, err := tx.NewInsert().
			Model(item).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("slug = EXCLUDED.slug").
			Set("restrict_by_role = EXCLUDED.restrict_by_role").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "PutItem").Err(); err != nil {
			return err
		}

		result, err = tx.NewDelete().Table("content_allowed_roles").Where("item_id = ?", item.ID).Exec(ctx)
		if err := dbkit.WithErr(result, err, "ClearAllowedRoles").Err(); err != nil {
			return err
		}
		if len(item.AllowedRoles) == 0 {
			return nil
		}
		rows := make([]ContentAllowedRole, len(item.AllowedRoles))
		for i, roleID := range item.AllowedRoles {
			rows[i] = ContentAllowedRole{ItemID: item.ID, RoleID: roleID}
		}
		result, err = tx.NewInsert().Model(&rows).Exec(ctx)
		return dbkit.WithErr(result, err, "InsertAllowedRoles").Err()
	})
}
