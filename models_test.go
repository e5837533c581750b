package gatekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestContentStatusValid tests the lifecycle status check
func TestContentStatusValid(t *testing.T) {
	for _, s := range []ContentStatus{StatusDraft, StatusInReview, StatusPublished, StatusArchived} {
		assert.True(t, s.Valid(), s)
	}
	for _, s := range []ContentStatus{"", "draft", "LIVE"} {
		assert.False(t, s.Valid(), s)
	}
}

// TestReviewStatusOpen tests which review states await a decision
func TestReviewStatusOpen(t *testing.T) {
	assert.True(t, ReviewPending.Open())
	assert.True(t, ReviewInProgress.Open())
	assert.False(t, ReviewApproved.Open())
	assert.False(t, ReviewRejected.Open())
}

// TestDirectGrantActiveAt tests expiry of direct allows
func TestDirectGrantActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	later := now.Add(time.Nanosecond)

	assert.True(t, DirectGrant{}.ActiveAt(now), "no expiry")
	assert.True(t, DirectGrant{ExpiresAt: &later}.ActiveAt(now))
	assert.False(t, DirectGrant{ExpiresAt: &now}.ActiveAt(now), "expiry instant is exclusive")
	assert.False(t, DirectGrant{ExpiresAt: &now}.ActiveAt(later))
}

// TestContentItemRef tests the notification view of an item
func TestContentItemRef(t *testing.T) {
	item := &ContentItem{ID: "i1", Kind: KindCourse, Title: "Hand hygiene", Slug: "hand-hygiene", AuthorID: "author"}
	assert.Equal(t, ContentRef{ID: "i1", Kind: KindCourse, Title: "Hand hygiene", Slug: "hand-hygiene"}, item.Ref())
}

// TestAuditEntryToModel tests conversion of an audit entry to its row
func TestAuditEntryToModel(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entry := &AuditEntry{
		ActorID:      "manager",
		Action:       AuditActionRoleAssigned,
		TargetUserID: "nurse",
		Subject:      "reviewer",
		Detail:       "Reviewer",
		IPAddress:    "10.0.0.1",
		UserAgent:    "portal/1.0",
		RequestID:    "req-1",
	}

	row := entry.ToModel(now)
	assert.Equal(t, "role_assigned", row.Action)
	assert.Equal(t, now, row.Timestamp)
	assert.Equal(t, "manager", row.ActorID)
	assert.Equal(t, "nurse", row.TargetUserID)
	assert.Equal(t, "reviewer", row.Subject)
	assert.Equal(t, "Reviewer", row.Detail)
	assert.Equal(t, "10.0.0.1", row.IPAddress)
	assert.Equal(t, "portal/1.0", row.UserAgent)
	assert.Equal(t, "req-1", row.RequestID)
	assert.Empty(t, row.ID)
}

// TestCloneItem tests that stored items are not aliased by callers
func TestCloneItem(t *testing.T) {
	review := "r1"
	item := &ContentItem{ID: "i1", AllowedRoles: []string{"nurse"}, OpenReviewID: &review}

	cp := cloneItem(item)
	cp.AllowedRoles[0] = "reviewer"
	*cp.OpenReviewID = "r2"

	assert.Equal(t, []string{"nurse"}, item.AllowedRoles)
	assert.Equal(t, "r1", *item.OpenReviewID)
}
