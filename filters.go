package gatekit

import "time"

// DefaultListLimit caps listing queries that don't set a limit.
const DefaultListLimit = 100

// AuditLogFilter narrows an audit log read. Zero fields match everything.
type AuditLogFilter struct {
	ActorID      string
	TargetUserID string
	Action       string
	Subject      string // role or permission id

	// Inclusive window; a zero bound is open.
	Since time.Time
	Until time.Time

	Limit  int
	Offset int
}

// NewAuditLogFilter returns a filter capped at DefaultListLimit entries.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{Limit: DefaultListLimit}
}

// WithActor keeps entries made by actorID.
func (f AuditLogFilter) WithActor(actorID string) AuditLogFilter {
	f.ActorID = actorID
	return f
}

// WithTargetUser keeps entries about userID.
func (f AuditLogFilter) WithTargetUser(userID string) AuditLogFilter {
	f.TargetUserID = userID
	return f
}

func (f AuditLogFilter) WithAction(action AuditAction) AuditLogFilter {
	f.Action = string(action)
	return f
}

func (f AuditLogFilter) WithSubject(subject string) AuditLogFilter {
	f.Subject = subject
	return f
}

// WithTimeRange keeps entries timestamped within [since, until].
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since, f.Until = since, until
	return f
}

func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit, f.Offset = limit, offset
	return f
}

// Matches reports whether an entry passes every set criterion.
// Stores that can't push the filter into a query use it directly.
func (f AuditLogFilter) Matches(l *AuditLog) bool {
	switch {
	case f.ActorID != "" && l.ActorID != f.ActorID:
		return false
	case f.TargetUserID != "" && l.TargetUserID != f.TargetUserID:
		return false
	case f.Action != "" && l.Action != f.Action:
		return false
	case f.Subject != "" && l.Subject != f.Subject:
		return false
	case !f.Since.IsZero() && l.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && l.Timestamp.After(f.Until):
		return false
	}
	return true
}

// ContentFilter narrows a content listing. Visibility is applied separately.
type ContentFilter struct {
	Kind     ContentKind
	Status   ContentStatus
	AuthorID string

	Limit  int
	Offset int
}

// WithStatus sets the status filter.
func (f ContentFilter) WithStatus(status ContentStatus) ContentFilter {
	f.Status = status
	return f
}

// WithAuthor sets the author filter.
func (f ContentFilter) WithAuthor(authorID string) ContentFilter {
	f.AuthorID = authorID
	return f
}

// WithPagination sets both limit and offset.
func (f ContentFilter) WithPagination(limit, offset int) ContentFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

func (f ContentFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}
