// Package notify carries review outcomes from the workflow to authors
// through an asynq queue.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/fernandezvara/gatekit"
)

const (
	// QueueNotifications is the default queue for review notifications.
	QueueNotifications = "notifications"
	// TaskReviewApproved is the task type sent when an item is published from review.
	TaskReviewApproved = "review:approved"
	// TaskReviewRejected is the task type sent when a reviewer sends an item back.
	TaskReviewRejected = "review:rejected"
)

// ReviewPayload describes one review outcome.
type ReviewPayload struct {
	Item         gatekit.ContentRef `json:"item"`
	AuthorID     string             `json:"author_id"`
	ReviewerName string             `json:"reviewer_name"`
	Feedback     string             `json:"feedback,omitempty"`
}

// NewReviewApprovedTask constructs an approval task.
func NewReviewApprovedTask(payload ReviewPayload) (*asynq.Task, error) {
	return newReviewTask(TaskReviewApproved, payload)
}

// NewReviewRejectedTask constructs a rejection task.
func NewReviewRejectedTask(payload ReviewPayload) (*asynq.Task, error) {
	return newReviewTask(TaskReviewRejected, payload)
}

func newReviewTask(typename string, payload ReviewPayload) (*asynq.Task, error) {
	if payload.AuthorID == "" || payload.Item.ID == "" {
		return nil, fmt.Errorf("notify: %s payload needs an author and an item", typename)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}

// Message is what a Deliverer sends to an author.
type Message struct {
	UserID  string
	Subject string
	Body    string
}

// ApprovalMessage renders the message for an approved item.
func ApprovalMessage(p ReviewPayload) Message {
	return Message{
		UserID:  p.AuthorID,
		Subject: fmt.Sprintf("%q was approved", p.Item.Title),
		Body:    fmt.Sprintf("%s approved your %s %q. It is now published.", p.ReviewerName, noun(p.Item.Kind), p.Item.Title),
	}
}

// RejectionMessage renders the message for an item sent back to draft.
func RejectionMessage(p ReviewPayload) Message {
	return Message{
		UserID:  p.AuthorID,
		Subject: fmt.Sprintf("%q needs changes", p.Item.Title),
		Body: fmt.Sprintf("%s sent your %s %q back to draft.\n\nFeedback:\n%s",
			p.ReviewerName, noun(p.Item.Kind), p.Item.Title, p.Feedback),
	}
}

func noun(k gatekit.ContentKind) string {
	if k == gatekit.KindWiki {
		return "article"
	}
	return string(k)
}
