package gatekit

import (
	"errors"
	"fmt"
)

// Sentinel errors for gatekit operations.
var (
	// ErrUnauthorized is returned when no authenticated user is present.
	ErrUnauthorized = errors.New("gatekit: unauthorized")

	// ErrForbidden is returned when the user is authenticated but a guard fails.
	ErrForbidden = errors.New("gatekit: forbidden")

	// ErrNotFound is returned when an item, review, user or role is absent.
	ErrNotFound = errors.New("gatekit: not found")

	// ErrInvalidTransition is returned when the requested from/to pair is not
	// allowed, or the persisted status no longer matches the expected one.
	ErrInvalidTransition = errors.New("gatekit: invalid transition")

	// ErrValidation is returned when a request payload is incomplete or malformed.
	ErrValidation = errors.New("gatekit: validation failed")

	// ErrTransitionFailed is returned when persisting a transition fails.
	// State is left unchanged.
	ErrTransitionFailed = errors.New("gatekit: transition failed")

	// ErrStatusConflict is returned by stores when a conditional write finds
	// the item in a different status than expected.
	ErrStatusConflict = errors.New("gatekit: status conflict")

	// ErrInvalidPermission is returned when a permission id is malformed or
	// not part of the catalog.
	ErrInvalidPermission = errors.New("gatekit: invalid permission")

	// ErrRoleAlreadyAssigned is returned when the user already holds the role.
	ErrRoleAlreadyAssigned = errors.New("gatekit: role already assigned")

	// ErrRoleNotAssigned is returned when deactivating a role the user doesn't hold.
	ErrRoleNotAssigned = errors.New("gatekit: role not assigned")

	// ErrNoActorID is returned when actor ID is not found in context.
	ErrNoActorID = errors.New("gatekit: no actor ID in context")

	// ErrReviewAlreadyClosed is returned when the review being resolved was
	// closed by a concurrent request. It matches ErrInvalidTransition.
	ErrReviewAlreadyClosed error = &refinedError{msg: "gatekit: review already closed", parent: ErrInvalidTransition}

	// ErrReviewAlreadyClaimed is returned when a review has already been
	// picked up by a reviewer. It matches ErrInvalidTransition.
	ErrReviewAlreadyClaimed error = &refinedError{msg: "gatekit: review already claimed", parent: ErrInvalidTransition}
)

// refinedError is a sentinel that is also a more specific case of another sentinel.
type refinedError struct {
	msg    string
	parent error
}

func (e *refinedError) Error() string { return e.msg }

func (e *refinedError) Unwrap() error { return e.parent }

// Error wraps a sentinel error with additional context.
type Error struct {
	Err        error         // Underlying sentinel error
	Message    string        // Human-readable reason, safe to display
	UserID     string        // User involved (if applicable)
	ItemID     string        // Content item involved (if applicable)
	ReviewID   string        // Review involved (if applicable)
	Permission string        // Permission involved (if applicable)
	From       ContentStatus // Expected status (transitions only)
	To         ContentStatus // Requested status (transitions only)
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying errors for errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithUser adds user information to the error.
func (e *Error) WithUser(userID string) *Error {
	e.UserID = userID
	return e
}

// WithItem adds content item information to the error.
func (e *Error) WithItem(itemID string) *Error {
	e.ItemID = itemID
	return e
}

// WithReview adds review information to the error.
func (e *Error) WithReview(reviewID string) *Error {
	e.ReviewID = reviewID
	return e
}

// WithPermission adds the permission involved to the error.
func (e *Error) WithPermission(permission string) *Error {
	e.Permission = permission
	return e
}

// WithTransition records the requested transition.
func (e *Error) WithTransition(from, to ContentStatus) *Error {
	e.From = from
	e.To = to
	return e
}

// WithCause attaches the underlying failure, e.g. a database error.
// The cause is kept for logs and errors.Is/As but never shown to users.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// UserMessage returns a display-safe description of err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" && !errors.Is(err, ErrTransitionFailed) {
		return e.Message
	}
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNoActorID):
		return "You need to sign in to do that."
	case errors.Is(err, ErrForbidden):
		return "You don't have permission to do that."
	case errors.Is(err, ErrNotFound):
		return "The requested content could not be found."
	case errors.Is(err, ErrReviewAlreadyClosed):
		return "This review has already been resolved."
	case errors.Is(err, ErrReviewAlreadyClaimed):
		return "This review has already been picked up by another reviewer."
	case errors.Is(err, ErrInvalidTransition):
		return "The content changed since you loaded it. Refresh and try again."
	case errors.Is(err, ErrValidation):
		return "Some required information is missing."
	case errors.Is(err, ErrTransitionFailed):
		return "The change could not be saved. Nothing was modified."
	default:
		return "Something went wrong."
	}
}

// IsUnauthorized checks if an error is due to a missing authenticated user.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoActorID)
}

// IsForbidden checks if an error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsNotFound checks if an error is due to a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidTransition checks if an error is due to a disallowed or stale transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsValidation checks if an error is a payload validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidPermission)
}
