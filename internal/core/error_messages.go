package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference.
//
// # Ingestion Errors (ING001-ING099)
//
//	ING001 - Fetch failed: the remote dump could not be retrieved
//	         Matched by: *FetchError
//
//	ING002 - Malformed dump: the remote dump could not be decoded
//	         Matched by: *ParseError
//
//	ING003 - Persistence failed: a record could not be normalized or stored
//	         Matched by: *PersistenceError
//
//	ING004 - Already running: a download of this kind is in flight
//	         Matched by: ErrAlreadyRunning
//
//	ING005 - Bulk running: a bulk run is in progress
//	         Matched by: ErrBulkRunning
//
//	ING006 - System busy: every download slot is taken
//	         Matched by: ErrTooManyJobs
//
//	ING007 - Unknown resource: the kind is not one of the six dumps
//	         Matched by: ErrUnknownKind
//
//	ING008 - Job not found
//	         Matched by: ErrJobNotFound
//
// # Access Errors (AUTH001-AUTH099)
//
//	AUTH001 - Permission denied: the caller lacks admin clearance
//	          Matched by: ErrPermissionDenied
//
// # Infrastructure Errors (DB004-DB007, RATE001)
//
// Matched case-insensitively on the error text when no typed error applies.
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgFetch = UserMessage{
		Message: "The remote dump could not be retrieved",
		Action:  "Check that the source is reachable and try again later",
		Code:    "ING001",
	}
	msgParse = UserMessage{
		Message: "The remote dump is malformed",
		Action:  "Records before the malformed one were stored; retry once the source is fixed",
		Code:    "ING002",
	}
	msgPersist = UserMessage{
		Message: "A record could not be stored",
		Action:  "Records before the failing one were stored; check the logs and retry",
		Code:    "ING003",
	}
	msgAlreadyRunning = UserMessage{
		Message: "A download of this resource is already running",
		Action:  "Wait for it to finish; see /jobs for progress",
		Code:    "ING004",
	}
	msgBulkRunning = UserMessage{
		Message: "A bulk download is already running",
		Action:  "Wait for it to finish; see /jobs for progress",
		Code:    "ING005",
	}
	msgBusy = UserMessage{
		Message: "System is busy with other downloads",
		Action:  "Please wait a moment and try again",
		Code:    "ING006",
	}
	msgUnknownKind = UserMessage{
		Message: "Unknown resource",
		Action:  "Use one of body, commodity, faction, station, populatedsystem, system",
		Code:    "ING007",
	}
	msgJobNotFound = UserMessage{
		Message: "Job not found",
		Action:  "Only recent jobs are kept; list them at /jobs",
		Code:    "ING008",
	}
	msgDenied = UserMessage{
		Message: "Permission Denied",
		Action:  "Ask an administrator to run the download",
		Code:    "AUTH001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are tried, in order, against the lower-cased error text when
// no typed error matched. The first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed and sentinel errors win over text patterns.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		fe *FetchError
		pe *ParseError
		se *PersistenceError
	)
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return msgDenied
	case errors.Is(err, ErrAlreadyRunning):
		return msgAlreadyRunning
	case errors.Is(err, ErrBulkRunning):
		return msgBulkRunning
	case errors.Is(err, ErrTooManyJobs):
		return msgBusy
	case errors.Is(err, ErrUnknownKind):
		return msgUnknownKind
	case errors.Is(err, ErrJobNotFound):
		return msgJobNotFound
	case errors.As(err, &fe):
		return msgFetch
	case errors.As(err, &pe):
		return msgParse
	case errors.As(err, &se):
		return msgPersist
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
