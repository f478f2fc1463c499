package pipeline

// messages.go maps technical errors to user-friendly messages with codes
// that operators can quote to support staff. Patterns are matched
// case-insensitively with strings.Contains; the first match wins, so more
// specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File and parse errors (FILE001-FILE004)
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV file with a header row and data rows",
			Code:    "FILE002",
		},
	},
	{
		pattern: "header row and at least one data row",
		msg: UserMessage{
			Message: "The file has no data rows",
			Action:  "Upload a CSV file with a header row and data rows",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with one header row",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Select a CSV file to upload",
			Code:    "FILE004",
		},
	},

	// Backend errors (NET001-NET003)
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The catalog backend took too long to respond",
			Action:  "Try again in a few moments",
			Code:    "NET002",
		},
	},
	{
		pattern: "backend unreachable",
		msg: UserMessage{
			Message: "Unable to reach the catalog backend",
			Action:  "Check your connection and try again",
			Code:    "NET001",
		},
	},
	{
		pattern: "catalog backend",
		msg: UserMessage{
			Message: "The catalog backend rejected the request",
			Action:  "Try again; contact support if the problem persists",
			Code:    "NET003",
		},
	},

	// Session and workflow errors (IMP001-IMP006)
	{
		pattern: "import session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The session may have expired. Start a new import",
			Code:    "IMP001",
		},
	},
	{
		pattern: "correction is in flight",
		msg: UserMessage{
			Message: "Another row is being corrected",
			Action:  "Wait for the current correction to finish",
			Code:    "IMP002",
		},
	},
	{
		pattern: "no valid rows",
		msg: UserMessage{
			Message: "There are no valid rows to process",
			Action:  "Correct the reported rows before processing",
			Code:    "IMP003",
		},
	},
	{
		pattern: "already been processed",
		msg: UserMessage{
			Message: "This import has already been processed",
			Action:  "Start a new import to upload more records",
			Code:    "IMP004",
		},
	},
	{
		pattern: "already in progress",
		msg: UserMessage{
			Message: "Processing is already in progress",
			Action:  "Wait for the current processing to finish",
			Code:    "IMP005",
		},
	},
	{
		pattern: "cannot ",
		msg: UserMessage{
			Message: "That action is not available at this step",
			Action:  "Refresh the import and try again",
			Code:    "IMP006",
		},
	},
	{
		pattern: "unknown import type",
		msg: UserMessage{
			Message: "Unknown import type",
			Action:  "Use one of: products, users",
			Code:    "IMP007",
		},
	},
	{
		pattern: "row not found",
		msg: UserMessage{
			Message: "That row is not in the error list",
			Action:  "Refresh the import and try again",
			Code:    "IMP008",
		},
	},
	{
		pattern: "invalid correction body",
		msg: UserMessage{
			Message: "The correction could not be read",
			Action:  "Send a JSON object of column names to corrected values",
			Code:    "IMP010",
		},
	},
	{
		pattern: "unknown column",
		msg: UserMessage{
			Message: "The correction refers to a column that is not in the file",
			Action:  "Edit only columns present in the uploaded CSV",
			Code:    "IMP009",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is the fallback when no pattern matches. Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
