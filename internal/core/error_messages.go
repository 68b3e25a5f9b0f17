package core

// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. When users see an error, they can quote the code.
//
// Typed pipeline errors are matched first with errors.As / errors.Is; any
// other error falls through to case-insensitive substring patterns.
//
// # Detection Errors (DET001-DET099)
//
//	DET001 - Encoding unknown: The file's character encoding could not be determined
//	         Action: Save the file as UTF-8 and upload it again
//	         Matches: *normalize.DetectionError
//
// # Encoding Errors (ENC001-ENC099)
//
//	ENC001 - Invalid bytes: The file contains bytes that are invalid in its encoding
//	         Action: Untick "Convert to UTF-8" for a lossy ASCII copy, or re-save as UTF-8
//	         Matches: *normalize.EncodingError
//
//	ENC002 - Unsupported encoding: The detected encoding is not supported
//	         Action: Save the file as UTF-8 and upload it again
//	         Matches: normalize.ErrUnsupportedEncoding
//
// # CSV Errors (CSV001-CSV099)
//
//	CSV001 - Field count: A row has a different number of fields than the header
//	CSV002 - Unterminated quote: A quoted field is never closed
//	CSV003 - Bare quote: A quote appears inside an unquoted field
//	CSV004 - Invalid CSV: The file is not valid CSV
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	FILE002 - Unreadable: The file could not be read
//	FILE003 - No file: No file was selected
//	FILE004 - Bad form: The upload form could not be parsed
//	FILE005 - Empty file: The uploaded file is empty
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run expired: The cleaned file is no longer available
//	RUN002 - System busy: Too many files are being cleaned
//	RUN003 - Request cancelled
//	RUN004 - Request timeout
//	RUN005 - History unavailable
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check the logs for
// the original technical error when users report ERR000.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvclean/internal/normalize"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgDetection = UserMessage{
		Message: "The file's character encoding could not be determined",
		Action:  "Save the file as UTF-8 and upload it again",
		Code:    "DET001",
	}
	msgInvalidBytes = UserMessage{
		Message: "The file contains bytes that are invalid in its encoding",
		Action:  `Untick "Convert to UTF-8" for a lossy ASCII copy, or re-save the file as UTF-8`,
		Code:    "ENC001",
	}
	msgUnsupported = UserMessage{
		Message: "The detected encoding is not supported",
		Action:  "Save the file as UTF-8 and upload it again",
		Code:    "ENC002",
	}
	msgFieldCount = UserMessage{
		Message: "A row has a different number of fields than the header",
		Action:  "Check the reported line for missing or extra commas",
		Code:    "CSV001",
	}
	msgQuote = UserMessage{
		Message: "A quoted field is never closed",
		Action:  "Check the reported line for a missing closing quote",
		Code:    "CSV002",
	}
	msgBareQuote = UserMessage{
		Message: "A quote appears inside an unquoted field",
		Action:  "Wrap the field in quotes and double the inner quote",
		Code:    "CSV003",
	}
	msgInvalidCSV = UserMessage{
		Message: "The file is not valid CSV",
		Action:  "Ensure the file is comma-separated with a header row",
		Code:    "CSV004",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with a header row",
		Code:    "FILE005",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "RUN003",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "RUN004",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages for errors that carry no type. The first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "read upload",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Please try uploading the file again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to clean",
			Code:    "FILE003",
		},
	},
	{
		pattern: "invalid form",
		msg: UserMessage{
			Message: "The upload form could not be parsed",
			Action:  "Please submit the form again",
			Code:    "FILE004",
		},
	},
	{pattern: "empty file", msg: msgEmptyFile},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "The cleaned file is no longer available",
			Action:  "Upload the file again to create a new copy",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "Too many files are being cleaned right now",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{
		pattern: "history store",
		msg: UserMessage{
			Message: "Run history is unavailable",
			Action:  "Please try again later",
			Code:    "RUN005",
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

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed normalizer errors are recognized anywhere in the wrap chain; other
// errors are matched against known message patterns. If nothing matches, a
// generic fallback message with code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var (
		detErr   *normalize.DetectionError
		encErr   *normalize.EncodingError
		parseErr *normalize.ParseError
	)

	switch {
	case errors.As(err, &detErr):
		return msgDetection, true

	case errors.As(err, &encErr):
		if errors.Is(err, normalize.ErrUnsupportedEncoding) {
			return msgUnsupported, true
		}
		return msgInvalidBytes, true

	case errors.As(err, &parseErr):
		switch {
		case errors.Is(err, normalize.ErrEmptyFile):
			return msgEmptyFile, true
		case errors.Is(err, csv.ErrFieldCount):
			return withLine(msgFieldCount, parseErr.Line), true
		case errors.Is(err, csv.ErrQuote):
			return withLine(msgQuote, parseErr.Line), true
		case errors.Is(err, csv.ErrBareQuote):
			return withLine(msgBareQuote, parseErr.Line), true
		}
		return withLine(msgInvalidCSV, parseErr.Line), true

	case errors.Is(err, context.Canceled):
		return msgCancelled, true

	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout, true
	}
	return UserMessage{}, false
}

// withLine appends the offending line number to the message.
func withLine(msg UserMessage, line int) UserMessage {
	if line > 0 {
		msg.Message = fmt.Sprintf("%s (line %d)", msg.Message, line)
	}
	return msg
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

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-friendly message.
// The original error is preserved for logging while Error() returns the
// clean message.
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

// NewUserError creates a UserError by mapping a technical error.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
