package election

import (
	"errors"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
)

// Error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Voting specific errors
	CodeVoterNotFound     = "VOTER_NOT_FOUND"
	CodeCandidateNotFound = "CANDIDATE_NOT_FOUND"
	CodeAlreadyVoted      = "ALREADY_VOTED"
	CodeTransactionFailed = "TRANSACTION_FAILED"
)

var (
	// ErrVoterNotFound is returned when an operation names an unknown voter
	ErrVoterNotFound = fmt.Errorf("voter %w", database.ErrNotFound)

	// ErrCandidateNotFound is returned when a vote names an unknown candidate
	ErrCandidateNotFound = fmt.Errorf("candidate %w", database.ErrNotFound)
)

// User-visible messages
const (
	MsgVoteRecorded      = "Your vote has been recorded. Thank you for voting."
	MsgAlreadyVoted      = "You have already voted. A vote cannot be cast twice."
	MsgVoterNotVoted     = "This voter has not voted yet."
	MsgVoteReset         = "The vote has been reset."
	MsgAllVotesReset     = "All votes have been reset."
	msgVoterNotFound     = "Voter not found. Please check your username and log in again."
	msgCandidateNotFound = "The selected candidate does not exist. Please refresh the page and choose again."
	msgTransactionFailed = "Your vote could not be saved. Please try again."
	msgConflict          = "This vote conflicts with an existing record. Please contact the election committee."
	msgInvalidRequest    = "The request contains invalid data."
	msgUnavailable       = "The local database could not be opened. Clear the local data and reload the application."
	msgInternal          = "An unexpected error occurred. Please try again."
)

// Error is a coded, user-presentable error. It wraps the underlying cause so
// errors.Is keeps working on the sentinel taxonomy.
type Error struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	cause    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new coded error
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithMetadata adds metadata to the error
func (e *Error) WithMetadata(key string, value interface{}) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsError classifies err into a coded Error. It returns nil for nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}

	switch {
	case errors.Is(err, ErrVoterNotFound):
		return NewError(CodeVoterNotFound, msgVoterNotFound, err)
	case errors.Is(err, ErrCandidateNotFound):
		return NewError(CodeCandidateNotFound, msgCandidateNotFound, err)
	case errors.Is(err, database.ErrNotFound):
		return NewError(CodeNotFound, msgInternal, err)
	case errors.Is(err, database.ErrDuplicateKey):
		return NewError(CodeConflict, msgConflict, err)
	case errors.Is(err, database.ErrValidation):
		return NewError(CodeInvalidRequest, msgInvalidRequest, err)
	case errors.Is(err, database.ErrSchema):
		return NewError(CodeServiceUnavailable, msgUnavailable, err)
	case errors.Is(err, database.ErrTransactionAborted):
		return NewError(CodeTransactionFailed, msgTransactionFailed, err)
	default:
		return NewError(CodeInternalError, msgInternal, err)
	}
}

// UserMessage returns the human readable text for a failed operation. It is
// never the already-voted message, which belongs to a successful result.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return AsError(err).Message
}
