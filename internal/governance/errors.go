package governance

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine failure so callers can branch without parsing strings.
type Kind string

const (
	KindNotFound                     Kind = "NOT_FOUND"
	KindNotAMember                   Kind = "NOT_A_MEMBER"
	KindCanVoteBlocked               Kind = "CAN_VOTE_BLOCKED"
	KindAlreadyVoted                 Kind = "ALREADY_VOTED"
	KindVoteAlreadyOpen              Kind = "VOTE_ALREADY_OPEN"
	KindVoteAlreadyClosed            Kind = "VOTE_ALREADY_CLOSED"
	KindVoteNotYetOpen               Kind = "VOTE_NOT_YET_OPEN"
	KindProceduralSequenceIncomplete Kind = "PROCEDURAL_SEQUENCE_INCOMPLETE"
	KindIncompleteForCompletion      Kind = "INCOMPLETE_FOR_COMPLETION"
	KindInvalidInput                 Kind = "INVALID_INPUT"
	KindOperationFailed              Kind = "OPERATION_FAILED"
	KindForbidden                    Kind = "FORBIDDEN"
	KindConflict                     Kind = "CONFLICT"
)

// Error is the typed failure returned by every engine operation.
type Error struct {
	Kind    Kind
	Reason  string
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Missing) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Missing, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrAlreadyVoted)
// holds regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound                     = &Error{Kind: KindNotFound}
	ErrNotAMember                   = &Error{Kind: KindNotAMember}
	ErrCanVoteBlocked               = &Error{Kind: KindCanVoteBlocked}
	ErrAlreadyVoted                 = &Error{Kind: KindAlreadyVoted}
	ErrVoteAlreadyOpen              = &Error{Kind: KindVoteAlreadyOpen}
	ErrVoteAlreadyClosed            = &Error{Kind: KindVoteAlreadyClosed}
	ErrVoteNotYetOpen               = &Error{Kind: KindVoteNotYetOpen}
	ErrProceduralSequenceIncomplete = &Error{Kind: KindProceduralSequenceIncomplete}
	ErrIncompleteForCompletion      = &Error{Kind: KindIncompleteForCompletion}
	ErrInvalidInput                 = &Error{Kind: KindInvalidInput}
	ErrOperationFailed              = &Error{Kind: KindOperationFailed}
	ErrForbidden                    = &Error{Kind: KindForbidden}
	ErrConflict                     = &Error{Kind: KindConflict}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Errorf builds an error of the given kind for adapters outside the engine.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return newError(kind, format, args...)
}

// NotFound builds a NOT_FOUND error naming the missing entity.
func NotFound(entity string, id fmt.Stringer) *Error {
	return newError(KindNotFound, "%s %s not found", entity, id)
}

// KindOf returns the kind of err, or OPERATION_FAILED for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOperationFailed
}

// operationFailed wraps a storage or collaborator failure. Engine errors
// pass through unchanged so store-level conflicts keep their kind.
func operationFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindOperationFailed, Reason: op, Err: err}
}

// Failed is operationFailed for adapters outside the engine.
func Failed(op string, err error) error {
	return operationFailed(op, err)
}
