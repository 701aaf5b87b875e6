package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/pkg/response"
)

var kindStatus = map[governance.Kind]int{
	governance.KindNotFound:                     http.StatusNotFound,
	governance.KindNotAMember:                   http.StatusForbidden,
	governance.KindForbidden:                    http.StatusForbidden,
	governance.KindCanVoteBlocked:               http.StatusForbidden,
	governance.KindAlreadyVoted:                 http.StatusConflict,
	governance.KindVoteAlreadyOpen:              http.StatusConflict,
	governance.KindVoteAlreadyClosed:            http.StatusConflict,
	governance.KindConflict:                     http.StatusConflict,
	governance.KindVoteNotYetOpen:               http.StatusUnprocessableEntity,
	governance.KindProceduralSequenceIncomplete: http.StatusUnprocessableEntity,
	governance.KindIncompleteForCompletion:      http.StatusUnprocessableEntity,
	governance.KindInvalidInput:                 http.StatusBadRequest,
	governance.KindOperationFailed:              http.StatusInternalServerError,
}

// StatusFor maps a governance error kind to its HTTP status.
func StatusFor(kind governance.Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteError renders err as a typed error response. Storage causes are
// recorded on the context for the request logger and never sent to clients.
func WriteError(c *gin.Context, err error) {
	_ = c.Error(err)
	var gerr *governance.Error
	if !errors.As(err, &gerr) {
		response.Fail(c, http.StatusInternalServerError, string(governance.KindOperationFailed), "internal error", nil)
		return
	}
	reason := gerr.Reason
	if gerr.Kind == governance.KindOperationFailed {
		reason = "internal error"
	}
	response.Fail(c, StatusFor(gerr.Kind), string(gerr.Kind), reason, gerr.Missing)
}

// UserID returns the authenticated user set by JWT.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
