package sync

import (
	"errors"

	"github.com/aheige321/true-mastery/internal/domain"
)

// ErrRemoteRejected is returned when the reconcile endpoint answers with a
// non-success status or a body whose success flag is false.
var ErrRemoteRejected = errors.New("reconcile rejected by server")

// Request is the body of a reconcile call. Data is required for ModeSync
// and ModeOverwriteCloud and ignored for ModeOverwriteLocal.
type Request struct {
	Method Mode             `json:"method"`
	Data   *domain.Snapshot `json:"data,omitempty"`
	UserID string           `json:"userId,omitempty"`
}

// Response is the reply to a reconcile call.
type Response struct {
	Success bool             `json:"success"`
	Data    *domain.Snapshot `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
}
