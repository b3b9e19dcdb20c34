package command

import (
	"fmt"
	"net/http"
)

// Kind tags the variant held by a Result.
type Kind int

const (
	// KindOK carries data for a success envelope.
	KindOK Kind = iota
	// KindKnownFailure is an anticipated failure the handler has classified
	// with a transport status. It bypasses the envelope.
	KindKnownFailure
	// KindUnknownFailure is an unanticipated failure. It is reported inside
	// a success=false envelope with an outer 200.
	KindUnknownFailure
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindKnownFailure:
		return "known_failure"
	case KindUnknownFailure:
		return "unknown_failure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is what a Handler returns. Build one with OK, Fail or Unexpected
// and their helpers; the zero value is an empty success.
type Result struct {
	Kind    Kind
	Data    map[string]interface{}
	Status  int
	Message string
}

// OK wraps a successful handler result.
func OK(data map[string]interface{}) Result {
	return Result{Kind: KindOK, Data: data}
}

// Fail reports a known failure with its own HTTP status.
func Fail(status int, msg string) Result {
	return Result{Kind: KindKnownFailure, Status: status, Message: msg}
}

func BadRequest(msg string) Result    { return Fail(http.StatusBadRequest, msg) }
func NotFound(msg string) Result      { return Fail(http.StatusNotFound, msg) }
func InternalError(msg string) Result { return Fail(http.StatusInternalServerError, msg) }

// Unexpected reports an unanticipated failure. The error text becomes the
// envelope's error field.
func Unexpected(err error) Result {
	msg := "unexpected error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Kind: KindUnknownFailure, Message: msg}
}
