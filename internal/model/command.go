package model

import "time"

// CommandRequest is the universal input accepted by POST /execute. The
// caller asserts UserID; it is not derived from the service key.
type CommandRequest struct {
	Action  string                 `json:"action" validate:"required"`
	UserID  string                 `json:"user_id" validate:"required"`
	Payload map[string]interface{} `json:"payload"`
}

// CommandResponse is the envelope wrapped around every routed command
// result. Exactly one of Data and Error is non-nil.
type CommandResponse struct {
	Success   bool                   `json:"success"`
	Data      map[string]interface{} `json:"data"`
	Error     *string                `json:"error"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewSuccessResponse builds a success envelope. A nil data map is
// normalised to an empty object so Data is never null on success.
func NewSuccessResponse(data map[string]interface{}, at time.Time) *CommandResponse {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &CommandResponse{
		Success:   true,
		Data:      data,
		Timestamp: at.UTC(),
	}
}

// NewFailureResponse builds a soft-failure envelope carrying msg.
func NewFailureResponse(msg string, at time.Time) *CommandResponse {
	return &CommandResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: at.UTC(),
	}
}
