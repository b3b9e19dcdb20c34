package model

// ErrorResponse is the body of every transport-level error other than
// request validation.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// FieldError describes one structural validation failure as a
// location/message/type triple. Loc starts with "body".
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationErrorResponse is the 422 body: a list of field errors.
type ValidationErrorResponse struct {
	Detail []FieldError `json:"detail"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}
