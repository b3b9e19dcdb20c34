package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/cathouse/taskmanager/internal/metrics"
	"github.com/cathouse/taskmanager/internal/model"
	"github.com/cathouse/taskmanager/internal/service"
	"github.com/cathouse/taskmanager/internal/store"
	"github.com/cathouse/taskmanager/internal/validation"
)

// Transport-level failure details.
const (
	DetailMissingKey    = "Missing service key"
	DetailInvalidKey    = "Invalid or expired service key"
	DetailInternalError = "Internal server error"
)

// Authenticator resolves a presented service secret to its key name. It
// returns an error matching service.ErrUnauthorized for any rejected secret.
type Authenticator interface {
	Validate(ctx context.Context, secret string) (string, error)
}

// Outcome is the transport-neutral result of routing one command. When
// Response is set the command reached a handler that produced an envelope;
// otherwise Detail or Errors describe a transport-level failure.
type Outcome struct {
	Status   int
	Response *model.CommandResponse
	Detail   string
	Errors   []model.FieldError
}

// Router authenticates, validates and dispatches commands.
type Router struct {
	auth      Authenticator
	registry  *Registry
	store     *store.Store
	logger    *slog.Logger
	now       func() time.Time
	requestID func(context.Context) string
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithRequestID sets the function used to tag log lines with the
// transport's request ID.
func WithRequestID(fn func(context.Context) string) Option {
	return func(r *Router) { r.requestID = fn }
}

// NewRouter creates a Router that lends st to every handler.
func NewRouter(auth Authenticator, registry *Registry, st *store.Store, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		auth:      auth,
		registry:  registry,
		store:     st,
		logger:    logger,
		now:       time.Now,
		requestID: func(context.Context) string { return "" },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the router dispatches to.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Execute runs the full pipeline on a raw JSON body: authenticate the
// secret, decode and validate the request, look up the action, run it and
// wrap the result. Authentication always happens before the body is read.
func (r *Router) Execute(ctx context.Context, secret string, body []byte) Outcome {
	keyName, out, ok := r.Authenticate(ctx, secret)
	if !ok {
		return out
	}

	var req model.CommandRequest
	if errs := validation.DecodeJSON(body, &req, "body"); errs != nil {
		metrics.RecordCommand(metrics.UnknownAction, metrics.OutcomeRejected, 0)
		return Outcome{Status: http.StatusUnprocessableEntity, Errors: errs}
	}
	return r.dispatch(ctx, keyName, req)
}

// ExecuteRequest runs the pipeline on an already decoded request.
func (r *Router) ExecuteRequest(ctx context.Context, secret string, req model.CommandRequest) Outcome {
	keyName, out, ok := r.Authenticate(ctx, secret)
	if !ok {
		return out
	}
	return r.dispatch(ctx, keyName, req)
}

// Authenticate runs only the first pipeline step. When ok is false the
// returned Outcome describes the rejection.
func (r *Router) Authenticate(ctx context.Context, secret string) (string, Outcome, bool) {
	if secret == "" {
		metrics.RecordAuthFailure("service_key")
		return "", Outcome{Status: http.StatusUnauthorized, Detail: DetailMissingKey}, false
	}

	keyName, err := r.auth.Validate(ctx, secret)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			metrics.RecordAuthFailure("service_key")
			r.logger.Warn("service key rejected",
				"key_prefix", service.DisplayPrefix(secret),
				"request_id", r.requestID(ctx),
			)
			return "", Outcome{Status: http.StatusUnauthorized, Detail: DetailInvalidKey}, false
		}
		r.logger.Error("service key lookup failed", "error", err, "request_id", r.requestID(ctx))
		return "", Outcome{Status: http.StatusInternalServerError, Detail: DetailInternalError}, false
	}
	return keyName, Outcome{}, true
}

func (r *Router) dispatch(ctx context.Context, keyName string, req model.CommandRequest) Outcome {
	if errs := validation.ValidateStruct(&req, "body"); errs != nil {
		metrics.RecordCommand(metrics.UnknownAction, metrics.OutcomeRejected, 0)
		return Outcome{Status: http.StatusUnprocessableEntity, Errors: errs}
	}
	if req.Payload == nil {
		req.Payload = map[string]interface{}{}
	}

	log := r.logger.With(
		"action", req.Action,
		"user_id", req.UserID,
		"key_name", keyName,
		"request_id", r.requestID(ctx),
	)

	action, ok := r.registry.Lookup(req.Action)
	if !ok {
		metrics.RecordCommand(metrics.UnknownAction, metrics.OutcomeRejected, 0)
		log.Warn("unknown action")
		return Outcome{Status: http.StatusNotFound, Detail: "Unknown action: " + req.Action}
	}

	log.Debug("command received")
	start := time.Now()
	res := r.invoke(ctx, log, action, req.UserID, req.Payload)
	elapsed := time.Since(start)

	switch res.Kind {
	case KindOK:
		metrics.RecordCommand(action.Name, metrics.OutcomeSuccess, elapsed)
		log.Info("command succeeded", "duration_ms", float64(elapsed.Microseconds())/1000.0)
		return Outcome{
			Status:   http.StatusOK,
			Response: model.NewSuccessResponse(res.Data, r.now()),
		}

	case KindKnownFailure:
		metrics.RecordCommand(action.Name, metrics.OutcomeKnownFailure, elapsed)
		status := res.Status
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		log.Warn("command failed", "status", status, "detail", res.Message)
		return Outcome{Status: status, Detail: res.Message}

	default:
		metrics.RecordCommand(action.Name, metrics.OutcomeSoftFailure, elapsed)
		log.Error("command failed", "error", res.Message)
		return Outcome{
			Status:   http.StatusOK,
			Response: model.NewFailureResponse(res.Message, r.now()),
		}
	}
}

// invoke runs the handler, turning a panic into an unknown failure.
func (r *Router) invoke(ctx context.Context, log *slog.Logger, a Action, userID string, payload map[string]interface{}) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("handler panicked", "panic", p, "stack", string(debug.Stack()))
			res = Unexpected(fmt.Errorf("%v", p))
		}
	}()
	return a.Handler(ctx, userID, payload, r.store)
}
