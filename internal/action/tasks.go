package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cathouse/taskmanager/internal/command"
	"github.com/cathouse/taskmanager/internal/model"
	"github.com/cathouse/taskmanager/internal/store"
	"github.com/cathouse/taskmanager/internal/validation"
)

const msgInternal = "Internal server error"

type tasks struct {
	now func() time.Time
}

func (t *tasks) create(ctx context.Context, userID string, payload map[string]interface{}, st *store.Store) command.Result {
	var in model.TaskCreate
	if res, ok := decodePayload(payload, &in); !ok {
		return res
	}

	task := &model.Task{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate.Ptr(),
	}
	if task.Status == model.TaskStatusCompleted {
		at := t.now().UTC().Truncate(time.Microsecond)
		task.CompletedAt = &at
	}
	if err := st.CreateTask(ctx, task); err != nil {
		slog.ErrorContext(ctx, "database error", "action", CreateTask, "user_id", userID, "error", err)
		return command.InternalError(msgInternal)
	}
	return taskResult(task)
}

func (t *tasks) list(ctx context.Context, userID string, payload map[string]interface{}, st *store.Store) command.Result {
	var status string
	if v, ok := payload["status"]; ok && v != nil {
		s, isString := v.(string)
		if !isString {
			return command.BadRequest("status: Input should be a valid string")
		}
		status = s
	}

	list, err := st.ListTasks(ctx, userID, status)
	if err != nil {
		slog.ErrorContext(ctx, "database error", "action", ListTasks, "user_id", userID, "error", err)
		return command.InternalError(msgInternal)
	}
	items := make([]interface{}, 0, len(list))
	for i := range list {
		m, err := toMap(&list[i])
		if err != nil {
			return command.Unexpected(err)
		}
		items = append(items, m)
	}
	return command.OK(map[string]interface{}{"tasks": items, "count": len(items)})
}

func (t *tasks) get(ctx context.Context, userID string, payload map[string]interface{}, st *store.Store) command.Result {
	id, res, ok := taskID(payload)
	if !ok {
		return res
	}
	task, err := st.GetTask(ctx, id)
	if err != nil {
		return storeFailure(ctx, GetTask, userID, id, err)
	}
	return taskResult(task)
}

func (t *tasks) update(ctx context.Context, userID string, payload map[string]interface{}, st *store.Store) command.Result {
	id, res, ok := taskID(payload)
	if !ok {
		return res
	}

	fields := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k != "task_id" {
			fields[k] = v
		}
	}
	var patch model.TaskPatch
	if res, ok := decodePayload(fields, &patch); !ok {
		return res
	}
	if patch.Empty() {
		return command.BadRequest("No fields provided for update")
	}

	task, err := st.UpdateTask(ctx, id, patch, t.now())
	if err != nil {
		return storeFailure(ctx, UpdateTask, userID, id, err)
	}
	return taskResult(task)
}

func (t *tasks) remove(ctx context.Context, userID string, payload map[string]interface{}, st *store.Store) command.Result {
	id, res, ok := taskID(payload)
	if !ok {
		return res
	}
	if err := st.DeleteTask(ctx, id); err != nil {
		return storeFailure(ctx, DeleteTask, userID, id, err)
	}
	return command.OK(map[string]interface{}{"success": true, "deleted_id": id})
}

// taskID extracts and canonicalises payload["task_id"].
func taskID(payload map[string]interface{}) (string, command.Result, bool) {
	raw, ok := payload["task_id"]
	if !ok || raw == nil || raw == "" {
		return "", command.BadRequest("Missing required field: task_id"), false
	}
	s, ok := raw.(string)
	if !ok {
		return "", command.BadRequest("Invalid UUID format for task_id"), false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", command.BadRequest("Invalid UUID format for task_id"), false
	}
	return id.String(), command.Result{}, true
}

// decodePayload converts the open payload mapping into a typed struct and
// validates it. Failures become a 400 naming every offending field.
func decodePayload(payload map[string]interface{}, v interface{}) (command.Result, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return command.BadRequest(err.Error()), false
	}
	if errs := validation.DecodeJSON(raw, v); errs != nil {
		return command.BadRequest(validation.Summary(errs)), false
	}
	if errs := validation.ValidateStruct(v); errs != nil {
		return command.BadRequest(validation.Summary(errs)), false
	}
	return command.Result{}, true
}

func storeFailure(ctx context.Context, action, userID, id string, err error) command.Result {
	if errors.Is(err, store.ErrNotFound) {
		return command.NotFound(fmt.Sprintf("Task not found: %s", id))
	}
	slog.ErrorContext(ctx, "database error", "action", action, "user_id", userID, "task_id", id, "error", err)
	return command.InternalError(msgInternal)
}

func taskResult(task *model.Task) command.Result {
	m, err := toMap(task)
	if err != nil {
		return command.Unexpected(err)
	}
	return command.OK(m)
}

// toMap renders v through its JSON representation.
func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return m, nil
}
