// Package action holds the handlers dispatched by the command router: task
// CRUD and per-user statistics.
package action

import (
	"time"

	"github.com/cathouse/taskmanager/internal/command"
)

// Action names.
const (
	CreateTask = "create-task"
	ListTasks  = "list-tasks"
	GetTask    = "get-task"
	UpdateTask = "update-task"
	DeleteTask = "delete-task"
	GetStats   = "get-stats"
)

// NewRegistry builds the production registry. now stamps completion times
// and decides which tasks are overdue.
func NewRegistry(now func() time.Time) *command.Registry {
	if now == nil {
		now = time.Now
	}
	t := &tasks{now: now}
	return command.NewRegistry(
		command.Action{
			Name:        CreateTask,
			Description: "Create a task. Payload: title (required), description, status, priority, due_date.",
			Handler:     t.create,
		},
		command.Action{
			Name:        ListTasks,
			Description: "List the user's tasks, newest first. Payload: optional status filter.",
			Handler:     t.list,
			ReadOnly:    true,
		},
		command.Action{
			Name:        GetTask,
			Description: "Fetch one task. Payload: task_id (UUID).",
			Handler:     t.get,
			ReadOnly:    true,
		},
		command.Action{
			Name:        UpdateTask,
			Description: "Partially update a task. Payload: task_id plus any of title, description, status, priority, due_date.",
			Handler:     t.update,
		},
		command.Action{
			Name:        DeleteTask,
			Description: "Delete a task. Payload: task_id (UUID).",
			Handler:     t.remove,
		},
		command.Action{
			Name:        GetStats,
			Description: "Summarise the user's tasks: counts by status, completion rate and overdue count.",
			Handler:     t.stats,
			ReadOnly:    true,
		},
	)
}
