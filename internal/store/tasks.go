package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cathouse/taskmanager/internal/model"
)

const taskColumns = `id, user_id, title, description, status, priority, created_at, completed_at, due_date`

// CreateTask inserts a task. ID, Status and CreatedAt are filled in when
// empty.
func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		task.ID = newID()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now()
	}
	normalizeTaskTimes(task)

	const q = `INSERT INTO tasks
		(id, user_id, title, description, status, priority, created_at, completed_at, due_date)
		VALUES
		(:id, :user_id, :title, :description, :status, :priority, :created_at, :completed_at, :due_date)`
	if _, err := s.db.NamedExecContext(ctx, q, task); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ListTasks returns a user's tasks, newest first. An empty status matches
// every state.
func (s *Store) ListTasks(ctx context.Context, userID, status string) ([]model.Task, error) {
	q := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ?"
	args := []interface{}{userID}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC, id DESC"

	tasks := []model.Task{}
	if err := s.db.SelectContext(ctx, &tasks, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	for i := range tasks {
		normalizeTaskTimes(&tasks[i])
	}
	return tasks, nil
}

// GetTask returns one task by id. Ownership is not checked: the calling
// application has already been authenticated by its service key and is
// trusted to act for any of its users.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	q := s.db.Rebind("SELECT " + taskColumns + " FROM tasks WHERE id = ?")
	if err := s.db.GetContext(ctx, &task, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	normalizeTaskTimes(&task)
	return &task, nil
}

// UpdateTask applies the non-nil fields of patch to the task and returns
// the updated row. Setting the status to completed stamps
// completed_at with at; any other status clears it.
func (s *Store) UpdateTask(ctx context.Context, id string, patch model.TaskPatch, at time.Time) (*model.Task, error) {
	var sets []string
	var args []interface{}
	set := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}
	if patch.DueDate != nil {
		set("due_date", *patch.DueDate.Ptr())
	}
	if patch.Status != nil {
		set("status", *patch.Status)
		if *patch.Status == model.TaskStatusCompleted {
			set("completed_at", at.UTC().Truncate(time.Microsecond))
		} else {
			set("completed_at", nil)
		}
	}
	if len(sets) == 0 {
		return s.GetTask(ctx, id)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin task update: %w", err)
	}
	defer tx.Rollback()

	q := tx.Rebind("UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?")
	args = append(args, id)
	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update task rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	var task model.Task
	q = tx.Rebind("SELECT " + taskColumns + " FROM tasks WHERE id = ?")
	if err := tx.GetContext(ctx, &task, q, id); err != nil {
		return nil, fmt.Errorf("reload task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task update: %w", err)
	}
	normalizeTaskTimes(&task)
	return &task, nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	q := s.db.Rebind("DELETE FROM tasks WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskCounts holds the raw per-user tallies behind task statistics.
type TaskCounts struct {
	Total      int `db:"total"`
	Pending    int `db:"pending"`
	InProgress int `db:"in_progress"`
	Completed  int `db:"completed"`
	Overdue    int `db:"overdue"`
}

// CountTasks tallies a user's tasks by status. A task is overdue when its
// due date is before at and it is not completed.
func (s *Store) CountTasks(ctx context.Context, userID string, at time.Time) (*TaskCounts, error) {
	q := s.db.Rebind(`SELECT
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS in_progress,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed,
		COALESCE(SUM(CASE WHEN due_date IS NOT NULL AND due_date < ? AND status <> ? THEN 1 ELSE 0 END), 0) AS overdue
		FROM tasks WHERE user_id = ?`)

	var counts TaskCounts
	err := s.db.GetContext(ctx, &counts, q,
		model.TaskStatusPending,
		model.TaskStatusInProgress,
		model.TaskStatusCompleted,
		at.UTC(), model.TaskStatusCompleted,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	return &counts, nil
}

func normalizeTaskTimes(task *model.Task) {
	task.CreatedAt = task.CreatedAt.UTC()
	if task.CompletedAt != nil {
		t := task.CompletedAt.UTC()
		task.CompletedAt = &t
	}
	if task.DueDate != nil {
		t := task.DueDate.UTC()
		task.DueDate = &t
	}
}
