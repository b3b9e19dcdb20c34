package model

import "time"

// Task lifecycle states.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

// Task is a unit of work owned by a single Cat House user.
type Task struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description" db:"description"`
	Status      string     `json:"status" db:"status"`
	Priority    *string    `json:"priority" db:"priority"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	DueDate     *time.Time `json:"due_date" db:"due_date"`
}

// TaskCreate is the create-task payload.
type TaskCreate struct {
	Title       string     `json:"title" validate:"required,max=500"`
	Description *string    `json:"description"`
	Status      string     `json:"status" validate:"omitempty,oneof=pending in_progress completed"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate     *Timestamp `json:"due_date"`
}

// TaskPatch is the update-task payload. A nil field was either omitted or
// sent as null; both leave the stored column untouched.
type TaskPatch struct {
	Title       *string    `json:"title" validate:"omitempty,max=500"`
	Description *string    `json:"description"`
	Status      *string    `json:"status" validate:"omitempty,oneof=pending in_progress completed"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate     *Timestamp `json:"due_date"`
}

// Empty reports whether the patch carries no field to apply.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil
}

// TaskStats summarises one user's tasks.
type TaskStats struct {
	TotalTasks      int     `json:"total_tasks"`
	PendingTasks    int     `json:"pending_tasks"`
	InProgressTasks int     `json:"in_progress_tasks"`
	CompletedTasks  int     `json:"completed_tasks"`
	CompletionRate  float64 `json:"completion_rate"`
	OverdueTasks    int     `json:"overdue_tasks"`
}
