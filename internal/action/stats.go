package action

import (
	"context"
	"log/slog"
	"math"

	"github.com/cathouse/taskmanager/internal/command"
	"github.com/cathouse/taskmanager/internal/model"
	"github.com/cathouse/taskmanager/internal/store"
)

func (t *tasks) stats(ctx context.Context, userID string, payload map[string]interface{}, st *store.Store) command.Result {
	counts, err := st.CountTasks(ctx, userID, t.now())
	if err != nil {
		slog.ErrorContext(ctx, "statistics calculation failed", "user_id", userID, "error", err)
		return command.InternalError("Failed to calculate statistics")
	}
	s := model.TaskStats{
		TotalTasks:      counts.Total,
		PendingTasks:    counts.Pending,
		InProgressTasks: counts.InProgress,
		CompletedTasks:  counts.Completed,
		CompletionRate:  CompletionRate(counts.Completed, counts.Total),
		OverdueTasks:    counts.Overdue,
	}
	return command.OK(map[string]interface{}{
		"total_tasks":       s.TotalTasks,
		"pending_tasks":     s.PendingTasks,
		"in_progress_tasks": s.InProgressTasks,
		"completed_tasks":   s.CompletedTasks,
		"completion_rate":   s.CompletionRate,
		"overdue_tasks":     s.OverdueTasks,
	})
}

// CompletionRate returns completed/total as a percentage rounded to two
// decimal places, or 0 when there are no tasks.
func CompletionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(completed) / float64(total) * 100
	return math.Round(rate*100) / 100
}
