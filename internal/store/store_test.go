package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cathouse/taskmanager/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testKey(name, hash string) *model.ServiceKey {
	return &model.ServiceKey{
		KeyName:     name,
		SecretHash:  hash,
		KeyPrefix:   "sk_dev_0123abcd",
		Environment: model.EnvironmentDev,
		Active:      true,
	}
}

func strPtr(s string) *string { return &s }

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"postgres", DialectPostgres, false},
		{"PostgreSQL", DialectPostgres, false},
		{"pgx", DialectPostgres, false},
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestServiceKeyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := testKey("billing-service", "hash-1")
	if err := s.CreateServiceKey(ctx, key); err != nil {
		t.Fatalf("CreateServiceKey: %v", err)
	}
	if key.ID == "" {
		t.Fatal("expected ID after create")
	}
	if key.Generation != 1 {
		t.Errorf("got generation %d, want 1", key.Generation)
	}

	got, err := s.GetServiceKeyBySecretHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("GetServiceKeyBySecretHash: %v", err)
	}
	if got.ID != key.ID || got.KeyName != "billing-service" {
		t.Errorf("got %+v, want id %s", got, key.ID)
	}
	if !got.Active {
		t.Error("expected active key")
	}
	if got.ExpiresAt != nil {
		t.Errorf("expected nil expiry, got %v", got.ExpiresAt)
	}
	if !got.CreatedAt.Equal(key.CreatedAt) {
		t.Errorf("created_at round trip: got %v, want %v", got.CreatedAt, key.CreatedAt)
	}

	exists, err := s.ServiceKeyNameExists(ctx, "billing-service")
	if err != nil {
		t.Fatalf("ServiceKeyNameExists: %v", err)
	}
	if !exists {
		t.Error("expected name to exist")
	}
	exists, _ = s.ServiceKeyNameExists(ctx, "nope")
	if exists {
		t.Error("expected unknown name to not exist")
	}

	if err := s.RevokeServiceKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeServiceKey: %v", err)
	}
	got, _ = s.GetServiceKey(ctx, key.ID)
	if got.Active {
		t.Error("expected revoked key to be inactive")
	}

	if err := s.RevokeServiceKey(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoke unknown: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetServiceKeyBySecretHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup unknown hash: got %v, want ErrNotFound", err)
	}
}

func TestCreateServiceKey_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateServiceKey(ctx, testKey("dup-key", "hash-a")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.CreateServiceKey(ctx, testKey("dup-key", "hash-b"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second create: got %v, want ErrConflict", err)
	}

	keys, _ := s.ListServiceKeys(ctx)
	if len(keys) != 1 {
		t.Errorf("got %d keys, want 1", len(keys))
	}
}

func TestRotateServiceKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orig := testKey("rotating", "hash-gen1")
	if err := s.CreateServiceKey(ctx, orig); err != nil {
		t.Fatalf("CreateServiceKey: %v", err)
	}

	grace := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Microsecond)
	var seen *model.ServiceKey
	next, err := s.RotateServiceKey(ctx, "rotating", grace, func(cur *model.ServiceKey) (*model.ServiceKey, error) {
		seen = cur
		return &model.ServiceKey{
			SecretHash:  "hash-gen2",
			KeyPrefix:   "sk_dev_ffffffff",
			Environment: cur.Environment,
		}, nil
	})
	if err != nil {
		t.Fatalf("RotateServiceKey: %v", err)
	}
	if seen == nil || seen.ID != orig.ID {
		t.Fatalf("mint saw %+v, want original row", seen)
	}
	if next.Generation != 2 || !next.Active || next.KeyName != "rotating" {
		t.Errorf("unexpected replacement row: %+v", next)
	}

	old, _ := s.GetServiceKey(ctx, orig.ID)
	if old.ExpiresAt == nil || !old.ExpiresAt.Equal(grace) {
		t.Errorf("old expiry = %v, want %v", old.ExpiresAt, grace)
	}
	if !old.Active {
		t.Error("rotated-out key must stay active through the grace period")
	}

	// A second rotation retires generation 2, not generation 1.
	third, err := s.RotateServiceKey(ctx, "rotating", grace, func(cur *model.ServiceKey) (*model.ServiceKey, error) {
		if cur.Generation != 2 {
			t.Errorf("second rotation saw generation %d, want 2", cur.Generation)
		}
		return &model.ServiceKey{SecretHash: "hash-gen3", KeyPrefix: "sk_dev_eeeeeeee", Environment: cur.Environment}, nil
	})
	if err != nil {
		t.Fatalf("second RotateServiceKey: %v", err)
	}
	if third.Generation != 3 {
		t.Errorf("got generation %d, want 3", third.Generation)
	}

	keys, _ := s.ListServiceKeys(ctx)
	if len(keys) != 3 {
		t.Fatalf("got %d rows, want 3", len(keys))
	}
	if keys[0].Generation != 3 {
		t.Errorf("list order: first generation %d, want 3", keys[0].Generation)
	}
}

func TestRotateServiceKey_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mint := func(*model.ServiceKey) (*model.ServiceKey, error) {
		t.Fatal("mint must not be called")
		return nil, nil
	}
	if _, err := s.RotateServiceKey(ctx, "ghost", time.Now(), mint); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	revoked := testKey("revoked", "hash-r")
	s.CreateServiceKey(ctx, revoked)
	s.RevokeServiceKey(ctx, revoked.ID)
	if _, err := s.RotateServiceKey(ctx, "revoked", time.Now(), mint); !errors.Is(err, ErrNotFound) {
		t.Errorf("rotate revoked: got %v, want ErrNotFound", err)
	}
}

func TestRotateServiceKey_MintFailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orig := testKey("atomic", "hash-x")
	s.CreateServiceKey(ctx, orig)

	boom := errors.New("boom")
	_, err := s.RotateServiceKey(ctx, "atomic", time.Now().Add(time.Hour), func(*model.ServiceKey) (*model.ServiceKey, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	got, _ := s.GetServiceKey(ctx, orig.ID)
	if got.ExpiresAt != nil {
		t.Errorf("expiry should have rolled back, got %v", got.ExpiresAt)
	}
	keys, _ := s.ListServiceKeys(ctx)
	if len(keys) != 1 {
		t.Errorf("got %d rows, want 1", len(keys))
	}
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &model.Task{UserID: "user-1", Title: "Feed the cat", Priority: strPtr("high")}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != model.TaskStatusPending {
		t.Errorf("got status %q, want pending", task.Status)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "Feed the cat" || got.Priority == nil || *got.Priority != "high" {
		t.Errorf("unexpected task: %+v", got)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestListTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, status := range []string{"pending", "completed", "pending"} {
		err := s.CreateTask(ctx, &model.Task{
			UserID:    "user-1",
			Title:     "task",
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}
	s.CreateTask(ctx, &model.Task{UserID: "user-2", Title: "other"})

	all, err := s.ListTasks(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d tasks, want 3", len(all))
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Error("expected newest first")
	}

	pending, _ := s.ListTasks(ctx, "user-1", "pending")
	if len(pending) != 2 {
		t.Errorf("got %d pending, want 2", len(pending))
	}

	none, _ := s.ListTasks(ctx, "nobody", "")
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}

func TestUpdateTask_CompletedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &model.Task{UserID: "u", Title: "old"}
	s.CreateTask(ctx, task)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := s.UpdateTask(ctx, task.ID, model.TaskPatch{Status: strPtr("completed")}, at)
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(at) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, at)
	}

	// Updating another field leaves completed_at alone.
	got, _ = s.UpdateTask(ctx, task.ID, model.TaskPatch{Title: strPtr("new")}, at.Add(time.Hour))
	if got.Title != "new" || got.CompletedAt == nil || !got.CompletedAt.Equal(at) {
		t.Errorf("title-only update: %+v", got)
	}

	got, _ = s.UpdateTask(ctx, task.ID, model.TaskPatch{Status: strPtr("in_progress")}, at)
	if got.CompletedAt != nil {
		t.Errorf("expected completed_at cleared, got %v", got.CompletedAt)
	}
	if got.Status != "in_progress" {
		t.Errorf("got status %q", got.Status)
	}

	if _, err := s.UpdateTask(ctx, "0193b6a4-0000-7000-8000-000000000000", model.TaskPatch{Title: strPtr("x")}, at); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing task update: got %v, want ErrNotFound", err)
	}
}

func TestCountTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tasks := []*model.Task{
		{UserID: "u", Title: "a", Status: "pending", DueDate: &past},
		{UserID: "u", Title: "b", Status: "in_progress", DueDate: &future},
		{UserID: "u", Title: "c", Status: "completed", DueDate: &past},
		{UserID: "u", Title: "d", Status: "pending"},
		{UserID: "other", Title: "e", Status: "pending", DueDate: &past},
	}
	for _, task := range tasks {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	c, err := s.CountTasks(ctx, "u", now)
	if err != nil {
		t.Fatalf("CountTasks: %v", err)
	}
	want := TaskCounts{Total: 4, Pending: 2, InProgress: 1, Completed: 1, Overdue: 1}
	if *c != want {
		t.Errorf("got %+v, want %+v", *c, want)
	}

	empty, err := s.CountTasks(ctx, "nobody", now)
	if err != nil {
		t.Fatalf("CountTasks empty: %v", err)
	}
	if *empty != (TaskCounts{}) {
		t.Errorf("got %+v, want zero counts", *empty)
	}
}
