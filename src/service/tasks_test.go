package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Mahadi1000/taskmanager-server/src/model"
	"github.com/Mahadi1000/taskmanager-server/src/service"
	"github.com/Mahadi1000/taskmanager-server/src/store/storetest"
)

const missingID = "65f0c0ffee0000000000abcd"

func newService(t *testing.T) (*service.TaskService, *storetest.MemoryStore) {
	t.Helper()
	mem := storetest.NewMemoryStore()
	svc, err := service.NewTaskService(mem, time.Second)
	if err != nil {
		t.Fatalf("NewTaskService() error = %v", err)
	}
	return svc, mem
}

func TestCreateForcesPendingStatus(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	payloads := []map[string]any{
		{"title": "Buy milk"},
		{"title": "Ship it", "status": "done"},
		{"status": nil},
		{"status": 42.0, "description": "numeric status"},
		{},
	}
	for _, p := range payloads {
		task, err := svc.Create(ctx, p)
		if err != nil {
			t.Fatalf("Create(%v) error = %v", p, err)
		}
		if task.Status() != model.TaskPending {
			t.Errorf("Create(%v).status = %v, want pending", p, task[model.StatusField])
		}
		stored, ok := mem.Get(task.ID())
		if !ok {
			t.Fatalf("Create(%v) did not persist task %s", p, task.ID())
		}
		if diff := cmp.Diff(stored, task); diff != "" {
			t.Errorf("returned task differs from persisted one (-stored +returned):\n%s", diff)
		}
	}
}

func TestCreateDoesNotMutateInputOrHonorClientID(t *testing.T) {
	svc, _ := newService(t)

	in := map[string]any{"_id": "client-chosen", "title": "x", "status": "done"}
	task, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.ID() == "client-chosen" || task.ID() == "" {
		t.Errorf("Create() id = %q, want a store-generated id", task.ID())
	}
	if in["status"] != "done" {
		t.Errorf("Create() mutated caller's payload: %v", in)
	}
}

func TestListContainsCreatedTasks(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, map[string]any{"title": "a"})
	b, _ := svc.Create(ctx, map[string]any{"title": "b"})

	tasks, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []model.Task{a, b}
	if diff := cmp.Diff(want, tasks); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestDelete(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	task, _ := svc.Create(ctx, map[string]any{"title": "a"})

	if err := svc.Delete(ctx, task.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, task.ID()); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, missingID); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}

	calls := mem.CallCount()
	if err := svc.Delete(ctx, "not-a-valid-id-format"); !errors.Is(err, service.ErrInvalidID) {
		t.Errorf("Delete(malformed) error = %v, want ErrInvalidID", err)
	}
	if mem.CallCount() != calls {
		t.Error("Delete(malformed) reached the store")
	}
}

func TestReplaceStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	task, _ := svc.Create(ctx, map[string]any{"title": "Buy milk"})

	updated, err := svc.ReplaceStatus(ctx, task.ID(), "done")
	if err != nil {
		t.Fatalf("ReplaceStatus() error = %v", err)
	}
	want := model.Task{"_id": task.ID(), "title": "Buy milk", "status": "done"}
	if diff := cmp.Diff(want, updated); diff != "" {
		t.Errorf("ReplaceStatus() mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.ReplaceStatus(ctx, missingID, "done"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("ReplaceStatus(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.ReplaceStatus(ctx, "nope", "done"); !errors.Is(err, service.ErrInvalidID) {
		t.Errorf("ReplaceStatus(malformed) error = %v, want ErrInvalidID", err)
	}
}

func TestPartialUpdateMergesTopLevelFields(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	task, _ := svc.Create(ctx, map[string]any{
		"title":       "old",
		"description": "keep me",
		"meta":        map[string]any{"a": 1.0, "b": 2.0},
	})
	_, _ = svc.ReplaceStatus(ctx, task.ID(), "in-progress")

	err := svc.PartialUpdate(ctx, task.ID(), map[string]any{
		"_id":   missingID,
		"title": "x",
		"meta":  map[string]any{"a": 3.0},
	})
	if err != nil {
		t.Fatalf("PartialUpdate() error = %v", err)
	}

	got, _ := mem.Get(task.ID())
	want := model.Task{
		"_id":         task.ID(),
		"title":       "x",
		"description": "keep me",
		"status":      "in-progress",
		"meta":        map[string]any{"a": 3.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("task after PartialUpdate() mismatch (-want +got):\n%s", diff)
	}

	if err := svc.PartialUpdate(ctx, missingID, map[string]any{"title": "x"}); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("PartialUpdate(missing) error = %v, want ErrNotFound", err)
	}
	if err := svc.PartialUpdate(ctx, task.ID(), map[string]any{}); err != nil {
		t.Errorf("PartialUpdate(empty) error = %v", err)
	}
}

func TestFieldNamesMustBeTopLevel(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	task, err := svc.Create(ctx, map[string]any{"title": "a", "meta": map[string]any{"a": 1.0, "b": 2.0}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	calls := mem.CallCount()

	for _, fields := range []map[string]any{
		{"meta.a": 3.0},
		{"$inc": map[string]any{"n": 1.0}},
		{"title": "ok", "$set": map[string]any{"status": "done"}},
		{"": "blank"},
	} {
		if _, err := svc.Create(ctx, fields); !errors.Is(err, service.ErrInvalidField) {
			t.Errorf("Create(%v) error = %v, want ErrInvalidField", fields, err)
		}
		if err := svc.PartialUpdate(ctx, task.ID(), fields); !errors.Is(err, service.ErrInvalidField) {
			t.Errorf("PartialUpdate(%v) error = %v, want ErrInvalidField", fields, err)
		}
	}

	if got := mem.CallCount(); got != calls {
		t.Errorf("store calls = %d, want %d: rejected writes reached the store", got, calls)
	}
	got, _ := mem.Get(task.ID())
	want := model.Task{
		"_id":    task.ID(),
		"title":  "a",
		"status": "pending",
		"meta":   map[string]any{"a": 1.0, "b": 2.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("task after rejected writes mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	task, _ := svc.Create(ctx, map[string]any{"title": "a"})

	boom := errors.New("connection reset")
	mem.Fail(boom)

	if _, err := svc.List(ctx); !errors.Is(err, boom) {
		t.Errorf("List() error = %v", err)
	}
	if _, err := svc.Create(ctx, map[string]any{}); !errors.Is(err, boom) {
		t.Errorf("Create() error = %v", err)
	}
	if err := svc.Delete(ctx, task.ID()); !errors.Is(err, boom) || errors.Is(err, service.ErrNotFound) {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := svc.ReplaceStatus(ctx, task.ID(), "done"); !errors.Is(err, boom) {
		t.Errorf("ReplaceStatus() error = %v", err)
	}
	if err := svc.PartialUpdate(ctx, task.ID(), map[string]any{"a": 1.0}); !errors.Is(err, boom) {
		t.Errorf("PartialUpdate() error = %v", err)
	}
	if err := svc.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestStoreCallsAreBounded(t *testing.T) {
	svc, err := service.NewTaskService(slowStore{storetest.NewMemoryStore()}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewTaskService() error = %v", err)
	}

	_, err = svc.List(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("List() error = %v, want deadline exceeded", err)
	}
}

// slowStore blocks FindAll until the context ends.
type slowStore struct {
	*storetest.MemoryStore
}

func (s slowStore) FindAll(ctx context.Context) ([]model.Task, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
