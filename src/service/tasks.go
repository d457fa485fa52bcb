// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package service implements the task lifecycle on top of a store.Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mahadi1000/taskmanager-server/src/logging"
	"github.com/Mahadi1000/taskmanager-server/src/model"
	"github.com/Mahadi1000/taskmanager-server/src/store"
)

// Errors returned by TaskService. Anything else is a store failure.
var (
	ErrNotFound  = store.ErrNotFound
	ErrInvalidID = store.ErrInvalidID
	// ErrInvalidField rejects top-level keys that a document store would
	// read as a nested path or an operator.
	ErrInvalidField = errors.New("invalid field name")
)

const DefaultStoreTimeout = 10 * time.Second

// TaskService holds no state of its own; every call is one store round trip.
type TaskService struct {
	store   store.Store
	timeout time.Duration

	created  metric.Float64Counter
	updated  metric.Float64Counter
	deleted  metric.Float64Counter
	failures metric.Float64Counter
}

// NewTaskService wires the service to s. Every store call is bounded by
// timeout, or DefaultStoreTimeout when timeout is not positive.
func NewTaskService(s store.Store, timeout time.Duration) (*TaskService, error) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	svc := &TaskService{store: s, timeout: timeout}

	var err error
	if svc.created, err = logging.InitializeFloatCounter("tasks_created_total", "Number of tasks created", "Task"); err != nil {
		return nil, fmt.Errorf("failed to create metric: %w", err)
	}
	if svc.updated, err = logging.InitializeFloatCounter("tasks_updated_total", "Number of status replacements and partial updates", "Task"); err != nil {
		return nil, fmt.Errorf("failed to create metric: %w", err)
	}
	if svc.deleted, err = logging.InitializeFloatCounter("tasks_deleted_total", "Number of tasks deleted", "Task"); err != nil {
		return nil, fmt.Errorf("failed to create metric: %w", err)
	}
	if svc.failures, err = logging.InitializeFloatCounter("task_store_failures_total", "Number of failed store calls", "Call"); err != nil {
		return nil, fmt.Errorf("failed to create metric: %w", err)
	}
	return svc, nil
}

// List returns every task in store order.
func (s *TaskService) List(ctx context.Context) ([]model.Task, error) {
	ctx, span := logging.StartSpan(ctx, "tasks.list")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tasks, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, "Error fetching tasks", err)
	}
	return tasks, nil
}

// Create stores fields as a new task with status forced to pending and
// returns the record as persisted, including its new identifier.
func (s *TaskService) Create(ctx context.Context, fields map[string]any) (model.Task, error) {
	ctx, span := logging.StartSpan(ctx, "tasks.create")
	defer span.End()
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	task := model.Task(fields).Clone()
	delete(task, model.IDField)
	task[model.StatusField] = string(model.TaskPending)

	id, err := s.store.Insert(ctx, task.Fields())
	if err != nil {
		return nil, s.fail(ctx, span, "Error creating task", err)
	}
	task[model.IDField] = id
	span.SetAttributes(attribute.String("task.id", id))
	add(ctx, s.created)
	return task, nil
}

// Delete removes the task. A second delete of the same id reports ErrNotFound.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	ctx, span := logging.StartSpan(ctx, "tasks.delete", attribute.String("task.id", id))
	defer span.End()
	if !s.store.ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return s.fail(ctx, span, "Error deleting task", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	add(ctx, s.deleted)
	return nil
}

// ReplaceStatus sets the status field and returns the task after the update.
func (s *TaskService) ReplaceStatus(ctx context.Context, id, status string) (model.Task, error) {
	ctx, span := logging.StartSpan(ctx, "tasks.replace_status", attribute.String("task.id", id))
	defer span.End()
	if !s.store.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	task, err := s.store.FindAndUpdate(ctx, id, map[string]any{model.StatusField: status})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, s.fail(ctx, span, "Error updating task", err)
	}
	add(ctx, s.updated)
	return task, nil
}

// PartialUpdate merges the top-level fields of patch into the task. The
// identifier can not be changed; an _id key in patch is ignored.
func (s *TaskService) PartialUpdate(ctx context.Context, id string, patch map[string]any) error {
	ctx, span := logging.StartSpan(ctx, "tasks.partial_update", attribute.String("task.id", id))
	defer span.End()
	if !s.store.ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if err := validateFields(patch); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	matched, err := s.store.Update(ctx, id, model.Task(patch).Fields())
	if err != nil {
		return s.fail(ctx, span, "Error updating task", err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	add(ctx, s.updated)
	return nil
}

// Ping reports whether the store is reachable.
func (s *TaskService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Ping(ctx)
}

func (s *TaskService) fail(ctx context.Context, span trace.Span, msg string, err error) error {
	logging.LogContext(ctx, slog.LevelError, msg, "error", err.Error())
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	add(ctx, s.failures)
	return fmt.Errorf("%s: %w", msg, err)
}

// validateFields keeps every write a top-level overwrite on all backends:
// Mongo treats "a.b" as a nested path and "$x" as an operator.
func validateFields(fields map[string]any) error {
	for k := range fields {
		if k == "" || strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidField, k)
		}
	}
	return nil
}

func add(ctx context.Context, c metric.Float64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}
