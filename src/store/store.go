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

// Package store holds the document store backends tasks are persisted in.
package store

import (
	"context"
	"errors"

	"github.com/Mahadi1000/taskmanager-server/src/model"
)

var (
	ErrNotFound  = errors.New("task not found")
	ErrInvalidID = errors.New("invalid task id")
)

// Store is the narrow query surface the task service needs. Implementations
// must be safe for concurrent use and generate identifiers on Insert.
type Store interface {
	Insert(ctx context.Context, fields map[string]any) (string, error)
	FindAll(ctx context.Context) ([]model.Task, error)
	// FindAndUpdate merges patch into the task and returns it as stored after
	// the update, or ErrNotFound.
	FindAndUpdate(ctx context.Context, id string, patch map[string]any) (model.Task, error)
	// Update merges patch into the task and reports how many tasks matched.
	Update(ctx context.Context, id string, patch map[string]any) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	ValidID(id string) bool
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
