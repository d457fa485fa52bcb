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

// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Mahadi1000/taskmanager-server/src/model"
	"github.com/Mahadi1000/taskmanager-server/src/store"
)

// MemoryStore mimics MongoStore semantics (ObjectID identifiers, insertion
// order, shallow $set merges) without a server.
type MemoryStore struct {
	mu    sync.Mutex
	order []string
	docs  map[string]model.Task

	// Err, when set, is returned by every call instead of touching the data.
	Err error
	// Calls counts store calls, including failed ones.
	Calls int
}

var _ store.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]model.Task{}}
}

func (m *MemoryStore) begin() error {
	m.Calls++
	return m.Err
}

func (m *MemoryStore) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

func (m *MemoryStore) Insert(ctx context.Context, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := primitive.NewObjectID().Hex()
	doc := model.Task(fields).Clone()
	doc[model.IDField] = id
	m.docs[id] = doc
	m.order = append(m.order, id)
	return id, nil
}

func (m *MemoryStore) FindAll(ctx context.Context) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0, len(m.order))
	for _, id := range m.order {
		tasks = append(tasks, m.docs[id].Clone())
	}
	return tasks, nil
}

func (m *MemoryStore) FindAndUpdate(ctx context.Context, id string, patch map[string]any) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	if !m.ValidID(id) {
		return nil, store.ErrInvalidID
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for k, v := range patch {
		doc[k] = v
	}
	return doc.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}
	if !m.ValidID(id) {
		return 0, store.ErrInvalidID
	}
	doc, ok := m.docs[id]
	if !ok {
		return 0, nil
	}
	for k, v := range patch {
		doc[k] = v
	}
	return 1, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}
	if !m.ValidID(id) {
		return 0, store.ErrInvalidID
	}
	if _, ok := m.docs[id]; !ok {
		return 0, nil
	}
	delete(m.docs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *MemoryStore) Close(context.Context) error { return nil }

// Get returns a copy of the stored task, for assertions.
func (m *MemoryStore) Get(id string) (model.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// CallCount returns how many store calls were made.
func (m *MemoryStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// Fail makes every subsequent call return err.
func (m *MemoryStore) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
