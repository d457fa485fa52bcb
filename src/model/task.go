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

package model

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
)

const (
	IDField     = "_id"
	StatusField = "status"
)

// Task is a schema-free task document. Values are limited to what JSON can
// carry: string, float64, bool, nil, map[string]any and []any.
type Task map[string]any

// ID returns the store-assigned identifier, or "" if the task was never stored.
func (t Task) ID() string {
	id, _ := t[IDField].(string)
	return id
}

func (t Task) Status() TaskStatus {
	s, _ := t[StatusField].(string)
	return TaskStatus(s)
}

// Clone returns a shallow copy; nested values are shared.
func (t Task) Clone() Task {
	c := make(Task, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// Fields returns a copy of the task without its identifier, suitable for
// handing to a store as an insert document or an update patch.
func (t Task) Fields() map[string]any {
	f := make(map[string]any, len(t))
	for k, v := range t {
		if k == IDField {
			continue
		}
		f[k] = v
	}
	return f
}
