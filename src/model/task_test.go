package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTaskAccessors(t *testing.T) {
	task := Task{IDField: "65f0c0ffee0000000000abcd", StatusField: "pending", "title": "Buy milk"}

	if got := task.ID(); got != "65f0c0ffee0000000000abcd" {
		t.Errorf("ID() = %q", got)
	}
	if got := task.Status(); got != TaskPending {
		t.Errorf("Status() = %q, want %q", got, TaskPending)
	}

	empty := Task{}
	if empty.ID() != "" || empty.Status() != "" {
		t.Errorf("empty task should have no id or status, got %q %q", empty.ID(), empty.Status())
	}
}

func TestTaskFieldsDropsID(t *testing.T) {
	task := Task{IDField: "abc", "title": "x", "tags": []any{"a"}}

	want := map[string]any{"title": "x", "tags": []any{"a"}}
	if diff := cmp.Diff(want, task.Fields()); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := task[IDField]; !ok {
		t.Error("Fields() must not mutate the receiver")
	}
}

func TestTaskCloneIsIndependent(t *testing.T) {
	task := Task{"title": "a"}
	c := task.Clone()
	c["title"] = "b"

	if task["title"] != "a" {
		t.Errorf("original mutated through clone: %v", task["title"])
	}
}
